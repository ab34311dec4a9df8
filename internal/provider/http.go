package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/logging"
	"global-universe/internal/resilience"
	"global-universe/internal/security"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2.0 // requests per second across all providers
	DefaultBurst     = 2

	maxBodyBytes = 32 << 20
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
)

// HTTPClient is the single outbound client shared by every provider, so the
// token bucket bounds the process-wide request rate.
type HTTPClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
	headers    http.Header
	breakers   *resilience.Registry
}

// ClientOption configures the client
type ClientOption func(*HTTPClient)

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// WithBreaker trips a per-host circuit after threshold consecutive transient
// failures. A zero threshold leaves calls unguarded.
func WithBreaker(threshold int, cooldown time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if threshold <= 0 {
			c.breakers = nil
			return
		}
		c.breakers = resilience.NewRegistry(resilience.BreakerConfig{FailureThreshold: threshold, Cooldown: cooldown})
	}
}

// OpenCircuits lists the hosts currently rejected by the breaker.
func (c *HTTPClient) OpenCircuits() []string {
	if c.breakers == nil {
		return nil
	}
	return c.breakers.Open()
}

// WithHTTPClient replaces the underlying client, keeping the configured timeout
// when the replacement has none.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if hc.Timeout == 0 {
			hc.Timeout = c.httpClient.Timeout
		}
		c.httpClient = hc
	}
}

// NewHTTPClient creates a rate-limited client with browser-like headers.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultBurst),
		logger:     zerolog.Nop(),
		headers: http.Header{
			"User-Agent":      []string{userAgent},
			"Accept":          []string{"application/json, text/plain, */*"},
			"Accept-Language": []string{"en-US,en;q=0.9"},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError represents a non-200 response.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Transient reports whether retrying may succeed.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Unwrap maps rate limiting onto the sentinel.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return apperrors.ErrRateLimited
	}
	return nil
}

// IsTransient classifies an error from any provider call.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if apperrors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if apperrors.Is(err, apperrors.ErrRateLimited) || apperrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if apperrors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return apperrors.As(err, &urlErr)
}

// GetJSON performs a rate-limited GET and decodes the JSON body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, rawURL string, params url.Values, headers map[string]string, out interface{}) error {
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, headers, out)
}

// PostForm performs a rate-limited form POST and decodes the JSON reply.
func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return c.do(req, headers, out)
}

// PostJSON performs a rate-limited JSON POST and decodes the JSON reply.
func (c *HTTPClient) PostJSON(ctx context.Context, rawURL string, body interface{}, headers map[string]string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, headers, out)
}

func (c *HTTPClient) do(req *http.Request, headers map[string]string, out interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	var br *resilience.Breaker
	if c.breakers != nil {
		br = c.breakers.Get(req.URL.Host)
	}
	if err := br.Allow(); err != nil {
		return fmt.Errorf("%s: %w", req.URL.Host, err)
	}

	for k, v := range c.headers {
		req.Header[k] = v
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	endpoint := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = security.RedactError(fmt.Errorf("failed to execute request: %w", err))
		br.Record(IsTransient(err))
		logging.LogAPICall(c.logger, req.Method, endpoint, time.Since(start), err)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	logging.LogAPICall(c.logger, req.Method, endpoint, time.Since(start), err)
	if err != nil {
		br.Record(true)
		return fmt.Errorf("failed to read response: %w", err)
	}
	br.Record(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Endpoint:   req.URL.Path,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
