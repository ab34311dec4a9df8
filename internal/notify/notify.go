// Package notify sends run summaries to external channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"global-universe/internal/config"
	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
	"global-universe/internal/security"
)

// maxListedErrors caps the failing entries quoted in one message.
const maxListedErrors = 10

// Channel is one delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationSummary NotificationType = "summary"
	NotificationError   NotificationType = "error"
)

// Level filters which runs are announced.
type Level string

const (
	LevelAll        Level = config.NotifyAll
	LevelErrorsOnly Level = config.NotifyErrorsOnly
)

// MultiNotifier fans a run summary out to every enabled channel.
type MultiNotifier struct {
	channels []Channel
	level    Level
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewMultiNotifier creates a MultiNotifier from configuration. Disabled
// channels are not added.
func NewMultiNotifier(cfg config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		level:  Level(cfg.Level),
		logger: logger.With().Str("component", "notify").Logger(),
	}
	if mn.level == "" {
		mn.level = LevelAll
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}
	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the number of registered channels.
func (mn *MultiNotifier) Channels() int {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	return len(mn.channels)
}

func (mn *MultiNotifier) shouldSend(t NotificationType) bool {
	if mn.level == LevelErrorsOnly {
		return t == NotificationError
	}
	return true
}

// Notify announces a finished run. A run with error rows is sent as an
// error notification.
func (mn *MultiNotifier) Notify(ctx context.Context, sum *models.RunSummary) error {
	if sum == nil {
		return nil
	}
	return mn.Send(ctx, SummaryNotification(sum))
}

// Send delivers n to every enabled channel and joins their failures.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []error
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			mn.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("Notification failed")
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		mn.logger.Debug().Str("channel", ch.Name()).Str("title", n.Title).Msg("Notification sent")
	}
	return apperrors.Join(errs...)
}

// SummaryNotification renders a run summary with per-status counts.
func SummaryNotification(sum *models.RunSummary) Notification {
	counts := sum.Counts()
	typ := NotificationSummary
	if counts[models.StatusError] > 0 {
		typ = NotificationError
	}

	title := fmt.Sprintf("%s update: %d updated of %d", sum.Kind, sum.Updated(), len(sum.Rows))
	if typ == NotificationError {
		title = fmt.Sprintf("%s update: %d errors", sum.Kind, counts[models.StatusError])
	}

	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	var sb strings.Builder
	data := map[string]interface{}{
		"run_id":   sum.ID,
		"kind":     sum.Kind,
		"entries":  len(sum.Rows),
		"updated":  sum.Updated(),
		"duration": sum.FinishedAt.Sub(sum.StartedAt).String(),
	}
	byStatus := make(map[string]int, len(counts))
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		n := counts[models.Status(s)]
		byStatus[s] = n
		parts = append(parts, fmt.Sprintf("%s: %d", s, n))
	}
	data["counts"] = byStatus
	sb.WriteString(strings.Join(parts, " | "))
	sb.WriteString(fmt.Sprintf("\nFinished: %s", sum.FinishedAt.UTC().Format(time.RFC3339)))

	listed := 0
	for _, r := range sum.Rows {
		if r.Status != models.StatusError {
			continue
		}
		if listed == maxListedErrors {
			sb.WriteString("\n...")
			break
		}
		label := r.Symbol
		if label == "" {
			label = r.Name
		}
		sb.WriteString(fmt.Sprintf("\n%s: %s", label, r.Reason))
		listed++
	}

	return Notification{
		Type:      typ,
		Title:     title,
		Message:   sb.String(),
		Data:      data,
		Timestamp: sum.FinishedAt,
	}
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts n as JSON.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}
	return postJSON(ctx, w.client, w.url, payload, http.Header{"User-Agent": {"global-universe/1.0"}})
}

const telegramBaseURL = "https://api.telegram.org"

// TelegramNotifier sends notifications via Telegram bot.
type TelegramNotifier struct {
	baseURL  string
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		baseURL:  telegramBaseURL,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification via Telegram.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.baseURL, "/"), t.botToken)
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	return postJSON(ctx, t.client, url, payload, nil)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}, header http.Header) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return security.RedactError(fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
