// Package fetcher downloads the missing tail of a price series.
package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
	"global-universe/internal/provider"
	"global-universe/pkg/utils"
)

// Result is the outcome of one Fetch. Table is never nil; Err is set when
// every attempt failed, in which case Table is empty.
type Result struct {
	Table    *models.Table
	Window   string
	Attempts int
	Err      error
}

// Empty reports whether no rows were fetched.
func (r Result) Empty() bool {
	return r.Table.Empty()
}

// Fetcher wraps a PriceProvider with the window walk, range fallback and
// retry policy.
type Fetcher struct {
	provider provider.PriceProvider
	retry    utils.RetryConfig
	clock    utils.Clock
	loc      *time.Location
	windows  []string
	logger   zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRetry sets the retry policy for transient errors.
func WithRetry(cfg utils.RetryConfig) Option {
	return func(f *Fetcher) { f.retry = cfg }
}

// WithClock sets the clock that defines "today".
func WithClock(c utils.Clock) Option {
	return func(f *Fetcher) { f.clock = c }
}

// WithLocation sets the timezone "today" is taken in.
func WithLocation(loc *time.Location) Option {
	return func(f *Fetcher) { f.loc = loc }
}

// WithWindows overrides the fixed window order used on first download.
func WithWindows(windows []string) Option {
	return func(f *Fetcher) { f.windows = append([]string(nil), windows...) }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// New creates a Fetcher.
func New(p provider.PriceProvider, opts ...Option) *Fetcher {
	f := &Fetcher{
		provider: p,
		retry:    utils.DefaultRetryConfig(),
		clock:    utils.SystemClock{},
		loc:      time.Local,
		windows:  provider.Windows,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.retry.Retryable = provider.IsTransient
	return f
}

// Today returns the fetcher's current calendar day.
func (f *Fetcher) Today() time.Time {
	return utils.Today(f.clock, f.loc)
}

// Fetch downloads bars for symbol. With a nil start the fixed windows are
// tried longest first and the first non-empty one wins. With a start the
// range [start, today] is requested, falling back to the 5d window filtered
// to dates >= start when the range call fails.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, start *time.Time) Result {
	log := f.logger.With().Str("symbol", symbol).Logger()
	if start == nil {
		return f.walkWindows(ctx, log, symbol)
	}

	from := models.Day(*start)
	today := f.Today()
	if from.After(today) {
		log.Debug().Str("start", from.Format(models.DateLayout)).Msg("start is in the future, nothing to fetch")
		return emptyResult("")
	}

	req := provider.HistoryRequest{From: from, To: today.AddDate(0, 0, 1)}
	t, attempts, err := f.call(ctx, symbol, req)
	if err == nil {
		return Result{Table: trim(t), Window: req.Label(), Attempts: attempts}
	}
	if ctx.Err() != nil {
		return failed(symbol, req.Label(), attempts, err)
	}

	log.Warn().Err(err).Str("range", req.Label()).Msg("range download failed, falling back to 5d window")
	fb := provider.HistoryRequest{Window: provider.Window5D}
	t, n, ferr := f.call(ctx, symbol, fb)
	attempts += n
	if ferr != nil {
		return failed(symbol, fb.Window, attempts, ferr)
	}
	kept := models.NewTable(t.Schema)
	for _, r := range t.Records {
		if !r.Date.Before(from) {
			kept.Append(r)
		}
	}
	return Result{Table: trim(kept), Window: fb.Window, Attempts: attempts}
}

func (f *Fetcher) walkWindows(ctx context.Context, log zerolog.Logger, symbol string) Result {
	var lastErr error
	var lastWindow string
	attempts := 0
	for _, w := range f.windows {
		t, n, err := f.call(ctx, symbol, provider.HistoryRequest{Window: w})
		attempts += n
		if err != nil {
			if ctx.Err() != nil {
				return failed(symbol, w, attempts, err)
			}
			log.Debug().Err(err).Str("window", w).Msg("window download failed")
			lastErr, lastWindow = err, w
			continue
		}
		if !t.Empty() {
			return Result{Table: trim(t), Window: w, Attempts: attempts}
		}
	}
	if lastErr != nil {
		return failed(symbol, lastWindow, attempts, lastErr)
	}
	return Result{Table: trim(models.NewTable(models.PriceSchema())), Attempts: attempts}
}

// call runs one provider request under the retry policy. A ErrNoData answer
// is an empty table, not a failure.
func (f *Fetcher) call(ctx context.Context, symbol string, req provider.HistoryRequest) (*models.Table, int, error) {
	t, attempts, err := utils.RetryWithResult(ctx, f.retry, func() (*models.Table, error) {
		return f.provider.History(ctx, symbol, req)
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNoData) && ctx.Err() == nil {
			return models.NewTable(models.PriceSchema()), attempts, nil
		}
		return nil, attempts, err
	}
	if t == nil {
		t = models.NewTable(models.PriceSchema())
	}
	f.logger.Debug().
		Str("symbol", symbol).
		Str("request", req.Label()).
		Int("rows", t.Len()).
		Int("attempts", attempts).
		Msg("history fetched")
	return t, attempts, nil
}

// trim keeps the canonical price columns the provider supplied, in
// canonical order, and drops everything else.
func trim(t *models.Table) *models.Table {
	present := make(map[string]bool, len(t.Schema.Numeric))
	for _, c := range t.Schema.Numeric {
		present[c] = true
	}
	var cols []string
	for _, c := range models.PriceColumns {
		if present[c] {
			cols = append(cols, c)
		}
	}
	out := models.NewTable(models.Schema{Numeric: cols})
	for _, r := range t.Records {
		nr := models.NewRecord(r.Date)
		for _, c := range cols {
			if v, ok := r.Value(c); ok {
				nr.Values[c] = v
			}
		}
		out.Append(nr)
	}
	out.Normalize()
	return out
}

func emptyResult(window string) Result {
	return Result{Table: models.NewTable(models.PriceSchema()), Window: window}
}

func failed(symbol, window string, attempts int, err error) Result {
	r := emptyResult(window)
	r.Attempts = attempts
	r.Err = apperrors.NewFetchError(symbol, window, attempts, err)
	return r
}
