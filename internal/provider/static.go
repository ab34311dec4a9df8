package provider

import (
	"context"
	"sync"
	"time"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
)

// Static is an in-memory provider that serves fixed tables. It implements
// every provider interface and is used for offline runs and tests.
type Static struct {
	// Now anchors fixed windows; zero means time.Now.
	Now time.Time

	mu           sync.RWMutex
	prices       map[string]*models.Table
	quotes       map[string]*models.Quote
	infos        map[string]*models.Quote
	ohlcv        map[string]*models.Table
	fundamentals map[string]*models.Table
	series       map[string]*models.Table

	// failures returns err for the next n calls keyed by op+symbol.
	failures map[string]*failure
	calls    map[string]int
	requests []Request
}

type failure struct {
	n   int
	err error
}

// Request records one call made against a Static provider.
type Request struct {
	Op      string
	Symbol  string
	History HistoryRequest
}

// Static operation names used by Fail and Calls.
const (
	OpHistory      = "history"
	OpQuote        = "quote"
	OpInfo         = "info"
	OpOHLCV        = "ohlcv"
	OpFundamentals = "fundamentals"
	OpSeries       = "series"
)

// NewStatic creates an empty static provider.
func NewStatic() *Static {
	return &Static{
		prices:       make(map[string]*models.Table),
		quotes:       make(map[string]*models.Quote),
		infos:        make(map[string]*models.Quote),
		ohlcv:        make(map[string]*models.Table),
		fundamentals: make(map[string]*models.Table),
		series:       make(map[string]*models.Table),
		failures:     make(map[string]*failure),
		calls:        make(map[string]int),
	}
}

// SetPrices sets the full price history served for symbol.
func (s *Static) SetPrices(symbol string, t *models.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = t.Clone()
}

// SetQuote sets the batch quote served for symbol.
func (s *Static) SetQuote(q *models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *q
	s.quotes[q.Symbol] = &c
}

// SetInfo sets the per-symbol info served for symbol.
func (s *Static) SetInfo(q *models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *q
	s.infos[q.Symbol] = &c
}

// SetIndex sets the KRX OHLCV and fundamentals tables for code. Either may be nil.
func (s *Static) SetIndex(code string, ohlcv, fundamentals *models.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ohlcv != nil {
		s.ohlcv[code] = ohlcv.Clone()
	}
	if fundamentals != nil {
		s.fundamentals[code] = fundamentals.Clone()
	}
}

// SetSeries sets a single-column macro series.
func (s *Static) SetSeries(id string, t *models.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[id] = t.Clone()
}

// Fail makes the next n calls of op for symbol return err. A negative n
// fails every call.
func (s *Static) Fail(op, symbol string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+"|"+symbol] = &failure{n: n, err: err}
}

// Calls returns how many times op was called for symbol.
func (s *Static) Calls(op, symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op+"|"+symbol]
}

// Requests returns every recorded call in order.
func (s *Static) Requests() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Request(nil), s.requests...)
}

func (s *Static) record(op, symbol string, req HistoryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op + "|" + symbol
	s.calls[key]++
	s.requests = append(s.requests, Request{Op: op, Symbol: symbol, History: req})
	f, ok := s.failures[key]
	if !ok || f.n == 0 {
		return nil
	}
	if f.n > 0 {
		f.n--
	}
	return f.err
}

func (s *Static) now() time.Time {
	if s.Now.IsZero() {
		return time.Now()
	}
	return s.Now
}

// History serves the stored table cut to the requested window or range.
func (s *Static) History(ctx context.Context, symbol string, req HistoryRequest) (*models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.record(OpHistory, symbol, req); err != nil {
		return nil, err
	}
	s.mu.RLock()
	t, ok := s.prices[symbol]
	s.mu.RUnlock()
	if !ok {
		return models.NewTable(models.PriceSchema()), nil
	}

	from, to := req.From, req.To
	if !req.IsRange() {
		to = models.Day(s.now()).AddDate(0, 0, 1)
		from = windowStart(req.Window, to)
	}
	return filterRange(t, from, to), nil
}

// windowStart returns the first day covered by a fixed window ending at end.
func windowStart(window string, end time.Time) time.Time {
	switch window {
	case Window10Y:
		return end.AddDate(-10, 0, 0)
	case Window5Y:
		return end.AddDate(-5, 0, 0)
	case Window2Y:
		return end.AddDate(-2, 0, 0)
	case Window1Y:
		return end.AddDate(-1, 0, 0)
	case Window6M:
		return end.AddDate(0, -6, 0)
	case Window3M:
		return end.AddDate(0, -3, 0)
	case Window1M:
		return end.AddDate(0, -1, 0)
	case Window5D:
		return end.AddDate(0, 0, -5)
	case Window1D:
		return end.AddDate(0, 0, -1)
	default:
		return time.Time{}
	}
}

// filterRange keeps rows in [from, to). A zero bound is open.
func filterRange(t *models.Table, from, to time.Time) *models.Table {
	out := models.NewTable(t.Schema)
	for _, r := range t.Records {
		if !from.IsZero() && r.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !r.Date.Before(to) {
			continue
		}
		out.Append(r)
	}
	return out.Clone()
}

// QuoteFields serves stored quotes; unknown symbols are absent.
func (s *Static) QuoteFields(ctx context.Context, symbols []string) (map[string]*models.Quote, error) {
	out := make(map[string]*models.Quote, len(symbols))
	for _, sym := range symbols {
		if err := s.record(OpQuote, sym, HistoryRequest{}); err != nil {
			return nil, err
		}
		s.mu.RLock()
		q, ok := s.quotes[sym]
		s.mu.RUnlock()
		if ok {
			c := *q
			out[sym] = &c
		}
	}
	return out, ctx.Err()
}

// Info serves a stored info quote or ErrNoData.
func (s *Static) Info(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := s.record(OpInfo, symbol, HistoryRequest{}); err != nil {
		return nil, err
	}
	s.mu.RLock()
	q, ok := s.infos[symbol]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewProviderError("static", OpInfo, symbol, apperrors.ErrNoData)
	}
	c := *q
	return &c, ctx.Err()
}

// IndexOHLCV serves stored KRX bars in [from, to].
func (s *Static) IndexOHLCV(ctx context.Context, code string, from, to time.Time) (*models.Table, error) {
	return s.index(ctx, OpOHLCV, s.ohlcv, code, from, to)
}

// IndexFundamentals serves stored KRX fundamentals in [from, to].
func (s *Static) IndexFundamentals(ctx context.Context, code string, from, to time.Time) (*models.Table, error) {
	return s.index(ctx, OpFundamentals, s.fundamentals, code, from, to)
}

func (s *Static) index(ctx context.Context, op string, src map[string]*models.Table, code string, from, to time.Time) (*models.Table, error) {
	if err := s.record(op, code, HistoryRequest{From: from, To: to}); err != nil {
		return nil, err
	}
	s.mu.RLock()
	t, ok := src[code]
	s.mu.RUnlock()
	if !ok {
		return models.NewTable(models.Schema{}), ctx.Err()
	}
	return filterRange(t, models.Day(from), models.Day(to).AddDate(0, 0, 1)), ctx.Err()
}

// Name returns the provider name.
func (s *Static) Name() string { return "static" }

// Series joins the stored series for ids into one wide table.
func (s *Static) Series(ctx context.Context, ids []string, start time.Time) (*models.Table, error) {
	out := models.NewTable(models.Schema{Numeric: append([]string(nil), ids...)})
	byDate := map[time.Time]int{}
	for _, id := range ids {
		if err := s.record(OpSeries, id, HistoryRequest{From: start}); err != nil {
			return nil, err
		}
		s.mu.RLock()
		t, ok := s.series[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		for _, r := range t.Records {
			if r.Date.Before(models.Day(start)) {
				continue
			}
			v, ok := r.Value(id)
			if !ok {
				continue
			}
			i, seen := byDate[r.Date]
			if !seen {
				out.Append(models.NewRecord(r.Date))
				i = len(out.Records) - 1
				byDate[r.Date] = i
			}
			out.Records[i].Values[id] = v
		}
	}
	out.Normalize()
	return out, ctx.Err()
}
