// Package provider provides market and macro data source interfaces and implementations.
package provider

import (
	"context"
	"time"

	"global-universe/internal/models"
)

// Fixed history windows, longest first.
const (
	WindowMax = "max"
	Window10Y = "10y"
	Window5Y  = "5y"
	Window2Y  = "2y"
	Window1Y  = "1y"
	Window6M  = "6mo"
	Window3M  = "3mo"
	Window1M  = "1mo"
	Window5D  = "5d"
	Window1D  = "1d"
)

// Windows lists the fixed windows in the order a first download tries them.
var Windows = []string{
	WindowMax, Window10Y, Window5Y, Window2Y, Window1Y,
	Window6M, Window3M, Window1M, Window5D, Window1D,
}

// HistoryRequest selects either a fixed window or an explicit date range.
// To is exclusive.
type HistoryRequest struct {
	Window string
	From   time.Time
	To     time.Time
}

// IsRange reports whether the request uses an explicit date range.
func (r HistoryRequest) IsRange() bool {
	return r.Window == "" && !r.From.IsZero()
}

// Label describes the request for logs and errors.
func (r HistoryRequest) Label() string {
	if r.IsRange() {
		return r.From.Format(models.DateLayout) + ".." + r.To.Format(models.DateLayout)
	}
	return r.Window
}

// PriceProvider returns daily price bars for a symbol.
type PriceProvider interface {
	History(ctx context.Context, symbol string, req HistoryRequest) (*models.Table, error)
}

// QuoteProvider returns valuation fields.
type QuoteProvider interface {
	// QuoteFields fetches many symbols in one call. Symbols the provider
	// does not know are absent from the result.
	QuoteFields(ctx context.Context, symbols []string) (map[string]*models.Quote, error)
	// Info fetches one symbol through the slower per-symbol endpoint.
	Info(ctx context.Context, symbol string) (*models.Quote, error)
}

// IndexProvider returns KRX index prices and fundamentals. Ranges are
// inclusive on both ends.
type IndexProvider interface {
	IndexOHLCV(ctx context.Context, code string, from, to time.Time) (*models.Table, error)
	IndexFundamentals(ctx context.Context, code string, from, to time.Time) (*models.Table, error)
}

// SeriesProvider returns macro series as a wide table with one numeric
// column per series ID.
type SeriesProvider interface {
	Name() string
	Series(ctx context.Context, ids []string, start time.Time) (*models.Table, error)
}
