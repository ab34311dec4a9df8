package models

import (
	"fmt"
	"time"
)

// Status is the machine-readable outcome of one catalog entry in a run.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNoChange Status = "no_change"
	StatusNoData   Status = "no_data"
	StatusError    Status = "error"
	StatusSkipped  Status = "skipped"
)

// Reason codes recorded next to a status.
const (
	ReasonUpToDate          = "up_to_date"
	ReasonNoPriceBarToday   = "no_price_bar_today"
	ReasonNoValuationFields = "no_valuation_fields"
	ReasonAlreadyHasToday   = "already_has_today"
	ReasonWriteSkipped      = "unknown_or_write_skipped"
	ReasonNoSymbol          = "no_symbol"
	ReasonDuplicateSymbol   = "duplicate_symbol"
	ReasonKoreaUSTheme      = "korea_us_theme_skipped"
	ReasonNoData            = "no_data"
	ReasonNoProvider        = "no_provider"
)

// ReasonAppended formats the reason for a run that added rows.
func ReasonAppended(n int) string {
	return fmt.Sprintf("appended %d", n)
}

// ReasonRevised formats the reason for a run that only rewrote existing rows.
func ReasonRevised(n int) string {
	return fmt.Sprintf("revised %d", n)
}

// ReasonError formats an error reason, truncated to keep summaries readable.
func ReasonError(err error) string {
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return "error:" + msg
}

// RunKind names the update that produced a summary.
type RunKind string

const (
	RunPrices     RunKind = "prices"
	RunValuations RunKind = "valuations"
	RunKRX        RunKind = "krx"
	RunMacro      RunKind = "macro"
)

// SummaryRow is one row of a run summary.
type SummaryRow struct {
	Country    string
	Category   string
	Name       string
	Symbol     string
	Primary    string
	UsedSymbol string
	Fallback   bool
	File       string
	RowsAdded  int
	Updated    bool
	Status     Status
	Reason     string
	RunID      string
	RunAt      time.Time
}

// RunSummary is the outcome of one full update run.
type RunSummary struct {
	ID         string
	Kind       RunKind
	StartedAt  time.Time
	FinishedAt time.Time
	Rows       []SummaryRow
}

// Counts tallies rows by status.
func (s *RunSummary) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, r := range s.Rows {
		out[r.Status]++
	}
	return out
}

// Updated returns the number of entries whose table changed.
func (s *RunSummary) Updated() int {
	n := 0
	for _, r := range s.Rows {
		if r.Updated {
			n++
		}
	}
	return n
}

// Quote holds the valuation-related fields reported for one symbol.
// Absent metrics are nil.
type Quote struct {
	Symbol        string
	TrailingPE    *float64
	PriceToBook   *float64
	DividendYield *float64
	Currency      string
	QuoteType     string
}

// HasMetrics reports whether at least one valuation metric is present.
func (q *Quote) HasMetrics() bool {
	if q == nil {
		return false
	}
	return q.TrailingPE != nil || q.PriceToBook != nil || q.DividendYield != nil
}

// Metrics returns the present metrics keyed by valuation column.
func (q *Quote) Metrics() map[string]float64 {
	out := make(map[string]float64, 3)
	if q == nil {
		return out
	}
	if q.TrailingPE != nil {
		out[ColTrailingPE] = *q.TrailingPE
	}
	if q.PriceToBook != nil {
		out[ColPriceToBook] = *q.PriceToBook
	}
	if q.DividendYield != nil {
		out[ColDividendYield] = *q.DividendYield
	}
	return out
}

// Record converts the quote into a valuation table row for date.
func (q *Quote) Record(date time.Time) Record {
	r := NewRecord(date)
	for k, v := range q.Metrics() {
		r.Values[k] = v
	}
	r.Text[ColSymbol] = q.Symbol
	r.Text[ColCurrency] = q.Currency
	r.Text[ColQuoteType] = q.QuoteType
	return r
}
