// Package models provides domain models for the time-series cache.
package models

import (
	"math"
	"sort"
	"time"
)

// DateLayout is the on-disk date format for every stored table.
const DateLayout = "2006-01-02"

// Price table columns, in canonical order.
const (
	ColOpen     = "Open"
	ColHigh     = "High"
	ColLow      = "Low"
	ColClose    = "Close"
	ColAdjClose = "Adj Close"
	ColVolume   = "Volume"
)

// Valuation table columns.
const (
	ColTrailingPE    = "trailingPE"
	ColPriceToBook   = "priceToBook"
	ColDividendYield = "trailingAnnualDividendYield"
	ColSymbol        = "symbol"
	ColCurrency      = "currency"
	ColQuoteType     = "quoteType"
)

// PriceColumns lists every price column a provider may supply.
var PriceColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColAdjClose, ColVolume}

// ValuationFields lists the metrics captured in a valuation snapshot.
var ValuationFields = []string{ColTrailingPE, ColPriceToBook, ColDividendYield}

// ValuationText lists the metadata columns of a valuation snapshot.
var ValuationText = []string{ColSymbol, ColCurrency, ColQuoteType}

// Schema describes the ordered columns of a table.
type Schema struct {
	Numeric []string
	Text    []string
}

// PriceSchema is the placeholder schema written when no price data exists yet.
func PriceSchema() Schema {
	return Schema{Numeric: append([]string(nil), PriceColumns...)}
}

// ValuationSchema is the canonical valuation table schema.
func ValuationSchema() Schema {
	return Schema{
		Numeric: append([]string(nil), ValuationFields...),
		Text:    append([]string(nil), ValuationText...),
	}
}

// Columns returns the numeric columns followed by the text columns, the order
// they are stored in.
func (s Schema) Columns() []string {
	out := make([]string, 0, len(s.Numeric)+len(s.Text))
	out = append(out, s.Numeric...)
	return append(out, s.Text...)
}

// IsText reports whether col is a text column.
func (s Schema) IsText(col string) bool {
	for _, c := range s.Text {
		if c == col {
			return true
		}
	}
	return false
}

// Union merges other into s, keeping the order of s and appending new columns.
func (s Schema) Union(other Schema) Schema {
	out := Schema{
		Numeric: append([]string(nil), s.Numeric...),
		Text:    append([]string(nil), s.Text...),
	}
	for _, c := range other.Numeric {
		if !contains(out.Numeric, c) {
			out.Numeric = append(out.Numeric, c)
		}
	}
	for _, c := range other.Text {
		if !contains(out.Text, c) {
			out.Text = append(out.Text, c)
		}
	}
	return out
}

// Record is one dated row of a table.
type Record struct {
	Date   time.Time
	Values map[string]float64
	Text   map[string]string
}

// NewRecord creates an empty record for the given day.
func NewRecord(date time.Time) Record {
	return Record{
		Date:   Day(date),
		Values: make(map[string]float64),
		Text:   make(map[string]string),
	}
}

// Value returns the numeric value of col and whether it is present.
func (r Record) Value(col string) (float64, bool) {
	v, ok := r.Values[col]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Equal reports whether two records hold the same date and values.
func (r Record) Equal(o Record) bool {
	if !r.Date.Equal(o.Date) {
		return false
	}
	if len(presentKeys(r.Values)) != len(presentKeys(o.Values)) || len(r.Text) != len(o.Text) {
		return false
	}
	for k := range r.Values {
		a, aok := r.Value(k)
		b, bok := o.Value(k)
		if aok != bok || a != b {
			return false
		}
	}
	for k, v := range r.Text {
		if o.Text[k] != v {
			return false
		}
	}
	return true
}

// Table is a date-keyed series of records.
type Table struct {
	Schema  Schema
	Records []Record
}

// NewTable creates an empty table with the given schema.
func NewTable(schema Schema) *Table {
	return &Table{Schema: schema}
}

// Len returns the number of records, treating nil as empty.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Empty reports whether the table has no records.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Append adds a record without reordering.
func (t *Table) Append(r Record) {
	t.Records = append(t.Records, r)
}

// Dates returns the record dates in storage order.
func (t *Table) Dates() []time.Time {
	out := make([]time.Time, 0, t.Len())
	if t == nil {
		return out
	}
	for _, r := range t.Records {
		out = append(out, r.Date)
	}
	return out
}

// LastDate returns the most recent date and false when the table is empty.
func (t *Table) LastDate() (time.Time, bool) {
	if t.Empty() {
		return time.Time{}, false
	}
	last := t.Records[0].Date
	for _, r := range t.Records[1:] {
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return last, true
}

// Find returns the record stored for date.
func (t *Table) Find(date time.Time) (Record, bool) {
	if t == nil {
		return Record{}, false
	}
	d := Day(date)
	for _, r := range t.Records {
		if r.Date.Equal(d) {
			return r, true
		}
	}
	return Record{}, false
}

// Column returns the present values of col in storage order with their dates.
func (t *Table) Column(col string) ([]time.Time, []float64) {
	var dates []time.Time
	var values []float64
	if t == nil {
		return dates, values
	}
	for _, r := range t.Records {
		if v, ok := r.Value(col); ok {
			dates = append(dates, r.Date)
			values = append(values, v)
		}
	}
	return dates, values
}

// Normalize deduplicates records by date, keeping the last seen, and sorts
// them ascending.
func (t *Table) Normalize() {
	if t == nil || len(t.Records) == 0 {
		return
	}
	latest := make(map[time.Time]int, len(t.Records))
	for i, r := range t.Records {
		latest[Day(r.Date)] = i
	}
	out := make([]Record, 0, len(latest))
	for i, r := range t.Records {
		r.Date = Day(r.Date)
		if latest[r.Date] == i {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	t.Records = out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := &Table{
		Schema: Schema{
			Numeric: append([]string(nil), t.Schema.Numeric...),
			Text:    append([]string(nil), t.Schema.Text...),
		},
		Records: make([]Record, len(t.Records)),
	}
	for i, r := range t.Records {
		nr := NewRecord(r.Date)
		for k, v := range r.Values {
			nr.Values[k] = v
		}
		for k, v := range r.Text {
			nr.Text[k] = v
		}
		c.Records[i] = nr
	}
	return c
}

// Day truncates t to a timezone-naive calendar day (UTC midnight).
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date, also accepting a trailing time part.
func ParseDay(s string) (time.Time, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func presentKeys(m map[string]float64) []string {
	var out []string
	for k, v := range m {
		if !math.IsNaN(v) {
			out = append(out, k)
		}
	}
	return out
}
