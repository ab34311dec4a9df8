// Package testutil builds fixture tables for tests.
package testutil

import (
	"math"
	"time"

	"global-universe/internal/models"
)

// BaseDate is the first day of generated series.
var BaseDate = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// PriceTable returns n consecutive daily bars starting at start.
func PriceTable(start time.Time, n int, basePrice float64) *models.Table {
	t := models.NewTable(models.PriceSchema())
	for i := 0; i < n; i++ {
		t.Append(PriceRecord(start.AddDate(0, 0, i), basePrice+float64(i)))
	}
	return t
}

// PriceRecord returns a bar whose prices are derived from close.
func PriceRecord(date time.Time, close float64) models.Record {
	r := models.NewRecord(date)
	r.Values[models.ColOpen] = round(close*0.99, 4)
	r.Values[models.ColHigh] = round(close*1.01, 4)
	r.Values[models.ColLow] = round(close*0.98, 4)
	r.Values[models.ColClose] = round(close, 4)
	r.Values[models.ColAdjClose] = round(close, 4)
	r.Values[models.ColVolume] = 1000 + float64(date.YearDay())
	return r
}

// TableFromCloses builds a table with only Close values on consecutive days.
func TableFromCloses(start time.Time, closes ...float64) *models.Table {
	return TableFromColumn(models.ColClose, start, closes...)
}

// TableFromColumn builds a single-column table on consecutive days.
func TableFromColumn(col string, start time.Time, values ...float64) *models.Table {
	t := models.NewTable(models.Schema{Numeric: []string{col}})
	for i, v := range values {
		r := models.NewRecord(start.AddDate(0, 0, i))
		r.Values[col] = v
		t.Append(r)
	}
	return t
}

// MonthlyTable builds a single-column table on the first of consecutive months.
func MonthlyTable(col string, start time.Time, values ...float64) *models.Table {
	t := models.NewTable(models.Schema{Numeric: []string{col}})
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		r := models.NewRecord(first.AddDate(0, i, 0))
		r.Values[col] = v
		t.Append(r)
	}
	return t
}

// TablesEqual compares two tables record by record.
func TablesEqual(a, b *models.Table) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.Records {
		if !a.Records[i].Equal(b.Records[i]) {
			return false
		}
	}
	return true
}

// StrictlyIncreasing reports whether table dates are unique and ascending.
func StrictlyIncreasing(t *models.Table) bool {
	for i := 1; i < t.Len(); i++ {
		if !t.Records[i].Date.After(t.Records[i-1].Date) {
			return false
		}
	}
	return true
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 {
	return &v
}

func round(v float64, places int) float64 {
	m := math.Pow(10, float64(places))
	return math.Round(v*m) / m
}
