// Package analysis derives returns and risk-adjusted metrics from stored
// tables. It only reads; nothing here writes to the store.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"global-universe/internal/models"
	"global-universe/internal/series"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrUnknownPeriod is returned for period names PeriodStart does not know.
	ErrUnknownPeriod = errors.New("unknown period")
)

// TradingDaysPerYear annualises daily statistics.
const TradingDaysPerYear = 252

// Period names accepted by PeriodStart.
const (
	PeriodYTD = "ytd"
	Period1Y  = "1y"
	Period3Y  = "3y"
	Period5Y  = "5y"
	Period10Y = "10y"
)

// Periods lists the supported period names.
var Periods = []string{PeriodYTD, Period1Y, Period3Y, Period5Y, Period10Y}

// PeriodStart returns the first day of period ending at asOf.
func PeriodStart(period string, asOf time.Time) (time.Time, error) {
	d := models.Day(asOf)
	switch strings.ToLower(strings.TrimSpace(period)) {
	case PeriodYTD:
		return time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC), nil
	case Period1Y:
		return d.AddDate(-1, 0, 0), nil
	case Period3Y:
		return d.AddDate(-3, 0, 0), nil
	case Period5Y:
		return d.AddDate(-5, 0, 0), nil
	case Period10Y:
		return d.AddDate(-10, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}
}

// CloseColumn picks Adj Close when the table carries it, else Close.
func CloseColumn(t *models.Table) string {
	if t != nil {
		for _, c := range t.Schema.Numeric {
			if c == models.ColAdjClose {
				return c
			}
		}
	}
	return models.ColClose
}

// Closes returns the closing prices of t between from and to inclusive.
// A zero bound is open.
func Closes(t *models.Table, from, to time.Time) ([]time.Time, []float64) {
	return series.Between(t, from, to).Column(CloseColumn(t))
}

// DailyReturns returns simple returns between consecutive closes. Pairs
// with a non-positive base are skipped.
func DailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev <= 0 || math.IsNaN(prev) || math.IsNaN(closes[i]) {
			continue
		}
		out = append(out, closes[i]/prev-1)
	}
	return out
}

// PeriodReturn returns last/first - 1 over the closes in [start, end].
func PeriodReturn(t *models.Table, start, end time.Time) (float64, error) {
	_, closes := Closes(t, start, end)
	if len(closes) < 2 {
		return 0, ErrInsufficientData
	}
	first, last := closes[0], closes[len(closes)-1]
	if first <= 0 {
		return 0, fmt.Errorf("%w: non-positive first close", ErrInsufficientData)
	}
	return last/first - 1, nil
}

// Sharpe returns the annualised Sharpe ratio of periodic returns. rf is the
// annual risk-free rate.
func Sharpe(returns []float64, rf float64, periodsPerYear int) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}
	excess := excessReturns(returns, rf, periodsPerYear)
	sd := stdDev(excess)
	if sd == 0 {
		return 0, fmt.Errorf("%w: zero volatility", ErrInsufficientData)
	}
	return mean(excess) / sd * math.Sqrt(float64(periodsPerYear)), nil
}

// Sortino is Sharpe with downside deviation in the denominator.
func Sortino(returns []float64, rf float64, periodsPerYear int) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}
	excess := excessReturns(returns, rf, periodsPerYear)
	var sq float64
	for _, r := range excess {
		if r < 0 {
			sq += r * r
		}
	}
	dd := math.Sqrt(sq / float64(len(excess)))
	if dd == 0 {
		return 0, fmt.Errorf("%w: no downside", ErrInsufficientData)
	}
	return mean(excess) / dd * math.Sqrt(float64(periodsPerYear)), nil
}

func excessReturns(returns []float64, rf float64, periodsPerYear int) []float64 {
	if periodsPerYear < 1 {
		periodsPerYear = TradingDaysPerYear
	}
	per := rf / float64(periodsPerYear)
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - per
	}
	return out
}

// MoM returns the percent change of every column against the previous row.
func MoM(t *models.Table) *models.Table {
	return pctChange(t, func(out *models.Table, i int) (models.Record, bool) {
		if i == 0 {
			return models.Record{}, false
		}
		return t.Records[i-1], true
	})
}

// YoY returns the percent change of every column against the row dated
// twelve months earlier. Rows without such a row are dropped.
func YoY(t *models.Table) *models.Table {
	return pctChange(t, func(_ *models.Table, i int) (models.Record, bool) {
		return t.Find(t.Records[i].Date.AddDate(-1, 0, 0))
	})
}

func pctChange(t *models.Table, base func(*models.Table, int) (models.Record, bool)) *models.Table {
	if t == nil {
		return nil
	}
	src := t.Clone()
	src.Normalize()
	t = src
	out := models.NewTable(models.Schema{Numeric: append([]string(nil), t.Schema.Numeric...)})
	for i, r := range t.Records {
		prev, ok := base(out, i)
		if !ok {
			continue
		}
		rec := models.NewRecord(r.Date)
		for _, col := range t.Schema.Numeric {
			v, vok := r.Value(col)
			p, pok := prev.Value(col)
			if !vok || !pok || p == 0 {
				continue
			}
			rec.Values[col] = (v/p - 1) * 100
		}
		if len(rec.Values) > 0 {
			out.Append(rec)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// stdDev is the sample standard deviation.
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)-1))
}
