package analysis

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"global-universe/internal/models"
	"global-universe/internal/store"
)

// DefaultBenchmark is the symbol returns are compared against.
const DefaultBenchmark = "^GSPC"

// ReturnsHeader is the column order of the returns summary CSV.
var ReturnsHeader = []string{"country", "category", "name", "symbol", "start", "end", "local_return", "diff_vs_benchmark", "sharpe", "sortino"}

// TableLoader reads stored tables by name.
type TableLoader interface {
	Load(name string) (*models.Table, error)
}

// ReturnsQuery selects what ReturnsTable computes.
type ReturnsQuery struct {
	Period    string
	AsOf      time.Time
	Benchmark string
	// RiskFree is the annual rate subtracted in Sharpe and Sortino.
	RiskFree float64
}

// ReturnRow is one asset's performance over a period. Ratios that cannot
// be computed are NaN.
type ReturnRow struct {
	Country         string
	Category        models.Category
	Name            string
	Symbol          string
	Start           time.Time
	End             time.Time
	LocalReturn     float64
	DiffVsBenchmark float64
	Sharpe          float64
	Sortino         float64
}

// ReturnsTable computes period performance for every asset with a stored
// price series. Assets without enough data are left out.
func ReturnsTable(loader TableLoader, specs []models.AssetSpec, q ReturnsQuery) ([]ReturnRow, error) {
	if q.AsOf.IsZero() {
		q.AsOf = time.Now()
	}
	if q.Benchmark == "" {
		q.Benchmark = DefaultBenchmark
	}
	start, err := PeriodStart(q.Period, q.AsOf)
	if err != nil {
		return nil, err
	}
	end := models.Day(q.AsOf)

	bench := math.NaN()
	if t, err := loader.Load(store.PriceFile(q.Benchmark)); err != nil {
		return nil, fmt.Errorf("load benchmark %s: %w", q.Benchmark, err)
	} else if t != nil {
		if r, err := PeriodReturn(t, start, end); err == nil {
			bench = r
		}
	}

	var rows []ReturnRow
	for _, spec := range specs {
		if !spec.HasPrimary() {
			continue
		}
		sym := spec.Primary.Symbol
		t, err := loader.Load(store.PriceFile(sym))
		if err != nil {
			return rows, fmt.Errorf("load %s: %w", sym, err)
		}
		if t.Empty() {
			continue
		}
		row, err := assetReturns(t, start, end, q.RiskFree)
		if errors.Is(err, ErrInsufficientData) {
			continue
		}
		if err != nil {
			return rows, err
		}
		row.Country = spec.Region
		row.Category = spec.Category
		row.Name = spec.Name
		row.Symbol = sym
		row.DiffVsBenchmark = row.LocalReturn - bench
		rows = append(rows, row)
	}
	return rows, nil
}

func assetReturns(t *models.Table, start, end time.Time, rf float64) (ReturnRow, error) {
	dates, closes := Closes(t, start, end)
	if len(closes) < 2 {
		return ReturnRow{}, ErrInsufficientData
	}
	total, err := PeriodReturn(t, start, end)
	if err != nil {
		return ReturnRow{}, err
	}
	daily := DailyReturns(closes)
	row := ReturnRow{
		Start:       dates[0],
		End:         dates[len(dates)-1],
		LocalReturn: total,
		Sharpe:      math.NaN(),
		Sortino:     math.NaN(),
	}
	if s, err := Sharpe(daily, rf, TradingDaysPerYear); err == nil {
		row.Sharpe = s
	}
	if s, err := Sortino(daily, rf, TradingDaysPerYear); err == nil {
		row.Sortino = s
	}
	return row, nil
}

// ReturnsRecords renders rows for the returns summary CSV. Missing values
// are written as empty cells.
func ReturnsRecords(rows []ReturnRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Country,
			string(r.Category),
			r.Name,
			r.Symbol,
			r.Start.Format(models.DateLayout),
			r.End.Format(models.DateLayout),
			cell(r.LocalReturn),
			cell(r.DiffVsBenchmark),
			cell(r.Sharpe),
			cell(r.Sortino),
		})
	}
	return out
}

func cell(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
