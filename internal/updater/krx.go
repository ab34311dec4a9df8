package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"global-universe/internal/catalog"
	"global-universe/internal/config"
	"global-universe/internal/logging"
	"global-universe/internal/models"
	"global-universe/internal/provider"
	"global-universe/internal/series"
	"global-universe/internal/store"
	"global-universe/pkg/utils"
)

// KRX index metadata written into every valuation row.
const (
	krxCurrency  = "KRW"
	krxQuoteType = "INDEX"
	krxCountry   = "Korea"
	kindDaily    = "daily"
	kindVal      = "valuation"
)

// krxEpoch is where a first full download starts.
var krxEpoch = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

func krxPriceSchema() models.Schema {
	return models.Schema{Numeric: []string{
		models.ColOpen, models.ColHigh, models.ColLow, models.ColClose, models.ColVolume,
	}}
}

// UpdateKRX refreshes the daily OHLCV and valuation files of every KRX index
// in the catalog.
func (u *Updater) UpdateKRX(ctx context.Context) (*models.RunSummary, error) {
	if u.index == nil {
		return nil, fmt.Errorf("krx: no index provider configured")
	}
	r := u.startRun(models.RunKRX)
	today := u.today()

	var fatal error
	for _, idx := range u.catalog.KRXIndices() {
		if ctx.Err() != nil {
			break
		}
		daily := u.updateKRXDaily(ctx, r, idx, today)
		r.summary.Rows = append(r.summary.Rows, daily.row)
		if fatal = daily.fatal; fatal != nil {
			break
		}
		val := u.updateKRXValuation(ctx, r, idx, today)
		r.summary.Rows = append(r.summary.Rows, val.row)
		if fatal = val.fatal; fatal != nil {
			break
		}
		pause(ctx, u.opts.KRX.Pause)
	}
	return u.finish(ctx, r, store.KRXSummaryFile, krxFormat, fatal)
}

func krxRow(idx catalog.KRXIndex, kind, file string) models.SummaryRow {
	sym := idx.Symbol()
	return models.SummaryRow{
		Country:    krxCountry,
		Category:   kind,
		Name:       idx.Name,
		Symbol:     sym,
		Primary:    sym,
		UsedSymbol: sym,
		File:       file,
	}
}

// krxFirstStart returns where a first OHLCV download starts.
func (u *Updater) krxFirstStart(today time.Time) time.Time {
	if u.opts.KRX.PriceMode == config.KRXPriceQuick {
		years := u.opts.KRX.PriceYears
		if years < 1 {
			years = 1
		}
		return today.AddDate(-years, 0, 0)
	}
	return krxEpoch
}

func (u *Updater) updateKRXDaily(ctx context.Context, r *run, idx catalog.KRXIndex, today time.Time) entry {
	name := store.PriceFile(idx.Symbol())
	row := krxRow(idx, kindDaily, name)
	logger := logging.WithOperation(logging.WithSymbol(r.logger, row.Symbol), "index_ohlcv")

	unlock := u.store.Lock(name)
	defer unlock()

	existing, err := u.store.Load(name)
	if err != nil {
		return entry{row: errorRow(row, err), fatal: fatalErr(err)}
	}

	from := u.krxFirstStart(today)
	if last, ok := existing.LastDate(); ok {
		from = last.AddDate(0, 0, 1)
	}
	if from.After(today) {
		row.Status, row.Reason = models.StatusNoChange, models.ReasonUpToDate
		return entry{row: row}
	}

	fetched, err := u.indexCall(ctx, func() (*models.Table, error) {
		return u.index.IndexOHLCV(ctx, idx.Code, from, today)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("KRX OHLCV fetch failed")
		return entry{row: errorRow(row, err)}
	}

	if fetched.Empty() {
		row.Status, row.Reason = models.StatusNoChange, models.ReasonUpToDate
		if existing.Empty() {
			row.Status, row.Reason = models.StatusNoData, models.ReasonNoData
		}
		if existing == nil {
			if err := u.store.Save(name, models.NewTable(krxPriceSchema())); err != nil {
				return entry{row: errorRow(row, err), fatal: fatalErr(err)}
			}
		}
		logging.LogUpdate(logger, row.Symbol, string(row.Status), row.Reason, 0)
		return entry{row: row}
	}

	return u.saveMerged(logger, name, existing, fetched, krxPriceSchema(), row)
}

func (u *Updater) updateKRXValuation(ctx context.Context, r *run, idx catalog.KRXIndex, today time.Time) entry {
	name := store.ValuationFile(idx.Symbol())
	row := krxRow(idx, kindVal, name)
	logger := logging.WithOperation(logging.WithSymbol(r.logger, row.Symbol), "index_fundamentals")

	unlock := u.store.Lock(name)
	defer unlock()

	existing, err := u.store.Load(name)
	if err != nil {
		return entry{row: errorRow(row, err), fatal: fatalErr(err)}
	}

	from := today
	if u.opts.KRX.ValuationMode == config.KRXValBackfill {
		from = krxEpoch
		if last, ok := existing.LastDate(); ok {
			from = last.AddDate(0, 0, 1)
		}
	} else if _, ok := existing.Find(today); ok {
		row.Status, row.Reason = models.StatusNoChange, models.ReasonAlreadyHasToday
		return entry{row: row}
	}
	if from.After(today) {
		row.Status, row.Reason = models.StatusNoChange, models.ReasonUpToDate
		return entry{row: row}
	}

	fetched, err := u.indexCall(ctx, func() (*models.Table, error) {
		return u.index.IndexFundamentals(ctx, idx.Code, from, today)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("KRX fundamentals fetch failed")
		return entry{row: errorRow(row, err)}
	}

	if fetched.Empty() {
		row.Status, row.Reason = models.StatusNoChange, models.ReasonUpToDate
		if existing.Empty() {
			row.Status, row.Reason = models.StatusNoData, models.ReasonNoData
		}
		if existing == nil {
			if err := u.store.Save(name, models.NewTable(models.ValuationSchema())); err != nil {
				return entry{row: errorRow(row, err), fatal: fatalErr(err)}
			}
		}
		logging.LogUpdate(logger, row.Symbol, string(row.Status), row.Reason, 0)
		return entry{row: row}
	}

	if provider.PercentToFraction(fetched, models.ColDividendYield) {
		logger.Debug().Msg("Dividend yield converted from percent")
	}
	fetched.Schema = models.ValuationSchema().Union(fetched.Schema)
	for _, rec := range fetched.Records {
		rec.Text[models.ColSymbol] = row.Symbol
		rec.Text[models.ColCurrency] = krxCurrency
		rec.Text[models.ColQuoteType] = krxQuoteType
	}

	return u.saveMerged(logger, name, existing, fetched, models.ValuationSchema(), row)
}

// saveMerged upserts fetched into existing, saves on change and fills row.
func (u *Updater) saveMerged(logger zerolog.Logger, name string, existing, fetched *models.Table, schema models.Schema, row models.SummaryRow) entry {
	merged := series.Upsert(existing, fetched, schema)
	if merged.Changed() {
		if err := u.store.Save(name, merged.Table); err != nil {
			return entry{row: errorRow(row, err), fatal: fatalErr(err)}
		}
	}
	row.RowsAdded = merged.Added
	row.Updated = merged.Changed()
	switch {
	case merged.Added > 0:
		row.Status, row.Reason = models.StatusOK, models.ReasonAppended(merged.Added)
	case merged.Replaced > 0:
		row.Status, row.Reason = models.StatusOK, models.ReasonRevised(merged.Replaced)
	default:
		row.Status, row.Reason = models.StatusNoChange, models.ReasonUpToDate
	}
	logging.LogUpdate(logger, row.Symbol, string(row.Status), row.Reason, row.RowsAdded)
	return entry{row: row}
}

// indexCall retries transient provider errors and maps no-data to empty.
func (u *Updater) indexCall(ctx context.Context, fn func() (*models.Table, error)) (*models.Table, error) {
	t, _, err := utils.RetryWithResult(ctx, u.retry, fn)
	if err != nil {
		if isNoData(err) {
			return models.NewTable(models.Schema{}), nil
		}
		return nil, err
	}
	if t == nil {
		t = models.NewTable(models.Schema{})
	}
	return t, nil
}
