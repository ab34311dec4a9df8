package updater

import (
	"context"
	"strings"
	"time"

	"global-universe/internal/logging"
	"global-universe/internal/models"
	"global-universe/internal/performance"
	"global-universe/internal/series"
	"global-universe/internal/store"
)

// PriceSymbols returns the symbols a price walk visits: the catalog
// primaries, narrowed by the configured symbol list and cap.
func (u *Updater) PriceSymbols() []string {
	syms := u.catalog.PrimarySymbols()
	if want := u.opts.Prices.Symbols; len(want) > 0 {
		keep := make(map[string]bool, len(want))
		for _, s := range want {
			keep[strings.TrimSpace(s)] = true
		}
		filtered := syms[:0:0]
		for _, s := range syms {
			if keep[s] {
				filtered = append(filtered, s)
			}
		}
		syms = filtered
	}
	if n := u.opts.Prices.MaxSymbols; n > 0 && len(syms) > n {
		syms = syms[:n]
	}
	return syms
}

// UpdatePrices brings the daily price file of every symbol up to date. A nil
// symbols list walks PriceSymbols. Per-symbol failures become error rows; only
// an unwritable data directory aborts the walk.
func (u *Updater) UpdatePrices(ctx context.Context, symbols []string) (*models.RunSummary, error) {
	if symbols == nil {
		symbols = u.PriceSymbols()
	}
	r := u.startRun(models.RunPrices)

	walkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries, done := performance.Map(walkCtx, u.opts.Prices.Workers, symbols, func(ctx context.Context, _ int, sym string) entry {
		e := u.updatePrice(ctx, r, sym)
		if e.fatal != nil {
			cancel()
			return e
		}
		pause(ctx, u.opts.Prices.Pause)
		return e
	})
	fatal := r.collect(entries, done)

	return u.finish(ctx, r, store.PriceSummaryFile, priceFormat, fatal)
}

func (u *Updater) updatePrice(ctx context.Context, r *run, sym string) entry {
	name := store.PriceFile(sym)
	row := models.SummaryRow{Symbol: sym, Primary: sym, UsedSymbol: sym, File: name}
	logger := logging.WithSymbol(r.logger, sym)

	unlock := u.store.Lock(name)
	defer unlock()

	existing, err := u.store.Load(name)
	if err != nil {
		return entry{row: errorRow(row, err), fatal: fatalErr(err)}
	}

	res := u.fetcher.Fetch(ctx, sym, nextStart(existing))
	if res.Err != nil {
		logger.Warn().Err(res.Err).Int("attempts", res.Attempts).Msg("Fetch failed")
		row = errorRow(row, res.Err)
		logging.LogUpdate(logger, sym, string(row.Status), row.Reason, 0)
		return entry{row: row}
	}

	if res.Empty() {
		row.Status, row.Reason = models.StatusNoChange, models.ReasonUpToDate
		if existing.Empty() {
			row.Status, row.Reason = models.StatusNoData, models.ReasonNoData
		}
		if existing == nil {
			// First download found nothing; leave a header-only file so the
			// symbol is visible on disk.
			if err := u.store.Save(name, models.NewTable(models.PriceSchema())); err != nil {
				return entry{row: errorRow(row, err), fatal: fatalErr(err)}
			}
		}
		logging.LogUpdate(logger, sym, string(row.Status), row.Reason, 0)
		return entry{row: row}
	}

	merged := series.Upsert(existing, res.Table, models.PriceSchema())
	if merged.Changed() {
		if err := u.store.Save(name, merged.Table); err != nil {
			return entry{row: errorRow(row, err), fatal: fatalErr(err)}
		}
	}
	logger.Debug().
		Str("window", res.Window).
		Int("fetched", res.Table.Len()).
		Int("added", merged.Added).
		Int("replaced", merged.Replaced).
		Msg("Merged price rows")

	row.RowsAdded = merged.Added
	row.Updated = merged.Added > 0
	if row.Updated {
		row.Status, row.Reason = models.StatusOK, models.ReasonAppended(merged.Added)
	} else {
		row.Status, row.Reason = models.StatusNoChange, models.ReasonUpToDate
	}
	logging.LogUpdate(logger, sym, string(row.Status), row.Reason, row.RowsAdded)
	return entry{row: row}
}

// nextStart returns the day after the last stored row, or nil when nothing
// is stored yet.
func nextStart(existing *models.Table) *time.Time {
	last, ok := existing.LastDate()
	if !ok {
		return nil
	}
	next := last.AddDate(0, 0, 1)
	return &next
}
