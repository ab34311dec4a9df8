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
	"global-universe/internal/performance"
	"global-universe/internal/series"
	"global-universe/internal/store"
	"global-universe/pkg/utils"
)

// valuationTask is one catalog entry of a valuation walk.
type valuationTask struct {
	asset     models.AssetSpec
	chosen    string
	fallbacks []string
}

// ValuationTasks returns the entries a valuation walk visits, narrowed by
// the configured symbol list and cap.
func (u *Updater) ValuationTasks() []models.AssetSpec {
	tasks := catalog.Filter(u.catalog.Entries(), u.opts.Valuations.Symbols)
	if n := u.opts.Valuations.MaxSymbols; n > 0 && len(tasks) > n {
		tasks = tasks[:n]
	}
	return tasks
}

// UpdateValuations appends today's valuation snapshot for every catalog entry.
func (u *Updater) UpdateValuations(ctx context.Context) (*models.RunSummary, error) {
	if u.quotes == nil {
		return nil, fmt.Errorf("valuations: no quote provider configured")
	}
	r := u.startRun(models.RunValuations)
	today := u.today()

	var tasks []valuationTask
	for _, a := range u.ValuationTasks() {
		t := valuationTask{asset: a, chosen: a.Primary.Symbol}
		for _, f := range a.Fallbacks {
			t.fallbacks = append(t.fallbacks, f.Symbol)
		}
		tasks = append(tasks, t)
	}

	var fatal error
	if u.opts.Valuations.Mode == config.ValuationModeInfo {
		fatal = u.valuationsByInfo(ctx, r, tasks, today)
	} else {
		fatal = u.valuationsByBatch(ctx, r, tasks, today)
	}
	return u.finish(ctx, r, store.ValuationSummaryFile, valuationFormat, fatal)
}

func (u *Updater) valuationsByBatch(ctx context.Context, r *run, tasks []valuationTask, today time.Time) error {
	var primaries, union []string
	seen := make(map[string]bool)
	for _, t := range tasks {
		if t.chosen != "" {
			primaries = append(primaries, t.chosen)
		}
		for _, s := range t.fallbacks {
			if !seen[s] {
				seen[s] = true
				union = append(union, s)
			}
		}
	}

	quoteLog := logging.WithOperation(r.logger, "batch_quote")
	primary := u.batchQuotes(ctx, quoteLog, primaries)
	fallback := u.batchQuotes(ctx, quoteLog, union)

	infoCalls := 0
	for _, t := range tasks {
		if ctx.Err() != nil {
			return nil
		}
		row := valuationRow(t)
		if t.chosen == "" {
			row.Status, row.Reason = models.StatusSkipped, models.ReasonNoSymbol
			r.summary.Rows = append(r.summary.Rows, row)
			continue
		}

		snap := primary[t.chosen]
		anyFallback := false
		var err error
		if !snap.HasMetrics() {
			for _, s := range t.fallbacks {
				q := fallback[s]
				if !q.HasMetrics() {
					continue
				}
				anyFallback = true
				if row.Updated, err = u.appendValuation(s, q, today); err != nil {
					break
				}
				row.Fallback, row.UsedSymbol, row.File = true, s, store.ValuationFile(s)
				break
			}
		} else {
			row.Updated, err = u.appendValuation(t.chosen, snap, today)
		}
		if err != nil {
			r.summary.Rows = append(r.summary.Rows, errorRow(row, err))
			if f := fatalErr(err); f != nil {
				return f
			}
			continue
		}

		if !row.Updated && u.infoAllowed(infoCalls) {
			candidates := infoCandidates(t)
			for _, s := range candidates {
				q, qerr := u.quotes.Info(ctx, s)
				infoCalls++
				if qerr != nil || !q.HasMetrics() {
					continue
				}
				if row.Updated, err = u.appendValuation(s, q, today); err != nil {
					break
				}
				row.Fallback = row.Fallback || s != t.chosen
				row.UsedSymbol, row.File = s, store.ValuationFile(s)
				pause(ctx, u.opts.Valuations.Pause)
				break
			}
			if err != nil {
				r.summary.Rows = append(r.summary.Rows, errorRow(row, err))
				if f := fatalErr(err); f != nil {
					return f
				}
				continue
			}
		}

		u.classifyValuation(r.logger, &row, today, snap.HasMetrics() || anyFallback)
		logging.LogUpdate(logging.WithSymbol(r.logger, row.UsedSymbol), row.UsedSymbol, string(row.Status), row.Reason, boolCount(row.Updated))
		r.summary.Rows = append(r.summary.Rows, row)
	}
	return nil
}

// valuationsByInfo is the per-symbol mode: one Info call for the primary,
// falling back to the ETF or first alternative only when an index returned
// no valuation fields.
func (u *Updater) valuationsByInfo(ctx context.Context, r *run, tasks []valuationTask, today time.Time) error {
	for _, t := range tasks {
		if ctx.Err() != nil {
			return nil
		}
		row := valuationRow(t)
		if t.chosen == "" {
			row.Status, row.Reason = models.StatusSkipped, models.ReasonNoSymbol
			r.summary.Rows = append(r.summary.Rows, row)
			continue
		}

		tryInfo := func(sym string) (bool, bool, error) {
			q, err := u.quotes.Info(ctx, sym)
			if err != nil || !q.HasMetrics() {
				return false, false, nil
			}
			ok, err := u.appendValuation(sym, q, today)
			return ok, true, err
		}

		updated, had, err := tryInfo(t.chosen)
		if err == nil && !had && t.asset.Primary.Role == models.RoleIndex {
			fb := t.asset.ETF
			if fb == "" && len(t.asset.Alternatives) > 0 {
				fb = t.asset.Alternatives[0]
			}
			if fb != "" {
				updated, had, err = tryInfo(fb)
				row.Fallback, row.UsedSymbol, row.File = true, fb, store.ValuationFile(fb)
			}
		}
		if err != nil {
			r.summary.Rows = append(r.summary.Rows, errorRow(row, err))
			if f := fatalErr(err); f != nil {
				return f
			}
			continue
		}

		row.Updated = updated
		u.classifyValuation(r.logger, &row, today, had)
		logging.LogUpdate(logging.WithSymbol(r.logger, row.UsedSymbol), row.UsedSymbol, string(row.Status), row.Reason, boolCount(row.Updated))
		r.summary.Rows = append(r.summary.Rows, row)
		pause(ctx, u.opts.Valuations.Pause)
	}
	return nil
}

func valuationRow(t valuationTask) models.SummaryRow {
	return models.SummaryRow{
		Country:    t.asset.Region,
		Category:   string(t.asset.Category),
		Name:       t.asset.Name,
		Symbol:     t.chosen,
		Primary:    t.chosen,
		UsedSymbol: t.chosen,
		File:       store.ValuationFile(t.chosen),
	}
}

// infoCandidates orders the per-symbol retries: chosen, ETF, alternatives,
// index, without repeats.
func infoCandidates(t valuationTask) []string {
	order := make([]string, 0, len(t.asset.Alternatives)+3)
	order = append(order, t.chosen, t.asset.ETF)
	order = append(order, t.asset.Alternatives...)
	order = append(order, t.asset.Index)

	var out []string
	seen := make(map[string]bool)
	for _, s := range order {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (u *Updater) infoAllowed(calls int) bool {
	if !u.opts.Valuations.InfoFallback {
		return false
	}
	max := u.opts.Valuations.MaxInfoCalls
	return max <= 0 || calls < max
}

// classifyValuation fills status and reason for a finished entry. hadMetrics
// reports whether any batch source returned valuation fields. An unreadable
// valuation table turns the row into an error.
func (u *Updater) classifyValuation(logger zerolog.Logger, row *models.SummaryRow, today time.Time, hadMetrics bool) {
	if row.Updated {
		row.Status, row.Reason = models.StatusOK, ""
		row.RowsAdded = 1
		return
	}

	name := store.ValuationFile(row.UsedSymbol)
	existing, err := u.store.Load(name)
	if err != nil {
		logger.Warn().Err(err).Str("file", name).Msg("Failed to read valuation table")
		*row = errorRow(*row, err)
		return
	}
	if _, ok := existing.Find(today); ok {
		row.Status, row.Reason = models.StatusNoChange, models.ReasonAlreadyHasToday
		return
	}

	row.Status = models.StatusNoData
	switch {
	case !u.hasPriceBar(row.UsedSymbol, today):
		row.Reason = models.ReasonNoPriceBarToday
	case !hadMetrics:
		row.Reason = models.ReasonNoValuationFields
	default:
		row.Reason = models.ReasonWriteSkipped
	}
}

// batchQuotes fetches quotes in chunks, pausing after each chunk. Failed
// chunks are logged and leave their symbols absent.
func (u *Updater) batchQuotes(ctx context.Context, logger zerolog.Logger, symbols []string) map[string]*models.Quote {
	out := make(map[string]*models.Quote, len(symbols))
	batches := performance.NewBatchProcessor(u.opts.Valuations.Chunk, func(batch []string) error {
		quotes, attempts, err := utils.RetryWithResult(ctx, u.retry, func() (map[string]*models.Quote, error) {
			return u.quotes.QuoteFields(ctx, batch)
		})
		if err != nil {
			logger.Warn().Err(err).Int("symbols", len(batch)).Int("attempts", attempts).Msg("Batch quote failed")
		}
		for s, q := range quotes {
			out[s] = q
		}
		pause(ctx, u.opts.Valuations.Pause)
		return ctx.Err()
	})
	for _, s := range symbols {
		if err := batches.Add(s); err != nil {
			return out
		}
	}
	_ = batches.Flush()
	return out
}

// appendValuation writes today's snapshot for sym. It reports false without
// writing when today's row exists, or when the stored file already has rows,
// no price bar exists for today, and the metrics are unchanged.
func (u *Updater) appendValuation(sym string, q *models.Quote, today time.Time) (bool, error) {
	name := store.ValuationFile(sym)
	unlock := u.store.Lock(name)
	defer unlock()

	existing, err := u.store.Load(name)
	if err != nil {
		return false, err
	}

	rec := q.Record(today)
	if rec.Text[models.ColSymbol] == "" {
		rec.Text[models.ColSymbol] = sym
	}

	if !existing.Empty() {
		if _, ok := existing.Find(today); ok {
			return false, nil
		}
		last := existing.Records[len(existing.Records)-1]
		changed := series.MetricsChanged(rec, last, models.ValuationFields, u.opts.Valuations.Tolerance)
		if !changed && !u.hasPriceBar(sym, today) {
			return false, nil
		}
	}

	incoming := models.NewTable(models.ValuationSchema())
	incoming.Append(rec)
	merged := series.Upsert(existing, incoming, models.ValuationSchema())
	if err := u.store.Save(name, merged.Table); err != nil {
		return false, err
	}
	return true, nil
}

// hasPriceBar reports whether the stored daily file of sym has a row for day.
func (u *Updater) hasPriceBar(sym string, day time.Time) bool {
	t, err := u.store.Load(store.PriceFile(sym))
	if err != nil {
		return false
	}
	_, ok := t.Find(day)
	return ok
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
