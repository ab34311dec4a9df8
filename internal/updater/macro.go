package updater

import (
	"context"
	"fmt"
	"time"

	"global-universe/internal/catalog"
	"global-universe/internal/logging"
	"global-universe/internal/models"
	"global-universe/internal/store"
	"global-universe/pkg/utils"
)

// MacroGroups resolves group names to registry groups. No names selects the
// configured groups, or every group when none are configured.
func (u *Updater) MacroGroups(names ...string) ([]catalog.MacroGroup, error) {
	if len(names) == 0 {
		names = u.opts.Macro.Groups
	}
	if len(names) == 0 {
		return u.macros.Groups(), nil
	}
	out := make([]catalog.MacroGroup, 0, len(names))
	for _, n := range names {
		g, ok := u.macros.Group(n)
		if !ok {
			return nil, fmt.Errorf("unknown macro group %q", n)
		}
		out = append(out, g)
	}
	return out, nil
}

// UpdateMacro refreshes one wide CSV per macro group. Every run re-fetches
// the last RevisionMonths months so revised observations replace stored ones.
func (u *Updater) UpdateMacro(ctx context.Context, groups ...string) (*models.RunSummary, error) {
	selected, err := u.MacroGroups(groups...)
	if err != nil {
		return nil, err
	}
	r := u.startRun(models.RunMacro)

	var fatal error
	for _, g := range selected {
		if ctx.Err() != nil {
			break
		}
		e := u.updateMacroGroup(ctx, r, g)
		r.summary.Rows = append(r.summary.Rows, e.row)
		if fatal = e.fatal; fatal != nil {
			break
		}
	}
	return u.finish(ctx, r, store.MacroSummaryFile, macroFormat, fatal)
}

// macroStart returns the first observation date to request for a group.
func (u *Updater) macroStart(existing *models.Table) time.Time {
	start := u.opts.Macro.Start
	if last, ok := existing.LastDate(); ok {
		first := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)
		start = first.AddDate(0, -u.opts.Macro.RevisionMonths, 0)
	}
	return start
}

func (u *Updater) updateMacroGroup(ctx context.Context, r *run, g catalog.MacroGroup) entry {
	name := store.MacroFile(g.Name)
	row := models.SummaryRow{
		Name:       g.Name,
		Category:   g.Source,
		Symbol:     g.Name,
		Primary:    g.Name,
		UsedSymbol: g.Name,
		File:       name,
	}
	logger := logging.WithSymbol(r.logger, g.Name)

	src, ok := u.series[g.Source]
	if !ok {
		row.Status, row.Reason = models.StatusSkipped, models.ReasonNoProvider
		logging.LogUpdate(logger, g.Name, string(row.Status), row.Reason, 0)
		return entry{row: row}
	}

	unlock := u.store.Lock(name)
	defer unlock()

	existing, err := u.store.Load(name)
	if err != nil {
		return entry{row: errorRow(row, err), fatal: fatalErr(err)}
	}

	ids := g.IDs()
	schema := models.Schema{Numeric: ids}
	start := u.macroStart(existing)

	fetched, attempts, err := utils.RetryWithResult(ctx, u.retry, func() (*models.Table, error) {
		return src.Series(ctx, ids, start)
	})
	if err != nil && !isNoData(err) {
		logger.Warn().Err(err).Int("attempts", attempts).Str("source", src.Name()).Msg("Macro fetch failed")
		return entry{row: errorRow(row, err)}
	}

	if fetched.Empty() {
		row.Status, row.Reason = models.StatusNoChange, models.ReasonUpToDate
		if existing.Empty() {
			row.Status, row.Reason = models.StatusNoData, models.ReasonNoData
		}
		if existing == nil {
			if err := u.store.Save(name, models.NewTable(schema)); err != nil {
				return entry{row: errorRow(row, err), fatal: fatalErr(err)}
			}
		}
		logging.LogUpdate(logger, g.Name, string(row.Status), row.Reason, 0)
		return entry{row: row}
	}

	logger.Debug().
		Str("source", src.Name()).
		Str("from", start.Format(models.DateLayout)).
		Int("fetched", fetched.Len()).
		Msg("Fetched macro series")
	keepMissing(existing, fetched)
	return u.saveMerged(logger, name, existing, fetched, schema, row)
}

// keepMissing copies stored values into fetched rows that lack them, so a
// series absent from a revision fetch keeps its stored observations.
func keepMissing(existing, fetched *models.Table) {
	if existing.Empty() {
		return
	}
	for _, rec := range fetched.Records {
		old, ok := existing.Find(rec.Date)
		if !ok {
			continue
		}
		for col, v := range old.Values {
			if _, present := rec.Values[col]; !present {
				rec.Values[col] = v
			}
		}
	}
}
