// Package updater walks the catalog and brings every stored table up to date.
package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"global-universe/internal/catalog"
	apperrors "global-universe/internal/errors"
	"global-universe/internal/fetcher"
	"global-universe/internal/logging"
	"global-universe/internal/models"
	"global-universe/internal/provider"
	"global-universe/internal/store"
	"global-universe/pkg/utils"
)

// Store is the table store the walks write to.
type Store interface {
	store.TableStore
	WriteRows(name string, header []string, rows [][]string) error
}

// Notifier receives a run summary after every walk.
type Notifier interface {
	Notify(ctx context.Context, summary *models.RunSummary) error
}

// Deps holds the collaborators of an Updater. Quotes, Index, Series, Ledger
// and Notifier are optional; a walk whose provider is missing fails fast.
type Deps struct {
	Store    Store
	Fetcher  *fetcher.Fetcher
	Quotes   provider.QuoteProvider
	Index    provider.IndexProvider
	Series   map[string]provider.SeriesProvider // keyed by macro source
	Catalog  *catalog.Catalog
	Macros   *catalog.Macros
	Ledger   store.RunLedger
	Notifier Notifier
	Clock    utils.Clock
	Location *time.Location
	Retry    utils.RetryConfig
	Logger   zerolog.Logger
}

// Updater runs the price, valuation, KRX and macro walks.
type Updater struct {
	store    Store
	fetcher  *fetcher.Fetcher
	quotes   provider.QuoteProvider
	index    provider.IndexProvider
	series   map[string]provider.SeriesProvider
	catalog  *catalog.Catalog
	macros   *catalog.Macros
	ledger   store.RunLedger
	notifier Notifier
	clock    utils.Clock
	loc      *time.Location
	retry    utils.RetryConfig
	opts     Options
	logger   zerolog.Logger
	newID    func() string
}

// New creates an Updater.
func New(deps Deps, opts Options) *Updater {
	u := &Updater{
		store:    deps.Store,
		fetcher:  deps.Fetcher,
		quotes:   deps.Quotes,
		index:    deps.Index,
		series:   deps.Series,
		catalog:  deps.Catalog,
		macros:   deps.Macros,
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		loc:      deps.Location,
		retry:    deps.Retry,
		opts:     opts,
		logger:   deps.Logger.With().Str("component", "updater").Logger(),
		newID:    uuid.NewString,
	}
	if u.clock == nil {
		u.clock = utils.SystemClock{}
	}
	if u.loc == nil {
		u.loc = time.Local
	}
	if u.retry.MaxAttempts == 0 {
		u.retry = utils.DefaultRetryConfig()
	}
	if u.retry.Retryable == nil {
		u.retry.Retryable = provider.IsTransient
	}
	if u.series == nil {
		u.series = make(map[string]provider.SeriesProvider)
	}
	return u
}

// Options returns the walk options.
func (u *Updater) Options() Options {
	return u.opts
}

func (u *Updater) today() time.Time {
	return utils.Today(u.clock, u.loc)
}

// run is one walk in progress.
type run struct {
	summary *models.RunSummary
	logger  zerolog.Logger
}

func (u *Updater) startRun(kind models.RunKind) *run {
	id := u.newID()
	r := &run{
		summary: &models.RunSummary{
			ID:        id,
			Kind:      kind,
			StartedAt: u.clock.Now(),
		},
		logger: logging.WithRun(u.logger, id, string(kind)),
	}
	r.logger.Info().Msg("Run started")
	return r
}

// entry is the outcome of one catalog entry. err is set only for failures
// that should abort the whole walk.
type entry struct {
	row   models.SummaryRow
	fatal error
}

func errorRow(row models.SummaryRow, err error) models.SummaryRow {
	row.Status = models.StatusError
	row.Reason = models.ReasonError(err)
	row.Updated = false
	row.RowsAdded = 0
	return row
}

// fatalErr reports store failures the walk cannot continue past.
func fatalErr(err error) error {
	if err != nil && apperrors.Is(err, apperrors.ErrDataDir) {
		return err
	}
	return nil
}

func isNoData(err error) bool {
	return apperrors.Is(err, apperrors.ErrNoData)
}

// collect appends finished entries in order and returns the first fatal error.
func (r *run) collect(entries []entry, done []bool) error {
	var fatal error
	for i, e := range entries {
		if !done[i] {
			continue
		}
		r.summary.Rows = append(r.summary.Rows, e.row)
		if e.fatal != nil && fatal == nil {
			fatal = e.fatal
		}
	}
	return fatal
}

// finish stamps the rows, writes the summary CSV and records the run. The
// summary file is written even when the walk was interrupted.
func (u *Updater) finish(ctx context.Context, r *run, file string, format summaryFormat, walkErr error) (*models.RunSummary, error) {
	sum := r.summary
	sum.FinishedAt = u.clock.Now()
	for i := range sum.Rows {
		sum.Rows[i].RunID = sum.ID
		sum.Rows[i].RunAt = sum.FinishedAt
	}

	if err := u.store.WriteRows(file, format.header, format.records(sum.Rows)); err != nil {
		return sum, apperrors.Join(walkErr, fmt.Errorf("write %s: %w", file, err))
	}

	// Record even when the caller's context was cancelled mid-walk.
	bg := context.WithoutCancel(ctx)
	if u.ledger != nil {
		if err := u.ledger.RecordRun(bg, sum); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to record run")
		}
		if walkErr == nil && ctx.Err() == nil {
			if err := u.ledger.SetLastSync(sum.Kind, sum.FinishedAt); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to update sync time")
			}
		}
	}
	if u.notifier != nil {
		if err := u.notifier.Notify(bg, sum); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to send notification")
		}
	}

	counts := sum.Counts()
	r.logger.Info().
		Int("entries", len(sum.Rows)).
		Int("updated", sum.Updated()).
		Int("errors", counts[models.StatusError]).
		Dur("duration", sum.FinishedAt.Sub(sum.StartedAt)).
		Msg("Run finished")

	if walkErr == nil {
		walkErr = ctx.Err()
	}
	return sum, walkErr
}

// pause sleeps between entries; it returns early when ctx is done.
func pause(ctx context.Context, d time.Duration) {
	if d > 0 {
		_ = utils.Sleep(ctx, d)
	}
}

// ExportCatalog writes symbols_catalog.csv and returns the number of rows.
func (u *Updater) ExportCatalog(primaryOnly bool) (int, error) {
	rows := u.catalog.SymbolsCatalog(primaryOnly)
	if err := u.store.WriteRows(store.SymbolsCatalogFile, catalog.CatalogHeader, catalog.CatalogRecords(rows)); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// UpdateAll exports the symbols catalog and runs every enabled walk in
// order: prices, valuations, KRX, macro. A fatal store error stops the
// sequence; other walk errors are collected.
func (u *Updater) UpdateAll(ctx context.Context) ([]*models.RunSummary, error) {
	if _, err := u.ExportCatalog(false); err != nil {
		return nil, err
	}

	type step struct {
		enabled bool
		fn      func(context.Context) (*models.RunSummary, error)
	}
	steps := []step{
		{true, func(ctx context.Context) (*models.RunSummary, error) { return u.UpdatePrices(ctx, nil) }},
		{u.opts.Valuations.Enabled, u.UpdateValuations},
		{u.opts.KRX.Enabled && u.index != nil, u.UpdateKRX},
		{u.opts.Macro.Enabled && len(u.series) > 0, func(ctx context.Context) (*models.RunSummary, error) { return u.UpdateMacro(ctx) }},
	}

	var out []*models.RunSummary
	var errs []error
	for _, s := range steps {
		if !s.enabled {
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		sum, err := s.fn(ctx)
		if sum != nil {
			out = append(out, sum)
		}
		if err != nil {
			errs = append(errs, err)
			if fatalErr(err) != nil {
				break
			}
		}
	}
	return out, apperrors.Join(errs...)
}
