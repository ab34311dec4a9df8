package cli

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"global-universe/internal/catalog"
	"global-universe/internal/config"
	"global-universe/internal/fetcher"
	"global-universe/internal/notify"
	"global-universe/internal/provider"
	"global-universe/internal/store"
	"global-universe/internal/updater"
	"global-universe/pkg/utils"
)

// App holds the application dependencies. Stores and providers are opened
// on first use so commands like version and config never touch the data
// directory.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger

	store   *store.CSVStore
	ledger  *store.SQLiteLedger
	catalog *catalog.Catalog
	macros  *catalog.Macros
}

// Store opens the table store at the configured data directory.
func (a *App) Store() (*store.CSVStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	st, err := store.NewCSVStore(a.Config.Data.Dir, a.Logger.With().Str("component", "store").Logger())
	if err != nil {
		return nil, err
	}
	a.store = st
	return st, nil
}

// Ledger opens the run ledger. It returns nil when the ledger is disabled.
func (a *App) Ledger() (*store.SQLiteLedger, error) {
	if !a.Config.Data.Ledger {
		return nil, nil
	}
	if a.ledger != nil {
		return a.ledger, nil
	}
	l, err := store.NewSQLiteLedger(filepath.Join(a.Config.Data.Dir, store.LedgerFile))
	if err != nil {
		return nil, err
	}
	a.ledger = l
	return l, nil
}

// Catalog loads the catalog and merges the configured extra file.
func (a *App) Catalog() (*catalog.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}
	c, err := catalog.Load(a.Config.Data.CatalogFile)
	if err != nil {
		return nil, err
	}
	if a.Config.Data.CatalogExtra != "" {
		extra, err := catalog.Load(a.Config.Data.CatalogExtra)
		if err != nil {
			return nil, err
		}
		for key, reason := range c.Merge(extra) {
			a.Logger.Info().Str("asset", key).Str("reason", reason).Msg("Extra catalog entry skipped")
		}
	}
	a.catalog = c
	return c, nil
}

// Macros loads the macro groups.
func (a *App) Macros() (*catalog.Macros, error) {
	if a.macros != nil {
		return a.macros, nil
	}
	m, err := catalog.LoadMacros(a.Config.Data.MacrosFile)
	if err != nil {
		return nil, err
	}
	a.macros = m
	return m, nil
}

// Close releases the ledger.
func (a *App) Close() error {
	if a.ledger != nil {
		return a.ledger.Close()
	}
	return nil
}

func (a *App) retryConfig() utils.RetryConfig {
	cfg := utils.DefaultRetryConfig()
	h := a.Config.HTTP
	if h.Retries > 0 {
		cfg.MaxAttempts = h.Retries
	}
	if h.RetryDelay > 0 {
		cfg.InitialDelay = h.RetryDelay
	}
	if h.MaxRetryDelay > 0 {
		cfg.MaxDelay = h.MaxRetryDelay
	}
	cfg.Retryable = provider.IsTransient
	return cfg
}

// Updater wires the stores, providers and notifier into an Updater.
func (a *App) Updater() (*updater.Updater, error) {
	st, err := a.Store()
	if err != nil {
		return nil, err
	}
	cat, err := a.Catalog()
	if err != nil {
		return nil, err
	}
	macros, err := a.Macros()
	if err != nil {
		return nil, err
	}
	loc, err := a.Config.Location()
	if err != nil {
		return nil, fmt.Errorf("data.timezone: %w", err)
	}
	opts, err := updater.OptionsFromConfig(a.Config)
	if err != nil {
		return nil, err
	}

	h := a.Config.HTTP
	client := provider.NewHTTPClient(
		provider.WithRateLimit(h.RateLimit, h.Burst),
		provider.WithTimeout(h.Timeout),
		provider.WithBreaker(h.BreakerThreshold, h.BreakerCooldown),
		provider.WithLogger(a.Logger.With().Str("component", "http").Logger()),
	)
	yahoo := provider.NewYahoo(client, h.YahooBaseURL)
	retry := a.retryConfig()

	deps := updater.Deps{
		Store: st,
		Fetcher: fetcher.New(yahoo,
			fetcher.WithRetry(retry),
			fetcher.WithLocation(loc),
			fetcher.WithLogger(a.Logger.With().Str("component", "fetcher").Logger()),
		),
		Quotes:   yahoo,
		Index:    provider.NewKRX(client, h.KRXBaseURL),
		Series:   a.seriesProviders(client),
		Catalog:  cat,
		Macros:   macros,
		Location: loc,
		Retry:    retry,
		Logger:   a.Logger,
	}

	ledger, err := a.Ledger()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Run ledger unavailable, runs will not be recorded")
	} else if ledger != nil {
		deps.Ledger = ledger
	}
	if n := a.notifier(); n != nil {
		deps.Notifier = n
	}
	return updater.New(deps, opts), nil
}

// seriesProviders builds the macro providers. BLS works without a key at a
// lower quota; FRED needs one.
func (a *App) seriesProviders(client *provider.HTTPClient) map[string]provider.SeriesProvider {
	h := a.Config.HTTP
	creds := a.Config.Credentials
	out := map[string]provider.SeriesProvider{
		catalog.SourceBLS: provider.NewBLS(client, h.BLSBaseURL, creds.BLS.APIKeys),
	}
	if creds.FRED.APIKey != "" {
		out[catalog.SourceFRED] = provider.NewFRED(client, h.FREDBaseURL, creds.FRED.APIKey)
	} else {
		a.Logger.Debug().Msg("No FRED API key, FRED groups will be skipped")
	}
	return out
}

func (a *App) notifier() *notify.MultiNotifier {
	if !a.Config.Notifications.Enabled {
		return nil
	}
	n := notify.NewMultiNotifier(a.Config.Notifications, a.Logger)
	if n.Channels() == 0 {
		return nil
	}
	return n
}
