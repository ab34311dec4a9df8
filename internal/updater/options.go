package updater

import (
	"time"

	"global-universe/internal/config"
	"global-universe/internal/series"
)

// Options controls the catalog walks.
type Options struct {
	Prices     PriceOptions
	Valuations ValuationOptions
	KRX        KRXOptions
	Macro      MacroOptions
}

// PriceOptions controls UpdatePrices.
type PriceOptions struct {
	Pause      time.Duration
	MaxSymbols int // 0 means every symbol
	Symbols    []string
	Workers    int
}

// ValuationOptions controls UpdateValuations.
type ValuationOptions struct {
	Enabled      bool
	Pause        time.Duration
	MaxSymbols   int
	Symbols      []string
	Mode         string
	Chunk        int
	InfoFallback bool
	MaxInfoCalls int // 0 means unlimited
	Tolerance    series.Tolerance
}

// KRXOptions controls UpdateKRX.
type KRXOptions struct {
	Enabled       bool
	PriceMode     string
	PriceYears    int
	ValuationMode string
	Pause         time.Duration
}

// MacroOptions controls UpdateMacro.
type MacroOptions struct {
	Enabled        bool
	Groups         []string
	Start          time.Time
	RevisionMonths int
}

// DefaultOptions mirrors config.Defaults.
func DefaultOptions() Options {
	opts, _ := OptionsFromConfig(config.Defaults())
	return opts
}

// OptionsFromConfig maps a validated configuration onto walk options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	start, err := cfg.MacroStart()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Prices: PriceOptions{
			Pause:      cfg.Prices.Pause,
			MaxSymbols: cfg.Prices.MaxSymbols,
			Symbols:    cfg.Prices.Symbols,
			Workers:    cfg.Prices.Workers,
		},
		Valuations: ValuationOptions{
			Enabled:      cfg.Valuations.Enabled,
			Pause:        cfg.Valuations.Pause,
			MaxSymbols:   cfg.Valuations.MaxSymbols,
			Symbols:      cfg.Valuations.Symbols,
			Mode:         cfg.Valuations.Mode,
			Chunk:        cfg.Valuations.Chunk,
			InfoFallback: cfg.Valuations.InfoFallback,
			MaxInfoCalls: cfg.Valuations.MaxInfoCalls,
			Tolerance: series.Tolerance{
				Rel: cfg.Valuations.RelTolerance,
				Abs: cfg.Valuations.AbsTolerance,
			},
		},
		KRX: KRXOptions{
			Enabled:       cfg.KRX.Enabled,
			PriceMode:     cfg.KRX.PriceMode,
			PriceYears:    cfg.KRX.PriceYears,
			ValuationMode: cfg.KRX.ValuationMode,
			Pause:         cfg.KRX.Pause,
		},
		Macro: MacroOptions{
			Enabled:        cfg.Macro.Enabled,
			Groups:         cfg.Macro.Groups,
			Start:          start,
			RevisionMonths: cfg.Macro.RevisionMonths,
		},
	}, nil
}
