// Package cli provides the command-line interface for the universe updater.
package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"global-universe/internal/config"
	"global-universe/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "universe",
		Short: "Incremental cache of global market and macro time series",
		Long: `universe keeps a directory of CSV tables current: daily prices for every
catalog asset, daily valuation snapshots, KRX index history and macro series.

Each update fetches only what is missing, merges it into the stored table and
replaces the file atomically. Every run writes a summary CSV at the data root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/global-universe)")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (overrides data.dir)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newUpdateCmd(app))
	rootCmd.AddCommand(newCatalogCmd(app))
	rootCmd.AddCommand(newStatsCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newScheduleCmd(app))

	return rootCmd
}

// init loads configuration and builds the logger before any subcommand runs.
func (a *App) init(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Data.Dir = dataDir
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.JSON = cfg.Logging.JSON
	logCfg.File = cfg.Logging.File
	logCfg.FilePath = filepath.Join(dir, "logs", "universe.log")
	logger := logging.NewLoggerWithConfig(logCfg)

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		logger = logger.Level(zerolog.DebugLevel)
	}

	a.Config = cfg
	a.ConfigDir = dir
	a.Logger = logger
	logger.Debug().Str("config_dir", dir).Str("data_dir", cfg.Data.Dir).Msg("Configuration loaded")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("universe v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"path": app.ConfigDir, "data_dir": app.Config.Data.Dir})
			} else {
				output.Println(app.ConfigDir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Data")
	output.Printf("  Directory:       %s\n", cfg.Data.Dir)
	output.Printf("  Catalog:         %s\n", orDefault(cfg.Data.CatalogFile, "built-in"))
	output.Printf("  Catalog extra:   %s\n", orDefault(cfg.Data.CatalogExtra, "none"))
	output.Printf("  Macros:          %s\n", orDefault(cfg.Data.MacrosFile, "built-in"))
	output.Printf("  Timezone:        %s\n", orDefault(cfg.Data.Timezone, "Local"))
	output.Printf("  Ledger:          %v\n", cfg.Data.Ledger)
	output.Println()

	output.Bold("HTTP")
	output.Printf("  Rate limit:      %.1f req/s (burst %d)\n", cfg.HTTP.RateLimit, cfg.HTTP.Burst)
	output.Printf("  Timeout:         %s\n", cfg.HTTP.Timeout)
	output.Printf("  Retries:         %d\n", cfg.HTTP.Retries)
	output.Println()

	output.Bold("Prices")
	output.Printf("  Pause:           %s\n", cfg.Prices.Pause)
	output.Printf("  Workers:         %d\n", cfg.Prices.Workers)
	output.Printf("  Max symbols:     %d\n", cfg.Prices.MaxSymbols)
	output.Println()

	output.Bold("Valuations")
	output.Printf("  Enabled:         %v\n", cfg.Valuations.Enabled)
	output.Printf("  Mode:            %s (chunk %d)\n", cfg.Valuations.Mode, cfg.Valuations.Chunk)
	output.Printf("  Info fallback:   %v (max %d)\n", cfg.Valuations.InfoFallback, cfg.Valuations.MaxInfoCalls)
	output.Println()

	output.Bold("KRX")
	output.Printf("  Enabled:         %v\n", cfg.KRX.Enabled)
	output.Printf("  Price mode:      %s (%d years)\n", cfg.KRX.PriceMode, cfg.KRX.PriceYears)
	output.Printf("  Valuation mode:  %s\n", cfg.KRX.ValuationMode)
	output.Println()

	output.Bold("Macro")
	output.Printf("  Enabled:         %v\n", cfg.Macro.Enabled)
	output.Printf("  Start:           %s\n", cfg.Macro.Start)
	output.Printf("  Revision months: %d\n", cfg.Macro.RevisionMonths)
	output.Printf("  BLS keys:        %d\n", len(cfg.Credentials.BLS.APIKeys))
	output.Printf("  FRED key:        %v\n", cfg.Credentials.FRED.APIKey != "")
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Cron:            %s (%s)\n", cfg.Schedule.Cron, cfg.Schedule.Timezone)
	output.Printf("  Tasks:           %v\n", cfg.Schedule.Tasks)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notifications.Telegram.Enabled)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
