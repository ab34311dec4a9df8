// Package config provides configuration management for the universe collector.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "global-universe/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Data          DataConfig         `mapstructure:"data"`
	HTTP          HTTPConfig         `mapstructure:"http"`
	Prices        PricesConfig       `mapstructure:"prices"`
	Valuations    ValuationsConfig   `mapstructure:"valuations"`
	KRX           KRXConfig          `mapstructure:"krx"`
	Macro         MacroConfig        `mapstructure:"macro"`
	Schedule      ScheduleConfig     `mapstructure:"schedule"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Credentials   Credentials        `mapstructure:"-" json:"-"` // Loaded separately
}

// DataConfig locates the data root and the registry files.
type DataConfig struct {
	Dir          string `mapstructure:"dir"`
	CatalogFile  string `mapstructure:"catalog_file"`  // replaces the built-in catalog
	CatalogExtra string `mapstructure:"catalog_extra"` // merged into the catalog
	MacrosFile   string `mapstructure:"macros_file"`
	Timezone     string `mapstructure:"timezone"` // defines "today"
	Ledger       bool   `mapstructure:"ledger"`
}

// HTTPConfig holds transport settings shared by every provider.
type HTTPConfig struct {
	RateLimit        float64       `mapstructure:"rate_limit"` // requests per second
	Burst            int           `mapstructure:"burst"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Retries          int           `mapstructure:"retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay    time.Duration `mapstructure:"max_retry_delay"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"` // 0 disables the per-host breaker
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	YahooBaseURL     string        `mapstructure:"yahoo_base_url"`
	KRXBaseURL       string        `mapstructure:"krx_base_url"`
	BLSBaseURL       string        `mapstructure:"bls_base_url"`
	FREDBaseURL      string        `mapstructure:"fred_base_url"`
}

// PricesConfig controls the daily price walk.
type PricesConfig struct {
	Pause      time.Duration `mapstructure:"pause"`
	MaxSymbols int           `mapstructure:"max_symbols"`
	Symbols    []string      `mapstructure:"symbols"`
	Workers    int           `mapstructure:"workers"`
}

// ValuationsConfig controls the valuation snapshot walk.
type ValuationsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Pause        time.Duration `mapstructure:"pause"`
	MaxSymbols   int           `mapstructure:"max_symbols"`
	Symbols      []string      `mapstructure:"symbols"`
	Mode         string        `mapstructure:"mode"` // batch_quote, info
	Chunk        int           `mapstructure:"chunk"`
	InfoFallback bool          `mapstructure:"info_fallback"`
	MaxInfoCalls int           `mapstructure:"max_info_calls"` // 0 means unlimited
	RelTolerance float64       `mapstructure:"rel_tolerance"`
	AbsTolerance float64       `mapstructure:"abs_tolerance"`
}

// KRXConfig controls the KRX index walk.
type KRXConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	PriceMode     string        `mapstructure:"price_mode"` // full, quick
	PriceYears    int           `mapstructure:"price_years"`
	ValuationMode string        `mapstructure:"valuation_mode"` // append_today, backfill
	Pause         time.Duration `mapstructure:"pause"`
}

// MacroConfig controls the macro series walk.
type MacroConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Groups         []string `mapstructure:"groups"` // empty means all
	Start          string   `mapstructure:"start"`
	RevisionMonths int      `mapstructure:"revision_months"`
}

// ScheduleConfig holds the cron spec of the schedule daemon.
type ScheduleConfig struct {
	Cron       string   `mapstructure:"cron"`
	Timezone   string   `mapstructure:"timezone"`
	Tasks      []string `mapstructure:"tasks"`
	RunOnStart bool     `mapstructure:"run_on_start"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, errors_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token" json:"-"`
	ChatID   string `mapstructure:"chat_id"`
}

// Credentials holds API credentials.
type Credentials struct {
	BLS  BLSCredentials  `mapstructure:"bls"`
	FRED FREDCredentials `mapstructure:"fred"`
}

// BLSCredentials holds BLS registration keys, tried in order.
type BLSCredentials struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// FREDCredentials holds the FRED API key.
type FREDCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// Valid modes.
const (
	ValuationModeBatch = "batch_quote"
	ValuationModeInfo  = "info"

	KRXPriceFull         = "full"
	KRXPriceQuick        = "quick"
	KRXValAppendToday    = "append_today"
	KRXValBackfill       = "backfill"
	NotifyAll            = "all"
	NotifyErrorsOnly     = "errors_only"
	defaultMacroStart    = "2000-01-01"
	defaultLocalTimezone = "Local"
)

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/global-universe"
	}
	return filepath.Join(home, ".config", "global-universe")
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	return filepath.Join(DefaultConfigDir(), "data")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from templates and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	cfg := Defaults()
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Data: DataConfig{
			Dir:      DefaultDataDir(),
			Timezone: defaultLocalTimezone,
			Ledger:   true,
		},
		HTTP: HTTPConfig{
			RateLimit:       2,
			Burst:           2,
			Timeout:         30 * time.Second,
			Retries:         3,
			RetryDelay:      500 * time.Millisecond,
			MaxRetryDelay:   10 * time.Second,
			BreakerCooldown: 30 * time.Second,
		},
		Prices: PricesConfig{
			Pause:   300 * time.Millisecond,
			Workers: 1,
		},
		Valuations: ValuationsConfig{
			Enabled:      true,
			Pause:        200 * time.Millisecond,
			Mode:         ValuationModeBatch,
			Chunk:        20,
			InfoFallback: true,
			RelTolerance: 1e-9,
			AbsTolerance: 1e-12,
		},
		KRX: KRXConfig{
			Enabled:       true,
			PriceMode:     KRXPriceFull,
			PriceYears:    3,
			ValuationMode: KRXValBackfill,
		},
		Macro: MacroConfig{
			Enabled:        true,
			Start:          defaultMacroStart,
			RevisionMonths: 3,
		},
		Schedule: ScheduleConfig{
			Cron:     "0 30 7 * * 2-6",
			Timezone: "Asia/Seoul",
			Tasks:    []string{"prices", "valuations", "krx"},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
		Notifications: NotificationConfig{
			Level: NotifyAll,
		},
	}
}

// loadDotEnv reads .env from the working directory and the config
// directory. Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, p := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func newViper(configDir, name string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	return v
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := newViper(configDir, "config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplate(configDir, "config.toml", configTemplate, 0644)
		}
		return err
	}
	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := newViper(configDir, "credentials")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
		}
		return err
	}
	return v.Unmarshal(creds)
}

const (
	ciPricePause     = 600 * time.Millisecond
	ciValuationPause = time.Second
)

// applyEnvOverrides maps the collector's environment surface onto cfg.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if getenv("GITHUB_ACTIONS") == "true" {
		// CI runners share egress IPs and get throttled sooner. Pauses set
		// in config.toml are kept.
		def := Defaults()
		if cfg.Prices.Pause == def.Prices.Pause {
			cfg.Prices.Pause = ciPricePause
		}
		if cfg.Valuations.Pause == def.Valuations.Pause {
			cfg.Valuations.Pause = ciValuationPause
		}
	}

	if v := getenv("UNIVERSE_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if n, ok := envInt(getenv, "UNIVERSE_WORKERS"); ok {
		cfg.Prices.Workers = n
	}
	if n, ok := envInt(getenv, "MAX_SYMBOLS"); ok {
		cfg.Prices.MaxSymbols = n
	}
	if d, ok := envSeconds(getenv, "PRICE_PAUSE"); ok {
		cfg.Prices.Pause = d
	}

	if b, ok := envBool(getenv, "SKIP_VALUATIONS"); ok {
		cfg.Valuations.Enabled = !b
	}
	if d, ok := envSeconds(getenv, "VALUATION_PAUSE"); ok {
		cfg.Valuations.Pause = d
	}
	if n, ok := envInt(getenv, "MAX_VAL_SYMBOLS"); ok {
		cfg.Valuations.MaxSymbols = n
	}
	if v := getenv("VAL_SYMBOLS"); v != "" {
		cfg.Valuations.Symbols = splitList(v)
	}
	if v := getenv("VALUATION_FETCH_MODE"); v != "" {
		cfg.Valuations.Mode = v
	}
	if n, ok := envInt(getenv, "VALUATION_CHUNK"); ok {
		cfg.Valuations.Chunk = n
	}
	if b, ok := envBool(getenv, "VALUATION_INFO_FALLBACK"); ok {
		cfg.Valuations.InfoFallback = b
	}
	if n, ok := envInt(getenv, "MAX_INFO_CALLS"); ok {
		cfg.Valuations.MaxInfoCalls = n
	}

	if b, ok := envBool(getenv, "INCLUDE_KRX"); ok {
		cfg.KRX.Enabled = b
	}
	if v := getenv("KRX_VAL_MODE"); v != "" {
		cfg.KRX.ValuationMode = strings.ToLower(v)
	}
	if v := getenv("KRX_PRICE_MODE"); v != "" {
		cfg.KRX.PriceMode = strings.ToLower(v)
	}
	if n, ok := envInt(getenv, "KRX_PRICE_YEARS"); ok {
		cfg.KRX.PriceYears = n
	}

	if v := getenv("BLS_API_KEYS"); v != "" {
		cfg.Credentials.BLS.APIKeys = splitList(v)
	} else if v := getenv("BLS_API_KEY"); v != "" {
		cfg.Credentials.BLS.APIKeys = []string{v}
	}
	if v := getenv("FRED_API_KEY"); v != "" {
		cfg.Credentials.FRED.APIKey = v
	}
}

func envInt(getenv func(string) string, key string) (int, bool) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func envSeconds(getenv func(string) string, key string) (time.Duration, bool) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}

func envBool(getenv func(string) string, key string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(getenv(key))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, apperrors.NewValidationError(field, value, msg))
	}

	if strings.TrimSpace(c.Data.Dir) == "" {
		add("data.dir", c.Data.Dir, "must not be empty")
	}
	if _, err := c.Location(); err != nil {
		add("data.timezone", c.Data.Timezone, "unknown timezone")
	}
	if c.HTTP.RateLimit < 0 {
		add("http.rate_limit", c.HTTP.RateLimit, "must be non-negative")
	}
	if c.HTTP.Retries < 1 || c.HTTP.Retries > 10 {
		add("http.retries", c.HTTP.Retries, "must be between 1 and 10")
	}
	if c.HTTP.BreakerThreshold < 0 {
		add("http.breaker_threshold", c.HTTP.BreakerThreshold, "must be non-negative")
	}
	if c.HTTP.Timeout <= 0 {
		add("http.timeout", c.HTTP.Timeout, "must be positive")
	}
	if c.Prices.Workers < 1 || c.Prices.Workers > 32 {
		add("prices.workers", c.Prices.Workers, "must be between 1 and 32")
	}
	if c.Prices.MaxSymbols < 0 {
		add("prices.max_symbols", c.Prices.MaxSymbols, "must be non-negative")
	}
	if c.Prices.Pause < 0 || c.Valuations.Pause < 0 || c.KRX.Pause < 0 {
		add("pause", "", "pauses must be non-negative")
	}
	if c.Valuations.Mode != ValuationModeBatch && c.Valuations.Mode != ValuationModeInfo {
		add("valuations.mode", c.Valuations.Mode, "must be 'batch_quote' or 'info'")
	}
	if c.Valuations.Chunk < 1 {
		add("valuations.chunk", c.Valuations.Chunk, "must be at least 1")
	}
	if c.Valuations.MaxInfoCalls < 0 || c.Valuations.MaxSymbols < 0 {
		add("valuations", "", "limits must be non-negative")
	}
	if c.Valuations.RelTolerance < 0 || c.Valuations.AbsTolerance < 0 {
		add("valuations.rel_tolerance", c.Valuations.RelTolerance, "tolerances must be non-negative")
	}
	if c.KRX.PriceMode != KRXPriceFull && c.KRX.PriceMode != KRXPriceQuick {
		add("krx.price_mode", c.KRX.PriceMode, "must be 'full' or 'quick'")
	}
	if c.KRX.PriceYears < 1 {
		add("krx.price_years", c.KRX.PriceYears, "must be at least 1")
	}
	if c.KRX.ValuationMode != KRXValAppendToday && c.KRX.ValuationMode != KRXValBackfill {
		add("krx.valuation_mode", c.KRX.ValuationMode, "must be 'append_today' or 'backfill'")
	}
	if _, err := c.MacroStart(); err != nil {
		add("macro.start", c.Macro.Start, "must be YYYY-MM-DD")
	}
	if c.Macro.RevisionMonths < 0 {
		add("macro.revision_months", c.Macro.RevisionMonths, "must be non-negative")
	}
	switch c.Notifications.Level {
	case NotifyAll, NotifyErrorsOnly:
	default:
		add("notifications.level", c.Notifications.Level, "must be 'all' or 'errors_only'")
	}

	return apperrors.Join(errs...)
}

// Location returns the timezone that defines the current day.
func (c *Config) Location() (*time.Location, error) {
	if c.Data.Timezone == "" || c.Data.Timezone == defaultLocalTimezone {
		return time.Local, nil
	}
	return time.LoadLocation(c.Data.Timezone)
}

// MacroStart returns the first date requested for a new macro group.
func (c *Config) MacroStart() (time.Time, error) {
	s := c.Macro.Start
	if s == "" {
		s = defaultMacroStart
	}
	return time.Parse("2006-01-02", s)
}
