package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "global-universe/internal/errors"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadCreatesTemplates(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "")
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ValuationModeBatch, cfg.Valuations.Mode)
	assert.Equal(t, 20, cfg.Valuations.Chunk)

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := Load(dir)
	require.NoError(t, err, "template must load cleanly")
	assert.Equal(t, cfg.Prices.Pause, again.Prices.Pause)
	assert.Equal(t, cfg.Valuations.RelTolerance, again.Valuations.RelTolerance)
	assert.Equal(t, cfg.Schedule.Tasks, again.Schedule.Tasks)
	assert.Equal(t, cfg.HTTP.Timeout, again.HTTP.Timeout)
}

func TestLoadReadsFiles(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "")
	t.Setenv("FRED_API_KEY", "")
	t.Setenv("BLS_API_KEYS", "")
	t.Setenv("BLS_API_KEY", "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[data]
dir = "/tmp/universe"
timezone = "Asia/Seoul"

[prices]
pause = "1s"
workers = 4

[krx]
price_mode = "quick"
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(`
[bls]
api_keys = ["a", "b"]
[fred]
api_key = "f"
`), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/universe", cfg.Data.Dir)
	assert.Equal(t, time.Second, cfg.Prices.Pause)
	assert.Equal(t, 4, cfg.Prices.Workers)
	assert.Equal(t, KRXPriceQuick, cfg.KRX.PriceMode)
	assert.Equal(t, KRXValBackfill, cfg.KRX.ValuationMode, "unset keys keep defaults")
	assert.Equal(t, []string{"a", "b"}, cfg.Credentials.BLS.APIKeys)
	assert.Equal(t, "f", cfg.Credentials.FRED.APIKey)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", loc.String())
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[valuations]
mode = "scrape"
`), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestEnvOverrides(t *testing.T) {
	cfg := Defaults()
	applyEnvOverrides(cfg, envMap(map[string]string{
		"GITHUB_ACTIONS":          "true",
		"MAX_SYMBOLS":             "5",
		"SKIP_VALUATIONS":         "yes",
		"VAL_SYMBOLS":             "SPY, QQQ,,",
		"VALUATION_CHUNK":         "7",
		"VALUATION_INFO_FALLBACK": "0",
		"MAX_INFO_CALLS":          "3",
		"INCLUDE_KRX":             "off",
		"KRX_VAL_MODE":            "APPEND_TODAY",
		"KRX_PRICE_YEARS":         "2",
		"BLS_API_KEY":             "k1",
		"FRED_API_KEY":            "f1",
	}))

	assert.Equal(t, 600*time.Millisecond, cfg.Prices.Pause)
	assert.Equal(t, time.Second, cfg.Valuations.Pause)
	assert.Equal(t, 5, cfg.Prices.MaxSymbols)
	assert.False(t, cfg.Valuations.Enabled)
	assert.Equal(t, []string{"SPY", "QQQ"}, cfg.Valuations.Symbols)
	assert.Equal(t, 7, cfg.Valuations.Chunk)
	assert.False(t, cfg.Valuations.InfoFallback)
	assert.Equal(t, 3, cfg.Valuations.MaxInfoCalls)
	assert.False(t, cfg.KRX.Enabled)
	assert.Equal(t, KRXValAppendToday, cfg.KRX.ValuationMode)
	assert.Equal(t, 2, cfg.KRX.PriceYears)
	assert.Equal(t, []string{"k1"}, cfg.Credentials.BLS.APIKeys)
	assert.Equal(t, "f1", cfg.Credentials.FRED.APIKey)
}

func TestExplicitPauseBeatsCI(t *testing.T) {
	cfg := Defaults()
	applyEnvOverrides(cfg, envMap(map[string]string{
		"GITHUB_ACTIONS":  "true",
		"PRICE_PAUSE":     "0.05",
		"VALUATION_PAUSE": "junk",
	}))
	assert.Equal(t, 50*time.Millisecond, cfg.Prices.Pause)
	assert.Equal(t, time.Second, cfg.Valuations.Pause, "unparsable values are ignored")
}

func TestCIKeepsConfiguredPauses(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "true")
	t.Setenv("PRICE_PAUSE", "")
	t.Setenv("VALUATION_PAUSE", "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[prices]
pause = "2s"
`), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Prices.Pause, "explicit pause survives CI")
	assert.Equal(t, ciValuationPause, cfg.Valuations.Pause, "default pause is slowed for CI")
}

func TestValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.Data.Dir = " " }},
		{"bad timezone", func(c *Config) { c.Data.Timezone = "Mars/Olympus" }},
		{"zero retries", func(c *Config) { c.HTTP.Retries = 0 }},
		{"too many workers", func(c *Config) { c.Prices.Workers = 64 }},
		{"bad chunk", func(c *Config) { c.Valuations.Chunk = 0 }},
		{"bad krx mode", func(c *Config) { c.KRX.ValuationMode = "weekly" }},
		{"bad macro start", func(c *Config) { c.Macro.Start = "01/01/2000" }},
		{"bad notify level", func(c *Config) { c.Notifications.Level = "trades_only" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var ve *apperrors.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}
