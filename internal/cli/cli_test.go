package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"global-universe/internal/store"
	"global-universe/internal/testutil"
)

const testCatalog = `
regions:
  US:
    currency: USD
    sectors:
      Large_Cap: {index: "^GSPC", etf: SPY, valuation_data: false}
      Tech: {etf: XLK, valuation_data: true}
    factors: {}
`

type env struct {
	configDir string
	dataDir   string
}

func newEnv(t *testing.T, ledger bool) env {
	t.Helper()
	t.Setenv("GITHUB_ACTIONS", "")
	e := env{configDir: t.TempDir(), dataDir: t.TempDir()}
	catalogPath := filepath.Join(e.configDir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0o644))
	cfg := fmt.Sprintf("[data]\ncatalog_file = %q\nledger = %v\n\n[logging]\nfile = false\n", catalogPath, ledger)
	require.NoError(t, os.WriteFile(filepath.Join(e.configDir, "config.toml"), []byte(cfg), 0o644))
	return e
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--config", e.configDir, "--data-dir", e.dataDir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionJSON(t *testing.T) {
	e := newEnv(t, false)
	out, err := e.run(t, "version", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
}

func TestConfigPathAndValidate(t *testing.T) {
	e := newEnv(t, false)
	out, err := e.run(t, "config", "path", "--json")
	require.NoError(t, err)
	var p map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, e.configDir, p["path"])
	assert.Equal(t, e.dataDir, p["data_dir"])

	out, err = e.run(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestCatalogListJSON(t *testing.T) {
	e := newEnv(t, false)
	out, err := e.run(t, "catalog", "list", "--primary", "--json")
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "^GSPC", rows[0]["Symbol"])
	assert.Equal(t, "XLK", rows[1]["Symbol"])
}

func TestStatsExportsReturns(t *testing.T) {
	e := newEnv(t, false)
	st, err := store.NewCSVStore(e.dataDir, zerolog.Nop())
	require.NoError(t, err)
	start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -10)
	require.NoError(t, st.Save(store.PriceFile("^GSPC"), testutil.TableFromCloses(start, 100, 101, 99, 110)))
	require.NoError(t, st.Save(store.PriceFile("XLK"), testutil.TableFromCloses(start, 50, 52, 51, 60)))

	out, err := e.run(t, "stats", "--period", "1y", "--export", "--json")
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "XLK", rows[1]["symbol"])
	assert.InDelta(t, 0.20, rows[1]["local_return"], 1e-9)
	assert.InDelta(t, 0.10, rows[1]["diff_vs_benchmark"], 1e-9)

	header, records, err := st.ReadRows(store.ReturnsFile)
	require.NoError(t, err)
	assert.Equal(t, "local_return", header[6])
	require.Len(t, records, 2)
	assert.Equal(t, "0.200000", records[1][6])
}

func TestStatsRejectsUnknownPeriod(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.run(t, "stats", "--period", "2w")
	assert.Error(t, err)
}

func TestHistoryNeedsLedger(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.run(t, "history")
	assert.ErrorIs(t, err, errLedgerDisabled)
}

func TestHistoryEmptyLedger(t *testing.T) {
	e := newEnv(t, true)
	out, err := e.run(t, "history", "--json")
	require.NoError(t, err)

	var runs []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Empty(t, runs)
}

func TestStatusCountsTables(t *testing.T) {
	e := newEnv(t, false)
	st, err := store.NewCSVStore(e.dataDir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Save(store.PriceFile("XLK"), testutil.TableFromCloses(testutil.BaseDate, 1, 2)))

	out, err := e.run(t, "status", "--json")
	require.NoError(t, err)

	var got struct {
		Data dataUsage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Data.Tables[store.DailyDir])
	assert.Equal(t, 0, got.Data.Tables[store.MacroDir])
	assert.Positive(t, got.Data.Bytes)
}

func TestScheduleRejectsBadCron(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.run(t, "schedule", "--cron", "not a spec", "--once")
	assert.Error(t, err)
}
