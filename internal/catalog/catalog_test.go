package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"global-universe/internal/models"
)

const sampleCatalog = `
regions:
  US:
    currency: USD
    sectors:
      Large_Cap: {index: "^GSPC", etf: SPY, valuation_data: false, alternatives: [VOO, SPY]}
      Tech: {etf: XLK, valuation_data: true, alternatives: [VGT]}
      Empty: {}
    factors:
      Value: {etf: VTV, currency: USD, valuation_data: true}
  Korea:
    currency: KRW
    sectors:
      Broad_Market: {etf: EWY, currency: USD, valuation_data: true}
    factors: {}
labels:
  countries:
    Korea: 한국
krx:
  - {code: "1001", name: KOSPI}
`

func TestParseKeepsOrderAndResolves(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Equal(t, 5, c.Len())

	var keys []string
	for _, e := range c.Entries() {
		keys = append(keys, e.Key())
	}
	assert.Equal(t, []string{
		"US/sectors/Large_Cap", "US/sectors/Tech", "US/sectors/Empty",
		"US/factors/Value", "Korea/sectors/Broad_Market",
	}, keys)

	large := c.Entries()[0]
	assert.Equal(t, "^GSPC", large.Primary.Symbol)
	assert.Equal(t, models.RoleIndex, large.Primary.Role)
	assert.Equal(t, "USD", large.Currency, "region currency is inherited")
	assert.Equal(t, []string{"SPY", "VOO"}, symbols(large.Fallbacks))

	tech := c.Entries()[1]
	assert.Equal(t, "XLK", tech.Primary.Symbol)
	assert.Equal(t, []string{"VGT"}, symbols(tech.Fallbacks))

	assert.False(t, c.Entries()[2].HasPrimary())
}

func TestResolveETFPrimaryPutsIndexLast(t *testing.T) {
	a := Resolve(models.AssetSpec{ETF: "EWJ", Alternatives: []string{"EWJ", "DXJ"}})
	assert.Equal(t, "EWJ", a.Primary.Symbol)
	assert.Equal(t, []string{"DXJ"}, symbols(a.Fallbacks))
	assert.Equal(t, []string{"EWJ", "DXJ"}, symbols(a.Candidates()))
}

func TestPrimarySymbolsDeduplicated(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	c.entries = append(c.entries, Resolve(models.AssetSpec{Region: "X", Name: "Dup", ETF: "XLK"}))
	assert.Equal(t, []string{"^GSPC", "XLK", "VTV", "EWY"}, c.PrimarySymbols())
}

func TestSymbolsCatalog(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	primary := c.SymbolsCatalog(true)
	require.Len(t, primary, 4)
	assert.Equal(t, models.RoleIndex, primary[0].Field)
	assert.Equal(t, "daily/IDX_GSPC.csv", primary[0].File)

	all := c.SymbolsCatalog(false)
	// ^GSPC index, SPY etf, VOO alt, SPY alt, XLK etf, VGT alt, VTV etf, EWY etf
	assert.Len(t, all, 8)
	records := CatalogRecords(all)
	assert.Equal(t, len(CatalogHeader), len(records[0]))
}

func TestShouldSkipAndAdd(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	skip, reason := c.ShouldSkip("US", "Copy", models.AssetSpec{ETF: "XLK"})
	assert.True(t, skip)
	assert.Equal(t, models.ReasonDuplicateSymbol, reason)

	skip, reason = c.ShouldSkip("Korea", "SP500_K", models.AssetSpec{ETF: "360750.KS"})
	assert.True(t, skip)
	assert.Equal(t, models.ReasonKoreaUSTheme, reason)

	skip, _ = c.ShouldSkip("Korea", "US_Tech", models.AssetSpec{ETF: "133690.KS"})
	assert.True(t, skip)

	ok, _ := c.Add(models.AssetSpec{Region: "Korea", Category: models.CategorySectors, Name: "Chips", ETF: "091230.KS"})
	assert.True(t, ok)
	assert.Equal(t, 6, c.Len())
	assert.True(t, c.HasSymbol("091230.KS"))
}

func TestMergeAndLabels(t *testing.T) {
	base, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	extra, err := Parse([]byte(`
regions:
  Korea:
    currency: KRW
    sectors:
      Again: {etf: EWY}
      Batteries: {etf: "305720.KS"}
labels:
  sectors:
    Batteries: 2차전지
krx:
  - {code: "1001", name: KOSPI}
  - {code: "2001", name: KOSDAQ}
`))
	require.NoError(t, err)

	skipped := base.Merge(extra)
	assert.Equal(t, map[string]string{"Korea/sectors/Again": models.ReasonDuplicateSymbol}, skipped)
	assert.Equal(t, "2차전지", base.Label(LabelSectors, "Batteries"))
	assert.Equal(t, "한국", base.Label(LabelCountries, "Korea"))
	assert.Equal(t, "Nowhere", base.Label(LabelCountries, "Nowhere"))
	require.Len(t, base.KRXIndices(), 2)
	assert.Equal(t, "KRX_IDX_2001", base.KRXIndices()[1].Symbol())
}

func TestParseRejectsNonMapping(t *testing.T) {
	_, err := Parse([]byte("regions: [a, b]"))
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	got := Filter(c.Entries(), []string{"EWY", " ^GSPC"})
	require.Len(t, got, 2)
	assert.Equal(t, "^GSPC", got[0].Primary.Symbol)
	assert.Len(t, Filter(c.Entries(), nil), c.Len())
}

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Greater(t, c.Len(), 100)
	assert.NotEmpty(t, c.KRXIndices())
	assert.Equal(t, "미국", c.Label(LabelCountries, "US"))

	for _, e := range c.Entries() {
		assert.NotEmpty(t, e.Currency, e.Key())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMacros(t *testing.T) {
	m, err := DefaultMacros()
	require.NoError(t, err)
	ppi, ok := m.Group("ppi")
	require.True(t, ok)
	assert.Equal(t, SourceBLS, ppi.Source)
	assert.Contains(t, ppi.IDs(), "WPSFD4")

	pce, ok := m.Group("pce")
	require.True(t, ok)
	assert.Equal(t, SourceFRED, pce.Source)
	assert.Contains(t, pce.IDs(), "DPCERAM1M225NBEA")

	_, err = ParseMacros([]byte("groups:\n  - {name: x, source: ecb, series: [{id: A}]}\n"))
	assert.Error(t, err)
	_, err = ParseMacros([]byte("groups:\n  - {name: x, source: fred, series: []}\n"))
	assert.Error(t, err)
}

func symbols(refs []models.SymbolRef) []string {
	var out []string
	for _, r := range refs {
		out = append(out, r.Symbol)
	}
	return out
}
