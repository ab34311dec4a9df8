// Package catalog holds the registry of tracked assets and macro series.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "global-universe/internal/errors"
	"global-universe/internal/models"
	"global-universe/internal/store"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Label kinds.
const (
	LabelCountries = "countries"
	LabelSectors   = "sectors"
	LabelFactors   = "factors"
)

const koreaRegion = "Korea"

// KRXIndex is one KRX index tracked through the exchange endpoint.
type KRXIndex struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Symbol returns the storage symbol, e.g. KRX_IDX_1001.
func (k KRXIndex) Symbol() string {
	return store.KRXSymbol(k.Code)
}

// Catalog is the typed, immutable-after-load asset registry.
type Catalog struct {
	entries []models.AssetSpec
	labels  map[string]map[string]string
	krx     []KRXIndex
}

type catalogFile struct {
	Regions yaml.Node                    `yaml:"regions"`
	Labels  map[string]map[string]string `yaml:"labels"`
	KRX     []KRXIndex                   `yaml:"krx"`
}

type regionYAML struct {
	Currency string    `yaml:"currency"`
	Sectors  yaml.Node `yaml:"sectors"`
	Factors  yaml.Node `yaml:"factors"`
}

type assetYAML struct {
	Index         string   `yaml:"index"`
	ETF           string   `yaml:"etf"`
	Currency      string   `yaml:"currency"`
	ValuationData bool     `yaml:"valuation_data"`
	Alternatives  []string `yaml:"alternatives"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path returns the embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "read catalog %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, apperrors.Wrapf(err, "parse catalog %s", path)
	}
	return c, nil
}

// Parse builds a catalog from YAML, keeping the file's region and asset order.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	c := &Catalog{labels: f.Labels, krx: f.KRX}
	if c.labels == nil {
		c.labels = map[string]map[string]string{}
	}

	regions, err := pairs(&f.Regions)
	if err != nil {
		return nil, fmt.Errorf("regions: %w", err)
	}
	for _, rp := range regions {
		var r regionYAML
		if err := rp.value.Decode(&r); err != nil {
			return nil, fmt.Errorf("region %s: %w", rp.key, err)
		}
		for _, section := range []struct {
			cat  models.Category
			node *yaml.Node
		}{{models.CategorySectors, &r.Sectors}, {models.CategoryFactors, &r.Factors}} {
			assets, err := pairs(section.node)
			if err != nil {
				return nil, fmt.Errorf("region %s %s: %w", rp.key, section.cat, err)
			}
			for _, ap := range assets {
				var a assetYAML
				if err := ap.value.Decode(&a); err != nil {
					return nil, fmt.Errorf("asset %s/%s: %w", rp.key, ap.key, err)
				}
				currency := a.Currency
				if currency == "" {
					currency = r.Currency
				}
				c.entries = append(c.entries, Resolve(models.AssetSpec{
					Region:        rp.key,
					Category:      section.cat,
					Name:          ap.key,
					Index:         strings.TrimSpace(a.Index),
					ETF:           strings.TrimSpace(a.ETF),
					Currency:      currency,
					ValuationData: a.ValuationData,
					Alternatives:  a.Alternatives,
				}))
			}
		}
	}
	return c, nil
}

type pair struct {
	key   string
	value *yaml.Node
}

// pairs returns the key/value pairs of a mapping node in document order.
// A missing or null node is an empty mapping.
func pairs(n *yaml.Node) ([]pair, error) {
	if n == nil || n.Kind == 0 || n.Tag == "!!null" {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	out := make([]pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, pair{key: n.Content[i].Value, value: n.Content[i+1]})
	}
	return out, nil
}

// Resolve fills Primary and Fallbacks. The index is primary when present,
// else the ETF. An index primary falls back to the ETF then the
// alternatives; an ETF primary falls back to the alternatives then the index.
func Resolve(a models.AssetSpec) models.AssetSpec {
	a.Primary = models.SymbolRef{}
	a.Fallbacks = nil

	ref := func(sym string, role models.SymbolRole) models.SymbolRef {
		return models.SymbolRef{Symbol: sym, Role: role, Currency: a.Currency, ValuationData: a.ValuationData}
	}
	seen := map[string]bool{}
	add := func(sym string, role models.SymbolRole) {
		if sym == "" || seen[sym] {
			return
		}
		seen[sym] = true
		a.Fallbacks = append(a.Fallbacks, ref(sym, role))
	}

	switch {
	case a.Index != "":
		a.Primary = ref(a.Index, models.RoleIndex)
		seen[a.Index] = true
		add(a.ETF, models.RoleETF)
		for _, alt := range a.Alternatives {
			add(strings.TrimSpace(alt), models.RoleAlternative)
		}
	case a.ETF != "":
		a.Primary = ref(a.ETF, models.RoleETF)
		seen[a.ETF] = true
		for _, alt := range a.Alternatives {
			add(strings.TrimSpace(alt), models.RoleAlternative)
		}
		add(a.Index, models.RoleIndex)
	}
	return a
}

// Entries returns every asset in catalog order, including those without a
// symbol.
func (c *Catalog) Entries() []models.AssetSpec {
	out := make([]models.AssetSpec, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of assets.
func (c *Catalog) Len() int { return len(c.entries) }

// PrimarySymbols returns one symbol per asset, deduplicated in catalog order.
func (c *Catalog) PrimarySymbols() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range c.entries {
		if !e.HasPrimary() || seen[e.Primary.Symbol] {
			continue
		}
		seen[e.Primary.Symbol] = true
		out = append(out, e.Primary.Symbol)
	}
	return out
}

// KRXIndices returns the KRX indices in catalog order.
func (c *Catalog) KRXIndices() []KRXIndex {
	return append([]KRXIndex(nil), c.krx...)
}

// SymbolsCatalog flattens the registry into catalog rows. With primaryOnly
// only the primary symbol of each asset is listed; otherwise index, ETF and
// alternatives all are. Rows are deduplicated by (field, symbol).
func (c *Catalog) SymbolsCatalog(primaryOnly bool) []models.SymbolsCatalogRow {
	type key struct {
		field  models.SymbolRole
		symbol string
	}
	seen := map[key]bool{}
	var out []models.SymbolsCatalogRow
	emit := func(e models.AssetSpec, role models.SymbolRole, sym string) {
		k := key{role, sym}
		if sym == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, models.SymbolsCatalogRow{
			Country:  e.Region,
			Category: e.Category,
			Name:     e.Name,
			Field:    role,
			Symbol:   sym,
			Currency: e.Currency,
			File:     store.PriceFile(sym),
		})
	}
	for _, e := range c.entries {
		if primaryOnly {
			if e.HasPrimary() {
				emit(e, e.Primary.Role, e.Primary.Symbol)
			}
			continue
		}
		emit(e, models.RoleIndex, e.Index)
		emit(e, models.RoleETF, e.ETF)
		for _, alt := range e.Alternatives {
			emit(e, models.RoleAlternative, alt)
		}
	}
	return out
}

// CatalogHeader is the column order of symbols_catalog.csv.
var CatalogHeader = []string{"country", "category", "name", "field", "symbol", "currency", "file"}

// CatalogRecords renders rows for a CSV writer.
func CatalogRecords(rows []models.SymbolsCatalogRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Country, string(r.Category), r.Name, string(r.Field), r.Symbol, r.Currency, r.File,
		})
	}
	return out
}

// HasSymbol reports whether any asset's primary slot uses symbol.
func (c *Catalog) HasSymbol(symbol string) bool {
	if symbol == "" {
		return false
	}
	for _, e := range c.entries {
		if e.Primary.Symbol == symbol {
			return true
		}
	}
	return false
}

// ShouldSkip reports whether asset must not be added to the catalog and why:
// its symbol is already tracked, or it is a US-themed Korean listing.
func (c *Catalog) ShouldSkip(country, name string, asset models.AssetSpec) (bool, string) {
	sym := asset.ETF
	if sym == "" {
		sym = asset.Index
	}
	if c.HasSymbol(sym) {
		return true, models.ReasonDuplicateSymbol
	}
	if country == koreaRegion && (strings.HasSuffix(name, "_K") || strings.HasPrefix(name, "US_")) {
		return true, models.ReasonKoreaUSTheme
	}
	return false, ""
}

// Add appends asset unless ShouldSkip rejects it, returning the skip reason.
func (c *Catalog) Add(asset models.AssetSpec) (bool, string) {
	if skip, reason := c.ShouldSkip(asset.Region, asset.Name, asset); skip {
		return false, reason
	}
	c.entries = append(c.entries, Resolve(asset))
	return true, ""
}

// Merge adds every entry of other through Add and returns the skipped ones
// keyed by asset key.
func (c *Catalog) Merge(other *Catalog) map[string]string {
	skipped := map[string]string{}
	for _, e := range other.entries {
		if ok, reason := c.Add(e); !ok {
			skipped[e.Key()] = reason
		}
	}
	for kind, m := range other.labels {
		if c.labels[kind] == nil {
			c.labels[kind] = map[string]string{}
		}
		for k, v := range m {
			c.labels[kind][k] = v
		}
	}
	known := map[string]bool{}
	for _, k := range c.krx {
		known[k.Code] = true
	}
	for _, k := range other.krx {
		if !known[k.Code] {
			c.krx = append(c.krx, k)
		}
	}
	return skipped
}

// Label returns the Korean label for a region, sector or factor, or key
// itself when none is defined.
func (c *Catalog) Label(kind, key string) string {
	if v, ok := c.labels[kind][key]; ok && v != "" {
		return v
	}
	return key
}

// Filter returns the entries whose primary symbol is in symbols, keeping
// catalog order. An empty list keeps everything.
func Filter(entries []models.AssetSpec, symbols []string) []models.AssetSpec {
	if len(symbols) == 0 {
		return entries
	}
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[strings.TrimSpace(s)] = true
	}
	var out []models.AssetSpec
	for _, e := range entries {
		if want[e.Primary.Symbol] {
			out = append(out, e)
		}
	}
	return out
}
