package models

// Category groups catalog entries inside a region.
type Category string

const (
	CategorySectors Category = "sectors"
	CategoryFactors Category = "factors"
)

// SymbolRole records which slot of an asset a symbol came from.
type SymbolRole string

const (
	RoleIndex       SymbolRole = "index"
	RoleETF         SymbolRole = "etf"
	RoleAlternative SymbolRole = "alternative"
)

// SymbolRef identifies one quotable instrument at an external provider.
type SymbolRef struct {
	Symbol        string
	Role          SymbolRole
	Currency      string
	ValuationData bool
}

// AssetSpec is one logical thing to track, resolved to a primary symbol and
// ordered fallbacks.
type AssetSpec struct {
	Region        string
	Category      Category
	Name          string
	Index         string
	ETF           string
	Currency      string
	ValuationData bool
	Alternatives  []string

	Primary   SymbolRef
	Fallbacks []SymbolRef
}

// HasPrimary reports whether the asset resolved to any symbol.
func (a AssetSpec) HasPrimary() bool {
	return a.Primary.Symbol != ""
}

// Key returns a stable identifier for the asset.
func (a AssetSpec) Key() string {
	return a.Region + "/" + string(a.Category) + "/" + a.Name
}

// SymbolsCatalogRow is one row of the exported symbols catalog.
type SymbolsCatalogRow struct {
	Country  string
	Category Category
	Name     string
	Field    SymbolRole
	Symbol   string
	Currency string
	File     string
}

// Candidates returns the primary followed by the fallbacks.
func (a AssetSpec) Candidates() []SymbolRef {
	if !a.HasPrimary() {
		return nil
	}
	out := make([]SymbolRef, 0, 1+len(a.Fallbacks))
	out = append(out, a.Primary)
	return append(out, a.Fallbacks...)
}
