package store

import (
	"path"
	"regexp"
	"strings"
)

// Directory layout under the data root.
const (
	DailyDir     = "daily"
	ValuationDir = "valuations"
	MacroDir     = "macro"
)

// Summary and catalog files written at the data root.
const (
	SymbolsCatalogFile   = "symbols_catalog.csv"
	PriceSummaryFile     = "update_summary.csv"
	ValuationSummaryFile = "valuations_update_summary.csv"
	KRXSummaryFile       = "krx_batch_summary.csv"
	MacroSummaryFile     = "macro_update_summary.csv"
	ReturnsFile          = "returns_summary.csv"
	LedgerFile           = "ledger.db"
)

const (
	krxIndexPrefix    = "KRX_IDX_"
	indexSymbolPrefix = "IDX_"
	csvExt            = ".csv"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeSymbol maps a provider symbol to a filesystem-safe base name.
// A leading caret becomes IDX_ and any other unsafe character becomes _.
func SanitizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	if strings.HasPrefix(s, "^") {
		s = indexSymbolPrefix + s[1:]
	}
	return unsafeChars.ReplaceAllString(s, "_")
}

// KRXSymbol returns the storage symbol for a KRX index ticker.
func KRXSymbol(ticker string) string {
	return krxIndexPrefix + strings.TrimSpace(ticker)
}

// PriceFile returns the table name of a symbol's daily price series.
func PriceFile(symbol string) string {
	return path.Join(DailyDir, SanitizeSymbol(symbol)+csvExt)
}

// ValuationFile returns the table name of a symbol's valuation snapshots.
func ValuationFile(symbol string) string {
	return path.Join(ValuationDir, SanitizeSymbol(symbol)+csvExt)
}

// MacroFile returns the table name of a macro series group.
func MacroFile(group string) string {
	return path.Join(MacroDir, SanitizeSymbol(group)+csvExt)
}
