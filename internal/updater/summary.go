package updater

import (
	"strconv"

	"global-universe/internal/models"
	"global-universe/pkg/utils"
)

type summaryFormat struct {
	header []string
	row    func(models.SummaryRow) []string
}

func (f summaryFormat) records(rows []models.SummaryRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, f.row(r))
	}
	return out
}

// PriceSummaryHeader is the header of update_summary.csv.
var PriceSummaryHeader = []string{"symbol", "file", "added", "updated", "status", "reason", "run_at"}

// ValuationSummaryHeader is the header of valuations_update_summary.csv.
var ValuationSummaryHeader = []string{
	"country", "category", "name", "primary", "fallback_to_etf", "used_symbol",
	"file", "updated", "status", "reason", "run_at",
}

// KRXSummaryHeader is the header of krx_batch_summary.csv. Each index gets
// one daily row and one valuation row.
var KRXSummaryHeader = []string{"symbol", "name", "kind", "file", "added", "updated", "status", "reason", "run_at"}

// MacroSummaryHeader is the header of macro_update_summary.csv.
var MacroSummaryHeader = []string{"group", "source", "file", "added", "updated", "status", "reason", "run_at"}

var priceFormat = summaryFormat{
	header: PriceSummaryHeader,
	row: func(r models.SummaryRow) []string {
		return []string{
			r.Symbol, r.File, strconv.Itoa(r.RowsAdded), pyBool(r.Updated),
			string(r.Status), r.Reason, utils.RunTimestamp(r.RunAt),
		}
	},
}

var valuationFormat = summaryFormat{
	header: ValuationSummaryHeader,
	row: func(r models.SummaryRow) []string {
		return []string{
			r.Country, r.Category, r.Name, r.Primary, pyBool(r.Fallback), r.UsedSymbol,
			r.File, pyBool(r.Updated), string(r.Status), r.Reason, utils.RunTimestamp(r.RunAt),
		}
	},
}

var krxFormat = summaryFormat{
	header: KRXSummaryHeader,
	row: func(r models.SummaryRow) []string {
		return []string{
			r.Symbol, r.Name, r.Category, r.File, strconv.Itoa(r.RowsAdded), pyBool(r.Updated),
			string(r.Status), r.Reason, utils.RunTimestamp(r.RunAt),
		}
	},
}

var macroFormat = summaryFormat{
	header: MacroSummaryHeader,
	row: func(r models.SummaryRow) []string {
		return []string{
			r.Name, r.Category, r.File, strconv.Itoa(r.RowsAdded), pyBool(r.Updated),
			string(r.Status), r.Reason, utils.RunTimestamp(r.RunAt),
		}
	},
}

// pyBool writes booleans the way existing summary consumers read them.
func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
