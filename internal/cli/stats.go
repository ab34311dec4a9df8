package cli

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"global-universe/internal/analysis"
	"global-universe/internal/models"
	"global-universe/internal/store"
)

func newStatsCmd(app *App) *cobra.Command {
	var period, benchmark string
	var rf float64
	var export bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Period returns and risk-adjusted ratios from stored prices",
		Long: `Compute the period return, the difference against a benchmark and the
annualised Sharpe and Sortino ratios for every catalog asset with a stored
price series. Periods: ytd, 1y, 3y, 5y, 10y.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			cat, err := app.Catalog()
			if err != nil {
				return err
			}
			rows, err := analysis.ReturnsTable(st, cat.Entries(), analysis.ReturnsQuery{
				Period:    period,
				AsOf:      time.Now(),
				Benchmark: benchmark,
				RiskFree:  rf,
			})
			if err != nil {
				return err
			}
			if export {
				if err := st.WriteRows(store.ReturnsFile, analysis.ReturnsHeader, analysis.ReturnsRecords(rows)); err != nil {
					return err
				}
			}
			if output.IsJSON() {
				return output.JSON(returnsJSON(rows))
			}

			output.Bold("Returns %s vs %s", period, benchmark)
			tbl := NewTable(output, "COUNTRY", "NAME", "SYMBOL", "FROM", "RETURN", "VS BENCH", "SHARPE", "SORTINO")
			for _, r := range rows {
				tbl.AddRow(
					r.Country,
					TruncateString(r.Name, 32),
					r.Symbol,
					r.Start.Format(models.DateLayout),
					output.Return(r.LocalReturn),
					output.Return(r.DiffVsBenchmark),
					FormatRatio(r.Sharpe),
					FormatRatio(r.Sortino),
				)
			}
			tbl.Render()
			if export {
				output.Dim("Wrote %s", st.Path(store.ReturnsFile))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", analysis.PeriodYTD, "ytd, 1y, 3y, 5y or 10y")
	cmd.Flags().StringVar(&benchmark, "benchmark", analysis.DefaultBenchmark, "benchmark symbol")
	cmd.Flags().Float64Var(&rf, "rf", 0, "annual risk-free rate as a fraction")
	cmd.Flags().BoolVar(&export, "export", false, "also write "+store.ReturnsFile)

	cmd.AddCommand(newMacroStatsCmd(app))
	return cmd
}

func newMacroStatsCmd(app *App) *cobra.Command {
	var yoy bool
	var last int

	cmd := &cobra.Command{
		Use:   "macro <group>",
		Short: "Month-over-month or year-over-year changes of a macro group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			macros, err := app.Macros()
			if err != nil {
				return err
			}
			g, ok := macros.Group(args[0])
			if !ok {
				return fmt.Errorf("unknown macro group %q", args[0])
			}
			st, err := app.Store()
			if err != nil {
				return err
			}
			tbl, err := st.Load(store.MacroFile(g.Name))
			if err != nil {
				return err
			}
			if tbl.Empty() {
				return fmt.Errorf("no data stored for %s, run 'universe update macro %s' first", g.Name, g.Name)
			}

			changes := analysis.MoM(tbl)
			label := "MoM %"
			if yoy {
				changes = analysis.YoY(tbl)
				label = "YoY %"
			}
			if last > 0 && changes.Len() > last {
				changes.Records = changes.Records[changes.Len()-last:]
			}
			if output.IsJSON() {
				return output.JSON(changes.Records)
			}

			ids := g.IDs()
			headers := append([]string{"DATE"}, ids...)
			out := NewTable(output, headers...)
			for _, r := range changes.Records {
				cells := []string{r.Date.Format("2006-01")}
				for _, id := range ids {
					if v, ok := r.Value(id); ok {
						cells = append(cells, strconv.FormatFloat(v, 'f', 2, 64))
					} else {
						cells = append(cells, "-")
					}
				}
				out.AddRow(cells...)
			}
			output.Bold("%s %s", g.Name, label)
			out.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&yoy, "yoy", false, "year-over-year instead of month-over-month")
	cmd.Flags().IntVar(&last, "last", 12, "show only the most recent N months (0 = all)")
	return cmd
}

// returnsJSON maps rows to JSON objects; NaN ratios become null.
func returnsJSON(rows []analysis.ReturnRow) []map[string]interface{} {
	num := func(v float64) interface{} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]interface{}{
			"country":           r.Country,
			"category":          r.Category,
			"name":              r.Name,
			"symbol":            r.Symbol,
			"start":             r.Start.Format(models.DateLayout),
			"end":               r.End.Format(models.DateLayout),
			"local_return":      num(r.LocalReturn),
			"diff_vs_benchmark": num(r.DiffVsBenchmark),
			"sharpe":            num(r.Sharpe),
			"sortino":           num(r.Sortino),
		})
	}
	return out
}
