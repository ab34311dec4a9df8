package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"global-universe/internal/config"
	"global-universe/internal/models"
)

func newUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Bring stored tables up to date",
		Long: `Fetch what is missing for each catalog entry and merge it into the stored tables.

Each subcommand writes its summary CSV at the data root even when entries fail.
Only a broken data directory aborts a run.`,
	}

	cmd.PersistentFlags().Bool("errors", false, "only list entries that did not succeed")

	var symbols []string
	var maxSymbols, workers int
	prices := &cobra.Command{
		Use:   "prices",
		Short: "Update daily price series",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("symbols") {
				app.Config.Prices.Symbols = symbols
			}
			if cmd.Flags().Changed("max") {
				app.Config.Prices.MaxSymbols = maxSymbols
			}
			if cmd.Flags().Changed("workers") {
				app.Config.Prices.Workers = workers
			}
			u, err := app.Updater()
			if err != nil {
				return err
			}
			sum, err := u.UpdatePrices(cmd.Context(), nil)
			return reportRuns(cmd, err, sum)
		},
	}
	prices.Flags().StringSliceVar(&symbols, "symbols", nil, "only these symbols")
	prices.Flags().IntVar(&maxSymbols, "max", 0, "cap the number of symbols")
	prices.Flags().IntVar(&workers, "workers", 1, "concurrent symbols")
	cmd.AddCommand(prices)

	var valSymbols []string
	var mode string
	var maxInfo int
	valuations := &cobra.Command{
		Use:   "valuations",
		Short: "Append today's valuation snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("symbols") {
				app.Config.Valuations.Symbols = valSymbols
			}
			if cmd.Flags().Changed("mode") {
				app.Config.Valuations.Mode = mode
			}
			if cmd.Flags().Changed("max-info") {
				app.Config.Valuations.MaxInfoCalls = maxInfo
			}
			if err := app.Config.Validate(); err != nil {
				return err
			}
			u, err := app.Updater()
			if err != nil {
				return err
			}
			sum, err := u.UpdateValuations(cmd.Context())
			return reportRuns(cmd, err, sum)
		},
	}
	valuations.Flags().StringSliceVar(&valSymbols, "symbols", nil, "only entries using these symbols")
	valuations.Flags().StringVar(&mode, "mode", config.ValuationModeBatch, "batch_quote or info")
	valuations.Flags().IntVar(&maxInfo, "max-info", 0, "cap per-symbol info calls (0 = unlimited)")
	cmd.AddCommand(valuations)

	var krxPriceMode, krxValMode string
	krx := &cobra.Command{
		Use:   "krx",
		Short: "Update KRX index prices and valuations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("price-mode") {
				app.Config.KRX.PriceMode = krxPriceMode
			}
			if cmd.Flags().Changed("valuation-mode") {
				app.Config.KRX.ValuationMode = krxValMode
			}
			if err := app.Config.Validate(); err != nil {
				return err
			}
			u, err := app.Updater()
			if err != nil {
				return err
			}
			sum, err := u.UpdateKRX(cmd.Context())
			return reportRuns(cmd, err, sum)
		},
	}
	krx.Flags().StringVar(&krxPriceMode, "price-mode", config.KRXPriceFull, "full or quick")
	krx.Flags().StringVar(&krxValMode, "valuation-mode", config.KRXValBackfill, "backfill or append_today")
	cmd.AddCommand(krx)

	cmd.AddCommand(&cobra.Command{
		Use:   "macro [group...]",
		Short: "Update macro series groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := app.Updater()
			if err != nil {
				return err
			}
			sum, err := u.UpdateMacro(cmd.Context(), args...)
			return reportRuns(cmd, err, sum)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Export the catalog and run every enabled update",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := app.Updater()
			if err != nil {
				return err
			}
			sums, err := u.UpdateAll(cmd.Context())
			return reportRuns(cmd, err, sums...)
		},
	})

	return cmd
}

// reportRuns prints the summaries and passes walkErr through.
func reportRuns(cmd *cobra.Command, walkErr error, sums ...*models.RunSummary) error {
	output := NewOutput(cmd)
	onlyErrors, _ := cmd.Flags().GetBool("errors")

	var present []*models.RunSummary
	for _, s := range sums {
		if s != nil {
			present = append(present, s)
		}
	}
	if output.IsJSON() {
		if err := output.JSON(present); err != nil {
			return err
		}
		return walkErr
	}

	for _, sum := range present {
		printRun(output, sum, onlyErrors)
	}
	if walkErr != nil {
		output.Error("Run aborted: %v", walkErr)
	}
	return walkErr
}

func printRun(output *Output, sum *models.RunSummary, onlyErrors bool) {
	output.Bold("%s run %s", sum.Kind, sum.ID)
	output.Printf("%s\n", countsLine(sum))

	tbl := NewTable(output, "ENTRY", "SYMBOL", "STATUS", "REASON", "FILE")
	shown := 0
	for _, r := range sum.Rows {
		if onlyErrors && (r.Status == models.StatusOK || r.Status == models.StatusNoChange) {
			continue
		}
		name := r.Name
		if r.Country != "" {
			name = r.Country + "/" + r.Name
		}
		sym := r.Symbol
		if r.UsedSymbol != "" {
			sym = r.UsedSymbol
		}
		tbl.AddRow(TruncateString(name, 32), sym, output.Status(r.Status), TruncateString(r.Reason, 48), r.File)
		shown++
	}
	if shown > 0 {
		tbl.Render()
	}
	output.Dim("Took %s", FormatDuration(sum.FinishedAt.Sub(sum.StartedAt)))
	output.Println()
}

func countsLine(sum *models.RunSummary) string {
	counts := sum.Counts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := []string{fmt.Sprintf("%d entries, %d updated", len(sum.Rows), sum.Updated())}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[models.Status(k)]))
	}
	return strings.Join(parts, "  ")
}
