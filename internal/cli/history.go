package cli

import (
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"global-universe/internal/models"
	"global-universe/internal/store"
)

var errLedgerDisabled = errors.New("run ledger is disabled (set data.ledger = true)")

func newHistoryCmd(app *App) *cobra.Command {
	var kind, runID, status string
	var limit int
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "history [symbol]",
		Short: "Show recorded runs, one run's entries, or one symbol's history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ledger, err := app.Ledger()
			if err != nil {
				return err
			}
			if ledger == nil {
				return errLedgerDisabled
			}
			ctx := cmd.Context()

			if len(args) == 1 || runID != "" {
				var rows []models.SummaryRow
				if runID != "" {
					rows, err = ledger.RunEntries(ctx, runID, models.Status(status))
				} else {
					rows, err = ledger.SymbolHistory(ctx, args[0], limit)
				}
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(rows)
				}
				tbl := NewTable(output, "RUN AT", "ENTRY", "SYMBOL", "STATUS", "ADDED", "REASON")
				for _, r := range rows {
					tbl.AddRow(FormatDateTime(r.RunAt, time.Local), TruncateString(r.Name, 28), r.Symbol,
						output.Status(r.Status), strconv.Itoa(r.RowsAdded), TruncateString(r.Reason, 48))
				}
				tbl.Render()
				return nil
			}

			filter := store.RunFilter{Kind: models.RunKind(kind), Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			runs, err := ledger.ListRuns(ctx, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(runs)
			}
			tbl := NewTable(output, "STARTED", "KIND", "ID", "ENTRIES", "UPDATED", "ERRORS", "DURATION")
			for _, r := range runs {
				errs := strconv.Itoa(r.Errors)
				if r.Errors > 0 {
					errs = output.Red(errs)
				}
				tbl.AddRow(FormatDateTime(r.StartedAt, time.Local), string(r.Kind), r.ID,
					strconv.Itoa(r.Entries), strconv.Itoa(r.Updated), errs, FormatDuration(r.Duration()))
			}
			tbl.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "prices, valuations, krx or macro")
	cmd.Flags().StringVar(&runID, "run", "", "show the entries of one run")
	cmd.Flags().StringVar(&status, "status", "", "with --run, only entries with this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.Flags().DurationVar(&since, "since", 0, "only runs started within this window, e.g. 168h")
	return cmd
}
