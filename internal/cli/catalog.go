package cli

import (
	"github.com/spf13/cobra"

	"global-universe/internal/store"
)

func newCatalogCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the asset catalog",
	}

	var primaryOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List every catalog symbol and its table",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cat, err := app.Catalog()
			if err != nil {
				return err
			}
			rows := cat.SymbolsCatalog(primaryOnly)
			if output.IsJSON() {
				return output.JSON(rows)
			}
			tbl := NewTable(output, "COUNTRY", "CATEGORY", "NAME", "FIELD", "SYMBOL", "CURRENCY", "FILE")
			for _, r := range rows {
				tbl.AddRow(r.Country, string(r.Category), TruncateString(r.Name, 32), string(r.Field), r.Symbol, r.Currency, r.File)
			}
			tbl.Render()
			output.Dim("%d symbols, %d KRX indices", len(rows), len(cat.KRXIndices()))
			return nil
		},
	}
	list.Flags().BoolVar(&primaryOnly, "primary", false, "only primary symbols")
	cmd.AddCommand(list)

	var exportPrimary bool
	export := &cobra.Command{
		Use:   "export",
		Short: "Write " + store.SymbolsCatalogFile + " at the data root",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			u, err := app.Updater()
			if err != nil {
				return err
			}
			n, err := u.ExportCatalog(exportPrimary)
			if err != nil {
				return err
			}
			st, err := app.Store()
			if err != nil {
				return err
			}
			path := st.Path(store.SymbolsCatalogFile)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"rows": n, "path": path})
			}
			output.Success("Wrote %d rows to %s", n, path)
			return nil
		},
	}
	export.Flags().BoolVar(&exportPrimary, "primary", false, "only primary symbols")
	cmd.AddCommand(export)

	return cmd
}
