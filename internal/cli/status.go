package cli

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"global-universe/internal/performance"
	"global-universe/internal/store"
)

// dataUsage summarises the tables under the data root.
type dataUsage struct {
	Dir    string         `json:"dir"`
	Tables map[string]int `json:"tables"`
	Bytes  uint64         `json:"bytes"`
	Size   string         `json:"size"`
}

func measureData(st *store.CSVStore) (dataUsage, error) {
	u := dataUsage{Dir: st.Root(), Tables: map[string]int{}}
	for _, dir := range []string{store.DailyDir, store.ValuationDir, store.MacroDir} {
		names, err := st.List(dir)
		if err != nil {
			return u, err
		}
		u.Tables[dir] = len(names)
	}
	err := filepath.WalkDir(st.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			u.Bytes += uint64(info.Size())
		}
		return nil
	})
	u.Size = performance.FormatBytes(u.Bytes)
	return u, err
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show data directory usage and last successful sync per update",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			usage, err := measureData(st)
			if err != nil {
				return err
			}

			var fresh []store.SyncStatus
			ledger, err := app.Ledger()
			if err != nil {
				app.Logger.Warn().Err(err).Msg("Run ledger unavailable")
			} else if ledger != nil {
				fresh = store.Freshness(ledger, store.DefaultFreshnessConfig(), time.Now())
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"data": usage, "sync": fresh})
			}

			output.Bold("Data")
			output.Printf("  Directory:   %s\n", usage.Dir)
			output.Printf("  Size:        %s\n", usage.Size)
			for _, dir := range []string{store.DailyDir, store.ValuationDir, store.MacroDir} {
				output.Printf("  %-12s %d tables\n", dir+":", usage.Tables[dir])
			}
			output.Println()

			if ledger == nil {
				output.Dim("Run ledger disabled, sync times unavailable")
				return nil
			}
			output.Bold("Last sync")
			tbl := NewTable(output, "UPDATE", "LAST SYNC", "AGE", "STATE")
			for _, s := range fresh {
				state := output.Green("fresh")
				if s.IsStale {
					state = output.Yellow("stale")
				}
				tbl.AddRow(string(s.Kind), FormatDateTime(s.LastSync, time.Local), FormatAge(s.LastSync, time.Now()), state)
			}
			tbl.Render()
			stale := 0
			for _, s := range fresh {
				if s.IsStale {
					stale++
				}
			}
			if stale > 0 {
				output.Warning("%d of %d updates are stale", stale, len(fresh))
			}
			return nil
		},
	}
}
