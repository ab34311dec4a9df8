package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"global-universe/internal/models"
	"global-universe/internal/scheduler"
	"global-universe/internal/updater"
)

// scheduleTasks maps task names to updater walks.
func scheduleTasks(u *updater.Updater) map[string]scheduler.Task {
	one := func(fn func(context.Context) (*models.RunSummary, error)) scheduler.Task {
		return func(ctx context.Context) error {
			_, err := fn(ctx)
			return err
		}
	}
	return map[string]scheduler.Task{
		string(models.RunPrices): one(func(ctx context.Context) (*models.RunSummary, error) {
			return u.UpdatePrices(ctx, nil)
		}),
		string(models.RunValuations): one(u.UpdateValuations),
		string(models.RunKRX):        one(u.UpdateKRX),
		string(models.RunMacro): one(func(ctx context.Context) (*models.RunSummary, error) {
			return u.UpdateMacro(ctx)
		}),
		"catalog": func(context.Context) error {
			_, err := u.ExportCatalog(false)
			return err
		},
		"all": func(ctx context.Context) error {
			_, err := u.UpdateAll(ctx)
			return err
		},
	}
}

func newScheduleCmd(app *App) *cobra.Command {
	var spec string
	var tasks []string
	var runNow, once bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run updates on a cron schedule until interrupted",
		Long: `Run the configured update tasks on a six-field cron spec (seconds first),
evaluated in schedule.timezone. Tasks: prices, valuations, krx, macro, catalog, all.

A run that is still in progress when the next one is due is skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sc := app.Config.Schedule
			if cmd.Flags().Changed("cron") {
				sc.Cron = spec
			}
			if cmd.Flags().Changed("tasks") {
				sc.Tasks = tasks
			}
			if cmd.Flags().Changed("run-now") {
				sc.RunOnStart = runNow
			}
			if err := scheduler.Validate(sc.Cron); err != nil {
				return err
			}
			loc, err := time.LoadLocation(orDefault(sc.Timezone, "Local"))
			if err != nil {
				return fmt.Errorf("schedule.timezone: %w", err)
			}

			u, err := app.Updater()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s := scheduler.New(ctx, loc, app.Logger)
			for name, t := range scheduleTasks(u) {
				s.Handle(name, t)
			}
			if err := s.Register(sc.Cron, sc.Tasks); err != nil {
				return err
			}

			if once {
				return s.RunNow(sc.Tasks)
			}
			if sc.RunOnStart {
				if err := s.RunNow(sc.Tasks); err != nil {
					output.Warning("Initial run failed: %v", err)
				}
			}

			s.Start()
			defer s.Stop()
			output.Info("Scheduler running %v on %q (%s), next run %s", sc.Tasks, sc.Cron, loc, FormatDateTime(s.Next(), loc))
			output.Dim("Press Ctrl+C to stop")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "cron spec with seconds (overrides schedule.cron)")
	cmd.Flags().StringSliceVar(&tasks, "tasks", nil, "tasks to run (overrides schedule.tasks)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting")
	cmd.Flags().BoolVar(&once, "once", false, "run the tasks once and exit")
	return cmd
}
