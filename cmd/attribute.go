package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/limitup-cli/internal/model"
)

var attributeCmd = &cobra.Command{
	Use:   "attribute <start-date> [end-date]",
	Short: "Attribute a date range's limit-up stocks to concepts",
	Long:  "Reprocesses every trading day in the range: resolves reasons, clusters limit-up stocks into concept buckets and persists the attributions. Dates are YYYYMMDD.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		start := args[0]
		end := start
		if len(args) == 2 {
			end = args[1]
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		engine, err := newEngine(ctx, st)
		if err != nil {
			return err
		}

		run, err := st.CreateRun(ctx, start, end)
		if err != nil {
			return err
		}
		if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning, ""); err != nil {
			return err
		}

		if err := engine.RunRange(ctx, start, end); err != nil {
			if updErr := st.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed, err.Error()); updErr != nil {
				zap.L().Error("record run failure", zap.Error(updErr))
			}
			return err
		}

		if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusComplete, ""); err != nil {
			return err
		}
		zap.L().Info("attribution run complete",
			zap.String("run_id", run.ID),
			zap.String("start", start),
			zap.String("end", end),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(attributeCmd)
}
