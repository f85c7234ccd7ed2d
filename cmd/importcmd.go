package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/limitup-cli/internal/ingest"
	"github.com/sells-group/limitup-cli/internal/model"
	"github.com/sells-group/limitup-cli/internal/store"
)

const importBatchSize = 500

var (
	importXLSXPath string
	importSheet    string
	importSkipRows int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load vendor data exports into the store",
}

var importLimitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Import a limit-up event workbook",
	Long:  "Streams the vendor's limit-up workbook into the store. Rows are upserted on (trade_date, stock_code) so re-imports are safe.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		total, err := importLimits(ctx, st, importXLSXPath)
		if err != nil {
			return err
		}
		zap.L().Info("limit events imported",
			zap.String("path", importXLSXPath),
			zap.Int64("rows", total),
		)
		return nil
	},
}

func importLimits(ctx context.Context, st store.Store, path string) (int64, error) {
	opts := ingest.XLSXOptions{SheetName: importSheet, SkipRows: importSkipRows}
	rows, errs := ingest.StreamXLSX(ctx, path, opts)

	events := make(chan model.LimitEvent, importBatchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		line := importSkipRows
		for cells := range rows {
			line++
			ev, err := ingest.ParseLimitEvent(cells)
			if err != nil {
				return eris.Wrapf(err, "import: row %d", line)
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return <-errs
	})

	var total int64
	g.Go(func() error {
		batch := make([]model.LimitEvent, 0, importBatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := st.ImportLimitEvents(ctx, batch)
			if err != nil {
				return err
			}
			total += n
			batch = batch[:0]
			return nil
		}
		for ev := range events {
			batch = append(batch, ev)
			if len(batch) == importBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}

var importCalendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Import the trading-day calendar",
	Long:  "Reads a single-column workbook of YYYYMMDD trading days. Days already present are left alone.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		rows, err := ingest.ReadXLSX(importXLSXPath, ingest.XLSXOptions{
			SheetName: importSheet,
			SkipRows:  importSkipRows,
		})
		if err != nil {
			return err
		}

		dates := make([]string, 0, len(rows))
		for i, cells := range rows {
			if len(cells) == 0 || cells[0] == "" {
				continue
			}
			if len(cells[0]) != 8 {
				return eris.Errorf("import: row %d: %q is not a YYYYMMDD date", importSkipRows+i+1, cells[0])
			}
			dates = append(dates, cells[0])
		}

		n, err := st.ImportTradeCalendar(ctx, dates)
		if err != nil {
			return err
		}
		zap.L().Info("trade calendar imported",
			zap.String("path", importXLSXPath),
			zap.Int64("new_days", n),
		)
		return nil
	},
}

func init() {
	importCmd.PersistentFlags().StringVar(&importXLSXPath, "xlsx", "", "path to the workbook")
	importCmd.PersistentFlags().StringVar(&importSheet, "sheet", "", "sheet name (default: first sheet)")
	importCmd.PersistentFlags().IntVar(&importSkipRows, "skip-rows", 1, "header rows to skip")
	_ = importCmd.MarkPersistentFlagRequired("xlsx")

	importCmd.AddCommand(importLimitsCmd)
	importCmd.AddCommand(importCalendarCmd)
	rootCmd.AddCommand(importCmd)
}
