package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go.ngs.io/ncresample/internal/adapter/store/raster"
	"go.ngs.io/ncresample/internal/adapter/store/series"
	"go.ngs.io/ncresample/internal/adapter/timeseries"
	"go.ngs.io/ncresample/internal/usecase"
)

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringVar(&overrides.Start, "start", "", "first date, YYYY-MM-DD (overrides run.start)")
	flags.StringVar(&overrides.End, "end", "", "last date, YYYY-MM-DD (overrides run.end)")
	flags.StringVar(&overrides.OutputFolder, "output-folder", "", "output folder (overrides output.folder)")
	flags.StringVar(&overrides.Reducer, "reducer", "", "mean, total, max or min (overrides run.reducer)")
}

// runCmd resamples the configured variable over the configured date range.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resample the configured time series",
	Long: "Resolve the output geometry, then read, aggregate and append one " +
		"time step after another to the output dataset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func run(ctx context.Context) error {
	opts := settings.Reader
	opts.Log = log
	reader := series.NewReader(opts)
	defer func() {
		if err := reader.Close(); err != nil {
			log.WithError(err).Warn("closing input")
		}
	}()

	writer := timeseries.NewWriter(timeseries.NewManager(log), log)
	r := usecase.NewResampler(settings.Resample, reader, raster.NewStore(settings.CellAreaVariable), writer, log)

	report, err := r.Run(ctx)
	fields := logrus.Fields{
		"run_id":  report.RunID,
		"written": report.Written,
		"elapsed": report.Elapsed.Round(1e6).String(),
	}
	if err != nil {
		log.WithFields(fields).WithError(err).Error("run failed")
		return err
	}
	log.WithFields(fields).Info("done")
	return nil
}
