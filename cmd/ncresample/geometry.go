package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"go.ngs.io/ncresample/internal/adapter/store/series"
	"go.ngs.io/ncresample/internal/usecase"
)

func init() {
	rootCmd.AddCommand(geometryCmd)
}

// geometryCmd prints the resolved geometry without writing anything.
var geometryCmd = &cobra.Command{
	Use:   "geometry",
	Short: "Print the resample geometry of the configured input",
	RunE: func(cmd *cobra.Command, args []string) error {
		return geometry(cmd.Context())
	},
}

func geometry(ctx context.Context) error {
	cfg := settings.Resample
	opts := settings.Reader
	opts.Log = log
	reader := series.NewReader(opts)
	defer func() { _ = reader.Close() }()

	g, err := reader.Grid(ctx, cfg.InputPath, cfg.InputCellSize)
	if err != nil {
		return err
	}
	resp, err := usecase.NewInspectUseCase("").Geometry(usecase.GeometryRequest{
		Rows:               g.Rows,
		Cols:               g.Cols,
		CellSize:           g.CellSize,
		OriginX:            g.OriginX,
		OriginY:            g.OriginY,
		TargetCellSize:     cfg.OutputCellSize,
		FactorTolerance:    cfg.Resolve.FactorTolerance,
		AllowPartialBlocks: cfg.Resolve.AllowPartialBlocks,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
