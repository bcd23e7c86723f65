// Command testdata-gen writes a synthetic daily input series, its cell-area
// raster and a matching configuration file.
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"go.ngs.io/ncresample/internal/domain"
	"go.ngs.io/ncresample/internal/synth"
)

// region defines the geographic bounds of the generated grid.
type region struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

var regions = map[string]region{
	"global": {-90, 90, -180, 180},
	"europe": {35, 71, -11, 40},
	"japan":  {20, 50, 120, 150},
}

func main() {
	outDir := flag.String("out", "./data", "Output directory")
	name := flag.String("region", "europe", "Region: global, europe, japan or custom")
	latMin := flag.Float64("lat-min", 20.0, "Minimum latitude (custom region)")
	latMax := flag.Float64("lat-max", 50.0, "Maximum latitude (custom region)")
	lonMin := flag.Float64("lon-min", 120.0, "Minimum longitude (custom region)")
	lonMax := flag.Float64("lon-max", 150.0, "Maximum longitude (custom region)")
	resolution := flag.Float64("resolution", 0.25, "Input grid resolution in degrees")
	target := flag.Float64("target", 1.0, "Output cell size written to the configuration")
	variable := flag.String("variable", "runoff", "Variable name")
	start := flag.String("start", "2000-01-01", "First day, YYYY-MM-DD")
	days := flag.Int("days", 31, "Number of daily steps")
	gap := flag.Int("gap", -1, "Step written as all fill values (-1 for none)")
	netcdf4 := flag.Bool("netcdf4", true, "Write the series in netCDF-4 format")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableSorting: true})

	reg, ok := regions[*name]
	if *name == "custom" {
		reg, ok = region{*latMin, *latMax, *lonMin, *lonMax}, true
	}
	if !ok {
		log.Fatalf("Unknown region: %s (use global, europe, japan or custom)", *name)
	}
	day0, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}

	rows := int(math.Round((reg.LatMax - reg.LatMin) / *resolution))
	cols := int(math.Round((reg.LonMax - reg.LonMin) / *resolution))
	grid, err := domain.NewGridDefinition(rows, cols, *resolution, reg.LonMin, reg.LatMax)
	if err != nil {
		log.Fatalf("Invalid grid: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	seriesPath := filepath.Join(*outDir, *variable+"_input.nc")
	areaPath := filepath.Join(*outDir, "cellarea.nc")

	gapStep := *gap
	err = synth.WriteSeries(seriesPath, synth.SeriesSpec{
		Variable:  *variable,
		Units:     "m.day-1",
		Grid:      grid,
		Times:     synth.DailyTimes(day0, *days),
		FillValue: float32(domain.DefaultMissingValue),
		NetCDF4:   *netcdf4,
		Values: func(t, r, c int) float64 {
			if t == gapStep {
				return math.NaN()
			}
			return synth.Wave(t, r, c)
		},
	})
	if err != nil {
		log.Fatalf("Failed to write series: %v", err)
	}
	if err := synth.WriteRaster(areaPath, "cellarea", domain.CellAreas(grid), grid); err != nil {
		log.Fatalf("Failed to write cell areas: %v", err)
	}

	configPath := filepath.Join(*outDir, "ncresample.toml")
	end := day0.AddDate(0, 0, *days-1)
	if err := writeConfig(configPath, seriesPath, areaPath, *variable, *resolution, *target, day0, end); err != nil {
		log.Fatalf("Failed to write configuration: %v", err)
	}

	log.WithFields(logrus.Fields{
		"region": *name,
		"grid":   fmt.Sprintf("%dx%d@%g", rows, cols, *resolution),
		"steps":  *days,
		"series": seriesPath,
		"areas":  areaPath,
		"config": configPath,
	}).Info("test data generated")
}

func writeConfig(path, series, areas, variable string, cellSize, target float64, start, end time.Time) error {
	content := fmt.Sprintf(`[input]
path = %q
variable = %q
cell_size = %g

[cell_area]
path = %q
variable = "cellarea"

[output]
folder = "./output"
cell_size = %g
units = "m.day-1"

[output.attributes]
title = "Synthetic %s at %g degrees"
source = "testdata-gen"

[run]
start = %q
end = %q
frequency = "daily"
reducer = "mean"
missing_steps = "fill"
`, series, variable, cellSize, areas, target, variable, target,
		start.Format(time.DateOnly), end.Format(time.DateOnly))
	return os.WriteFile(path, []byte(content), 0o644)
}
