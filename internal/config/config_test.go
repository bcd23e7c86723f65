package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ncresample/internal/adapter/interp"
	"go.ngs.io/ncresample/internal/adapter/store/series"
	"go.ngs.io/ncresample/internal/domain"
	"go.ngs.io/ncresample/internal/usecase"
)

const sample = `
[input]
path = "/data/runoff_5min.nc"
variable = "runoff"
cell_size = 0.0833333333
date_match = "before"

[cell_area]
path = "/data/cellarea_5min.nc"

[output]
folder = "/tmp/out"
units = "m.day-1"
cell_size = 0.5
fill_value = -9999.0
overwrite = true

[output.attributes]
title = "Upscaled runoff"
institution = "NGS"
resolution = "30 arc-minutes"

[run]
start = "2000-01-01"
end = "2000-12-31"
frequency = "monthly"
reducer = "max"
missing_steps = "fill"

[log]
level = "debug"
format = "json"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ncresample.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	s, err := cfg.Settings()
	require.NoError(t, err)

	r := s.Resample
	assert.Equal(t, "/data/runoff_5min.nc", r.InputPath)
	assert.Equal(t, "runoff", r.Variable)
	assert.InDelta(t, 1.0/12, r.InputCellSize, 1e-9)
	assert.Equal(t, 0.5, r.OutputCellSize)
	assert.Equal(t, "/data/cellarea_5min.nc", r.CellAreaPath)
	assert.Equal(t, "cellarea", r.CellAreaVariable)
	assert.Equal(t, domain.ReducerMax, r.Reducer)
	assert.Equal(t, domain.Monthly, r.Frequency)
	assert.Equal(t, usecase.MissingFill, r.Missing)
	assert.Equal(t, time.Date(2000, 12, 31, 0, 0, 0, 0, time.UTC), r.End)
	assert.Equal(t, domain.DefaultFactorTolerance, r.Resolve.FactorTolerance)

	assert.Equal(t, "/tmp/out/runoff.nc", r.Output.Path)
	assert.Equal(t, float32(-9999), r.Output.FillValue)
	assert.True(t, r.Output.Overwrite)
	assert.Equal(t, "m.day-1", r.Output.Variable.Units)
	assert.Equal(t, []domain.Attribute{
		{Name: "institution", Value: "NGS"},
		{Name: "title", Value: "Upscaled runoff"},
		{Name: "resolution", Value: "30 arc-minutes"},
	}, r.Output.Attributes)

	assert.Equal(t, series.MatchBefore, s.Reader.DateMatch)
	assert.Equal(t, interp.Nearest, s.Reader.Method)
	assert.Equal(t, uint64(3), s.Reader.OpenRetries)
	assert.Equal(t, logrus.DebugLevel, s.LogLevel)
	assert.Equal(t, "json", s.LogFormat)
	_, isJSON := s.NewLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "[input]\npaht = \"x\"\n"))
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Contains(t, err.Error(), "paht")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	var ioErr *domain.IOError
	assert.True(t, errors.As(err, &ioErr), "got %v", err)
}

func TestLoad_EnvAndFlagsOverride(t *testing.T) {
	t.Setenv("NCRESAMPLE_OUTPUT_FOLDER", "/env/out")
	t.Setenv("NCRESAMPLE_START", "2001-01-01")
	t.Setenv("NCRESAMPLE_END", "2001-01-31")
	t.Setenv("NCRESAMPLE_OUTPUT_CELL_SIZE", "1")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "/env/out", cfg.Output.Folder)
	assert.Equal(t, 1.0, cfg.Output.CellSize)

	cfg = cfg.Apply(Overrides{Start: "2001-01-15", Reducer: "mean"})
	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2001, 1, 15, 0, 0, 0, 0, time.UTC), s.Resample.Start)
	assert.Equal(t, time.Date(2001, 1, 31, 0, 0, 0, 0, time.UTC), s.Resample.End)
	assert.Equal(t, domain.ReducerMean, s.Resample.Reducer)
	assert.Equal(t, "/env/out/runoff.nc", s.Resample.Output.Path)
}

func TestSettings_Defaults(t *testing.T) {
	cfg := Default()
	cfg.Input.Path = "in.nc"
	cfg.Input.Variable = "tas"
	cfg.Output.CellSize = 1
	cfg.Run.Start, cfg.Run.End = "2000-01-01", "2000-01-10"

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, domain.ReducerMean, s.Resample.Reducer)
	assert.Equal(t, domain.Daily, s.Resample.Frequency)
	assert.Equal(t, usecase.MissingSkip, s.Resample.Missing)
	assert.Equal(t, float32(domain.DefaultMissingValue), s.Resample.Output.FillValue)
	assert.Equal(t, "tas.nc", filepath.Base(s.Resample.Output.Path))
	assert.Nil(t, s.Resample.Resolve.Clone)
	assert.Equal(t, logrus.InfoLevel, s.LogLevel)
}

func TestSettings_Invalid(t *testing.T) {
	valid := func() File {
		cfg := Default()
		cfg.Input.Path = "in.nc"
		cfg.Input.Variable = "tas"
		cfg.Output.CellSize = 1
		cfg.Run.Start, cfg.Run.End = "2000-01-01", "2000-01-10"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*File)
		field  string
	}{
		{"no input", func(c *File) { c.Input.Path = "" }, "input.path"},
		{"no variable", func(c *File) { c.Input.Variable = " " }, "input.variable"},
		{"zero output cell", func(c *File) { c.Output.CellSize = 0 }, "output.cell_size"},
		{"bad start", func(c *File) { c.Run.Start = "01/01/2000" }, "run.start"},
		{"end before start", func(c *File) { c.Run.End = "1999-12-31" }, "run.end"},
		{"bad reducer", func(c *File) { c.Run.Reducer = "median" }, "reducer"},
		{"bad frequency", func(c *File) { c.Run.Frequency = "hourly" }, "frequency"},
		{"bad policy", func(c *File) { c.Run.MissingSteps = "zero" }, "run.missing_steps"},
		{"bad tolerance", func(c *File) { c.Run.FactorTolerance = 0.5 }, "run.factor_tolerance"},
		{"loose tolerance", func(c *File) { c.Run.FactorTolerance = 0.4 }, "run.factor_tolerance"},
		{"zero tolerance", func(c *File) { c.Run.FactorTolerance = 0 }, "run.factor_tolerance"},
		{"bad level", func(c *File) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *File) { c.Log.Format = "xml" }, "log.format"},
		{"reserved variable", func(c *File) { c.Output.Variable = "time" }, "output.variable"},
		{"clone twice", func(c *File) {
			c.Output.Clone = &Grid{Rows: 2, Cols: 2, CellSize: 1}
			c.Output.ClonePath = "clone.nc"
		}, "output.clone"},
		{"bad clone", func(c *File) { c.Output.Clone = &Grid{Rows: 0, Cols: 2, CellSize: 1} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			_, err := cfg.Settings()
			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			if tt.field != "" {
				assert.Equal(t, tt.field, cfgErr.Field)
			}
		})
	}
}

func TestSettings_Clone(t *testing.T) {
	cfg := Default()
	cfg.Input.Path = "in.nc"
	cfg.Input.Variable = "tas"
	cfg.Output.CellSize = 0.25
	cfg.Output.Clone = &Grid{Rows: 8, Cols: 8, CellSize: 0.25, OriginX: 0, OriginY: 2}
	cfg.Run.Start, cfg.Run.End = "2000-01-01", "2000-01-01"

	s, err := cfg.Settings()
	require.NoError(t, err)
	require.NotNil(t, s.Resample.Resolve.Clone)
	assert.Equal(t, 8, s.Resample.Resolve.Clone.Rows)
}
