// Package config loads run settings from a TOML file, the environment and
// command-line overrides, and turns them into validated settings.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ncresample/internal/adapter/interp"
	"go.ngs.io/ncresample/internal/adapter/store/series"
	"go.ngs.io/ncresample/internal/domain"
	"go.ngs.io/ncresample/internal/usecase"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NCRESAMPLE_"

// File mirrors the TOML configuration file.
type File struct {
	Input    Input    `toml:"input"`
	CellArea CellArea `toml:"cell_area"`
	Output   Output   `toml:"output"`
	Run      Run      `toml:"run"`
	Log      Log      `toml:"log"`
}

// Input describes the series to resample.
type Input struct {
	Path          string  `toml:"path"`
	Variable      string  `toml:"variable"`
	CellSize      float64 `toml:"cell_size"`
	DateMatch     string  `toml:"date_match"`
	Interpolation string  `toml:"interpolation"`
	OpenRetries   uint64  `toml:"open_retries"`
}

// CellArea names an optional cell-area raster.
type CellArea struct {
	Path     string `toml:"path"`
	Variable string `toml:"variable"`
}

// Grid is an explicit grid definition.
type Grid struct {
	Rows     int     `toml:"rows"`
	Cols     int     `toml:"cols"`
	CellSize float64 `toml:"cell_size"`
	OriginX  float64 `toml:"origin_x"`
	OriginY  float64 `toml:"origin_y"`
}

// Output describes the dataset to write.
type Output struct {
	Folder     string            `toml:"folder"`
	File       string            `toml:"file"`
	Variable   string            `toml:"variable"`
	Units      string            `toml:"units"`
	LongName   string            `toml:"long_name"`
	CellSize   float64           `toml:"cell_size"`
	FillValue  float64           `toml:"fill_value"`
	Overwrite  bool              `toml:"overwrite"`
	Clone      *Grid             `toml:"clone"`
	ClonePath  string            `toml:"clone_path"`
	Attributes map[string]string `toml:"attributes"`
}

// Run holds the time range and aggregation policy.
type Run struct {
	Start              string  `toml:"start"`
	End                string  `toml:"end"`
	Frequency          string  `toml:"frequency"`
	Reducer            string  `toml:"reducer"`
	MissingSteps       string  `toml:"missing_steps"`
	FactorTolerance    float64 `toml:"factor_tolerance"`
	AllowPartialBlocks bool    `toml:"allow_partial_blocks"`
}

// Log selects the log level and format.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() File {
	return File{
		Input: Input{
			DateMatch:     string(series.MatchExact),
			Interpolation: string(interp.Nearest),
			OpenRetries:   3,
		},
		CellArea: CellArea{Variable: "cellarea"},
		Output: Output{
			Folder:    ".",
			FillValue: domain.DefaultMissingValue,
		},
		Run: Run{
			Frequency:       string(domain.Daily),
			Reducer:         string(domain.ReducerMean),
			MissingSteps:    string(usecase.MissingSkip),
			FactorTolerance: domain.DefaultFactorTolerance,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path skips the file. Environment variables in path are
// expanded.
func Load(path string) (File, error) {
	cfg := Default()
	if path != "" {
		path = os.ExpandEnv(path)
		f, err := os.Open(path)
		if err != nil {
			return File{}, &domain.IOError{Op: "open config", Path: path, Err: err}
		}
		defer func() { _ = f.Close() }()
		md, err := toml.NewDecoder(f).Decode(&cfg)
		if err != nil {
			return File{}, domain.Configf("config", "%s: %v", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return File{}, domain.Configf("config", "%s: unknown key %s", path, undecoded[0])
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func (c *File) applyEnv() {
	c.Input.Path = getEnv("INPUT_PATH", c.Input.Path)
	c.Input.Variable = getEnv("INPUT_VARIABLE", c.Input.Variable)
	c.Input.CellSize = getEnvFloat("INPUT_CELL_SIZE", c.Input.CellSize)
	c.CellArea.Path = getEnv("CELL_AREA_PATH", c.CellArea.Path)
	c.Output.Folder = getEnv("OUTPUT_FOLDER", c.Output.Folder)
	c.Output.CellSize = getEnvFloat("OUTPUT_CELL_SIZE", c.Output.CellSize)
	c.Run.Start = getEnv("START", c.Run.Start)
	c.Run.End = getEnv("END", c.Run.End)
	c.Run.Reducer = getEnv("REDUCER", c.Run.Reducer)
	c.Run.MissingSteps = getEnv("MISSING_STEPS", c.Run.MissingSteps)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Overrides are command-line values; empty fields keep the loaded value.
type Overrides struct {
	Start        string
	End          string
	OutputFolder string
	Reducer      string
	LogLevel     string
	LogFormat    string
}

// Apply returns a copy of c with the non-empty overrides set.
func (c File) Apply(o Overrides) File {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Run.Start, o.Start)
	set(&c.Run.End, o.End)
	set(&c.Output.Folder, o.OutputFolder)
	set(&c.Run.Reducer, o.Reducer)
	set(&c.Log.Level, o.LogLevel)
	set(&c.Log.Format, o.LogFormat)
	return c
}

// Settings is the validated form of a configuration. It is not modified
// after Settings returns it.
type Settings struct {
	Resample usecase.ResampleConfig
	Reader   series.Options
	// CellAreaVariable is the variable read from the cell-area raster.
	CellAreaVariable string
	LogLevel         logrus.Level
	LogFormat        string
}

// Settings validates c and derives the run settings. The first problem is
// returned as a *domain.ConfigurationError.
func (c File) Settings() (*Settings, error) {
	in := c.Input
	if strings.TrimSpace(in.Path) == "" {
		return nil, domain.Configf("input.path", "must not be empty")
	}
	if strings.TrimSpace(in.Variable) == "" {
		return nil, domain.Configf("input.variable", "must not be empty")
	}
	if in.CellSize < 0 {
		return nil, domain.Configf("input.cell_size", "must not be negative")
	}
	match, err := series.ParseDateMatch(in.DateMatch)
	if err != nil {
		return nil, err
	}
	method, err := interp.ParseMethod(in.Interpolation)
	if err != nil {
		return nil, err
	}

	out := c.Output
	if !(out.CellSize > 0) {
		return nil, domain.Configf("output.cell_size", "must be positive")
	}
	if math.IsNaN(out.FillValue) || math.Abs(out.FillValue) > math.MaxFloat32 {
		return nil, domain.Configf("output.fill_value", "%v is not a float32 value", out.FillValue)
	}
	var clone *domain.GridDefinition
	if out.Clone != nil {
		if out.ClonePath != "" {
			return nil, domain.Configf("output.clone", "clone and clone_path are exclusive")
		}
		g, err := domain.NewGridDefinition(out.Clone.Rows, out.Clone.Cols, out.Clone.CellSize, out.Clone.OriginX, out.Clone.OriginY)
		if err != nil {
			return nil, err
		}
		clone = &g
	}

	run := c.Run
	start, err := parseDate("run.start", run.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("run.end", run.End)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, domain.Configf("run.end", "%s is before start %s", run.End, run.Start)
	}
	freq, err := domain.ParseFrequency(run.Frequency)
	if err != nil {
		return nil, err
	}
	reducer, err := domain.ParseReducer(run.Reducer)
	if err != nil {
		return nil, err
	}
	missing, err := usecase.ParseMissingPolicy(run.MissingSteps)
	if err != nil {
		return nil, err
	}
	// Zero would silently select the default in the resolver.
	if !(run.FactorTolerance > 0) || run.FactorTolerance > domain.MaxFactorTolerance {
		return nil, domain.Configf("run.factor_tolerance", "must be in (0, %g]", domain.MaxFactorTolerance)
	}

	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, domain.Configf("log.level", "%v", err)
	}
	format := strings.ToLower(c.Log.Format)
	if format != "text" && format != "json" {
		return nil, domain.Configf("log.format", "must be text or json, got %q", c.Log.Format)
	}

	variable := domain.VariableSpec{Name: out.Variable, Units: out.Units, LongName: out.LongName}
	if variable.Name == "" {
		variable.Name = in.Variable
	}
	file := out.File
	if file == "" {
		file = variable.Name + ".nc"
	}
	spec := domain.DatasetSpec{
		Path:       filepath.Join(os.ExpandEnv(out.Folder), file),
		Variable:   variable,
		FillValue:  float32(out.FillValue),
		Attributes: attributes(out.Attributes),
		Overwrite:  out.Overwrite,
	}
	if err := variable.Validate(); err != nil {
		return nil, err
	}

	return &Settings{
		Resample: usecase.ResampleConfig{
			InputPath:        os.ExpandEnv(in.Path),
			Variable:         in.Variable,
			InputCellSize:    in.CellSize,
			OutputCellSize:   out.CellSize,
			CellAreaPath:     os.ExpandEnv(c.CellArea.Path),
			CellAreaVariable: c.CellArea.Variable,
			ClonePath:        os.ExpandEnv(out.ClonePath),
			Resolve: domain.ResolveOptions{
				FactorTolerance:    run.FactorTolerance,
				AllowPartialBlocks: run.AllowPartialBlocks,
				Clone:              clone,
			},
			Reducer:   reducer,
			Start:     start,
			End:       end,
			Frequency: freq,
			Missing:   missing,
			Output:    spec,
		},
		Reader: series.Options{
			DateMatch:   match,
			Method:      method,
			OpenRetries: in.OpenRetries,
		},
		CellAreaVariable: c.CellArea.Variable,
		LogLevel:         level,
		LogFormat:        format,
	}, nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, domain.Configf(field, "must not be empty")
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, domain.Configf(field, "expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

// attributes orders the provenance keys first, then any others by name.
func attributes(m map[string]string) []domain.Attribute {
	var out []domain.Attribute
	seen := map[string]bool{}
	for _, k := range domain.ProvenanceKeys {
		if v, ok := m[k]; ok {
			out = append(out, domain.Attribute{Name: k, Value: v})
			seen[k] = true
		}
	}
	var extra []string
	for k := range m {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, domain.Attribute{Name: k, Value: m[k]})
	}
	return out
}

// NewLogger builds the logger selected by s.
func (s *Settings) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(s.LogLevel)
	if s.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339, DisableSorting: true})
	}
	return log
}

// String summarizes the settings for logs.
func (s *Settings) String() string {
	r := s.Resample
	return fmt.Sprintf("%s:%s -> %s @%g (%s, %s..%s, %s)",
		r.InputPath, r.Variable, r.Output.Path, r.OutputCellSize, r.Reducer,
		r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly), r.Frequency)
}
