package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ncresample/internal/adapter/store"
	"go.ngs.io/ncresample/internal/domain"
)

// MissingPolicy decides what a step without usable input leaves in the output.
type MissingPolicy string

const (
	// MissingSkip omits the step; the output time axis has a gap.
	MissingSkip MissingPolicy = "skip"
	// MissingFill appends the step's time with a fill-valued record.
	MissingFill MissingPolicy = "fill"
)

// ParseMissingPolicy maps a configuration string to a MissingPolicy.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch p := MissingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return MissingSkip, nil
	case MissingSkip, MissingFill:
		return p, nil
	default:
		return "", domain.Configf("run.missing_steps", "unknown policy %q", s)
	}
}

// ResampleConfig parametrizes one run. It is built and validated once by the
// configuration layer and not modified afterwards.
type ResampleConfig struct {
	InputPath string
	Variable  string
	// InputCellSize overrides the spacing of the input coordinates when positive.
	InputCellSize  float64
	OutputCellSize float64

	// CellAreaPath names a cell-area raster; spherical areas are used when empty.
	CellAreaPath     string
	CellAreaVariable string
	// ClonePath derives the downscaling target grid from the coordinates of
	// a netCDF file when Resolve.Clone is not set.
	ClonePath string

	Resolve domain.ResolveOptions
	Reducer domain.Reducer

	Start     time.Time
	End       time.Time
	Frequency domain.Frequency
	Missing   MissingPolicy

	// Output describes the dataset to create. Its grid is set during setup.
	Output domain.DatasetSpec
}

// SeriesWriter appends resampled steps to an output dataset.
type SeriesWriter interface {
	Create(spec domain.DatasetSpec) error
	Append(path, variable string, field domain.Field, date time.Time) (int, error)
	AppendTime(path string, date time.Time) (int, error)
	Close(path string) error
	CloseAll() error
}

// RunReport summarizes a finished or aborted run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Mode       string        `json:"mode"`
	Output     string        `json:"output"`
	Steps      int           `json:"steps"`
	Written    int           `json:"written"`
	Skipped    int           `json:"skipped"`
	Filled     int           `json:"filled"`
	AllMissing int           `json:"all_missing"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Resampler drives a run: geometry and engine set up once, then one step at a
// time through read, aggregate and append.
type Resampler struct {
	cfg    ResampleConfig
	reader store.FieldReader
	raster store.RasterReader
	writer SeriesWriter
	log    logrus.FieldLogger

	runID  string
	engine *domain.Engine
	spec   domain.DatasetSpec
}

// NewResampler wires a run. raster may be nil when no cell-area raster or
// clone file is configured.
func NewResampler(cfg ResampleConfig, reader store.FieldReader, raster store.RasterReader, writer SeriesWriter, log logrus.FieldLogger) *Resampler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	id := uuid.NewString()
	return &Resampler{
		cfg:    cfg,
		reader: reader,
		raster: raster,
		writer: writer,
		log:    log.WithField("run_id", id),
		runID:  id,
	}
}

// RunID identifies the run in logs and in the history attribute.
func (r *Resampler) RunID() string { return r.runID }

// Mode returns the resolved resample mode, nil before Setup.
func (r *Resampler) Mode() domain.ResampleMode {
	if r.engine == nil {
		return nil
	}
	return r.engine.Mode()
}

// Setup resolves the geometry, loads cell areas, builds the engine and
// creates the output dataset. Every error it returns is fatal.
func (r *Resampler) Setup(ctx context.Context) error {
	if r.engine != nil {
		return nil
	}
	if err := r.checkPaths(); err != nil {
		return err
	}

	input, err := r.reader.Grid(ctx, r.cfg.InputPath, r.cfg.InputCellSize)
	if err != nil {
		return err
	}
	opts := r.cfg.Resolve
	if opts.Clone == nil {
		if opts.Clone, err = r.cloneGrid(ctx); err != nil {
			return err
		}
	}
	mode, err := domain.Resolve(input, r.cfg.OutputCellSize, opts)
	if err != nil {
		return err
	}

	area, err := r.cellAreas(mode)
	if err != nil {
		return err
	}
	engine, err := domain.NewEngine(mode, area, domain.EngineOptions{Reducer: r.cfg.Reducer})
	if err != nil {
		return err
	}

	spec := r.cfg.Output
	spec.Grid = mode.OutputGrid()
	spec.Attributes = r.withHistory(spec.Attributes)
	if err := r.writer.Create(spec); err != nil {
		return err
	}

	r.engine, r.spec = engine, spec
	fields := logrus.Fields{
		"mode":    mode.String(),
		"reducer": engine.Reducer(),
		"input":   fmt.Sprintf("%dx%d@%g", input.Rows, input.Cols, input.CellSize),
		"output":  fmt.Sprintf("%dx%d@%g", spec.Grid.Rows, spec.Grid.Cols, spec.Grid.CellSize),
		"path":    spec.Path,
	}
	if up, ok := mode.(domain.Upscale); ok {
		fields["factor"] = up.Factor
	}
	r.log.WithFields(fields).Info("run set up")
	return nil
}

func (r *Resampler) checkPaths() error {
	if r.cfg.InputPath == "" {
		return domain.Configf("input.path", "must not be empty")
	}
	if r.cfg.Variable == "" {
		return domain.Configf("input.variable", "must not be empty")
	}
	in, err := filepath.Abs(r.cfg.InputPath)
	if err != nil {
		return domain.Configf("input.path", "%v", err)
	}
	out, err := filepath.Abs(r.cfg.Output.Path)
	if err != nil {
		return domain.Configf("output.path", "%v", err)
	}
	// One handle per path: the run never reads the file it writes.
	if in == out {
		return domain.Configf("output.path", "must differ from the input path %s", r.cfg.InputPath)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return &domain.IOError{Op: "create output folder", Path: filepath.Dir(out), Err: err}
	}
	return nil
}

func (r *Resampler) cloneGrid(ctx context.Context) (*domain.GridDefinition, error) {
	if r.cfg.ClonePath == "" {
		return nil, nil
	}
	g, err := r.reader.Grid(ctx, r.cfg.ClonePath, r.cfg.OutputCellSize)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *Resampler) cellAreas(mode domain.ResampleMode) (domain.Field, error) {
	grid := mode.CalculationGrid()
	if _, ok := mode.(domain.Upscale); !ok {
		return domain.Field{}, nil
	}
	if r.cfg.CellAreaPath == "" {
		return domain.CellAreas(grid), nil
	}
	if r.raster == nil {
		return domain.Field{}, domain.Configf("input.cell_area", "no raster reader for %s", r.cfg.CellAreaPath)
	}
	return r.raster.ReadRaster(r.cfg.CellAreaPath, grid)
}

// withHistory records the run in the history attribute unless one is configured.
func (r *Resampler) withHistory(attrs []domain.Attribute) []domain.Attribute {
	for _, a := range attrs {
		if a.Name == "history" {
			return attrs
		}
	}
	entry := fmt.Sprintf("%s: resampled %s from %s (run %s)",
		time.Now().UTC().Format(time.RFC3339), r.cfg.Variable, filepath.Base(r.cfg.InputPath), r.runID)
	return append(append([]domain.Attribute(nil), attrs...), domain.Attribute{Name: "history", Value: entry})
}

// Run sets the run up if needed and processes every time step. Handles of
// the writer are released on every exit path.
func (r *Resampler) Run(ctx context.Context) (report *RunReport, err error) {
	started := time.Now()
	report = &RunReport{RunID: r.runID, Output: r.cfg.Output.Path}
	defer func() {
		if cerr := r.writer.CloseAll(); cerr != nil && err == nil {
			err = cerr
		}
		report.Elapsed = time.Since(started)
	}()

	steps, err := domain.NewTimeSteps(r.cfg.Start, r.cfg.End, r.cfg.Frequency)
	if err != nil {
		return report, err
	}
	report.Steps = steps.Count()
	if err := r.Setup(ctx); err != nil {
		return report, err
	}
	report.Mode = r.engine.Mode().String()
	grid := r.engine.Mode().CalculationGrid()

	for {
		if err := ctx.Err(); err != nil {
			r.log.WithError(err).Warn("run cancelled")
			return report, err
		}
		ts, ok := steps.Next()
		if !ok {
			break
		}
		date := ts.Date()
		log := r.log.WithFields(logrus.Fields{"step": ts.Index, "date": date.Format(time.DateOnly)})

		if err := r.step(ctx, log, report, grid, date); err != nil {
			return report, err
		}
		if ts.IsLast {
			if err := r.writer.Close(r.spec.Path); err != nil {
				return report, err
			}
		}
	}

	r.log.WithFields(logrus.Fields{
		"steps":       report.Steps,
		"written":     report.Written,
		"skipped":     report.Skipped,
		"filled":      report.Filled,
		"all_missing": report.AllMissing,
		"path":        r.spec.Path,
	}).Info("run finished")
	return report, nil
}

func (r *Resampler) step(ctx context.Context, log logrus.FieldLogger, report *RunReport, grid domain.GridDefinition, date time.Time) error {
	in, err := r.reader.ReadField(ctx, store.FieldRequest{
		Path:     r.cfg.InputPath,
		Variable: r.cfg.Variable,
		Date:     date,
		Grid:     grid,
	})
	var out domain.Field
	if err == nil {
		out, err = r.engine.Apply(in)
	}

	switch {
	case err == nil:
		idx, err := r.writer.Append(r.spec.Path, r.spec.Variable.Name, out, date)
		if err != nil {
			return err
		}
		report.Written++
		log.WithField("index", idx).Debug("step written")
		return nil
	case domain.IsFatal(err):
		return err
	}

	if errors.Is(err, domain.ErrAllMissing) {
		report.AllMissing++
	}
	if r.cfg.Missing == MissingFill {
		idx, werr := r.writer.AppendTime(r.spec.Path, date)
		if werr != nil {
			return werr
		}
		report.Filled++
		log.WithError(err).WithField("index", idx).Warn("no usable input, wrote fill record")
		return nil
	}
	report.Skipped++
	log.WithError(err).Warn("no usable input, step skipped")
	return nil
}
