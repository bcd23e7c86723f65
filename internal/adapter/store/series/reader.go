// Package series reads 2D slices of time-indexed netCDF variables one step at
// a time.
package series

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ncresample/internal/adapter/interp"
	"go.ngs.io/ncresample/internal/adapter/store"
	"go.ngs.io/ncresample/internal/domain"
)

// DateMatch selects how a step date is matched against the time coordinate.
type DateMatch string

const (
	// MatchExact requires a time value on the same calendar day.
	MatchExact DateMatch = "exact"
	// MatchBefore takes the latest time value on or before the date within
	// the same month. It suits monthly series stamped mid-month.
	MatchBefore DateMatch = "before"
)

// ParseDateMatch maps a configuration string to a DateMatch.
func ParseDateMatch(s string) (DateMatch, error) {
	switch m := DateMatch(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MatchExact, nil
	case MatchExact, MatchBefore:
		return m, nil
	default:
		return "", domain.Configf("input.date_match", "unknown date match %q", s)
	}
}

// Options configures a Reader.
type Options struct {
	DateMatch DateMatch
	Method    interp.Method
	// OpenRetries bounds retries of transient open failures.
	OpenRetries uint64
	Log         logrus.FieldLogger
}

// Reader implements store.FieldReader with a pure Go netCDF decoder. It keeps
// at most one open handle per path.
type Reader struct {
	opts Options

	mu   sync.Mutex
	open map[string]*dataset
}

var _ store.FieldReader = (*Reader)(nil)

// NewReader creates a reader.
func NewReader(opts Options) *Reader {
	if opts.DateMatch == "" {
		opts.DateMatch = MatchExact
	}
	if opts.Method == "" {
		opts.Method = interp.Nearest
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Reader{opts: opts, open: map[string]*dataset{}}
}

type dataset struct {
	path    string
	group   api.Group
	lats    []float64
	lons    []float64
	times   []time.Time
	southUp bool
	grid    domain.GridDefinition
	vars    map[string]*variable
}

type variable struct {
	getter    api.VarGetter
	transpose bool
	fill      []float64
	scale     float64
	offset    float64
}

// Grid derives the grid of the series at path from its coordinate vectors.
func (r *Reader) Grid(ctx context.Context, path string, cellSize float64) (domain.GridDefinition, error) {
	ds, err := r.dataset(ctx, path)
	if err != nil {
		return domain.GridDefinition{}, err
	}
	g, err := domain.GridFromCenters(ds.lats, ds.lons, cellSize)
	if err != nil {
		return domain.GridDefinition{}, fmt.Errorf("series %s: %w", path, err)
	}
	r.mu.Lock()
	ds.grid = g
	r.mu.Unlock()
	return g, nil
}

// Times returns the decoded time coordinate of the series at path.
func (r *Reader) Times(ctx context.Context, path string) ([]time.Time, error) {
	ds, err := r.dataset(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(ds.times))
	copy(out, ds.times)
	return out, nil
}

// ReadField reads exactly one time slice.
func (r *Reader) ReadField(ctx context.Context, req store.FieldRequest) (domain.Field, error) {
	if err := ctx.Err(); err != nil {
		return domain.Field{}, err
	}
	ds, err := r.dataset(ctx, req.Path)
	if err != nil {
		return domain.Field{}, err
	}

	idx, ok := ds.index(req.Date, r.opts.DateMatch)
	if !ok {
		return domain.Field{}, fmt.Errorf("%s at %s: %w", req.Path, req.Date.Format(time.DateOnly), domain.ErrNoData)
	}

	v, err := r.variable(ds, req.Variable)
	if err != nil {
		return domain.Field{}, err
	}

	raw, err := v.getter.GetSlice(int64(idx), int64(idx)+1)
	if err != nil {
		return domain.Field{}, &domain.IOError{Op: "read " + req.Variable, Path: req.Path, Err: errors.Wrapf(err, "time index %d", idx)}
	}
	values, rows, cols, err := flattenSlice(raw)
	if err != nil {
		return domain.Field{}, &domain.IOError{Op: "read " + req.Variable, Path: req.Path, Err: err}
	}
	if v.transpose {
		values = transpose(values, rows, cols)
		rows, cols = cols, rows
	}
	if rows != len(ds.lats) || cols != len(ds.lons) {
		return domain.Field{}, &domain.DimensionMismatchError{
			What: req.Variable, WantRows: len(ds.lats), WantCols: len(ds.lons), GotRows: rows, GotCols: cols,
		}
	}
	if ds.southUp {
		flipRows(values, rows, cols)
	}

	f := domain.Field{Rows: rows, Cols: cols, Values: values, NoData: domain.DefaultMissingValue}
	for i, x := range values {
		if math.IsNaN(x) || isFill(x, v.fill) {
			values[i] = f.NoData
			continue
		}
		values[i] = x*v.scale + v.offset
	}

	native := ds.grid
	if native.Rows == 0 {
		if native, err = domain.GridFromCenters(ds.lats, ds.lons, 0); err != nil {
			return domain.Field{}, err
		}
	}
	if req.Grid.Rows == 0 || native.Equal(req.Grid, native.CellSize*1e-6) {
		return f, nil
	}
	return interp.Reproject(f, native, req.Grid, r.opts.Method)
}

// Close releases every open handle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, ds := range r.open {
		ds.group.Close()
		delete(r.open, path)
	}
	return nil
}

func (r *Reader) dataset(ctx context.Context, path string) (*dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ds, ok := r.open[path]; ok {
		return ds, nil
	}

	var group api.Group
	op := func() error {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return backoff.Permanent(err)
		}
		g, err := netcdf.Open(path)
		if err != nil {
			return err
		}
		group = g
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.opts.Log.WithFields(logrus.Fields{"path": path, "retry_in": wait}).WithError(err).Warn("open failed, retrying")
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.opts.OpenRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, &domain.IOError{Op: "open series", Path: path, Err: err}
	}

	ds, err := loadDataset(path, group)
	if err != nil {
		group.Close()
		return nil, err
	}
	r.open[path] = ds
	r.opts.Log.WithFields(logrus.Fields{
		"path":  path,
		"steps": len(ds.times),
		"rows":  len(ds.lats),
		"cols":  len(ds.lons),
	}).Debug("opened input series")
	return ds, nil
}

func loadDataset(path string, g api.Group) (*dataset, error) {
	ds := &dataset{path: path, group: g, vars: map[string]*variable{}}

	var err error
	if ds.lats, err = coordinate(g, "lat", "latitude", "y"); err != nil {
		return nil, &domain.IOError{Op: "read latitude", Path: path, Err: err}
	}
	if ds.lons, err = coordinate(g, "lon", "longitude", "x"); err != nil {
		return nil, &domain.IOError{Op: "read longitude", Path: path, Err: err}
	}
	ds.southUp = len(ds.lats) > 1 && ds.lats[0] < ds.lats[len(ds.lats)-1]

	tv, err := g.GetVarGetter("time")
	if err != nil {
		return nil, &domain.IOError{Op: "read time", Path: path, Err: err}
	}
	units, _ := attrString(tv.Attributes(), "units")
	if cal, ok := attrString(tv.Attributes(), "calendar"); ok {
		switch strings.ToLower(cal) {
		case "standard", "gregorian", "proleptic_gregorian":
		default:
			return nil, domain.Configf("input.calendar", "%s uses unsupported calendar %q", path, cal)
		}
	}
	raw, err := tv.Values()
	if err != nil {
		return nil, &domain.IOError{Op: "read time", Path: path, Err: err}
	}
	vals, err := toFloat64s(raw)
	if err != nil {
		return nil, &domain.IOError{Op: "read time", Path: path, Err: err}
	}
	ds.times = make([]time.Time, len(vals))
	for i, v := range vals {
		if ds.times[i], err = domain.DecodeTime(v, units); err != nil {
			return nil, &domain.IOError{Op: "decode time", Path: path, Err: err}
		}
	}
	if !sort.SliceIsSorted(ds.times, func(i, j int) bool { return ds.times[i].Before(ds.times[j]) }) {
		return nil, &domain.IOError{Op: "read time", Path: path, Err: fmt.Errorf("time coordinate is not increasing")}
	}
	return ds, nil
}

func (r *Reader) variable(ds *dataset, name string) (*variable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := ds.vars[name]; ok {
		return v, nil
	}
	vg, err := ds.group.GetVarGetter(name)
	if err != nil {
		return nil, &domain.IOError{Op: "find variable " + name, Path: ds.path, Err: err}
	}
	dims := vg.Dimensions()
	if len(dims) != 3 {
		return nil, &domain.IOError{Op: "find variable " + name, Path: ds.path, Err: fmt.Errorf("expected (time, lat, lon), got %v", dims)}
	}
	v := &variable{getter: vg, scale: 1}
	switch strings.ToLower(dims[1]) {
	case "lon", "longitude", "x":
		v.transpose = true
	}
	attrs := vg.Attributes()
	for _, k := range []string{"_FillValue", "missing_value"} {
		if f, ok := attrFloat(attrs, k); ok {
			v.fill = append(v.fill, f)
		}
	}
	if f, ok := attrFloat(attrs, "scale_factor"); ok && f != 0 {
		v.scale = f
	}
	if f, ok := attrFloat(attrs, "add_offset"); ok {
		v.offset = f
	}
	ds.vars[name] = v
	return v, nil
}

// index locates the time slice for date.
func (ds *dataset) index(date time.Time, match DateMatch) (int, bool) {
	// First time value after the end of the requested day.
	next := time.Date(date.Year(), date.Month(), date.Day()+1, 0, 0, 0, 0, time.UTC)
	i := sort.Search(len(ds.times), func(i int) bool { return !ds.times[i].Before(next) }) - 1
	if i < 0 {
		return 0, false
	}
	t := ds.times[i]
	switch match {
	case MatchBefore:
		return i, t.Year() == date.Year() && t.Month() == date.Month()
	default:
		return i, domain.SameDay(t, date)
	}
}
