package timeseries

import (
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/cdf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ncresample/internal/domain"
)

// Writer creates output datasets and appends time steps to them through a
// Manager. Every mutating call leaves the file synced to disk.
type Writer struct {
	m   *Manager
	log logrus.FieldLogger
}

// NewWriter creates a writer that keeps its handles in m.
func NewWriter(m *Manager, log logrus.FieldLogger) *Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{m: m, log: log}
}

// Manager returns the handle manager of w.
func (w *Writer) Manager() *Manager { return w.m }

// Create writes a new dataset with an unlimited time dimension, lat/lon
// coordinates of spec.Grid and one float data variable. An existing file is
// replaced only when spec.Overwrite is set.
func (w *Writer) Create(spec domain.DatasetSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	path := key(spec.Path)
	if _, err := os.Stat(path); err == nil && !spec.Overwrite {
		return &domain.IOError{Op: "create dataset", Path: spec.Path, Err: fs.ErrExist}
	}
	// A stale handle would point at the replaced file.
	if err := w.m.Close(path); err != nil {
		return err
	}

	g := spec.Grid
	hdr := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{0, g.Rows, g.Cols})
	addTime(hdr)
	hdr.AddVariable("lat", []string{"lat"}, []float64{0})
	hdr.AddAttribute("lat", "standard_name", "latitude")
	hdr.AddAttribute("lat", "long_name", "latitude")
	hdr.AddAttribute("lat", "units", "degrees_north")
	hdr.AddAttribute("lat", "axis", "Y")
	hdr.AddVariable("lon", []string{"lon"}, []float64{0})
	hdr.AddAttribute("lon", "standard_name", "longitude")
	hdr.AddAttribute("lon", "long_name", "longitude")
	hdr.AddAttribute("lon", "units", "degrees_east")
	hdr.AddAttribute("lon", "axis", "X")
	addDataVariable(hdr, spec.Variable, spec.FillValue)
	for _, a := range domain.MergeAttributes(domain.DefaultAttributes(), spec.Attributes) {
		if a.Value == "" {
			continue
		}
		hdr.AddAttribute("", a.Name, a.Value)
	}
	hdr.Define()
	if errs := hdr.Check(); len(errs) > 0 {
		return &domain.IOError{Op: "define dataset", Path: spec.Path, Err: errs[0]}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &domain.IOError{Op: "create dataset", Path: spec.Path, Err: err}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &domain.IOError{Op: "create dataset", Path: spec.Path, Err: err}
	}
	cf, err := cdf.Create(f, hdr)
	if err != nil {
		_ = f.Close()
		return &domain.IOError{Op: "create dataset", Path: spec.Path, Err: err}
	}
	h := &handle{path: path, file: f, cf: cf, rows: g.Rows, cols: g.Cols}
	if err := writeAll(cf.Writer("lat", nil, nil), g.Latitudes(), g.Rows); err != nil {
		_ = f.Close()
		return &domain.IOError{Op: "write lat", Path: spec.Path, Err: err}
	}
	if err := writeAll(cf.Writer("lon", nil, nil), g.Longitudes(), g.Cols); err != nil {
		_ = f.Close()
		return &domain.IOError{Op: "write lon", Path: spec.Path, Err: err}
	}
	if err := h.sync(); err != nil {
		_ = f.Close()
		return &domain.IOError{Op: "create dataset", Path: spec.Path, Err: err}
	}
	if err := w.m.adopt(h); err != nil {
		_ = f.Close()
		return err
	}
	w.log.WithFields(logrus.Fields{
		"path":     path,
		"variable": spec.Variable.Name,
		"rows":     g.Rows,
		"cols":     g.Cols,
	}).Info("created output dataset")
	return nil
}

func addTime(hdr *cdf.Header) {
	hdr.AddVariable("time", []string{"time"}, []float64{0})
	hdr.AddAttribute("time", "standard_name", "time")
	hdr.AddAttribute("time", "long_name", "time")
	hdr.AddAttribute("time", "units", domain.TimeUnits)
	hdr.AddAttribute("time", "calendar", domain.Calendar)
	hdr.AddAttribute("time", "axis", "T")
}

func addDataVariable(hdr *cdf.Header, v domain.VariableSpec, fill float32) {
	hdr.AddVariable(v.Name, []string{"time", "lat", "lon"}, []float32{0})
	hdr.AddAttribute(v.Name, "_FillValue", []float32{fill})
	hdr.AddAttribute(v.Name, "missing_value", []float32{fill})
	if v.Units != "" {
		hdr.AddAttribute(v.Name, "units", v.Units)
	}
	long := v.LongName
	if long == "" {
		long = v.Name
	}
	hdr.AddAttribute(v.Name, "long_name", long)
	hdr.AddAttribute(v.Name, "standard_name", v.Name)
}

// Append writes field as a new record stamped with date and returns the
// record index.
func (w *Writer) Append(path, variable string, field domain.Field, date time.Time) (int, error) {
	return w.AppendFields(path, map[string]domain.Field{variable: field}, date)
}

// AppendFields writes several variables into one new record.
func (w *Writer) AppendFields(path string, fields map[string]domain.Field, date time.Time) (int, error) {
	h, err := w.m.acquire(path)
	if err != nil {
		return 0, err
	}
	idx, err := h.numRecs()
	if err != nil {
		return 0, &domain.IOError{Op: "append", Path: path, Err: err}
	}
	if err := w.writeRecord(h, idx, fields, date); err != nil {
		return 0, err
	}
	return idx, nil
}

// AppendTime adds a record that carries date and fill values only.
func (w *Writer) AppendTime(path string, date time.Time) (int, error) {
	return w.AppendFields(path, nil, date)
}

// AppendAt writes field at record index, overwriting that record when it
// exists. Records between the current end and index are filled.
func (w *Writer) AppendAt(path, variable string, field domain.Field, date time.Time, index int) error {
	if index < 0 {
		return domain.Configf("index", "negative record index %d", index)
	}
	h, err := w.m.acquire(path)
	if err != nil {
		return err
	}
	return w.writeRecord(h, index, map[string]domain.Field{variable: field}, date)
}

func (w *Writer) writeRecord(h *handle, idx int, fields map[string]domain.Field, date time.Time) error {
	hdr := h.cf.Header
	for name, f := range fields {
		if !hdr.IsRecordVariable(name) || len(hdr.Dimensions(name)) != 3 {
			return &domain.IOError{Op: "write " + name, Path: h.path, Err: fmt.Errorf("no (time, lat, lon) variable %q", name)}
		}
		if f.Rows != h.rows || f.Cols != h.cols {
			return &domain.DimensionMismatchError{What: name, WantRows: h.rows, WantCols: h.cols, GotRows: f.Rows, GotCols: f.Cols}
		}
	}

	n, err := h.numRecs()
	if err != nil {
		return &domain.IOError{Op: "write record", Path: h.path, Err: err}
	}
	for r := n; r <= idx; r++ {
		if err := h.cf.FillRecord(r); err != nil {
			return &domain.IOError{Op: "fill record", Path: h.path, Err: errors.Wrapf(err, "record %d", r)}
		}
	}

	if err := writeAll(h.cf.Writer("time", []int{idx}, nil), []float64{domain.EncodeTime(date)}, 1); err != nil {
		return &domain.IOError{Op: "write time", Path: h.path, Err: err}
	}
	for name, f := range fields {
		fill, _ := hdr.FillValue(name).(float32)
		if err := writeAll(h.cf.Writer(name, []int{idx, 0, 0}, nil), f.Float32s(fill), f.Rows*f.Cols); err != nil {
			return &domain.IOError{Op: "write " + name, Path: h.path, Err: errors.Wrapf(err, "record %d", idx)}
		}
	}
	if err := h.sync(); err != nil {
		return &domain.IOError{Op: "sync", Path: h.path, Err: err}
	}
	w.log.WithFields(logrus.Fields{
		"path":  h.path,
		"index": idx,
		"date":  date.Format(time.DateOnly),
	}).Debug("wrote record")
	return nil
}

// Close flushes and releases the handle for path.
func (w *Writer) Close(path string) error { return w.m.Close(path) }

// CloseAll flushes and releases every handle of the manager.
func (w *Writer) CloseAll() error { return w.m.CloseAll() }

// writeAll writes n values. The strider reports io.EOF once it reaches the end
// of a fixed-size variable, which is success when every value was written.
func writeAll(wr cdf.Writer, values interface{}, n int) error {
	if wr == nil {
		return errors.New("unknown variable")
	}
	got, err := wr.Write(values)
	if err == io.EOF && got == n {
		return nil
	}
	if err != nil {
		return err
	}
	if got != n {
		return fmt.Errorf("short write: %d of %d values", got, n)
	}
	return nil
}

// readAll reads n values into values.
func readAll(rd cdf.Reader, values interface{}, n int) error {
	if rd == nil {
		return errors.New("unknown variable")
	}
	got, err := rd.Read(values)
	if err == io.EOF && got == n {
		return nil
	}
	if err != nil {
		return err
	}
	if got != n {
		return fmt.Errorf("short read: %d of %d values", got, n)
	}
	return nil
}

// toFloat64 converts a cdf fill value, NaN when absent.
func toFloat64(v interface{}) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	case int32:
		return float64(x)
	case int16:
		return float64(x)
	case int8:
		return float64(x)
	case uint8:
		return float64(x)
	}
	return math.NaN()
}
