package timeseries

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/pkg/errors"

	"go.ngs.io/ncresample/internal/domain"
)

// Dataset is a read-only view of a file written by Writer.
type Dataset struct {
	path  string
	file  *os.File
	cf    *cdf.File
	grid  domain.GridDefinition
	times []time.Time
}

// Open reads the header, coordinates and time axis of the dataset at path.
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.IOError{Op: "open dataset", Path: path, Err: err}
	}
	d, err := load(path, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return d, nil
}

func load(path string, f *os.File) (*Dataset, error) {
	cf, err := cdf.Open(f)
	if err != nil {
		return nil, &domain.IOError{Op: "open dataset", Path: path, Err: errors.Wrap(err, "read header")}
	}
	d := &Dataset{path: path, file: f, cf: cf}

	lats, err := d.coordinate("lat")
	if err != nil {
		return nil, err
	}
	lons, err := d.coordinate("lon")
	if err != nil {
		return nil, err
	}
	cellSize := 0.0
	switch {
	case len(lons) > 1:
		cellSize = math.Abs(lons[1] - lons[0])
	case len(lats) > 1:
		cellSize = math.Abs(lats[1] - lats[0])
	}
	if d.grid, err = domain.GridFromCenters(lats, lons, cellSize); err != nil {
		return nil, &domain.IOError{Op: "read grid", Path: path, Err: err}
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, &domain.IOError{Op: "open dataset", Path: path, Err: err}
	}
	n := int(cf.Header.NumRecs(fi.Size()))
	units, _ := cf.Header.GetAttribute("time", "units").(string)
	if units == "" {
		units = domain.TimeUnits
	}
	if n > 0 {
		raw := make([]float64, n)
		if err := readAll(cf.Reader("time", []int{0}, []int{n - 1}), raw, n); err != nil {
			return nil, &domain.IOError{Op: "read time", Path: path, Err: err}
		}
		timeFill := toFloat64(cf.Header.FillValue("time"))
		d.times = make([]time.Time, n)
		for i, v := range raw {
			// Gap records written by AppendAt keep a zero time.
			if v == timeFill {
				continue
			}
			if d.times[i], err = domain.DecodeTime(v, units); err != nil {
				return nil, &domain.IOError{Op: "decode time", Path: path, Err: err}
			}
		}
	}
	return d, nil
}

func (d *Dataset) coordinate(name string) ([]float64, error) {
	lengths := d.cf.Header.Lengths(name)
	if len(lengths) != 1 || d.cf.Header.IsRecordVariable(name) {
		return nil, &domain.IOError{Op: "read " + name, Path: d.path, Err: fmt.Errorf("no 1D %s coordinate", name)}
	}
	out := make([]float64, lengths[0])
	if err := readAll(d.cf.Reader(name, nil, nil), out, len(out)); err != nil {
		return nil, &domain.IOError{Op: "read " + name, Path: d.path, Err: err}
	}
	return out, nil
}

// Path returns the file path of d.
func (d *Dataset) Path() string { return d.path }

// Grid returns the grid described by the lat/lon coordinates.
func (d *Dataset) Grid() domain.GridDefinition { return d.grid }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.times) }

// Times returns the decoded time axis.
func (d *Dataset) Times() []time.Time {
	out := make([]time.Time, len(d.times))
	copy(out, d.times)
	return out
}

// Variables returns the names of the (time, lat, lon) data variables.
func (d *Dataset) Variables() []string {
	var out []string
	for _, v := range d.cf.Header.Variables() {
		if d.cf.Header.IsRecordVariable(v) && len(d.cf.Header.Dimensions(v)) == 3 {
			out = append(out, v)
		}
	}
	return out
}

// Attributes returns the global text attributes in file order.
func (d *Dataset) Attributes() []domain.Attribute {
	var out []domain.Attribute
	for _, name := range d.cf.Header.Attributes("") {
		if s, ok := d.cf.Header.GetAttribute("", name).(string); ok {
			out = append(out, domain.Attribute{Name: name, Value: s})
		}
	}
	return out
}

// VariableAttribute returns a text attribute of variable v.
func (d *Dataset) VariableAttribute(v, name string) (string, bool) {
	s, ok := d.cf.Header.GetAttribute(v, name).(string)
	return s, ok
}

// FillValue returns the fill value of variable v.
func (d *Dataset) FillValue(v string) float64 {
	return toFloat64(d.cf.Header.FillValue(v))
}

// ReadStep reads record index of variable v. Fill values become the no-data
// value of the returned field.
func (d *Dataset) ReadStep(v string, index int) (domain.Field, error) {
	if index < 0 || index >= len(d.times) {
		return domain.Field{}, fmt.Errorf("%s record %d of %d: %w", d.path, index, len(d.times), domain.ErrNoData)
	}
	if !d.cf.Header.IsRecordVariable(v) || len(d.cf.Header.Dimensions(v)) != 3 {
		return domain.Field{}, &domain.IOError{Op: "read " + v, Path: d.path, Err: fmt.Errorf("no (time, lat, lon) variable %q", v)}
	}
	rows, cols := d.grid.Rows, d.grid.Cols
	raw, ok := d.cf.Header.ZeroValue(v, rows*cols).([]float32)
	if !ok {
		return domain.Field{}, &domain.IOError{Op: "read " + v, Path: d.path, Err: fmt.Errorf("%q is not a float variable", v)}
	}
	rd := d.cf.Reader(v, []int{index, 0, 0}, []int{index, rows - 1, cols - 1})
	if err := readAll(rd, raw, len(raw)); err != nil {
		return domain.Field{}, &domain.IOError{Op: "read " + v, Path: d.path, Err: errors.Wrapf(err, "record %d", index)}
	}

	fill := d.FillValue(v)
	f := domain.NewField(rows, cols, domain.DefaultMissingValue)
	for i, x := range raw {
		if float64(x) == fill || math.IsNaN(float64(x)) {
			continue
		}
		f.Values[i] = float64(x)
	}
	return f, nil
}

// Close releases the file.
func (d *Dataset) Close() error { return d.file.Close() }
