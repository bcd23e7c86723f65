package domain

import (
	"math"
	"strconv"
)

// DefaultMissingValue is the no-data sentinel and netCDF fill value used when
// none is configured.
const DefaultMissingValue = 1e20

// Field is a 2D raster of values for one time step, stored row-major with
// row 0 at the north edge. Cells equal to NoData (or NaN) carry no data.
type Field struct {
	Rows   int
	Cols   int
	Values []float64
	NoData float64
}

// NewField returns a rows×cols field filled with the no-data sentinel.
func NewField(rows, cols int, noData float64) Field {
	v := make([]float64, rows*cols)
	for i := range v {
		v[i] = noData
	}
	return Field{Rows: rows, Cols: cols, Values: v, NoData: noData}
}

// FieldFromRows copies a nested slice into a field. Rows must be of equal length.
func FieldFromRows(rows [][]float64, noData float64) (Field, error) {
	if len(rows) == 0 {
		return Field{NoData: noData}, nil
	}
	cols := len(rows[0])
	f := Field{Rows: len(rows), Cols: cols, Values: make([]float64, 0, len(rows)*cols), NoData: noData}
	for i, r := range rows {
		if len(r) != cols {
			return Field{}, &DimensionMismatchError{What: "row " + strconv.Itoa(i), WantRows: 1, WantCols: cols, GotRows: 1, GotCols: len(r)}
		}
		f.Values = append(f.Values, r...)
	}
	return f, nil
}

// At returns the value of cell (r, c).
func (f Field) At(r, c int) float64 { return f.Values[r*f.Cols+c] }

// Set assigns the value of cell (r, c).
func (f Field) Set(r, c int, v float64) { f.Values[r*f.Cols+c] = v }

// IsNoData reports whether v is the no-data sentinel of f. NaN is always no-data.
func (f Field) IsNoData(v float64) bool {
	return math.IsNaN(v) || v == f.NoData
}

// ValidCount returns the number of cells carrying data.
func (f Field) ValidCount() int {
	n := 0
	for _, v := range f.Values {
		if !f.IsNoData(v) {
			n++
		}
	}
	return n
}

// AllMissing reports whether no cell carries data.
func (f Field) AllMissing() bool { return f.ValidCount() == 0 }

// SameShape reports whether f matches the grid dimensions.
func (f Field) SameShape(g GridDefinition) bool {
	return f.Rows == g.Rows && f.Cols == g.Cols && len(f.Values) == g.Cells()
}

// CheckShape returns a DimensionMismatchError if f does not match g.
func (f Field) CheckShape(what string, g GridDefinition) error {
	if f.SameShape(g) {
		return nil
	}
	return &DimensionMismatchError{What: what, WantRows: g.Rows, WantCols: g.Cols, GotRows: f.Rows, GotCols: f.Cols}
}

// Float32s converts the field to single precision, replacing no-data cells by fill.
func (f Field) Float32s(fill float32) []float32 {
	out := make([]float32, len(f.Values))
	for i, v := range f.Values {
		if f.IsNoData(v) {
			out[i] = fill
			continue
		}
		out[i] = float32(v)
	}
	return out
}

// Clone returns a deep copy of f.
func (f Field) Clone() Field {
	v := make([]float64, len(f.Values))
	copy(v, f.Values)
	return Field{Rows: f.Rows, Cols: f.Cols, Values: v, NoData: f.NoData}
}
