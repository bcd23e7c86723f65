// Package raster loads static 2D rasters (cell areas, masks) from netCDF files.
package raster

import (
	"fmt"
	"math"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/ncresample/internal/adapter/interp"
	"go.ngs.io/ncresample/internal/domain"
)

// Store reads rasters with the netCDF C library.
type Store struct {
	// Variable is tried first when looking up the data variable.
	Variable string
}

// NewStore creates a raster store. variable may be empty.
func NewStore(variable string) *Store {
	return &Store{Variable: variable}
}

// ReadRaster reads the 2D raster at path and returns it on reference, north
// up. Rasters at the reference resolution are cropped to the reference window;
// others are resampled with nearest neighbour. The raster must cover the whole
// reference extent.
//
//nolint:gocyclo // NetCDF layout detection has many cases.
func (s *Store) ReadRaster(path string, reference domain.GridDefinition) (domain.Field, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return domain.Field{}, &domain.IOError{Op: "open raster", Path: path, Err: err}
	}
	defer func() { _ = nc.Close() }()

	latNames := []string{"lat", "latitude", "y"}
	lonNames := []string{"lon", "longitude", "x"}
	dataNames := []string{"cell_area", "cellarea", "area", "Band1", "data", "z"}
	if s.Variable != "" {
		dataNames = append([]string{s.Variable}, dataNames...)
	}

	// Read latitude.
	lats, err := readCoordinate(nc, latNames)
	if err != nil {
		return domain.Field{}, &domain.IOError{Op: "read latitude", Path: path, Err: err}
	}
	// Read longitude.
	lons, err := readCoordinate(nc, lonNames)
	if err != nil {
		return domain.Field{}, &domain.IOError{Op: "read longitude", Path: path, Err: err}
	}

	native, err := domain.GridFromCenters(lats, lons, 0)
	if err != nil {
		return domain.Field{}, fmt.Errorf("raster %s: %w", path, err)
	}
	tol := math.Min(native.CellSize, reference.CellSize) * 1e-3
	if !native.Covers(reference, tol) {
		what := "does not cover"
		if !native.Bounds().Overlaps(reference.Bounds()) {
			what = "does not overlap"
		}
		return domain.Field{}, domain.Configf("raster", "%s %s the reference extent %+v", path, what, *reference.Bounds())
	}

	var dataVar netcdf.Var
	var dataFound bool
	for _, name := range dataNames {
		if v, err := nc.Var(name); err == nil {
			dataVar = v
			dataFound = true
			break
		}
	}
	if !dataFound {
		return domain.Field{}, &domain.IOError{Op: "read raster", Path: path, Err: fmt.Errorf("data variable not found (tried: %v)", dataNames)}
	}

	dims, err := dataVar.Dims()
	if err != nil {
		return domain.Field{}, &domain.IOError{Op: "read raster", Path: path, Err: err}
	}
	if len(dims) != 2 {
		return domain.Field{}, &domain.IOError{Op: "read raster", Path: path, Err: fmt.Errorf("expected 2D data, got %dD", len(dims))}
	}
	dim0Len, err := dims[0].Len()
	if err != nil {
		return domain.Field{}, &domain.IOError{Op: "read raster", Path: path, Err: err}
	}
	dim1Len, err := dims[1].Len()
	if err != nil {
		return domain.Field{}, &domain.IOError{Op: "read raster", Path: path, Err: err}
	}

	nLat, nLon := len(lats), len(lons)
	lonLat := false
	switch {
	case dim0Len == uint64(nLat) && dim1Len == uint64(nLon):
	case dim0Len == uint64(nLon) && dim1Len == uint64(nLat):
		lonLat = true
	default:
		return domain.Field{}, &domain.DimensionMismatchError{
			What: "raster " + path, WantRows: nLat, WantCols: nLon, GotRows: int(dim0Len), GotCols: int(dim1Len), //nolint:gosec // G115: raster sizes fit in int.
		}
	}
	southUp := nLat > 1 && lats[0] < lats[nLat-1]

	fill := fillValues(dataVar)
	scale := scaleFactor(dataVar)

	// Same resolution: read only the reference window.
	if math.Abs(native.CellSize-reference.CellSize) <= tol {
		rowOff := int(math.Round((native.OriginY - reference.OriginY) / native.CellSize))
		colOff := int(math.Round((reference.OriginX - native.OriginX) / native.CellSize))
		fileRow := rowOff
		if southUp {
			fileRow = nLat - rowOff - reference.Rows
		}
		var values []float64
		if lonLat {
			values, err = readWindow(dataVar, colOff, fileRow, reference.Cols, reference.Rows)
			if err == nil {
				values = transpose(values, reference.Cols, reference.Rows)
			}
		} else {
			values, err = readWindow(dataVar, fileRow, colOff, reference.Rows, reference.Cols)
		}
		if err != nil {
			return domain.Field{}, &domain.IOError{Op: "read raster", Path: path, Err: err}
		}
		if southUp {
			flipRows(values, reference.Rows, reference.Cols)
		}
		return toField(values, reference.Rows, reference.Cols, fill, scale), nil
	}

	// Different resolution: read everything and resample.
	var values []float64
	if lonLat {
		values, err = readWindow(dataVar, 0, 0, nLon, nLat)
		if err == nil {
			values = transpose(values, nLon, nLat)
		}
	} else {
		values, err = readWindow(dataVar, 0, 0, nLat, nLon)
	}
	if err != nil {
		return domain.Field{}, &domain.IOError{Op: "read raster", Path: path, Err: err}
	}
	if southUp {
		flipRows(values, nLat, nLon)
	}
	return interp.Reproject(toField(values, nLat, nLon, fill, scale), native, reference, interp.Nearest)
}

// readCoordinate reads the first 1D coordinate variable found among names.
func readCoordinate(nc netcdf.Dataset, names []string) ([]float64, error) {
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		dims, err := v.Dims()
		if err != nil || len(dims) != 1 {
			continue
		}
		n, err := dims[0].Len()
		if err != nil {
			return nil, err
		}
		return readWindow1D(v, int(n)) //nolint:gosec // G115: coordinate length fits in int.
	}
	return nil, fmt.Errorf("coordinate variable not found (tried: %v)", names)
}

func readWindow1D(v netcdf.Var, n int) ([]float64, error) {
	varType, err := v.Type()
	if err != nil {
		return nil, err
	}
	switch varType {
	case netcdf.DOUBLE:
		data := make([]float64, n)
		return data, v.ReadFloat64s(data)
	case netcdf.FLOAT:
		data := make([]float32, n)
		if err := v.ReadFloat32s(data); err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i, x := range data {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported coordinate type: %v", varType)
	}
}

// readWindow reads an nRows×nCols hyperslab starting at (startRow, startCol).
// Supports DOUBLE, FLOAT, INT and SHORT variables.
func readWindow(v netcdf.Var, startRow, startCol, nRows, nCols int) ([]float64, error) {
	varType, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get variable type: %w", err)
	}

	//nolint:gosec // G115: Safe int to uint64 conversion for NetCDF indices.
	start := []uint64{uint64(startRow), uint64(startCol)}
	//nolint:gosec // G115: Safe int to uint64 conversion for NetCDF dimensions.
	count := []uint64{uint64(nRows), uint64(nCols)}
	total := nRows * nCols
	out := make([]float64, total)

	switch varType {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64Slice(out, start, count); err != nil {
			return nil, fmt.Errorf("failed to read float64 window: %w", err)
		}
	case netcdf.FLOAT:
		data := make([]float32, total)
		if err := v.ReadFloat32Slice(data, start, count); err != nil {
			return nil, fmt.Errorf("failed to read float32 window: %w", err)
		}
		for i, x := range data {
			out[i] = float64(x)
		}
	case netcdf.INT:
		data := make([]int32, total)
		if err := v.ReadInt32Slice(data, start, count); err != nil {
			return nil, fmt.Errorf("failed to read int32 window: %w", err)
		}
		for i, x := range data {
			out[i] = float64(x)
		}
	case netcdf.SHORT:
		data := make([]int16, total)
		if err := v.ReadInt16Slice(data, start, count); err != nil {
			return nil, fmt.Errorf("failed to read int16 window: %w", err)
		}
		for i, x := range data {
			out[i] = float64(x)
		}
	default:
		return nil, fmt.Errorf("unsupported data type: %v (expected DOUBLE, FLOAT, INT, or SHORT)", varType)
	}
	return out, nil
}

// attrFloat reads the first value of a numeric attribute.
func attrFloat(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return 0, false
	}
	f64 := make([]float64, n)
	if err := a.ReadFloat64s(f64); err == nil {
		return f64[0], true
	}
	f32 := make([]float32, n)
	if err := a.ReadFloat32s(f32); err == nil {
		return float64(f32[0]), true
	}
	i32 := make([]int32, n)
	if err := a.ReadInt32s(i32); err == nil {
		return float64(i32[0]), true
	}
	return 0, false
}

func fillValues(v netcdf.Var) []float64 {
	var out []float64
	for _, name := range []string{"_FillValue", "missing_value"} {
		if f, ok := attrFloat(v, name); ok {
			out = append(out, f)
		}
	}
	return out
}

func scaleFactor(v netcdf.Var) float64 {
	if f, ok := attrFloat(v, "scale_factor"); ok && f != 0 {
		return f
	}
	return 1
}

func toField(values []float64, rows, cols int, fill []float64, scale float64) domain.Field {
	f := domain.Field{Rows: rows, Cols: cols, Values: values, NoData: domain.DefaultMissingValue}
	for i, x := range values {
		if math.IsNaN(x) || isFill(x, fill) {
			values[i] = f.NoData
			continue
		}
		values[i] = x * scale
	}
	return f
}

func isFill(x float64, fill []float64) bool {
	for _, fv := range fill {
		// Fill values are often stored in single precision.
		if x == fv || float32(x) == float32(fv) {
			return true
		}
	}
	return false
}

func flipRows(values []float64, rows, cols int) {
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := values[top*cols : (top+1)*cols]
		b := values[bottom*cols : (bottom+1)*cols]
		for c := range a {
			a[c], b[c] = b[c], a[c]
		}
	}
}

// transpose turns an nRows×nCols row-major array into nCols×nRows.
func transpose(values []float64, nRows, nCols int) []float64 {
	out := make([]float64, len(values))
	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			out[j*nRows+i] = values[i*nCols+j]
		}
	}
	return out
}
