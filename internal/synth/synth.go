// Package synth writes synthetic input series and static rasters for tests
// and demonstrations.
package synth

import (
	"fmt"
	"math"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/ncresample/internal/domain"
)

// ValueFunc returns the value of cell (r, c) at step t, rows counted from the north.
type ValueFunc func(t, r, c int) float64

// SeriesSpec describes a synthetic time series file.
type SeriesSpec struct {
	Variable  string
	Units     string
	Grid      domain.GridDefinition
	Times     []time.Time
	TimeUnits string // Defaults to domain.TimeUnits.
	FillValue float32
	// SouthUp stores latitudes in ascending order.
	SouthUp bool
	// NetCDF4 selects the HDF5-based format instead of classic.
	NetCDF4 bool
	Values  ValueFunc
}

// Wave is a smooth field that varies in space and time.
func Wave(t, r, c int) float64 {
	return 10 + 5*math.Sin(float64(r)/3) + 3*math.Cos(float64(c)/4) + float64(t)
}

// WriteSeries writes a (time, lat, lon) float variable. Values that are NaN
// are written as the fill value.
func WriteSeries(path string, spec SeriesSpec) error {
	if spec.Values == nil {
		spec.Values = Wave
	}
	if spec.TimeUnits == "" {
		spec.TimeUnits = domain.TimeUnits
	}
	mode := netcdf.CLOBBER
	if spec.NetCDF4 {
		mode |= netcdf.NETCDF4
	}

	ds, err := netcdf.CreateFile(path, mode)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = ds.Close() }()

	g := spec.Grid
	timeDim, err := ds.AddDim("time", uint64(len(spec.Times)))
	if err != nil {
		return err
	}
	latDim, err := ds.AddDim("lat", uint64(g.Rows)) //nolint:gosec // G115: grid sizes are positive.
	if err != nil {
		return err
	}
	lonDim, err := ds.AddDim("lon", uint64(g.Cols)) //nolint:gosec // G115: grid sizes are positive.
	if err != nil {
		return err
	}

	timeVar, err := ds.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeDim})
	if err != nil {
		return err
	}
	if err := timeVar.Attr("units").WriteBytes([]byte(spec.TimeUnits)); err != nil {
		return err
	}
	latVar, err := ds.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	if err != nil {
		return err
	}
	lonVar, err := ds.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	if err != nil {
		return err
	}
	dataVar, err := ds.AddVar(spec.Variable, netcdf.FLOAT, []netcdf.Dim{timeDim, latDim, lonDim})
	if err != nil {
		return err
	}
	if err := dataVar.Attr("_FillValue").WriteFloat32s([]float32{spec.FillValue}); err != nil {
		return err
	}
	if spec.Units != "" {
		if err := dataVar.Attr("units").WriteBytes([]byte(spec.Units)); err != nil {
			return err
		}
	}
	if err := ds.EndDef(); err != nil {
		return err
	}

	times := make([]float64, len(spec.Times))
	for i, t := range spec.Times {
		times[i], err = encodeTime(t, spec.TimeUnits)
		if err != nil {
			return err
		}
	}
	if err := timeVar.WriteFloat64s(times); err != nil {
		return fmt.Errorf("write time: %w", err)
	}

	lats := g.Latitudes()
	if spec.SouthUp {
		reverse(lats)
	}
	if err := latVar.WriteFloat64s(lats); err != nil {
		return fmt.Errorf("write lat: %w", err)
	}
	if err := lonVar.WriteFloat64s(g.Longitudes()); err != nil {
		return fmt.Errorf("write lon: %w", err)
	}

	data := make([]float32, 0, len(spec.Times)*g.Cells())
	for t := range spec.Times {
		for i := 0; i < g.Rows; i++ {
			r := i
			if spec.SouthUp {
				r = g.Rows - 1 - i
			}
			for c := 0; c < g.Cols; c++ {
				v := spec.Values(t, r, c)
				if math.IsNaN(v) {
					data = append(data, spec.FillValue)
					continue
				}
				data = append(data, float32(v))
			}
		}
	}
	if err := dataVar.WriteFloat32s(data); err != nil {
		return fmt.Errorf("write %s: %w", spec.Variable, err)
	}
	return nil
}

// WriteRaster writes a 2D (lat, lon) double raster, north first.
func WriteRaster(path, variable string, f domain.Field, g domain.GridDefinition) error {
	if err := f.CheckShape("raster", g); err != nil {
		return err
	}
	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = ds.Close() }()

	latDim, err := ds.AddDim("lat", uint64(g.Rows)) //nolint:gosec // G115: grid sizes are positive.
	if err != nil {
		return err
	}
	lonDim, err := ds.AddDim("lon", uint64(g.Cols)) //nolint:gosec // G115: grid sizes are positive.
	if err != nil {
		return err
	}
	latVar, err := ds.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	if err != nil {
		return err
	}
	lonVar, err := ds.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	if err != nil {
		return err
	}
	dataVar, err := ds.AddVar(variable, netcdf.DOUBLE, []netcdf.Dim{latDim, lonDim})
	if err != nil {
		return err
	}
	if err := dataVar.Attr("_FillValue").WriteFloat64s([]float64{f.NoData}); err != nil {
		return err
	}
	if err := ds.EndDef(); err != nil {
		return err
	}

	if err := latVar.WriteFloat64s(g.Latitudes()); err != nil {
		return fmt.Errorf("write lat: %w", err)
	}
	if err := lonVar.WriteFloat64s(g.Longitudes()); err != nil {
		return fmt.Errorf("write lon: %w", err)
	}
	if err := dataVar.WriteFloat64s(f.Values); err != nil {
		return fmt.Errorf("write %s: %w", variable, err)
	}
	return nil
}

// encodeTime converts t to a value in units, which must be days or hours
// since a reference date.
func encodeTime(t time.Time, units string) (float64, error) {
	ref, err := domain.DecodeTime(0, units)
	if err != nil {
		return 0, err
	}
	one, err := domain.DecodeTime(1, units)
	if err != nil {
		return 0, err
	}
	step := one.Sub(ref).Seconds()
	return float64(t.Unix()-ref.Unix()) / step, nil
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}

// DailyTimes returns n consecutive days starting at start.
func DailyTimes(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}
