package interp

import (
	"math"
	"strings"

	"go.ngs.io/ncresample/internal/domain"
)

// Method selects how values are carried between grids.
type Method string

const (
	// Nearest copies the value of the source cell containing the target
	// centre. Downscaling with it duplicates coarse values.
	Nearest Method = "nearest"
	// Bilinear interpolates between the four surrounding source centres and
	// falls back to Nearest next to no-data.
	Bilinear Method = "bilinear"
)

// ParseMethod maps a configuration string to a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Nearest, nil
	case Nearest, Bilinear:
		return m, nil
	default:
		return "", domain.Configf("interpolation", "unknown method %q", s)
	}
}

// SampleAt returns the value of f (defined on g) at (lat, lon). ok is false
// when the point lies outside g or resolves to no-data.
func SampleAt(f domain.Field, g domain.GridDefinition, lat, lon float64, m Method) (v float64, ok bool) {
	r, c, inside := g.Locate(lat, lon)
	if !inside {
		return f.NoData, false
	}
	nearest := f.At(r, c)

	if m != Bilinear || g.Rows < 2 || g.Cols < 2 {
		return nearest, !f.IsNoData(nearest)
	}

	// Fractional position in centre space; centre of cell i sits at i.
	fr := (g.OriginY-lat)/g.CellSize - 0.5
	fc := (lon-g.OriginX)/g.CellSize - 0.5
	r0 := clampIndex(int(math.Floor(fr)), g.Rows-2)
	c0 := clampIndex(int(math.Floor(fc)), g.Cols-2)

	north, west := g.CellCenter(r0, c0)
	south, east := g.CellCenter(r0+1, c0+1)
	cell := GridCell{
		X0: west, X1: east,
		Y0: south, Y1: north,
		V00: f.At(r0+1, c0), V10: f.At(r0+1, c0+1),
		V01: f.At(r0, c0), V11: f.At(r0, c0+1),
	}
	for _, cv := range []float64{cell.V00, cell.V10, cell.V01, cell.V11} {
		if f.IsNoData(cv) {
			return nearest, !f.IsNoData(nearest)
		}
	}

	// Points between the outermost centre and the grid edge are held flat.
	x := math.Max(cell.X0, math.Min(cell.X1, lon))
	y := math.Max(cell.Y0, math.Min(cell.Y1, lat))
	v, err := BilinearInterpolate(cell, x, y)
	if err != nil {
		return nearest, !f.IsNoData(nearest)
	}
	return v, true
}

func clampIndex(i, maxIdx int) int {
	if i < 0 {
		return 0
	}
	if i > maxIdx {
		return maxIdx
	}
	return i
}

// Reproject resamples src (defined on from) onto the cell centres of to.
// Target cells outside the source extent become no-data.
func Reproject(src domain.Field, from, to domain.GridDefinition, m Method) (domain.Field, error) {
	if err := src.CheckShape("reprojection source", from); err != nil {
		return domain.Field{}, err
	}
	if from.Equal(to, 1e-9) {
		return src.Clone(), nil
	}

	out := domain.NewField(to.Rows, to.Cols, src.NoData)
	lats := to.Latitudes()
	lons := to.Longitudes()
	for r, lat := range lats {
		for c, lon := range lons {
			if v, ok := SampleAt(src, from, lat, lon, m); ok {
				out.Set(r, c, v)
			}
		}
	}
	return out, nil
}
