package domain

import (
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
)

// GridDefinition describes a regular lat/lon raster with square cells.
// OriginX/OriginY are the upper-left corner (west edge, north edge) in degrees.
type GridDefinition struct {
	Rows     int
	Cols     int
	CellSize float64
	OriginX  float64
	OriginY  float64
}

// NewGridDefinition validates and returns a grid definition.
func NewGridDefinition(rows, cols int, cellSize, originX, originY float64) (GridDefinition, error) {
	g := GridDefinition{Rows: rows, Cols: cols, CellSize: cellSize, OriginX: originX, OriginY: originY}
	if err := g.Validate(); err != nil {
		return GridDefinition{}, err
	}
	return g, nil
}

// Validate checks the invariants of a grid definition.
func (g GridDefinition) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return Configf("grid", "rows and cols must be positive, got %dx%d", g.Rows, g.Cols)
	}
	if !(g.CellSize > 0) || math.IsInf(g.CellSize, 0) {
		return Configf("grid", "cell size must be positive, got %v", g.CellSize)
	}
	if math.IsNaN(g.OriginX) || math.IsNaN(g.OriginY) || math.IsInf(g.OriginX, 0) || math.IsInf(g.OriginY, 0) {
		return Configf("grid", "origin must be finite, got (%v, %v)", g.OriginX, g.OriginY)
	}
	return nil
}

// Cells returns the number of cells in the grid.
func (g GridDefinition) Cells() int { return g.Rows * g.Cols }

// Index returns the row-major linear index of cell (r, c).
func (g GridDefinition) Index(r, c int) int { return r*g.Cols + c }

// Latitudes returns the cell-centre latitudes from north to south.
func (g GridDefinition) Latitudes() []float64 {
	north := g.OriginY - g.CellSize/2
	south := g.OriginY - float64(g.Rows)*g.CellSize + g.CellSize/2
	return span(g.Rows, north, south)
}

// Longitudes returns the cell-centre longitudes from west to east.
func (g GridDefinition) Longitudes() []float64 {
	west := g.OriginX + g.CellSize/2
	east := g.OriginX + float64(g.Cols)*g.CellSize - g.CellSize/2
	return span(g.Cols, west, east)
}

func span(n int, from, to float64) []float64 {
	if n == 1 {
		return []float64{from}
	}
	return floats.Span(make([]float64, n), from, to)
}

// CellCenter returns the (lat, lon) centre of cell (r, c).
func (g GridDefinition) CellCenter(r, c int) (lat, lon float64) {
	lat = g.OriginY - (float64(r)+0.5)*g.CellSize
	lon = g.OriginX + (float64(c)+0.5)*g.CellSize
	return lat, lon
}

// Locate returns the cell containing (lat, lon) and whether it lies inside the grid.
func (g GridDefinition) Locate(lat, lon float64) (r, c int, ok bool) {
	r = int(math.Floor((g.OriginY - lat) / g.CellSize))
	c = int(math.Floor((lon - g.OriginX) / g.CellSize))
	ok = r >= 0 && r < g.Rows && c >= 0 && c < g.Cols
	return r, c, ok
}

// Bounds returns the outer extent of the grid.
func (g GridDefinition) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: g.OriginX, Y: g.OriginY - float64(g.Rows)*g.CellSize},
		Max: geom.Point{X: g.OriginX + float64(g.Cols)*g.CellSize, Y: g.OriginY},
	}
}

// Covers reports whether g fully contains the extent of other, allowing tol
// degrees of slack on every edge.
func (g GridDefinition) Covers(other GridDefinition, tol float64) bool {
	a, b := g.Bounds(), other.Bounds()
	return a.Min.X <= b.Min.X+tol && a.Min.Y <= b.Min.Y+tol &&
		a.Max.X >= b.Max.X-tol && a.Max.Y >= b.Max.Y-tol
}

// Equal reports whether two grids describe the same cells within tol degrees.
func (g GridDefinition) Equal(other GridDefinition, tol float64) bool {
	return g.Rows == other.Rows && g.Cols == other.Cols &&
		math.Abs(g.CellSize-other.CellSize) <= tol &&
		math.Abs(g.OriginX-other.OriginX) <= tol &&
		math.Abs(g.OriginY-other.OriginY) <= tol
}

// GridFromCenters derives a grid definition from cell-centre coordinate
// vectors. Latitudes may be in either order. The declared cell size wins over
// the spacing in the vectors, which is often stored in single precision.
func GridFromCenters(lats, lons []float64, cellSize float64) (GridDefinition, error) {
	if len(lats) == 0 || len(lons) == 0 {
		return GridDefinition{}, Configf("grid", "empty coordinate vectors")
	}
	if cellSize <= 0 {
		if len(lons) < 2 {
			return GridDefinition{}, Configf("grid", "cell size cannot be derived from a single column")
		}
		cellSize = math.Abs(lons[1] - lons[0])
	}
	maxLat := floats.Max(lats)
	minLon := floats.Min(lons)
	return NewGridDefinition(len(lats), len(lons), cellSize, minLon-cellSize/2, maxLat+cellSize/2)
}
