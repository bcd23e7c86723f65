package domain

import "math"

// EarthRadius is the authalic radius of the WGS84 ellipsoid in metres.
const EarthRadius = 6371007.2

// CellAreas returns the surface area in m² of every cell of g on a sphere.
// All cells in a row share the same area.
func CellAreas(g GridDefinition) Field {
	f := NewField(g.Rows, g.Cols, DefaultMissingValue)
	dLon := g.CellSize * math.Pi / 180
	for r := 0; r < g.Rows; r++ {
		north := clampLat(g.OriginY - float64(r)*g.CellSize)
		south := clampLat(g.OriginY - float64(r+1)*g.CellSize)
		a := EarthRadius * EarthRadius * dLon * math.Abs(math.Sin(north*math.Pi/180)-math.Sin(south*math.Pi/180))
		row := f.Values[r*g.Cols : (r+1)*g.Cols]
		for c := range row {
			row[c] = a
		}
	}
	return f
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}
