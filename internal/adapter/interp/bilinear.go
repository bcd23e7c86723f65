package interp

import (
	"fmt"
	"math"
)

// GridCell is the rectangle spanned by four neighbouring cell centres.
type GridCell struct {
	// Corner coordinates.
	X0, X1 float64 // Longitudes, west and east.
	Y0, Y1 float64 // Latitudes, south and north.

	// V00 at (X0, Y0), V10 at (X1, Y0), V01 at (X0, Y1), V11 at (X1, Y1).
	V00, V10, V01, V11 float64
}

// BilinearInterpolate evaluates
//
//	f(x,y) ≈ (1-t)(1-u)V00 + t(1-u)V10 + (1-t)u V01 + tu V11
//
// with t = (x-X0)/(X1-X0) and u = (y-Y0)/(Y1-Y0). Points outside the cell
// are rejected.
func BilinearInterpolate(cell GridCell, x, y float64) (float64, error) {
	if cell.X1 <= cell.X0 {
		return 0, fmt.Errorf("invalid grid cell: X1 must be > X0")
	}
	if cell.Y1 <= cell.Y0 {
		return 0, fmt.Errorf("invalid grid cell: Y1 must be > Y0")
	}

	const epsilon = 1e-9
	if x < cell.X0-epsilon || x > cell.X1+epsilon {
		return 0, fmt.Errorf("x coordinate %.6f is outside grid cell [%.6f, %.6f]", x, cell.X0, cell.X1)
	}
	if y < cell.Y0-epsilon || y > cell.Y1+epsilon {
		return 0, fmt.Errorf("y coordinate %.6f is outside grid cell [%.6f, %.6f]", y, cell.Y0, cell.Y1)
	}

	t := clamp01((x - cell.X0) / (cell.X1 - cell.X0))
	u := clamp01((y - cell.Y0) / (cell.Y1 - cell.Y0))

	return (1-t)*(1-u)*cell.V00 +
		t*(1-u)*cell.V10 +
		(1-t)*u*cell.V01 +
		t*u*cell.V11, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
