package domain

import (
	"errors"
	"math"
	"testing"
)

func mustGrid(t *testing.T, rows, cols int, cell, x, y float64) GridDefinition {
	t.Helper()
	g, err := NewGridDefinition(rows, cols, cell, x, y)
	if err != nil {
		t.Fatalf("NewGridDefinition: %v", err)
	}
	return g
}

// TestResolve_FactorTwo checks the 4x4 → 2x2 geometry.
func TestResolve_FactorTwo(t *testing.T) {
	in := mustGrid(t, 4, 4, 0.5, 0, 2)

	mode, err := Resolve(in, 1.0, ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	up, ok := mode.(Upscale)
	if !ok {
		t.Fatalf("expected Upscale, got %T", mode)
	}
	if up.Factor != 2 {
		t.Errorf("factor = %d, want 2", up.Factor)
	}
	out := mode.OutputGrid()
	if out.Rows != 2 || out.Cols != 2 {
		t.Errorf("output shape = %dx%d, want 2x2", out.Rows, out.Cols)
	}
	if out.OriginX != 0 || out.OriginY != 2 || out.CellSize != 1 {
		t.Errorf("output origin/cell = (%v, %v, %v)", out.OriginX, out.OriginY, out.CellSize)
	}
	if !mode.CalculationGrid().Equal(in, 0) {
		t.Errorf("calculation grid should be the input grid")
	}
}

// TestResolve_FiveToThirtyArcMinutes mirrors the common 5' → 30' setup.
func TestResolve_FiveToThirtyArcMinutes(t *testing.T) {
	in := mustGrid(t, 2160, 4320, 5.0/60.0, -180, 90)

	mode, err := Resolve(in, 30.0/60.0, ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	out := mode.OutputGrid()
	if out.Rows != 360 || out.Cols != 720 {
		t.Errorf("output shape = %dx%d, want 360x720", out.Rows, out.Cols)
	}
	lats := out.Latitudes()
	if math.Abs(lats[0]-89.75) > 1e-9 {
		t.Errorf("first latitude = %v, want 89.75", lats[0])
	}
	lons := out.Longitudes()
	if math.Abs(lons[0]+179.75) > 1e-9 {
		t.Errorf("first longitude = %v, want -179.75", lons[0])
	}
}

// TestResolve_NonIntegerFactor rejects 1.0/0.4 = 2.5.
func TestResolve_NonIntegerFactor(t *testing.T) {
	in := mustGrid(t, 10, 10, 0.4, 0, 4)

	_, err := Resolve(in, 1.0, ResolveOptions{})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

// TestResolve_Tolerance covers the accepted tolerance range. A loose
// tolerance would round 2.4 to 2 and label 2x2 blocks with 2.4-wide cells.
func TestResolve_Tolerance(t *testing.T) {
	in := mustGrid(t, 10, 10, 1, 0, 10)

	tests := []struct {
		name    string
		out     float64
		tol     float64
		wantErr bool
	}{
		{"zero selects default", 2.0005, 0, false},
		{"zero rejects beyond default", 2.002, 0, true},
		{"max accepted", 2.009, MaxFactorTolerance, false},
		{"above max", 2.4, 0.4, true},
		{"negative", 2, -1e-3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := Resolve(in, tt.out, ResolveOptions{FactorTolerance: tt.tol})
			if tt.wantErr {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ConfigurationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if up, ok := mode.(Upscale); !ok || up.Factor != 2 {
				t.Fatalf("mode = %#v, want upscale by 2", mode)
			}
		})
	}
}

// TestResolve_Uneven rejects a 5x5 input with factor 2 unless partial blocks are allowed.
func TestResolve_Uneven(t *testing.T) {
	in := mustGrid(t, 5, 5, 1, 0, 5)

	_, err := Resolve(in, 2, ResolveOptions{})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	mode, err := Resolve(in, 2, ResolveOptions{AllowPartialBlocks: true})
	if err != nil {
		t.Fatalf("Resolve with partial blocks: %v", err)
	}
	out := mode.OutputGrid()
	if out.Rows != 3 || out.Cols != 3 {
		t.Fatalf("output shape = %dx%d, want 3x3", out.Rows, out.Cols)
	}
	zones := mode.(Upscale).Zones
	if got := zones.ZoneSize(out.Index(2, 2)); got != 1 {
		t.Errorf("corner zone size = %d, want 1", got)
	}
	if got := zones.ZoneSize(out.Index(0, 2)); got != 2 {
		t.Errorf("east edge zone size = %d, want 2", got)
	}
}

// TestResolve_Downscale requires a clone grid.
func TestResolve_Downscale(t *testing.T) {
	in := mustGrid(t, 2, 2, 1, 0, 2)

	_, err := Resolve(in, 0.5, ResolveOptions{})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError without clone, got %v", err)
	}

	clone := mustGrid(t, 4, 4, 0.5, 0, 2)
	mode, err := Resolve(in, 0.5, ResolveOptions{Clone: &clone})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	down, ok := mode.(Downscale)
	if !ok {
		t.Fatalf("expected Downscale, got %T", mode)
	}
	if !down.Target.Equal(clone, 0) {
		t.Errorf("target = %+v, want %+v", down.Target, clone)
	}

	mismatched := mustGrid(t, 8, 8, 0.25, 0, 2)
	if _, err := Resolve(in, 0.5, ResolveOptions{Clone: &mismatched}); err == nil {
		t.Errorf("expected error for clone cell size mismatch")
	}
}

// TestResolve_SameResolution passes through on the input grid.
func TestResolve_SameResolution(t *testing.T) {
	in := mustGrid(t, 3, 3, 1, 10, 50)

	mode, err := Resolve(in, 1, ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !mode.OutputGrid().Equal(in, 0) {
		t.Errorf("output grid = %+v, want input grid", mode.OutputGrid())
	}
}

func TestResolve_InvalidCellSize(t *testing.T) {
	in := mustGrid(t, 3, 3, 1, 0, 0)
	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := Resolve(in, size, ResolveOptions{}); err == nil {
			t.Errorf("Resolve(%v): expected error", size)
		}
	}
}

// TestZoneMap_Blocks checks that each zone is exactly an N×N block.
func TestZoneMap_Blocks(t *testing.T) {
	in := mustGrid(t, 6, 9, 1, 0, 6)
	mode, err := Resolve(in, 3, ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	zm := mode.(Upscale).Zones

	if zm.NumZones() != 6 {
		t.Fatalf("NumZones = %d, want 6", zm.NumZones())
	}
	for id := 0; id < zm.NumZones(); id++ {
		if zm.ZoneSize(id) != 9 {
			t.Errorf("zone %d size = %d, want 9", id, zm.ZoneSize(id))
		}
	}
	for r := 0; r < in.Rows; r++ {
		for c := 0; c < in.Cols; c++ {
			want := (r/3)*3 + c/3
			if got := zm.Zone(r, c); got != want {
				t.Errorf("Zone(%d,%d) = %d, want %d", r, c, got, want)
			}
		}
	}
}
