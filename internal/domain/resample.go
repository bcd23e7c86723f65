package domain

import "math"

// DefaultFactorTolerance is the allowed distance of the raw resample factor
// from the nearest integer when upscaling.
const DefaultFactorTolerance = 1e-3

// MaxFactorTolerance bounds the configurable tolerance. Beyond it the
// requested output cell size no longer matches the N×N blocks it labels.
const MaxFactorTolerance = 0.01

// ResampleMode is the strategy chosen once at setup: either Upscale or
// Downscale. It is sealed to this package.
type ResampleMode interface {
	// OutputGrid is the grid of the written dataset.
	OutputGrid() GridDefinition
	// CalculationGrid is the grid input fields must be delivered on.
	CalculationGrid() GridDefinition
	String() string
	isResampleMode()
}

// Upscale aggregates blocks of Factor×Factor input cells into one output cell.
type Upscale struct {
	Factor int
	Zones  *ZoneMap
}

func (u Upscale) OutputGrid() GridDefinition      { return u.Zones.OutputGrid() }
func (u Upscale) CalculationGrid() GridDefinition { return u.Zones.InputGrid() }
func (u Upscale) String() string                  { return "upscale" }
func (Upscale) isResampleMode()                   {}

// Downscale passes fields through; the reader delivers them already
// reprojected onto Target.
type Downscale struct {
	Target GridDefinition
}

func (d Downscale) OutputGrid() GridDefinition      { return d.Target }
func (d Downscale) CalculationGrid() GridDefinition { return d.Target }
func (d Downscale) String() string                  { return "downscale" }
func (Downscale) isResampleMode()                   {}

// ResolveOptions tunes geometry resolution.
type ResolveOptions struct {
	// FactorTolerance bounds |out/in - round(out/in)| when upscaling. Zero
	// selects DefaultFactorTolerance; values outside (0, MaxFactorTolerance]
	// are rejected.
	FactorTolerance float64
	// AllowPartialBlocks accepts inputs whose size is not a multiple of the
	// factor; edge zones then cover fewer cells.
	AllowPartialBlocks bool
	// Clone is the target grid, required when downscaling.
	Clone *GridDefinition
}

// Resolve derives the output grid and resample mode for a run.
func Resolve(input GridDefinition, outputCellSize float64, opts ResolveOptions) (ResampleMode, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if !(outputCellSize > 0) || math.IsInf(outputCellSize, 0) {
		return nil, Configf("output.cell_size", "must be positive, got %v", outputCellSize)
	}
	tol := opts.FactorTolerance
	switch {
	case tol == 0:
		tol = DefaultFactorTolerance
	case !(tol > 0) || tol > MaxFactorTolerance:
		return nil, Configf("run.factor_tolerance", "must be in (0, %g], got %v", MaxFactorTolerance, tol)
	}

	raw := outputCellSize / input.CellSize
	if raw <= 1+tol {
		return resolveDownscale(input, outputCellSize, raw, tol, opts.Clone)
	}

	n := math.Round(raw)
	if math.Abs(raw-n) > tol {
		return nil, Configf("output.cell_size", "resample factor %.6f is not an integer (tolerance %g)", raw, tol)
	}
	factor := int(n)

	rows, cols := input.Rows/factor, input.Cols/factor
	if input.Rows%factor != 0 || input.Cols%factor != 0 {
		if !opts.AllowPartialBlocks {
			return nil, Configf("grid", "input %dx%d is not divisible by factor %d", input.Rows, input.Cols, factor)
		}
		rows = (input.Rows + factor - 1) / factor
		cols = (input.Cols + factor - 1) / factor
	}
	if rows == 0 || cols == 0 {
		return nil, Configf("grid", "input %dx%d is smaller than one output cell", input.Rows, input.Cols)
	}

	output, err := NewGridDefinition(rows, cols, outputCellSize, input.OriginX, input.OriginY)
	if err != nil {
		return nil, err
	}
	zones, err := BuildZoneMap(input, output, factor)
	if err != nil {
		return nil, err
	}
	return Upscale{Factor: factor, Zones: zones}, nil
}

func resolveDownscale(input GridDefinition, outputCellSize, raw, tol float64, clone *GridDefinition) (ResampleMode, error) {
	if clone == nil && math.Abs(raw-1) <= tol {
		// Same resolution: the input grid is the target.
		return Downscale{Target: input}, nil
	}
	if clone == nil {
		return nil, Configf("output.clone", "a target grid is required when the factor %.6f is <= 1", raw)
	}
	if err := clone.Validate(); err != nil {
		return nil, err
	}
	if math.Abs(clone.CellSize-outputCellSize) > tol*input.CellSize {
		return nil, Configf("output.clone", "clone cell size %v differs from output cell size %v", clone.CellSize, outputCellSize)
	}
	return Downscale{Target: *clone}, nil
}
