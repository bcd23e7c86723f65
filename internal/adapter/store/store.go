package store

import (
	"context"
	"time"

	"go.ngs.io/ncresample/internal/domain"
)

// FieldRequest names one 2D slice of an input series.
type FieldRequest struct {
	Path     string
	Variable string
	Date     time.Time
	// Grid is the grid the field must be delivered on. Fields stored on a
	// different grid are reprojected.
	Grid domain.GridDefinition
}

// FieldReader loads one time step of an input series at a time.
type FieldReader interface {
	// Grid derives the native grid of the series at path. cellSize overrides
	// the spacing of the coordinate vectors when positive.
	Grid(ctx context.Context, path string, cellSize float64) (domain.GridDefinition, error)

	// ReadField returns the slice for req.Date, or an error wrapping
	// domain.ErrNoData when the series has none.
	ReadField(ctx context.Context, req FieldRequest) (domain.Field, error)

	// Close releases all open handles.
	Close() error
}

// RasterReader loads static rasters such as cell areas.
type RasterReader interface {
	// ReadRaster returns the raster at path clipped or resampled to reference.
	ReadRaster(path string, reference domain.GridDefinition) (domain.Field, error)
}
