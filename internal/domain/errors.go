package domain

import (
	"errors"
	"fmt"
)

// ErrAllMissing is returned by the aggregation engine when every input cell of
// a step is no-data. The step is skipped, the run continues.
var ErrAllMissing = errors.New("all input values are no-data")

// ErrNoData is returned by field readers when the input series holds no slice
// for the requested date.
var ErrNoData = errors.New("no data for date")

// ConfigurationError reports an inconsistent grid geometry or run setting.
// It is always fatal and raised before the first step.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Configf builds a ConfigurationError for the named setting.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DimensionMismatchError reports a field whose shape disagrees with the grid
// it is applied to.
type DimensionMismatchError struct {
	What     string
	WantRows int
	WantCols int
	GotRows  int
	GotCols  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch (%s): expected %dx%d, got %dx%d",
		e.What, e.WantRows, e.WantCols, e.GotRows, e.GotCols)
}

// IOError wraps a failure of the underlying storage for a given path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort a run. Missing data is the only
// recoverable condition.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNoData) && !errors.Is(err, ErrAllMissing)
}
