package series

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ncresample/internal/adapter/interp"
	"go.ngs.io/ncresample/internal/adapter/store"
	"go.ngs.io/ncresample/internal/domain"
	"go.ngs.io/ncresample/internal/synth"
)

var day0 = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func writeSeries(t *testing.T, spec synth.SeriesSpec) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.nc")
	require.NoError(t, synth.WriteSeries(path, spec))
	return path
}

func testGrid(t *testing.T) domain.GridDefinition {
	t.Helper()
	g, err := domain.NewGridDefinition(4, 6, 0.5, 10, 50)
	require.NoError(t, err)
	return g
}

func TestReader_ReadFieldSouthUp(t *testing.T) {
	g := testGrid(t)
	path := writeSeries(t, synth.SeriesSpec{
		Variable: "runoff", Units: "m.day-1", Grid: g,
		Times: synth.DailyTimes(day0, 3), FillValue: -9999, SouthUp: true,
		Values: func(step, r, c int) float64 { return float64(step*100 + r*10 + c) },
	})

	r := NewReader(Options{})
	defer func() { _ = r.Close() }()
	ctx := context.Background()

	got, err := r.Grid(ctx, path, 0.5)
	require.NoError(t, err)
	assert.True(t, got.Equal(g, 1e-9), "grid %+v", got)

	f, err := r.ReadField(ctx, store.FieldRequest{Path: path, Variable: "runoff", Date: day0.AddDate(0, 0, 2), Grid: g})
	require.NoError(t, err)
	require.Equal(t, 4, f.Rows)
	require.Equal(t, 6, f.Cols)
	// Row 0 is the north edge regardless of storage order.
	assert.Equal(t, 200.0, f.At(0, 0))
	assert.Equal(t, 235.0, f.At(3, 5))
}

func TestReader_NoDataForDate(t *testing.T) {
	g := testGrid(t)
	path := writeSeries(t, synth.SeriesSpec{Variable: "runoff", Grid: g, Times: synth.DailyTimes(day0, 2)})

	r := NewReader(Options{})
	defer func() { _ = r.Close() }()

	_, err := r.ReadField(context.Background(), store.FieldRequest{Path: path, Variable: "runoff", Date: day0.AddDate(0, 0, 5)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoData), "got %v", err)
	assert.False(t, domain.IsFatal(err))
}

func TestReader_FillValueIsNoData(t *testing.T) {
	g := testGrid(t)
	path := writeSeries(t, synth.SeriesSpec{
		Variable: "runoff", Grid: g, Times: synth.DailyTimes(day0, 1), FillValue: -9999,
		Values: func(_, r, c int) float64 {
			if r == 1 && c == 2 {
				return math.NaN()
			}
			return 1
		},
	})

	r := NewReader(Options{})
	defer func() { _ = r.Close() }()

	f, err := r.ReadField(context.Background(), store.FieldRequest{Path: path, Variable: "runoff", Date: day0})
	require.NoError(t, err)
	assert.True(t, f.IsNoData(f.At(1, 2)))
	assert.Equal(t, g.Cells()-1, f.ValidCount())
}

func TestReader_MatchBefore(t *testing.T) {
	g := testGrid(t)
	times := []time.Time{
		time.Date(2000, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 2, 15, 0, 0, 0, 0, time.UTC),
	}
	path := writeSeries(t, synth.SeriesSpec{
		Variable: "tas", Grid: g, Times: times,
		Values: func(step, _, _ int) float64 { return float64(step + 1) },
	})

	exact := NewReader(Options{DateMatch: MatchExact})
	defer func() { _ = exact.Close() }()
	_, err := exact.ReadField(context.Background(), store.FieldRequest{Path: path, Variable: "tas", Date: time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC)})
	assert.True(t, errors.Is(err, domain.ErrNoData))

	before := NewReader(Options{DateMatch: MatchBefore})
	defer func() { _ = before.Close() }()
	f, err := before.ReadField(context.Background(), store.FieldRequest{Path: path, Variable: "tas", Date: time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, 2.0, f.At(0, 0))

	// A month without data does not borrow from the previous one.
	_, err = before.ReadField(context.Background(), store.FieldRequest{Path: path, Variable: "tas", Date: time.Date(2000, 3, 31, 0, 0, 0, 0, time.UTC)})
	assert.True(t, errors.Is(err, domain.ErrNoData))
}

func TestReader_ReprojectsToRequestedGrid(t *testing.T) {
	coarse, err := domain.NewGridDefinition(2, 2, 1, 0, 2)
	require.NoError(t, err)
	fine, err := domain.NewGridDefinition(4, 4, 0.5, 0, 2)
	require.NoError(t, err)
	path := writeSeries(t, synth.SeriesSpec{
		Variable: "v", Grid: coarse, Times: synth.DailyTimes(day0, 1),
		Values: func(_, r, c int) float64 { return float64(r*2 + c) },
	})

	r := NewReader(Options{Method: interp.Nearest})
	defer func() { _ = r.Close() }()
	_, err = r.Grid(context.Background(), path, 1)
	require.NoError(t, err)

	f, err := r.ReadField(context.Background(), store.FieldRequest{Path: path, Variable: "v", Date: day0, Grid: fine})
	require.NoError(t, err)
	require.True(t, f.SameShape(fine))
	assert.Equal(t, []float64{0, 0, 1, 1, 0, 0, 1, 1, 2, 2, 3, 3, 2, 2, 3, 3}, f.Values)
}

func TestReader_Errors(t *testing.T) {
	r := NewReader(Options{})
	defer func() { _ = r.Close() }()
	ctx := context.Background()

	_, err := r.ReadField(ctx, store.FieldRequest{Path: filepath.Join(t.TempDir(), "missing.nc"), Variable: "v", Date: day0})
	var ioErr *domain.IOError
	require.True(t, errors.As(err, &ioErr), "got %v", err)

	path := writeSeries(t, synth.SeriesSpec{Variable: "v", Grid: testGrid(t), Times: synth.DailyTimes(day0, 1)})
	_, err = r.ReadField(ctx, store.FieldRequest{Path: path, Variable: "nope", Date: day0})
	require.True(t, errors.As(err, &ioErr), "got %v", err)
	assert.True(t, domain.IsFatal(err))
}

func TestParseDateMatch(t *testing.T) {
	m, err := ParseDateMatch("")
	require.NoError(t, err)
	assert.Equal(t, MatchExact, m)
	m, err = ParseDateMatch("BEFORE")
	require.NoError(t, err)
	assert.Equal(t, MatchBefore, m)
	_, err = ParseDateMatch("nearest")
	assert.Error(t, err)
}
