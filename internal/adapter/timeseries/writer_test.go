package timeseries

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ncresample/internal/domain"
)

var day0 = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func newWriter(t *testing.T) *Writer {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	w := NewWriter(NewManager(log), log)
	t.Cleanup(func() { _ = w.Manager().CloseAll() })
	return w
}

func testSpec(t *testing.T) domain.DatasetSpec {
	t.Helper()
	g, err := domain.NewGridDefinition(3, 4, 0.5, 10, 50)
	require.NoError(t, err)
	return domain.DatasetSpec{
		Path:       filepath.Join(t.TempDir(), "out", "runoff.nc"),
		Variable:   domain.VariableSpec{Name: "runoff", Units: "m.day-1"},
		Grid:       g,
		FillValue:  -9999,
		Attributes: []domain.Attribute{{Name: "title", Value: "daily runoff"}, {Name: "comment", Value: ""}},
	}
}

func constField(g domain.GridDefinition, v float64) domain.Field {
	f := domain.NewField(g.Rows, g.Cols, domain.DefaultMissingValue)
	for i := range f.Values {
		f.Values[i] = v + float64(i)
	}
	return f
}

func open(t *testing.T, path string) *Dataset {
	t.Helper()
	d, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestWriter_CreateAppendRead(t *testing.T) {
	w := newWriter(t)
	spec := testSpec(t)
	require.NoError(t, w.Create(spec))
	assert.True(t, w.Manager().IsOpen(spec.Path))

	first := constField(spec.Grid, 1.5)
	first.Values[5] = first.NoData
	idx, err := w.Append(spec.Path, "runoff", first, day0)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	idx, err = w.Append(spec.Path, "runoff", constField(spec.Grid, 100), day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	require.NoError(t, w.Close(spec.Path))
	assert.False(t, w.Manager().IsOpen(spec.Path))

	d := open(t, spec.Path)
	assert.True(t, d.Grid().Equal(spec.Grid, 1e-9), "grid %+v", d.Grid())
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, []time.Time{day0, day0.AddDate(0, 0, 1)}, d.Times())
	assert.Equal(t, []string{"runoff"}, d.Variables())
	assert.Equal(t, -9999.0, d.FillValue("runoff"))

	units, ok := d.VariableAttribute("time", "units")
	require.True(t, ok)
	assert.Equal(t, "days since 1901-01-01", units)
	calendar, _ := d.VariableAttribute("time", "calendar")
	assert.Equal(t, "standard", calendar)

	got, err := d.ReadStep("runoff", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.At(0, 0))
	assert.True(t, got.IsNoData(got.Values[5]))
	assert.Equal(t, spec.Grid.Cells()-1, got.ValidCount())

	got, err = d.ReadStep("runoff", 1)
	require.NoError(t, err)
	assert.Equal(t, 111.0, got.At(2, 3))

	_, err = d.ReadStep("runoff", 2)
	assert.True(t, errors.Is(err, domain.ErrNoData))
}

func TestWriter_GlobalAttributes(t *testing.T) {
	w := newWriter(t)
	spec := testSpec(t)
	require.NoError(t, w.Create(spec))
	require.NoError(t, w.Close(spec.Path))

	attrs := map[string]string{}
	for _, a := range open(t, spec.Path).Attributes() {
		attrs[a.Name] = a.Value
	}
	assert.Equal(t, "daily runoff", attrs["title"])
	assert.Equal(t, "None", attrs["institution"])
	_, ok := attrs["comment"]
	assert.False(t, ok, "empty attribute values are not written")
}

func TestWriter_CreateRefusesExisting(t *testing.T) {
	w := newWriter(t)
	spec := testSpec(t)
	require.NoError(t, w.Create(spec))

	err := w.Create(spec)
	var ioErr *domain.IOError
	require.True(t, errors.As(err, &ioErr), "got %v", err)
	assert.True(t, errors.Is(err, fs.ErrExist))

	spec.Overwrite = true
	require.NoError(t, w.Create(spec))
	assert.Equal(t, 1, w.Manager().Len())
}

func TestWriter_AppendShapeMismatch(t *testing.T) {
	w := newWriter(t)
	spec := testSpec(t)
	require.NoError(t, w.Create(spec))

	_, err := w.Append(spec.Path, "runoff", domain.NewField(2, 2, domain.DefaultMissingValue), day0)
	var dimErr *domain.DimensionMismatchError
	require.True(t, errors.As(err, &dimErr), "got %v", err)

	_, err = w.Append(spec.Path, "evap", constField(spec.Grid, 0), day0)
	var ioErr *domain.IOError
	assert.True(t, errors.As(err, &ioErr), "got %v", err)
}

func TestWriter_ReopensAfterClose(t *testing.T) {
	w := newWriter(t)
	spec := testSpec(t)
	require.NoError(t, w.Create(spec))
	_, err := w.Append(spec.Path, "runoff", constField(spec.Grid, 1), day0)
	require.NoError(t, err)
	require.NoError(t, w.Close(spec.Path))

	idx, err := w.Append(spec.Path, "runoff", constField(spec.Grid, 2), day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	require.NoError(t, w.Manager().CloseAll())
	assert.Equal(t, 0, w.Manager().Len())

	assert.Equal(t, 2, open(t, spec.Path).Len())
}

func TestWriter_AppendAtOverwrites(t *testing.T) {
	w := newWriter(t)
	spec := testSpec(t)
	require.NoError(t, w.Create(spec))
	for i := 0; i < 2; i++ {
		_, err := w.Append(spec.Path, "runoff", constField(spec.Grid, 1), day0.AddDate(0, 0, i))
		require.NoError(t, err)
	}
	require.NoError(t, w.AppendAt(spec.Path, "runoff", constField(spec.Grid, 50), day0, 0))
	require.NoError(t, w.Close(spec.Path))

	d := open(t, spec.Path)
	assert.Equal(t, 2, d.Len())
	f, err := d.ReadStep("runoff", 0)
	require.NoError(t, err)
	assert.Equal(t, 50.0, f.At(0, 0))
}

func TestWriter_AppendTimeWritesFill(t *testing.T) {
	w := newWriter(t)
	spec := testSpec(t)
	require.NoError(t, w.Create(spec))
	idx, err := w.AppendTime(spec.Path, day0)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	require.NoError(t, w.Close(spec.Path))

	d := open(t, spec.Path)
	require.Equal(t, []time.Time{day0}, d.Times())
	f, err := d.ReadStep("runoff", 0)
	require.NoError(t, err)
	assert.True(t, f.AllMissing())
}

func TestWriter_SetAttributesKeepsData(t *testing.T) {
	w := newWriter(t)
	spec := testSpec(t)
	require.NoError(t, w.Create(spec))
	_, err := w.Append(spec.Path, "runoff", constField(spec.Grid, 3), day0)
	require.NoError(t, err)

	require.NoError(t, w.SetAttributes(spec.Path, []domain.Attribute{
		{Name: "institution", Value: "NGS"},
		{Name: "resolution", Value: "0.5 degree"},
	}))
	assert.True(t, w.Manager().IsOpen(spec.Path))

	// The swapped-in handle keeps appending after the copied records.
	idx, err := w.Append(spec.Path, "runoff", constField(spec.Grid, 4), day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	require.NoError(t, w.Close(spec.Path))

	d := open(t, spec.Path)
	attrs := d.Attributes()
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	assert.Equal(t, "institution", names[0])
	assert.Equal(t, "resolution", names[len(names)-1])
	assert.Equal(t, domain.Attribute{Name: "institution", Value: "NGS"}, attrs[0])

	f, err := d.ReadStep("runoff", 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, f.At(0, 0))
	f, err = d.ReadStep("runoff", 1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, f.At(0, 0))

	entries, err := os.ReadDir(filepath.Dir(spec.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are renamed away")
}

func TestWriter_AddVariable(t *testing.T) {
	w := newWriter(t)
	spec := testSpec(t)
	require.NoError(t, w.Create(spec))
	_, err := w.Append(spec.Path, "runoff", constField(spec.Grid, 1), day0)
	require.NoError(t, err)

	require.NoError(t, w.AddVariable(spec.Path, domain.VariableSpec{Name: "evap", Units: "mm"}, -1))
	err = w.AddVariable(spec.Path, domain.VariableSpec{Name: "evap"}, -1)
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)

	idx, err := w.AppendFields(spec.Path, map[string]domain.Field{
		"runoff": constField(spec.Grid, 2),
		"evap":   constField(spec.Grid, 7),
	}, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	require.NoError(t, w.Close(spec.Path))

	d := open(t, spec.Path)
	assert.ElementsMatch(t, []string{"runoff", "evap"}, d.Variables())
	old, err := d.ReadStep("evap", 0)
	require.NoError(t, err)
	assert.True(t, old.AllMissing())
	cur, err := d.ReadStep("evap", 1)
	require.NoError(t, err)
	assert.Equal(t, 7.0, cur.At(0, 0))
	prev, err := d.ReadStep("runoff", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, prev.At(0, 0))
}

func TestManager_CloseUnknownIsNoop(t *testing.T) {
	m := NewManager(nil)
	assert.NoError(t, m.Close("/nonexistent/file.nc"))
	assert.NoError(t, m.CloseAll())
	assert.Equal(t, 0, m.Len())
}
