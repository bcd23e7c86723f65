package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ncresample/internal/adapter/timeseries"
	"go.ngs.io/ncresample/internal/domain"
	"go.ngs.io/ncresample/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	dir := t.TempDir()

	g, err := domain.NewGridDefinition(2, 2, 1, 10, 50)
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	w := timeseries.NewWriter(timeseries.NewManager(log), log)
	path := filepath.Join(dir, "runoff.nc")
	require.NoError(t, w.Create(domain.DatasetSpec{
		Path:      path,
		Variable:  domain.VariableSpec{Name: "runoff", Units: "m.day-1"},
		Grid:      g,
		FillValue: float32(domain.DefaultMissingValue),
	}))
	f := domain.NewField(2, 2, domain.DefaultMissingValue)
	for i := range f.Values {
		f.Values[i] = 4
	}
	_, err = w.Append(path, "runoff", f, time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, w.CloseAll())

	return SetupRouter(usecase.NewInspectUseCase(dir))
}

func get(t *testing.T, r *gin.Engine, url string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealthCheck(t *testing.T) {
	rec, body := get(t, newRouter(t), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetGeometry(t *testing.T) {
	r := newRouter(t)

	rec, body := get(t, r, "/v1/geometry?rows=360&cols=720&cell_size=0.5&origin_x=-180&origin_y=90&target_cell_size=1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "upscale", body["mode"])
	assert.Equal(t, float64(2), body["factor"])

	tests := []struct {
		name string
		url  string
	}{
		{"missing rows", "/v1/geometry?cols=4&cell_size=0.5&target_cell_size=1"},
		{"bad cell size", "/v1/geometry?rows=4&cols=4&cell_size=x&target_cell_size=1"},
		{"fractional factor", "/v1/geometry?rows=4&cols=4&cell_size=0.5&target_cell_size=0.8"},
		{"loose tolerance", "/v1/geometry?rows=4&cols=4&cell_size=0.5&target_cell_size=1.2&tolerance=0.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := get(t, r, tt.url)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDatasets(t *testing.T) {
	r := newRouter(t)

	rec, body := get(t, r, "/v1/datasets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = get(t, r, "/v1/datasets/runoff.nc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["steps"])
	assert.Equal(t, "2010-06-01", body["start"])

	rec, _ = get(t, r, "/v1/datasets/missing.nc")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSeries(t *testing.T) {
	r := newRouter(t)

	rec, body := get(t, r, "/v1/datasets/runoff.nc/series?lat=49.5&lon=11.5&method=nearest")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "runoff", body["variable"])
	points, ok := body["points"].([]any)
	require.True(t, ok)
	require.Len(t, points, 1)
	assert.InDelta(t, 4.0, points[0].(map[string]any)["value"], 1e-6)

	rec, _ = get(t, r, "/v1/datasets/runoff.nc/series?lat=49.5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get(t, r, "/v1/datasets/runoff.nc/series?lat=49.5&lon=11.5&method=cubic")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get(t, r, "/v1/datasets/runoff.nc/series?lat=0&lon=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get(t, r, "/v1/datasets/other.nc/series?lat=49.5&lon=11.5")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
