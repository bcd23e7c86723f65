package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/ncresample/internal/adapter/interp"
	"go.ngs.io/ncresample/internal/domain"
	"go.ngs.io/ncresample/internal/usecase"
)

// Handler handles HTTP requests for grid geometry and produced datasets.
type Handler struct {
	inspectUC *usecase.InspectUseCase
}

// NewHandler creates a new HTTP handler.
func NewHandler(inspectUC *usecase.InspectUseCase) *Handler {
	return &Handler{
		inspectUC: inspectUC,
	}
}

// GetGeometry handles GET /v1/geometry.
func (h *Handler) GetGeometry(c *gin.Context) {
	req := usecase.GeometryRequest{
		FactorTolerance:    domain.DefaultFactorTolerance,
		AllowPartialBlocks: c.Query("allow_partial_blocks") == "true",
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"rows", &req.Rows},
		{"cols", &req.Cols},
	}
	for _, p := range ints {
		v, err := strconv.Atoi(c.Query(p.name))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s: %v", p.name, err)})
			return
		}
		*p.dst = v
	}

	floats := []struct {
		name     string
		dst      *float64
		required bool
	}{
		{"cell_size", &req.CellSize, true},
		{"target_cell_size", &req.TargetCellSize, true},
		{"origin_x", &req.OriginX, false},
		{"origin_y", &req.OriginY, false},
		{"tolerance", &req.FactorTolerance, false},
	}
	for _, p := range floats {
		s := c.Query(p.name)
		if s == "" && !p.required {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s: %v", p.name, err)})
			return
		}
		*p.dst = v
	}

	response, err := h.inspectUC.Geometry(req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListDatasets handles GET /v1/datasets.
func (h *Handler) ListDatasets(c *gin.Context) {
	datasets, err := h.inspectUC.ListDatasets()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

// GetDataset handles GET /v1/datasets/:name.
func (h *Handler) GetDataset(c *gin.Context) {
	info, err := h.inspectUC.Describe(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// GetSeries handles GET /v1/datasets/:name/series.
func (h *Handler) GetSeries(c *gin.Context) {
	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon parameters are required"})
		return
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid latitude: %v", err)})
		return
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid longitude: %v", err)})
		return
	}

	req := usecase.SeriesRequest{
		Name:     c.Param("name"),
		Variable: c.Query("variable"),
		Lat:      lat,
		Lon:      lon,
	}
	if m := c.Query("method"); m != "" {
		method, err := interp.ParseMethod(m)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Method = method
	}

	response, err := h.inspectUC.Series(req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// respondError maps use case errors to status codes.
func respondError(c *gin.Context, err error) {
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.Is(err, usecase.ErrDatasetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
