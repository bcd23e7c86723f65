package http

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go.ngs.io/ncresample/internal/usecase"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(inspectUC *usecase.InspectUseCase) *gin.Engine {
	router := gin.Default()

	corsConfig := cors.DefaultConfig()

	// Allow all origins unless CORS_ALLOWED_ORIGINS lists them.
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}

	router.Use(cors.New(corsConfig))

	handler := NewHandler(inspectUC)

	v1 := router.Group("/v1")
	v1.GET("/geometry", handler.GetGeometry)

	datasets := v1.Group("/datasets")
	datasets.GET("", handler.ListDatasets)
	datasets.GET("/:name", handler.GetDataset)
	datasets.GET("/:name/series", handler.GetSeries)

	router.GET("/health", handler.HealthCheck)

	return router
}
