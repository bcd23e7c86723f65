// Package main provides the read-only HTTP server over resampled datasets.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	httpHandler "go.ngs.io/ncresample/internal/http"
	"go.ngs.io/ncresample/internal/usecase"
)

const version = "0.1.0"

func main() {
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("ncresample-server version %s\n", version)
		return
	}

	port := getEnv("PORT", "8080")
	outputDir := getEnv("OUTPUT_DIR", "./output")

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableSorting: true})
	if level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(level)
	}

	log.WithFields(logrus.Fields{
		"port":       port,
		"output_dir": outputDir,
	}).Info("starting resample server")
	if _, err := os.Stat(outputDir); err != nil {
		log.WithError(err).Warn("output directory not readable, dataset listing will be empty")
	}

	inspectUC := usecase.NewInspectUseCase(outputDir)
	router := httpHandler.SetupRouter(inspectUC)

	addr := fmt.Sprintf(":%s", port)
	log.Infof("Server listening on %s", addr)
	log.Infof("Health check: http://localhost:%s/health", port)

	if err := router.Run(addr); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("ncresample server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  ncresample-server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  --help         Show this help message")
	fmt.Println("  --version      Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  OUTPUT_DIR              Directory of resampled datasets (default: ./output)")
	fmt.Println("  LOG_LEVEL               Log level (default: info)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                           Health check")
	fmt.Println("  GET /v1/geometry                      Resolve an input grid against a target cell size")
	fmt.Println("  GET /v1/datasets                      List datasets in OUTPUT_DIR")
	fmt.Println("  GET /v1/datasets/:name                Describe a dataset")
	fmt.Println("  GET /v1/datasets/:name/series         Point time series (lat, lon, variable, method)")
	fmt.Println()
}
