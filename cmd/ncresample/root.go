package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go.ngs.io/ncresample/internal/config"
)

const version = "0.1.0"

var (
	configFile string
	overrides  config.Overrides

	// settings and log are set by the persistent pre-run of every command
	// that needs a configuration.
	settings *config.Settings
	log      *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ncresample",
	Short: "Resample netCDF time series between regular lat/lon grids.",
	Long: `ncresample aggregates (upscales) or passes through (downscales) a gridded
netCDF variable step by step over a date range and appends every step to a
CF time series dataset.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return startup()
	},
}

// startup loads the configuration file, applies the command-line overrides
// and builds the logger.
func startup() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	settings, err = cfg.Apply(overrides).Settings()
	if err != nil {
		return err
	}
	log = settings.NewLogger()
	log.WithField("config", configFile).Debug(settings.String())
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of ncresample",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ncresample v%s\n", version)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "./ncresample.toml", "configuration file location")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides log.level)")
	flags.StringVar(&overrides.LogFormat, "log-format", "", "text or json (overrides log.format)")
}
