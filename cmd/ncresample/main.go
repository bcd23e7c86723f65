// Command ncresample resamples netCDF time series between regular grids.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
