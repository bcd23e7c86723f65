package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"go.ngs.io/ncresample/internal/usecase"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

// inspectCmd describes an existing output dataset. It needs no configuration.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file.nc>",
	Short: "Describe a time series dataset",
	Args:  cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := usecase.DescribeFile(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}
