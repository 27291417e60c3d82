package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/saxpycl/internal/cl"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "saxpycl version %s (backends: %v)\n", version, cl.SupportedBackends())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
