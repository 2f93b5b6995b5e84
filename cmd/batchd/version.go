package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Overridden via -ldflags at build time.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("batchd version: %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
