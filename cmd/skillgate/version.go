package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the build version, overridable via -ldflags at release time.
var Version = "0.1.0-dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skillgate %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
