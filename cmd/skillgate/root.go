package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/boshu2/skillgate/internal/config"
	"github.com/boshu2/skillgate/internal/controls"
)

var (
	// Global flags
	dryRun  bool
	verbose bool
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "skillgate",
	Short: "Admission control for installable skills",
	Long: `skillgate arbitrates skill candidates one-by-one and quarantines noisy entries.

Each candidate is installed, the host process-count signal is sampled before
and after, and the candidate is kept or deleted based on the measured churn
and the three control lists (deny, allow, protected) under the skills home.

Core Commands:
  arbitrate    Install and arbitrate one or more skills
  lists        Show the current control lists
  version      Show version information`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetOutput(os.Stderr)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
		syncConfigFlagToEnv()
	},
}

// Execute runs the root command. Configuration and safety violations exit 2,
// runtime failures exit 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if isConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Report actions without modifying files")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.skillgate/config.yaml)")
}

// isConfigError reports whether err is a startup validation failure rather
// than a runtime one.
func isConfigError(err error) bool {
	return errors.Is(err, config.ErrOutOfRange) ||
		errors.Is(err, config.ErrUnsafeListFile) ||
		errors.Is(err, config.ErrLockdownNeedsSource) ||
		errors.Is(err, config.ErrNoSkills) ||
		errors.Is(err, config.ErrEmptySkillName) ||
		errors.Is(err, controls.ErrUnsafePath)
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv("SKILLGATE_CONFIG", path) //nolint:errcheck // best-effort flag-to-env bridge
}

// VerbosePrintf prints only when verbose mode is enabled.
func VerbosePrintf(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format, args...)
	}
}
