package main

import (
	"patchmon/internal/version"

	"github.com/spf13/cobra"
)

var (
	// configDir is the directory holding patchmon.yaml and, unless
	// overridden there, the state directory
	configDir string
	// logLevelFlag and logFormatFlag override the configured logging
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "patchmon",
	Short: "patchmon - upstream patch backport tracker",
	Long: `patchmon follows a window of upstream kernel history across a set of
maintained subsystem paths and reports which patches each tracked
downstream distribution kernel has not picked up yet. It also records
which function symbols every patch introduced, so consumers of an
out-of-tree driver can map a missing symbol back to the commit that
provides it.`,
	Version: version.Info(),
}

func init() {
	rootCmd.SetVersionTemplate("patchmon version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".",
		"Directory containing patchmon.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Override configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Override configured log format (json, human)")
}
