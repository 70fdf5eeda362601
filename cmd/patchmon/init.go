package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"patchmon/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default patchmon.yaml",
	Long:  "Create a default configuration file in the config directory as a starting point",
	Run:   runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	path := filepath.Join(configDir, "patchmon.yaml")
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Error: %s already exists\n", path)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Add your downstream distros under 'distros:' and run 'patchmon run'.")
}
