package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Print the tracked upstream paths",
	Long:  "Print the paths derived from the configured MAINTAINERS sections, one per line",
	Run:   runPaths,
}

func init() {
	rootCmd.AddCommand(pathsCmd)
}

func runPaths(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	paths, err := a.upstream.TrackedPaths(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving tracked paths: %v\n", err)
		os.Exit(1)
	}
	for _, path := range paths {
		fmt.Println(path)
	}
}
