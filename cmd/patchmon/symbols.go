package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"patchmon/internal/storage"
	"patchmon/internal/symbols"
)

var symbolsFile string

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Work with per-patch introduced symbols",
}

var symbolsTrackCmd = &cobra.Command{
	Use:   "track",
	Short: "Record introduced symbols for patches that lack them",
	Run:   runSymbolsTrack,
}

var symbolsMissingCmd = &cobra.Command{
	Use:   "missing",
	Short: "List commits that introduced symbols absent from a reference list",
	Long: `Compare recorded per-patch symbols against a reference list and print
the commits, oldest first, that the reference tree is missing. The
reference comes from --file (one symbol per line); without it the
symbol surface of the configured baseline revision is used.`,
	Run: runSymbolsMissing,
}

func init() {
	symbolsMissingCmd.Flags().StringVar(&symbolsFile, "file", "",
		"File with one reference symbol per line")
	symbolsCmd.AddCommand(symbolsTrackCmd)
	symbolsCmd.AddCommand(symbolsMissingCmd)
	rootCmd.AddCommand(symbolsCmd)
}

func runSymbolsTrack(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	if err := runSymbolPass(ctx, a); err != nil {
		fmt.Fprintf(os.Stderr, "Error recording symbols: %v\n", err)
		os.Exit(1)
	}
}

func runSymbolsMissing(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	tracker := newTracker(a)

	reference, err := referenceSymbols(ctx, a, tracker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving reference symbols: %v\n", err)
		os.Exit(1)
	}

	missing, err := tracker.FindMissing(reference)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding missing commits: %v\n", err)
		os.Exit(1)
	}

	if len(missing) == 0 {
		fmt.Println("No commits with unknown symbols found.")
		return
	}
	for _, commitID := range missing {
		fmt.Println(commitID)
	}
}

func newTracker(a *app) *symbols.Tracker {
	extractor, err := symbols.NewExtractor(a.cfg, a.logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return symbols.NewTracker(a.repo, storage.NewPatchRepository(a.db), extractor, a.cfg, a.logger)
}

func referenceSymbols(ctx context.Context, a *app, tracker *symbols.Tracker) ([]string, error) {
	if symbolsFile != "" {
		data, err := os.ReadFile(symbolsFile)
		if err != nil {
			return nil, err
		}
		var reference []string
		for _, line := range strings.Split(string(data), "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				reference = append(reference, trimmed)
			}
		}
		return reference, nil
	}

	if a.cfg.Symbols.Baseline == "" {
		return nil, fmt.Errorf("no --file given and symbols.baseline is not configured")
	}
	paths, err := a.upstream.TrackedPaths(ctx)
	if err != nil {
		return nil, err
	}
	return tracker.BaselineSymbols(ctx, paths)
}
