package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patchmon/internal/downstream"
	"patchmon/internal/storage"
	"patchmon/internal/symbols"
)

var (
	runUpstreamOnly   bool
	runDownstreamOnly bool
	runSkipSymbols    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a full monitoring pass",
	Long: `Refresh the upstream patch window, reconcile the missing-patch set of
every tracked downstream revision, and record introduced symbols for
newly observed patches.`,
	Run: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runUpstreamOnly, "upstream-only", false,
		"Only refresh the upstream patch window")
	runCmd.Flags().BoolVar(&runDownstreamOnly, "downstream-only", false,
		"Skip the upstream refresh and only reconcile downstream subjects")
	runCmd.Flags().BoolVar(&runSkipSymbols, "skip-symbols", false,
		"Skip the symbol extraction pass")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	if !runDownstreamOnly {
		if err := a.upstream.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error refreshing upstream window: %v\n", err)
			os.Exit(1)
		}
	}

	failed := false
	if !runUpstreamOnly {
		monitor := downstream.NewMonitor(a.repo, a.db, a.upstream, a.cfg, a.logger)
		if err := monitor.Run(ctx); err != nil {
			// Per-subject failures were already logged and the rest of
			// the run went ahead; reflect them in the exit code only.
			failed = true
		}
	}

	if !runSkipSymbols && !runDownstreamOnly {
		if err := runSymbolPass(ctx, a); err != nil {
			fmt.Fprintf(os.Stderr, "Error recording symbols: %v\n", err)
			os.Exit(1)
		}
	}

	if failed {
		os.Exit(1)
	}
}

func runSymbolPass(ctx context.Context, a *app) error {
	extractor, err := symbols.NewExtractor(a.cfg, a.logger)
	if err != nil {
		return err
	}
	paths, err := a.upstream.TrackedPaths(ctx)
	if err != nil {
		return err
	}
	tracker := symbols.NewTracker(a.repo, storage.NewPatchRepository(a.db), extractor, a.cfg, a.logger)
	_, err = tracker.Run(ctx, paths)
	return err
}
