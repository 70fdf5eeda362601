package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patchmon/internal/storage"
)

var patchesCmd = &cobra.Command{
	Use:   "patches",
	Short: "List recorded upstream commits",
	Long:  "Print every commit in the recorded upstream window, oldest first, one hash per line",
	Run:   runPatchesList,
}

func init() {
	rootCmd.AddCommand(patchesCmd)
}

func runPatchesList(cmd *cobra.Command, args []string) {
	a := mustApp(context.Background())
	defer a.Close()

	ids, err := storage.NewPatchRepository(a.db).ListCommitIDsOrdered()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing patches: %v\n", err)
		os.Exit(1)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}
