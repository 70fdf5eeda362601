package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patchmon/internal/report"
)

var exportFile string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tracked patches to a spreadsheet",
	Long:  "Write every recorded upstream patch to a spreadsheet with one status column per distro showing where it landed and where it is absent",
	Run:   runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFile, "file", "patchmon.xlsx", "output spreadsheet path")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	a := mustApp(context.Background())
	defer a.Close()

	if err := report.NewSpreadsheet(a.db, a.logger).Export(exportFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting spreadsheet: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported to %s\n", exportFile)
}
