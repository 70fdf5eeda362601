package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patchmon/internal/config"
	"patchmon/internal/storage"
)

var (
	addDistroName   string
	addDistroRepo   string
	addDistroKernel string
)

var distrosCmd = &cobra.Command{
	Use:   "distros",
	Short: "Manage tracked downstream distributions",
}

var distrosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked distros and their monitoring subjects",
	Run:   runDistrosList,
}

var distrosAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a downstream distro to the configuration",
	Run:   runDistrosAdd,
}

func init() {
	distrosAddCmd.Flags().StringVar(&addDistroName, "name", "",
		"Distro identifier, e.g. ubuntu-azure-22.04")
	distrosAddCmd.Flags().StringVar(&addDistroRepo, "repo", "",
		"Git URL of the distro kernel repository")
	distrosAddCmd.Flags().StringVar(&addDistroKernel, "kernel-version", "",
		"Base kernel version the distro tracks, e.g. 5.15")
	distrosAddCmd.MarkFlagRequired("name")
	distrosAddCmd.MarkFlagRequired("repo")

	distrosCmd.AddCommand(distrosListCmd)
	distrosCmd.AddCommand(distrosAddCmd)
	rootCmd.AddCommand(distrosCmd)
}

func runDistrosList(cmd *cobra.Command, args []string) {
	a := mustApp(context.Background())
	defer a.Close()

	distros, err := storage.NewDistroRepository(a.db).List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing distros: %v\n", err)
		os.Exit(1)
	}
	if len(distros) == 0 {
		fmt.Println("No distros tracked yet. Add one with 'patchmon distros add'.")
		return
	}

	subjects := storage.NewSubjectRepository(a.db)
	missing := storage.NewMissingPatchRepository(a.db)
	for _, distro := range distros {
		fmt.Printf("%s (%s)\n", distro.ID, distro.RepoLink)
		tracked, err := subjects.ListByDistro(distro.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing subjects: %v\n", err)
			os.Exit(1)
		}
		for _, subject := range tracked {
			ids, err := missing.PatchIDs(a.db, subject.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error counting missing patches: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("  %s: %d missing patches\n", subject.Revision, len(ids))
		}
	}
}

func runDistrosAdd(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	for _, distro := range cfg.Distros {
		if distro.Name == addDistroName {
			fmt.Fprintf(os.Stderr, "Error: distro %q is already configured\n", addDistroName)
			os.Exit(1)
		}
	}

	cfg.Distros = append(cfg.Distros, config.DistroConfig{
		Name:          addDistroName,
		Repo:          addDistroRepo,
		KernelVersion: addDistroKernel,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Save(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Added %s. It will be picked up on the next run.\n", addDistroName)
}
