package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"packt-downloader/downloader"
)

type tidyArgs struct {
	directory string
	separate  bool
}

var tArgs tidyArgs

var tidyCmd = &cobra.Command{
	Use:   "tidy",
	Short: "Fix the layout of an existing download directory",
	Long: `Fix the layout of an existing download directory.

Code and video bundles saved as "<name>.code" or "<name>.video" are renamed
to "<name> [code].zip" and "<name> [video].zip". With --separate, loose
files are moved into one folder per book. Nothing is overwritten.`,
	Args: cobra.NoArgs,
	RunE: runTidy,
}

func init() {
	tidyCmd.Flags().StringVarP(&tArgs.directory, "directory", "d", "media", "download directory")
	tidyCmd.Flags().BoolVarP(&tArgs.separate, "separate", "s", false, "move loose files into per-book folders")
	RootCmd.AddCommand(tidyCmd)
}

func runTidy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Directory
	if cmd.Flags().Changed("directory") {
		dir = tArgs.directory
	}

	report, err := downloader.Tidy(dir, tArgs.separate || cfg.Separate, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to tidy %s: %w", dir, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d archives renamed, %d files moved\n", len(report.Renamed), len(report.Moved))
	return nil
}
