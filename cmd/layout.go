package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-curator/internal/sequencer"
)

var initCmd = &cobra.Command{
	Use:   "init [root]",
	Short: "Create the working directory layout",
	Long: `Create the folders used by the curation workflow under root (default: the
current directory):

  rawvideos/                  videos to extract frames from
  rawpictures/                extracted frames and photos to curate
  rawpictures/FilteredImages/ output of the filter command
  rawpictures/duplicates/     duplicates rejected by curate`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// layoutDirs lists the directories created by init, relative to the root.
func layoutDirs(filterDir string) []string {
	return []string{
		"rawvideos",
		"rawpictures",
		filepath.Join("rawpictures", filterDir),
		filepath.Join("rawpictures", sequencer.DuplicatesDir),
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	for _, dir := range layoutDirs(cfg.Filter.OutputDir) {
		path := filepath.Join(root, dir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		fmt.Printf("Created %s\n", path)
	}
	return nil
}
