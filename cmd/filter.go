package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-curator/internal/curator"
	"github.com/kozaktomas/photo-curator/internal/storage"
)

var filterCmd = &cobra.Command{
	Use:   "filter <input-dir>",
	Short: "Copy sharp images into FilteredImages",
	Long: `Run only the sharpness check. Sharp images are copied (or moved with
--mode move) into the output directory under their original names. Blurry
and unreadable images stay where they are.`,
	Args: cobra.ExactArgs(1),
	RunE: runFilter,
}

func init() {
	rootCmd.AddCommand(filterCmd)

	filterCmd.Flags().StringP("output", "o", "", "Output directory (defaults to <input-dir>/FilteredImages)")
	filterCmd.Flags().Float64("blur-threshold", 20.0, "Laplacian variance below which an image is blurry")
	filterCmd.Flags().String("mode", "copy", "Storage mode: copy or move")
	filterCmd.Flags().Int("workers", 1, "Images decoded and analysed in parallel")
	filterCmd.Flags().Bool("dry-run", false, "Log what would happen without touching files")
	filterCmd.Flags().Bool("json", false, "Print the summary as JSON")
}

func runFilter(cmd *cobra.Command, args []string) error {
	inputDir := args[0]
	dryRun := mustGetBool(cmd, "dry-run")
	jsonOutput := mustGetBool(cmd, "json")

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Storage.Mode = mustGetString(cmd, "mode")
	if cmd.Flags().Changed("blur-threshold") {
		cfg.Curation.BlurThreshold = mustGetFloat64(cmd, "blur-threshold")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Curation.Workers = mustGetInt(cmd, "workers")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	outputDir := mustGetString(cmd, "output")
	if outputDir == "" {
		outputDir = filepath.Join(inputDir, cfg.Filter.OutputDir)
	}

	writer, err := newWriter(cfg, dryRun, logger)
	if err != nil {
		return err
	}

	paths, err := storage.ListImages(inputDir, cfg.Curation.Extensions)
	if err != nil {
		return fmt.Errorf("listing images: %w", err)
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = newProgressBar(len(paths), "Filtering", "images")
	}

	c, err := curator.New(cfg.Curation, curator.Options{
		Writer: writer,
		Logger: logger,
		OnProgress: func(curator.ProgressInfo) {
			if bar != nil {
				bar.Add(1)
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	summary, err := c.Filter(ctx, inputDir, outputDir)
	if summary == nil {
		return err
	}
	if jsonOutput {
		if jerr := outputJSON(summary); jerr != nil {
			return jerr
		}
		return err
	}

	fmt.Printf("Images found:     %d\n", summary.Total)
	fmt.Printf("Sharp:            %d\n", summary.Sharp)
	fmt.Printf("Blurry:           %d\n", summary.Blurry)
	fmt.Printf("Skipped:          %d\n", summary.Skipped)
	if summary.Failed > 0 {
		fmt.Printf("Failed:           %d\n", summary.Failed)
	}
	fmt.Printf("Output:           %s\n", outputDir)
	return err
}
