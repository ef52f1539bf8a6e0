package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-curator/internal/histogram"
)

var equalizeCmd = &cobra.Command{
	Use:   "equalize <input-dir>",
	Short: "Equalize image brightness into OptimizedImages",
	Long: `Equalize the luma histogram of every image in input-dir and write the
result under the original name into the output directory. Colours are kept;
only brightness is redistributed.`,
	Args: cobra.ExactArgs(1),
	RunE: runEqualize,
}

func init() {
	rootCmd.AddCommand(equalizeCmd)

	equalizeCmd.Flags().StringP("output", "o", "", "Output directory (defaults to <input-dir>/OptimizedImages)")
	equalizeCmd.Flags().String("backend", "", "Equalizer: native, or opencv when built with -tags gocv")
}

func runEqualize(cmd *cobra.Command, args []string) error {
	inputDir := args[0]

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if backend := mustGetString(cmd, "backend"); backend != "" {
		cfg.Equalize.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	eq, err := histogram.NewEqualizer(cfg.Equalize.Backend)
	if err != nil {
		return err
	}

	outputDir := mustGetString(cmd, "output")
	if outputDir == "" {
		outputDir = filepath.Join(inputDir, cfg.Equalize.OutputDir)
	}

	ctx, stop := signalContext()
	defer stop()

	var bar *progressbar.ProgressBar
	summary, err := histogram.EqualizeDir(ctx, eq, inputDir, outputDir, cfg.Curation.Extensions, logger,
		func(current, total int) {
			if bar == nil {
				bar = newProgressBar(total, "Equalizing", "images")
			}
			bar.Add(1)
		})
	if summary == nil {
		return err
	}

	fmt.Printf("Images found:     %d\n", summary.Total)
	fmt.Printf("Written:          %d\n", summary.Written)
	fmt.Printf("Skipped:          %d\n", summary.Skipped)
	if summary.Failed > 0 {
		fmt.Printf("Failed:           %d\n", summary.Failed)
	}
	fmt.Printf("Output:           %s\n", outputDir)
	return err
}
