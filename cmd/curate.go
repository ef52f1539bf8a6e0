package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-curator/internal/config"
	"github.com/kozaktomas/photo-curator/internal/curator"
	"github.com/kozaktomas/photo-curator/internal/journal"
	"github.com/kozaktomas/photo-curator/internal/storage"
)

var curateCmd = &cobra.Command{
	Use:   "curate <input-dir>",
	Short: "Filter blurry images, drop duplicates and bucket the rest",
	Long: `Run the full curation pipeline over the images directly inside input-dir.

Images are processed in file name order. Sharp images are compared against
every image accepted so far; the first occurrence wins and later near-copies
go to duplicates/. Accepted images are renamed into Set_001, Set_002, ...
with at most --capacity images per set.

Examples:
  # Curate in place with the defaults
  photo-curator curate rawpictures

  # Preview what would happen
  photo-curator curate --dry-run rawpictures

  # Stricter duplicate detection, journal the run into SQLite
  photo-curator curate --hash-threshold 4 --journal curator.db rawpictures`,
	Args: cobra.ExactArgs(1),
	RunE: runCurate,
}

func init() {
	rootCmd.AddCommand(curateCmd)

	curateCmd.Flags().StringP("output", "o", "", "Output directory (defaults to the input directory)")
	curateCmd.Flags().Bool("dry-run", false, "Log what would happen without touching files")
	curateCmd.Flags().String("journal", "", "Journal DSN: file path, sqlite://, postgres:// or mysql://")
	curateCmd.Flags().Bool("json", false, "Print the result as JSON")
	addCurationFlags(curateCmd)
}

// addCurationFlags registers the flags that override the curation config.
func addCurationFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("blur-threshold", 20.0, "Laplacian variance below which an image is blurry")
	cmd.Flags().Int("hash-threshold", 8, "Maximum Hamming distance for two images to be duplicates")
	cmd.Flags().Int("capacity", 1000, "Images per output set")
	cmd.Flags().Bool("no-sharpness", false, "Skip the sharpness filter")
	cmd.Flags().String("algorithm", "phash", "Fingerprint algorithm: phash, dct, dhash")
	cmd.Flags().String("index", "linear", "Seen-set index: linear, mih, hnsw")
	cmd.Flags().String("blurry-action", "discard", "What to do with blurry images: discard or move")
	cmd.Flags().Int("workers", 1, "Images decoded and analysed in parallel")
	cmd.Flags().String("mode", "move", "Storage mode: move or copy")
	cmd.Flags().StringSlice("ext", nil, "Image extensions to consider, e.g. .png,.jpg")
}

// applyCurationFlags copies explicitly set flags over the loaded config.
func applyCurationFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	cur := &cfg.Curation
	if flags.Changed("blur-threshold") {
		cur.BlurThreshold = mustGetFloat64(cmd, "blur-threshold")
	}
	if flags.Changed("hash-threshold") {
		cur.HashThreshold = mustGetInt(cmd, "hash-threshold")
	}
	if flags.Changed("capacity") {
		cur.BucketCapacity = mustGetInt(cmd, "capacity")
	}
	if flags.Changed("no-sharpness") {
		cur.SharpnessFilter = !mustGetBool(cmd, "no-sharpness")
	}
	if flags.Changed("algorithm") {
		cur.Algorithm = mustGetString(cmd, "algorithm")
	}
	if flags.Changed("index") {
		cur.Index = mustGetString(cmd, "index")
	}
	if flags.Changed("blurry-action") {
		cur.BlurryAction = mustGetString(cmd, "blurry-action")
	}
	if flags.Changed("workers") {
		cur.Workers = mustGetInt(cmd, "workers")
	}
	if flags.Changed("ext") {
		cur.Extensions = mustGetStringSlice(cmd, "ext")
	}
	if flags.Changed("mode") {
		cfg.Storage.Mode = mustGetString(cmd, "mode")
	}
}

// newWriter builds the storage writer for the configured mode.
func newWriter(cfg *config.Config, dryRun bool, logger *slog.Logger) (storage.Writer, error) {
	if dryRun {
		return storage.NewDryRunWriter(logger), nil
	}
	mode, err := storage.ParseMode(cfg.Storage.Mode)
	if err != nil {
		return nil, err
	}
	return storage.NewFSWriter(mode, cfg.Storage.Overwrite), nil
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCurate(cmd *cobra.Command, args []string) error {
	inputDir := args[0]
	outputDir := mustGetString(cmd, "output")
	dryRun := mustGetBool(cmd, "dry-run")
	jsonOutput := mustGetBool(cmd, "json")

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	applyCurationFlags(cmd, cfg)
	if dsn := mustGetString(cmd, "journal"); dsn != "" {
		cfg.Journal.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if outputDir == "" {
		outputDir = inputDir
	}

	ctx, stop := signalContext()
	defer stop()

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
		fmt.Printf("Found %d images in %s\n", len(paths), inputDir)
		bar = newProgressBar(len(paths), "Curating", "images")
	}

	opts := curator.Options{
		Writer: writer,
		Logger: logger,
		OnProgress: func(curator.ProgressInfo) {
			if bar != nil {
				bar.Add(1)
			}
		},
	}

	var recorder *journal.RunRecorder
	if cfg.Journal.DSN != "" {
		j, err := journal.Open(ctx, cfg.Journal)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()

		recorder, err = j.Begin(ctx, inputDir, outputDir, cfg.YAML(), logger)
		if err != nil {
			logger.Warn("journal unavailable, continuing without it", "error", err)
		} else {
			opts.Recorder = recorder
		}
	}

	c, err := curator.New(cfg.Curation, opts)
	if err != nil {
		return err
	}

	result, runErr := c.RunPaths(ctx, paths, outputDir)
	if recorder != nil {
		recorder.Finish(ctx, result, runErr)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if jsonOutput {
		return outputJSON(result)
	}

	if errors.Is(runErr, context.Canceled) {
		fmt.Println("\nInterrupted, partial results:")
	}
	printCurationSummary(result.Summary, dryRun)
	if recorder != nil {
		fmt.Printf("Journal run ID:   %s\n", recorder.RunID())
	}
	return runErr
}

func printCurationSummary(s curator.Summary, dryRun bool) {
	if dryRun {
		fmt.Println("Dry run, no files were changed")
	}
	fmt.Printf("Images found:     %d\n", s.Total)
	fmt.Printf("Processed:        %d\n", s.Processed)
	fmt.Printf("Accepted:         %d\n", s.Accepted)
	fmt.Printf("Duplicates:       %d\n", s.Duplicates)
	fmt.Printf("Blurry:           %d\n", s.Blurry)
	fmt.Printf("Skipped:          %d\n", s.Skipped)
	if s.Failed > 0 {
		fmt.Printf("Failed:           %d\n", s.Failed)
	}
	fmt.Printf("Sets:             %d\n", s.Buckets)
}
