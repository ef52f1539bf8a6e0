package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-curator/internal/fingerprint"
	"github.com/kozaktomas/photo-curator/internal/imageio"
	"github.com/kozaktomas/photo-curator/internal/sharpness"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>...",
	Short: "Show sharpness and fingerprints of images",
	Long: `Print the centre-region sharpness score, the blur verdict at the configured
threshold and every supported fingerprint of each file. Useful for tuning
--blur-threshold and --hash-threshold.

Examples:
  photo-curator inspect a.png b.png
  photo-curator inspect --json rawpictures/*.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().Bool("json", false, "Output as JSON")
	inspectCmd.Flags().Float64("blur-threshold", 20.0, "Laplacian variance below which an image is blurry")
}

func runInspect(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("blur-threshold") {
		cfg.Curation.BlurThreshold = mustGetFloat64(cmd, "blur-threshold")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	scorer, err := sharpness.NewScorer(cfg.Curation.SharpnessBackend)
	if err != nil {
		return err
	}
	classifier := sharpness.NewWithScorer(cfg.Curation.BlurThreshold, scorer)

	infos := make([]fingerprint.ImageInfo, 0, len(args))
	for _, path := range args {
		infos = append(infos, inspectImage(classifier, path))
	}

	if jsonOutput {
		return outputJSON(fingerprint.ImageInfoBatch{Images: infos, Count: len(infos)})
	}

	for i, info := range infos {
		if i > 0 {
			fmt.Println()
		}
		printImageInfo(info, cfg.Curation.BlurThreshold)
	}

	if len(infos) > 1 {
		printPairDistances(infos)
	}
	return nil
}

func inspectImage(classifier *sharpness.Classifier, path string) fingerprint.ImageInfo {
	info := fingerprint.ImageInfo{Path: path}

	img, format, err := imageio.Load(path)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Format = format
	info.Width = img.Bounds().Dx()
	info.Height = img.Bounds().Dy()

	score, verdict := classifier.Evaluate(img)
	info.Sharpness = score
	info.Blurry = verdict == sharpness.Blurry

	hashes, err := fingerprint.ComputeHashes(img)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Hashes = hashes
	return info
}

func printImageInfo(info fingerprint.ImageInfo, threshold float64) {
	fmt.Printf("File:       %s\n", info.Path)
	if info.Error != "" {
		fmt.Printf("Error:      %s\n", info.Error)
		return
	}
	verdict := sharpness.Sharp
	if info.Blurry {
		verdict = sharpness.Blurry
	}
	fmt.Printf("Format:     %s (%dx%d)\n", info.Format, info.Width, info.Height)
	fmt.Printf("Sharpness:  %.2f (%s at %.2f)\n", info.Sharpness, verdict, threshold)
	if info.Hashes != nil {
		fmt.Printf("pHash:      %s\n", info.Hashes.PHash)
		fmt.Printf("DCT:        %s\n", info.Hashes.DCT)
		fmt.Printf("dHash:      %s\n", info.Hashes.DHash)
	}
}

// printPairDistances shows the pHash distance of every image to the first one.
func printPairDistances(infos []fingerprint.ImageInfo) {
	first := infos[0]
	if first.Hashes == nil {
		return
	}
	fmt.Printf("\npHash distance to %s:\n", first.Path)
	for _, info := range infos[1:] {
		if info.Hashes == nil {
			continue
		}
		d := fingerprint.HammingDistance(first.Hashes.PHash.Hash, info.Hashes.PHash.Hash)
		fmt.Printf("  %-40s %d\n", info.Path, d)
	}
}
