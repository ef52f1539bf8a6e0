package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-curator/internal/dedup"
	"github.com/kozaktomas/photo-curator/internal/frames"
	"github.com/kozaktomas/photo-curator/internal/histogram"
	"github.com/kozaktomas/photo-curator/internal/sharpness"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		indexes := make([]string, 0, len(dedup.Indexes()))
		for _, idx := range dedup.Indexes() {
			indexes = append(indexes, string(idx))
		}

		fmt.Printf("photo-curator %s\n", Version)
		fmt.Printf("  Commit: %s\n", CommitSHA)
		fmt.Printf("  Built:  %s (%s)\n", BuildDate, runtime.Version())
		fmt.Printf("  Sharpness backends: %s\n", strings.Join(sharpness.Backends(), ", "))
		fmt.Printf("  Frame backends:     %s\n", strings.Join(frames.Backends(), ", "))
		fmt.Printf("  Equalizers:         %s\n", strings.Join(histogram.Equalizers(), ", "))
		fmt.Printf("  Seen-set indexes:   %s\n", strings.Join(indexes, ", "))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
