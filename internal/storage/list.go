// Package storage lists candidate images and performs the file operations
// behind routing decisions.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/photo-curator/internal/imageio"
)

// DefaultExtensions are the file extensions treated as candidate images.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp", ".gif"}

// SortKey is the ordering key of a file name. Names that differ only in
// Unicode composition sort the same on every platform.
func SortKey(name string) string {
	return norm.NFC.String(name)
}

// SortPaths orders paths by the NFC form of their base names, falling back
// to the raw path for ties.
func SortPaths(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		ki, kj := SortKey(filepath.Base(paths[i])), SortKey(filepath.Base(paths[j]))
		if ki != kj {
			return ki < kj
		}
		return paths[i] < paths[j]
	})
}

// ListImages returns the regular files in dir whose extension is in exts
// (DefaultExtensions when empty), sorted with SortPaths. Subdirectories are
// not descended into.
func ListImages(dir string, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !imageio.IsImageExt(filepath.Ext(entry.Name()), exts) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	SortPaths(paths)
	return paths, nil
}
