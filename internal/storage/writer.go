package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kozaktomas/photo-curator/internal/imageio"
)

// ErrDestinationExists is returned when a placement would replace a file.
var ErrDestinationExists = errors.New("destination already exists")

// Replaced in tests.
var (
	renameFile = os.Rename
	removeFile = os.Remove
)

// Writer stores src under dir/name and returns the final path.
type Writer interface {
	Place(ctx context.Context, src, dir, name string) (string, error)
}

// Mode selects whether FSWriter moves or copies the source.
type Mode string

const (
	ModeMove Mode = "move"
	ModeCopy Mode = "copy"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMove, ModeCopy:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown storage mode %q (supported: move, copy)", s)
}

// FSWriter places files on the local filesystem. When the source and
// destination extensions name different formats the image is re-encoded.
type FSWriter struct {
	Mode      Mode
	Overwrite bool
}

// NewFSWriter creates a filesystem writer.
func NewFSWriter(mode Mode, overwrite bool) *FSWriter {
	return &FSWriter{Mode: mode, Overwrite: overwrite}
}

func (w *FSWriter) Place(ctx context.Context, src, dir, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	dst := filepath.Join(dir, name)
	if !w.Overwrite {
		if _, err := os.Lstat(dst); err == nil {
			return "", fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}

	if needsTranscode(src, dst) {
		if err := transcode(src, dst); err != nil {
			return "", err
		}
		if w.Mode == ModeMove {
			if err := removeSource(src, dst); err != nil {
				return "", fmt.Errorf("removing source after transcode: %w", err)
			}
		}
		return dst, nil
	}

	if w.Mode == ModeCopy {
		if err := copyFile(src, dst); err != nil {
			return "", err
		}
		return dst, nil
	}

	if err := renameFile(src, dst); err != nil {
		// Cross-device moves fail with EXDEV; copy and remove instead.
		if cerr := copyFile(src, dst); cerr != nil {
			return "", fmt.Errorf("moving %s: %w", src, errors.Join(err, cerr))
		}
		if rerr := removeSource(src, dst); rerr != nil {
			return "", fmt.Errorf("removing %s after copy: %w", src, rerr)
		}
	}
	return dst, nil
}

// removeSource finishes a move by deleting src. If that fails the new copy
// at dst is removed again so a failed move leaves no file behind.
func removeSource(src, dst string) error {
	err := removeFile(src)
	if err == nil {
		return nil
	}
	if rerr := os.Remove(dst); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return errors.Join(err, fmt.Errorf("rolling back %s: %w", dst, rerr))
	}
	return err
}

func needsTranscode(src, dst string) bool {
	return imageio.FormatForExt(filepath.Ext(src)) != imageio.FormatForExt(filepath.Ext(dst))
}

func transcode(src, dst string) error {
	img, _, err := imageio.Load(src)
	if err != nil {
		return fmt.Errorf("transcoding %s: %w", src, err)
	}
	return imageio.Save(dst, img)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// Op is one recorded placement.
type Op struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// DryRunWriter logs placements without touching the filesystem.
type DryRunWriter struct {
	logger *slog.Logger

	mu  sync.Mutex
	ops []Op
}

// NewDryRunWriter creates a dry-run writer. logger may be nil.
func NewDryRunWriter(logger *slog.Logger) *DryRunWriter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DryRunWriter{logger: logger}
}

func (w *DryRunWriter) Place(ctx context.Context, src, dir, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)
	w.logger.Info("dry run", "src", src, "dst", dst)

	w.mu.Lock()
	w.ops = append(w.ops, Op{Src: src, Dst: dst})
	w.mu.Unlock()
	return dst, nil
}

// Ops returns the placements seen so far.
func (w *DryRunWriter) Ops() []Op {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Op(nil), w.ops...)
}

// MemoryWriter records placements in memory. Failures can be injected per
// source path to exercise error handling.
type MemoryWriter struct {
	mu       sync.Mutex
	ops      []Op
	failures map[string]error
}

// NewMemoryWriter creates an empty recording writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{failures: make(map[string]error)}
}

// FailOn makes every Place of src return err.
func (w *MemoryWriter) FailOn(src string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[src] = err
}

func (w *MemoryWriter) Place(ctx context.Context, src, dir, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err, ok := w.failures[src]; ok {
		return "", err
	}
	dst := filepath.Join(dir, name)
	for _, op := range w.ops {
		if op.Dst == dst {
			return "", fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
	}
	w.ops = append(w.ops, Op{Src: src, Dst: dst})
	return dst, nil
}

// Ops returns the recorded placements in order.
func (w *MemoryWriter) Ops() []Op {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Op(nil), w.ops...)
}

// Files returns the base names placed into dir, in placement order.
func (w *MemoryWriter) Files(dir string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var names []string
	for _, op := range w.ops {
		if filepath.Dir(op.Dst) == filepath.Clean(dir) {
			names = append(names, filepath.Base(op.Dst))
		}
	}
	return names
}
