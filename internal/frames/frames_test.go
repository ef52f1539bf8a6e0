package frames

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeBackend writes n empty frame files per video, or fails for names in fail.
type fakeBackend struct {
	n     int
	fail  map[string]bool
	calls []string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) ExtractVideo(_ context.Context, video, dir, prefix string) error {
	f.calls = append(f.calls, filepath.Base(video)+"->"+prefix)
	if f.fail[filepath.Base(video)] {
		return errors.New("corrupt stream")
	}
	for i := 1; i <= f.n; i++ {
		path := fmt.Sprintf(FramePattern(dir, prefix), i)
		if err := os.WriteFile(path, nil, 0644); err != nil {
			return err
		}
	}
	return nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestVideoName(t *testing.T) {
	if VideoName(1) != "Video_01" || VideoName(12) != "Video_12" || VideoName(100) != "Video_100" {
		t.Errorf("unexpected names %s %s %s", VideoName(1), VideoName(12), VideoName(100))
	}
}

func TestFramePattern(t *testing.T) {
	got := fmt.Sprintf(FramePattern("out", "Video_03"), 7)
	if got != filepath.Join("out", "Video_03_Frame_0007.png") {
		t.Errorf("unexpected frame path %s", got)
	}
}

func TestListVideos(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.MOV", "a.mp4", "notes.txt", "c.mkv", "d.avi", "e.webm"} {
		touch(t, filepath.Join(dir, name))
	}

	videos, err := ListVideos(dir, DefaultExtensions)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, v := range videos {
		names = append(names, filepath.Base(v))
	}
	if strings.Join(names, ",") != "a.mp4,b.MOV,c.mkv,d.avi" {
		t.Errorf("unexpected videos %v", names)
	}
}

func TestExtract(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	touch(t, filepath.Join(in, "first.mp4"))
	touch(t, filepath.Join(in, "second.mov"))
	touch(t, filepath.Join(in, "third.avi"))

	backend := &fakeBackend{n: 3, fail: map[string]bool{"second.mov": true}}
	var progress []int
	results, err := New(backend, nil, nil).Extract(context.Background(), in, out, func(p Progress) {
		progress = append(progress, p.Current)
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Frames != 3 || results[0].Dir != filepath.Join(out, "Video_01") || results[0].Err != nil {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if results[1].Err == nil {
		t.Error("second video should have failed")
	}
	if results[2].Dir != filepath.Join(out, "Video_03") || results[2].Frames != 3 {
		t.Errorf("numbering must follow list position, got %+v", results[2])
	}
	if _, err := os.Stat(filepath.Join(out, "Video_01", "Video_01_Frame_0003.png")); err != nil {
		t.Errorf("expected frame file: %v", err)
	}
	if len(Failed(results)) != 1 {
		t.Errorf("expected one failure, got %d", len(Failed(results)))
	}
	if fmt.Sprint(progress) != "[1 2 3]" {
		t.Errorf("unexpected progress %v", progress)
	}
}

func TestExtractNoFrames(t *testing.T) {
	in := t.TempDir()
	touch(t, filepath.Join(in, "empty.mp4"))

	results, err := New(&fakeBackend{n: 0}, nil, nil).Extract(context.Background(), in, t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(results[0].Err, ErrNoFrames) {
		t.Errorf("expected ErrNoFrames, got %v", results[0].Err)
	}
}

func TestExtractCancelled(t *testing.T) {
	in := t.TempDir()
	touch(t, filepath.Join(in, "a.mp4"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend := &fakeBackend{n: 1}
	_, err := New(backend, nil, nil).Extract(ctx, in, t.TempDir(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(backend.calls) != 0 {
		t.Error("no video should be processed after cancellation")
	}
}

func TestFFmpegArgs(t *testing.T) {
	f := NewFFmpeg("")
	if f.Binary != "ffmpeg" {
		t.Errorf("unexpected default binary %s", f.Binary)
	}

	args := f.Args("in/clip.mp4", "out/Video_02", "Video_02")
	expected := []string{"-hide_banner", "-loglevel", "error", "-i", "in/clip.mp4",
		filepath.Join("out/Video_02", "Video_02_Frame_%04d.png")}
	if fmt.Sprint(args) != fmt.Sprint(expected) {
		t.Errorf("got %v, want %v", args, expected)
	}
}

func TestFFmpegRunsBinary(t *testing.T) {
	f := NewFFmpeg("/opt/ffmpeg")
	var gotName string
	var gotArgs []string
	f.run = func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}

	if err := f.ExtractVideo(context.Background(), "v.mp4", "d", "Video_01"); err != nil {
		t.Fatal(err)
	}
	if gotName != "/opt/ffmpeg" || gotArgs[4] != "v.mp4" {
		t.Errorf("unexpected invocation %s %v", gotName, gotArgs)
	}
}

func TestFFmpegMissingBinary(t *testing.T) {
	f := NewFFmpeg(filepath.Join(t.TempDir(), "no-such-ffmpeg"))
	if err := f.ExtractVideo(context.Background(), "v.mp4", t.TempDir(), "Video_01"); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend("ffmpeg", "/usr/bin/ffmpeg")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "ffmpeg" || b.(*FFmpeg).Binary != "/usr/bin/ffmpeg" {
		t.Errorf("unexpected backend %+v", b)
	}
	if _, err := NewBackend("vlc", ""); err == nil {
		t.Error("expected error for unknown backend")
	}
}
