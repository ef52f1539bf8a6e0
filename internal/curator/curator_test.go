package curator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/bits"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kozaktomas/photo-curator/internal/config"
	"github.com/kozaktomas/photo-curator/internal/fingerprint"
	"github.com/kozaktomas/photo-curator/internal/storage"
)

// pixelHasher reads the fingerprint from the first eight pixels of row 0,
// so tests control distances exactly.
type pixelHasher struct{}

func (pixelHasher) Algorithm() fingerprint.Algorithm { return fingerprint.PHash }

func (pixelHasher) Fingerprint(img image.Image) (fingerprint.Fingerprint, error) {
	var h uint64
	for x := range 8 {
		g := color.GrayModel.Convert(img.At(x, 0)).(color.Gray)
		h |= uint64(g.Y) << (8 * uint(x))
	}
	return fingerprint.Fingerprint{Algorithm: fingerprint.PHash, Hash: h}, nil
}

// testImage is 64x64 with hash bytes in row 0. A sharp image has a one-pixel
// checkerboard everywhere else, a blurry one is flat.
func testImage(hash uint64, sharp bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 1; y < 64; y++ {
		for x := range 64 {
			v := uint8(128)
			if sharp && (x+y)%2 == 0 {
				v = 255
			} else if sharp {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	for x := range 8 {
		img.SetGray(x, 0, color.Gray{Y: uint8(hash >> (8 * uint(x)))})
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

type inputImage struct {
	hash  uint64
	sharp bool
}

// writeInputs writes img_00.png, img_01.png, ... and returns their paths.
func writeInputs(t *testing.T, dir string, images []inputImage) []string {
	t.Helper()
	paths := make([]string, len(images))
	for i, s := range images {
		paths[i] = filepath.Join(dir, fmt.Sprintf("img_%02d.png", i))
		writePNG(t, paths[i], testImage(s.hash, s.sharp))
	}
	return paths
}

// distinctHash returns hashes with four of eight bytes set to 0xFF; any two
// differ in at least 16 bits.
func distinctHash(i int) uint64 {
	n := 0
	for mask := range 256 {
		if bits.OnesCount(uint(mask)) != 4 {
			continue
		}
		if n == i {
			var h uint64
			for b := range 8 {
				if mask&(1<<b) != 0 {
					h |= 0xFF << (8 * uint(b))
				}
			}
			return h
		}
		n++
	}
	panic("distinctHash index out of range")
}

func testConfig() config.CurationConfig {
	return config.Default().Curation
}

func newTestCurator(t *testing.T, cfg config.CurationConfig, opts Options) *Curator {
	t.Helper()
	c, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.hasher = pixelHasher{}
	return c
}

func sharpInputs(hashes ...uint64) []inputImage {
	images := make([]inputImage, len(hashes))
	for i, h := range hashes {
		images[i] = inputImage{hash: h, sharp: true}
	}
	return images
}

func TestNewRejectsUnknownComponents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.CurationConfig)
	}{
		{"algorithm", func(c *config.CurationConfig) { c.Algorithm = "ahash" }},
		{"index", func(c *config.CurationConfig) { c.Index = "btree" }},
		{"backend", func(c *config.CurationConfig) { c.SharpnessBackend = "magic" }},
	}
	for _, tc := range tests {
		cfg := testConfig()
		tc.mutate(&cfg)
		if _, err := New(cfg, Options{}); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestThreeDissimilarImages(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir, sharpInputs(distinctHash(0), distinctHash(1), distinctHash(2)))

	c := newTestCurator(t, testConfig(), Options{Writer: storage.NewFSWriter(storage.ModeMove, false)})
	res, err := c.Run(context.Background(), dir, dir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	s := res.Summary
	if s.Accepted != 3 || s.Duplicates != 0 || s.Buckets != 1 || s.Processed != 3 {
		t.Errorf("unexpected summary %+v", s)
	}
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("threshold_8_pass_sorted_%05d.png", i)
		if _, err := os.Stat(filepath.Join(dir, "Set_001", name)); err != nil {
			t.Errorf("expected %s in Set_001: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "img_00.png")); !errors.Is(err, os.ErrNotExist) {
		t.Error("source should have been moved")
	}
	if _, err := os.Stat(filepath.Join(dir, "duplicates")); !errors.Is(err, os.ErrNotExist) {
		t.Error("no duplicates directory expected")
	}
}

func TestDistanceFiveDuplicate(t *testing.T) {
	dir := t.TempDir()
	a := distinctHash(0)
	b := a ^ 0b11111
	writeInputs(t, dir, sharpInputs(a, b))

	w := storage.NewMemoryWriter()
	out := filepath.Join(dir, "out")
	c := newTestCurator(t, testConfig(), Options{Writer: w})
	res, err := c.Run(context.Background(), dir, out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if files := w.Files(filepath.Join(out, "Set_001")); len(files) != 1 || files[0] != "threshold_8_pass_sorted_00001.png" {
		t.Errorf("unexpected accepted files %v", files)
	}
	if files := w.Files(filepath.Join(out, "duplicates")); len(files) != 1 || files[0] != "threshold_8_failed_duplicate_00001.png" {
		t.Errorf("unexpected duplicate files %v", files)
	}

	d := res.Decisions[1]
	if d.Outcome != OutcomeDuplicate || d.MatchDistance != 5 || filepath.Base(d.MatchedSource) != "img_00.png" {
		t.Errorf("unexpected duplicate decision %+v", d)
	}
}

func TestBucketsFill(t *testing.T) {
	dir := t.TempDir()
	hashes := make([]uint64, 10)
	for i := range hashes {
		hashes[i] = distinctHash(i)
	}
	writeInputs(t, dir, sharpInputs(hashes...))

	cfg := testConfig()
	cfg.BucketCapacity = 4
	w := storage.NewMemoryWriter()
	c := newTestCurator(t, cfg, Options{Writer: w})
	res, err := c.Run(context.Background(), dir, "out")
	if err != nil {
		t.Fatal(err)
	}

	expected := map[string][]string{
		"Set_001": {"00001", "00002", "00003", "00004"},
		"Set_002": {"00005", "00006", "00007", "00008"},
		"Set_003": {"00009", "00010"},
	}
	for bucket, seqs := range expected {
		files := w.Files(filepath.Join("out", bucket))
		if len(files) != len(seqs) {
			t.Fatalf("%s holds %v", bucket, files)
		}
		for i, seq := range seqs {
			if files[i] != "threshold_8_pass_sorted_"+seq+".png" {
				t.Errorf("%s[%d] = %s", bucket, i, files[i])
			}
		}
	}
	if res.Summary.Buckets != 3 {
		t.Errorf("expected 3 buckets, got %d", res.Summary.Buckets)
	}
}

func TestUnreadableFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	hashes := make([]uint64, 9)
	for i := range hashes {
		hashes[i] = distinctHash(i)
	}
	writeInputs(t, dir, sharpInputs(hashes...))
	if err := os.WriteFile(filepath.Join(dir, "img_04x.png"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	w := storage.NewMemoryWriter()
	c := newTestCurator(t, testConfig(), Options{Writer: w})
	res, err := c.Run(context.Background(), dir, "out")
	if err != nil {
		t.Fatal(err)
	}

	s := res.Summary
	if s.Total != 10 || s.Processed != 9 || s.Skipped != 1 || s.Accepted+s.Duplicates != 9 {
		t.Errorf("unexpected summary %+v", s)
	}

	var skipped *Decision
	for i := range res.Decisions {
		if res.Decisions[i].Outcome == OutcomeSkipped {
			skipped = &res.Decisions[i]
		}
	}
	if skipped == nil || filepath.Base(skipped.Source) != "img_04x.png" {
		t.Fatalf("expected img_04x.png to be skipped, got %+v", skipped)
	}
	var decodeErr *DecodeError
	if !errors.As(skipped.Err, &decodeErr) {
		t.Errorf("expected DecodeError, got %v", skipped.Err)
	}
	if skipped.Placement != nil {
		t.Error("skipped image must not consume a placement")
	}

	// Sequence numbers stay contiguous across the skipped file.
	files := w.Files(filepath.Join("out", "Set_001"))
	if len(files) != 9 || files[8] != "threshold_8_pass_sorted_00009.png" {
		t.Errorf("unexpected accepted files %v", files)
	}
}

func TestFailedMoveConsumesNothing(t *testing.T) {
	dir := t.TempDir()
	a, b, c2 := distinctHash(0), distinctHash(1), distinctHash(2)
	paths := writeInputs(t, dir, sharpInputs(a, b, c2, b))

	w := storage.NewMemoryWriter()
	w.FailOn(paths[1], errors.New("disk full"))

	c := newTestCurator(t, testConfig(), Options{Writer: w})
	res, err := c.Run(context.Background(), dir, "out")
	if err != nil {
		t.Fatal(err)
	}

	outcomes := []Outcome{OutcomeAccepted, OutcomeFailed, OutcomeAccepted, OutcomeAccepted}
	for i, want := range outcomes {
		if res.Decisions[i].Outcome != want {
			t.Errorf("image %d: got %s, want %s", i, res.Decisions[i].Outcome, want)
		}
	}

	var ioErr *IOError
	if !errors.As(res.Decisions[1].Err, &ioErr) {
		t.Errorf("expected IOError, got %v", res.Decisions[1].Err)
	}

	// img_02 takes the number img_01 could not use, and img_03 (same
	// fingerprint as the failed img_01) is not a duplicate.
	files := w.Files(filepath.Join("out", "Set_001"))
	expected := []string{
		"threshold_8_pass_sorted_00001.png",
		"threshold_8_pass_sorted_00002.png",
		"threshold_8_pass_sorted_00003.png",
	}
	if fmt.Sprint(files) != fmt.Sprint(expected) {
		t.Errorf("got %v, want %v", files, expected)
	}
	if res.Summary.Failed != 1 || res.Summary.Accepted != 3 {
		t.Errorf("unexpected summary %+v", res.Summary)
	}
}

func TestBlurryDiscarded(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir, []inputImage{
		{hash: distinctHash(0), sharp: true},
		{hash: distinctHash(1), sharp: false},
		{hash: distinctHash(2), sharp: true},
	})

	w := storage.NewMemoryWriter()
	c := newTestCurator(t, testConfig(), Options{Writer: w})
	res, err := c.Run(context.Background(), dir, "out")
	if err != nil {
		t.Fatal(err)
	}

	d := res.Decisions[1]
	if d.Outcome != OutcomeBlurry || !d.SharpnessChecked || d.Sharpness != 0 || d.Fingerprint != nil {
		t.Errorf("unexpected blurry decision %+v", d)
	}
	if len(w.Ops()) != 2 {
		t.Errorf("blurry image must stay in place, ops %v", w.Ops())
	}
	files := w.Files(filepath.Join("out", "Set_001"))
	if len(files) != 2 || files[1] != "threshold_8_pass_sorted_00002.png" {
		t.Errorf("blurry image must not consume a sequence number: %v", files)
	}
	if res.Summary.Blurry != 1 || res.Summary.Processed != 3 {
		t.Errorf("unexpected summary %+v", res.Summary)
	}
}

func TestBlurryMoved(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir, []inputImage{{hash: distinctHash(0), sharp: false}})

	cfg := testConfig()
	cfg.BlurryAction = config.BlurryMove
	w := storage.NewMemoryWriter()
	c := newTestCurator(t, cfg, Options{Writer: w})
	res, err := c.Run(context.Background(), dir, "out")
	if err != nil {
		t.Fatal(err)
	}

	if files := w.Files(filepath.Join("out", "blurry")); len(files) != 1 || files[0] != "img_00.png" {
		t.Errorf("expected original name in blurry sink, got %v", files)
	}
	if res.Decisions[0].Destination != filepath.Join("out", "blurry", "img_00.png") {
		t.Errorf("unexpected destination %s", res.Decisions[0].Destination)
	}
}

func TestSharpnessFilterDisabled(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir, []inputImage{{hash: distinctHash(0), sharp: false}})

	cfg := testConfig()
	cfg.SharpnessFilter = false
	w := storage.NewMemoryWriter()
	c := newTestCurator(t, cfg, Options{Writer: w})
	res, err := c.Run(context.Background(), dir, "out")
	if err != nil {
		t.Fatal(err)
	}

	d := res.Decisions[0]
	if d.Outcome != OutcomeAccepted || d.SharpnessChecked {
		t.Errorf("flat image should be accepted unchecked, got %+v", d)
	}
}

func TestWorkersMatchSequential(t *testing.T) {
	dir := t.TempDir()
	var images []inputImage
	for i := range 30 {
		h := distinctHash(i % 12)
		if i%5 == 0 {
			h ^= 0b111
		}
		images = append(images, inputImage{hash: h, sharp: i%7 != 3})
	}
	writeInputs(t, dir, images)

	runWith := func(workers int) []string {
		cfg := testConfig()
		cfg.Workers = workers
		c := newTestCurator(t, cfg, Options{Writer: storage.NewMemoryWriter()})
		res, err := c.Run(context.Background(), dir, "out")
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		var out []string
		for _, d := range res.Decisions {
			dst := ""
			if d.Placement != nil {
				dst = d.Placement.Path()
			}
			out = append(out, fmt.Sprintf("%s:%s:%s", filepath.Base(d.Source), d.Outcome, dst))
		}
		return out
	}

	sequential := runWith(1)
	for _, workers := range []int{2, 4, 9} {
		if got := runWith(workers); fmt.Sprint(got) != fmt.Sprint(sequential) {
			t.Errorf("workers=%d differs:\n%v\n%v", workers, got, sequential)
		}
	}
}

func TestCancellation(t *testing.T) {
	dir := t.TempDir()
	hashes := make([]uint64, 6)
	for i := range hashes {
		hashes[i] = distinctHash(i)
	}
	writeInputs(t, dir, sharpInputs(hashes...))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestCurator(t, testConfig(), Options{
		Writer: storage.NewMemoryWriter(),
		OnProgress: func(p ProgressInfo) {
			if p.Current == 3 {
				cancel()
			}
		},
	})
	res, err := c.Run(ctx, dir, "out")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res == nil || len(res.Decisions) != 3 || res.Summary.Accepted != 3 {
		t.Errorf("expected a partial result of 3 images, got %+v", res)
	}
}

type recorder struct {
	mu        sync.Mutex
	decisions []Decision
	err       error
}

func (r *recorder) Record(_ context.Context, d Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
	return r.err
}

func TestRecorderSeesEveryDecision(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir, sharpInputs(distinctHash(0), distinctHash(0), distinctHash(1)))

	rec := &recorder{err: errors.New("journal offline")}
	c := newTestCurator(t, testConfig(), Options{Writer: storage.NewMemoryWriter(), Recorder: rec})
	res, err := c.Run(context.Background(), dir, "out")
	if err != nil {
		t.Fatalf("recorder failures must not abort the run: %v", err)
	}
	if len(rec.decisions) != 3 {
		t.Fatalf("expected 3 recorded decisions, got %d", len(rec.decisions))
	}
	if rec.decisions[1].Outcome != OutcomeDuplicate || res.Summary.Duplicates != 1 {
		t.Errorf("unexpected recorded decision %+v", rec.decisions[1])
	}
}

func TestDryRunLeavesFiles(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, sharpInputs(distinctHash(0), distinctHash(1)))

	w := storage.NewDryRunWriter(nil)
	c := newTestCurator(t, testConfig(), Options{Writer: w})
	if _, err := c.Run(context.Background(), dir, dir); err != nil {
		t.Fatal(err)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("dry run moved %s", p)
		}
	}
	if len(w.Ops()) != 2 {
		t.Errorf("expected 2 planned ops, got %d", len(w.Ops()))
	}
}

func TestRealFingerprintsCatchCopies(t *testing.T) {
	dir := t.TempDir()
	sharp := testImage(0, true)
	for x := range 64 {
		for y := range 32 {
			sharp.SetGray(x, y, color.Gray{Y: 20})
		}
	}
	writePNG(t, filepath.Join(dir, "a.png"), sharp)
	writePNG(t, filepath.Join(dir, "b.png"), sharp)
	writePNG(t, filepath.Join(dir, "c.png"), testImage(0, false))

	w := storage.NewMemoryWriter()
	c, err := New(testConfig(), Options{Writer: w})
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Run(context.Background(), dir, "out")
	if err != nil {
		t.Fatal(err)
	}

	outcomes := []Outcome{OutcomeAccepted, OutcomeDuplicate, OutcomeBlurry}
	for i, want := range outcomes {
		if res.Decisions[i].Outcome != want {
			t.Errorf("%s: got %s, want %s", res.Decisions[i].Source, res.Decisions[i].Outcome, want)
		}
	}
	if res.Decisions[1].MatchDistance != 0 {
		t.Errorf("identical copy should match at distance 0, got %d", res.Decisions[1].MatchDistance)
	}
}

func TestFilter(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir, []inputImage{
		{hash: 1, sharp: true},
		{hash: 2, sharp: false},
		{hash: 3, sharp: true},
	})
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "FilteredImages")
	var phases []string
	c := newTestCurator(t, testConfig(), Options{
		Writer:     storage.NewFSWriter(storage.ModeCopy, false),
		OnProgress: func(p ProgressInfo) { phases = append(phases, p.Phase) },
	})
	summary, err := c.Filter(context.Background(), dir, out)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Total != 4 || summary.Sharp != 2 || summary.Blurry != 1 || summary.Skipped != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	for _, name := range []string{"img_00.png", "img_02.png"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("expected %s to be copied: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "img_01.png")); !errors.Is(err, os.ErrNotExist) {
		t.Error("blurry image must not be copied")
	}
	if _, err := os.Stat(filepath.Join(dir, "img_00.png")); err != nil {
		t.Error("copy mode must keep the source")
	}
	if len(phases) != 4 || phases[0] != "filtering" {
		t.Errorf("unexpected progress phases %v", phases)
	}
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("boom")

	d := &DecodeError{Path: "a.png", Err: cause}
	if !errors.Is(d, cause) || d.Error() != "decoding a.png: boom" {
		t.Errorf("unexpected DecodeError %q", d.Error())
	}

	io := &IOError{Path: "a.png", Destination: "out/x.png", Err: cause}
	if !errors.Is(io, cause) || io.Error() != "placing a.png at out/x.png: boom" {
		t.Errorf("unexpected IOError %q", io.Error())
	}
}

func TestFailedMoveLeavesNameFree(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can remove files from read-only directories")
	}
	dir := t.TempDir()
	roDir := filepath.Join(dir, "ro")
	if err := os.Mkdir(roDir, 0755); err != nil {
		t.Fatal(err)
	}
	locked := filepath.Join(roDir, "a.png")
	writePNG(t, locked, testImage(distinctHash(0), true))
	if err := os.Chmod(roDir, 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(roDir, 0755) })

	rest := writeInputs(t, dir, sharpInputs(distinctHash(1), distinctHash(2)))
	paths := append([]string{locked}, rest...)

	out := filepath.Join(dir, "out")
	c := newTestCurator(t, testConfig(), Options{Writer: storage.NewFSWriter(storage.ModeMove, false)})
	res, err := c.RunPaths(context.Background(), paths, out)
	if err != nil {
		t.Fatal(err)
	}

	if res.Summary.Failed != 1 || res.Summary.Accepted != 2 {
		t.Errorf("unexpected summary %+v", res.Summary)
	}
	entries, err := os.ReadDir(filepath.Join(out, "Set_001"))
	if err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	expected := []string{"threshold_8_pass_sorted_00001.png", "threshold_8_pass_sorted_00002.png"}
	if fmt.Sprint(files) != fmt.Sprint(expected) {
		t.Errorf("got %v, want %v", files, expected)
	}
	if _, err := os.Stat(locked); err != nil {
		t.Error("source of the failed move must stay in place")
	}
}

// cancellingWriter cancels the run while placing the image at cancelOn.
type cancellingWriter struct {
	*storage.MemoryWriter
	cancelOn string
	cancel   context.CancelFunc
}

func (w *cancellingWriter) Place(ctx context.Context, src, dir, name string) (string, error) {
	if src == w.cancelOn {
		w.cancel()
		return "", ctx.Err()
	}
	return w.MemoryWriter.Place(ctx, src, dir, name)
}

func TestCancelDuringPlaceIsNotAFailure(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, sharpInputs(distinctHash(0), distinctHash(1), distinctHash(2)))

	tests := []struct {
		name     string
		cancelOn string
		want     int
	}{
		{name: "middle image", cancelOn: paths[1], want: 1},
		{name: "last image", cancelOn: paths[2], want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			w := &cancellingWriter{MemoryWriter: storage.NewMemoryWriter(), cancelOn: tt.cancelOn, cancel: cancel}
			c := newTestCurator(t, testConfig(), Options{Writer: w})
			res, err := c.RunPaths(ctx, paths, "out")
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
			if res.Summary.Failed != 0 {
				t.Errorf("cancellation counted as failure: %+v", res.Summary)
			}
			if len(res.Decisions) != tt.want || res.Summary.Accepted != tt.want {
				t.Errorf("expected %d decisions, got %+v", tt.want, res.Summary)
			}
		})
	}
}
