package process

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeledger/pkg/ocr"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, in ocr.Input) (*ocr.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filepath.Base(in.ImagePath))
	if f.fail[filepath.Base(in.ImagePath)] {
		return nil, ocr.ErrMissingInput
	}
	return &ocr.Result{Items: []ocr.Item{{Name: "Milk", Quantity: 1, UnitPrice: 2.99}}}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memStore struct {
	mu    sync.Mutex
	saved map[string]*ocr.Result
	err   error
}

func newMemStore(urls ...string) *memStore {
	s := &memStore{saved: map[string]*ocr.Result{}}
	for _, u := range urls {
		s.saved[u] = &ocr.Result{}
	}
	return s
}

func (s *memStore) Seen(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.saved[url]
	return ok
}

func (s *memStore) Save(_ context.Context, url string, res *ocr.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved[url] = res
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
}

func TestIsSupportedExt(t *testing.T) {
	for _, n := range []string{"a.jpg", "B.JPEG", "c.png", "d.webp", "e.tiff", "f.bmp", "g.gif"} {
		assert.True(t, IsSupportedExt(n), n)
	}
	for _, n := range []string{"notes.txt", "scan.pdf", ".hidden.jpg", "ocr-123.png", "noext"} {
		assert.False(t, IsSupportedExt(n), n)
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.jpg", "a.png", "readme.md")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))

	assert.Equal(t, []string{"a.png", "b.jpg"}, ListImageFiles(dir))
	assert.Nil(t, ListImageFiles(filepath.Join(dir, "missing")))
}

func TestScanStoresEveryFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "1.jpg", "2.jpg", "3.jpg", "4.png", "5.webp")
	runner := &fakeRunner{fail: map[string]bool{"3.jpg": true}}
	store := newMemStore(filepath.ToSlash(filepath.Join(dir, "2.jpg")))

	in := &Ingester{Dir: dir, Workers: 3, Runner: runner, Store: store}
	stats := in.Scan(context.Background())

	assert.Equal(t, Stats{Processed: 3, Skipped: 1, Failed: 1}, stats)
	assert.Equal(t, 4, runner.count())
	assert.Equal(t, 4, store.len())
	assert.True(t, store.Seen(filepath.ToSlash(filepath.Join(dir, "5.webp"))))
}

func TestScanDryRunStoresNothing(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "1.jpg", "2.jpg")
	store := newMemStore()
	in := &Ingester{Dir: dir, Workers: 1, DryRun: true, ProcessedDir: filepath.Join(dir, "done"), Runner: &fakeRunner{}, Store: store}

	stats := in.Scan(context.Background())
	assert.Equal(t, int64(2), stats.Processed)
	assert.Zero(t, store.len())
	assert.FileExists(t, filepath.Join(dir, "1.jpg"))
}

func TestScanMovesToProcessedDir(t *testing.T) {
	dir := t.TempDir()
	done := filepath.Join(t.TempDir(), "processed")
	touch(t, dir, "r.jpg")
	store := newMemStore()
	in := &Ingester{Dir: dir, ProcessedDir: done, Workers: 1, Runner: &fakeRunner{}, Store: store}

	in.Scan(context.Background())
	assert.NoFileExists(t, filepath.Join(dir, "r.jpg"))
	assert.FileExists(t, filepath.Join(done, "r.jpg"))
	assert.True(t, store.Seen(filepath.ToSlash(filepath.Join(done, "r.jpg"))))

	// a second scan finds nothing left to do
	stats := in.Scan(context.Background())
	assert.Equal(t, int64(1), stats.Processed)
}

func TestScanStoreFailure(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "r.jpg")
	store := newMemStore()
	store.err = errors.New("db down")
	in := &Ingester{Dir: dir, Workers: 1, Runner: &fakeRunner{}, Store: store}

	assert.Equal(t, Stats{Failed: 1}, in.Scan(context.Background()))
}

func TestScanCancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "1.jpg", "2.jpg")
	runner := &fakeRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := &Ingester{Dir: dir, Workers: 2, Runner: runner, Store: newMemStore()}
	in.Scan(ctx)
	assert.Zero(t, runner.count())
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "existing.jpg")
	store := newMemStore()
	in := &Ingester{Dir: dir, Workers: 2, Runner: &fakeRunner{}, Store: store}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- in.Watch(ctx) }()

	require.Eventually(t, func() bool { return store.len() == 1 }, 5*time.Second, 20*time.Millisecond)
	touch(t, dir, "new.png", "ignored.txt")
	require.Eventually(t, func() bool {
		return store.Seen(filepath.ToSlash(filepath.Join(dir, "new.png")))
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Equal(t, 2, store.len())
}

func TestMoveToProcessedSmallFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(src, []byte("tiny"), 0o644))
	dst := t.TempDir()

	require.NoError(t, MoveToProcessed(src, dst, "a.jpg", 0))
	assert.NoFileExists(t, src)
	b, err := os.ReadFile(filepath.Join(dst, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(b))

	assert.Error(t, MoveToProcessed(src, dst, "a.jpg", 0))
}

func TestMoveToProcessedDownscalesLargeImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * y), G: uint8(x + y), B: uint8(x ^ y), A: 255})
		}
	}
	src := filepath.Join(t.TempDir(), "big.png")
	require.NoError(t, imaging.Save(img, src))
	fi, err := os.Stat(src)
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, MoveToProcessed(src, dst, "big.png", fi.Size()/4))
	assert.NoFileExists(t, src)

	out, err := imaging.Open(filepath.Join(dst, "big.png"))
	require.NoError(t, err)
	assert.Less(t, out.Bounds().Dx(), 400)
}
