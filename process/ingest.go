// Package process ingests receipt images dropped into a directory: it runs the
// OCR pipeline on every new file with a worker pool and stores the results.
package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"homeledger/pkg/ocr"
)

// Runner is the part of *ocr.Pipeline the ingester needs.
type Runner interface {
	Run(ctx context.Context, in ocr.Input) (*ocr.Result, error)
}

// Store persists pipeline results keyed by image location.
type Store interface {
	Seen(imageURL string) bool
	Save(ctx context.Context, imageURL string, res *ocr.Result) error
}

// Stats counts what a scan did.
type Stats struct {
	Processed int64
	Skipped   int64
	Failed    int64
}

// Ingester processes a directory of receipt images.
type Ingester struct {
	Dir string
	// ProcessedDir receives files after OCR; empty leaves them in place.
	ProcessedDir string
	// MaxProcessedBytes bounds the size of moved images (0 = 1 MB).
	MaxProcessedBytes int64
	Workers           int
	// DryRun runs OCR and logs the items without storing or moving anything.
	DryRun bool
	Runner Runner
	Store  Store

	processed, skipped, failed atomic.Int64
}

// Stats returns the counters accumulated so far.
func (in *Ingester) Stats() Stats {
	return Stats{Processed: in.processed.Load(), Skipped: in.skipped.Load(), Failed: in.failed.Load()}
}

// Scan processes every supported file currently in Dir and returns when done.
func (in *Ingester) Scan(ctx context.Context) Stats {
	files := ListImageFiles(in.Dir)
	log.Info().Str("dir", in.Dir).Int("files", len(files)).Int("workers", in.workers()).Msg("scanning receipts")
	ch := make(chan string, len(files))
	for _, f := range files {
		ch <- f
	}
	close(ch)
	in.runWorkerPool(ctx, ch)
	return in.Stats()
}

func (in *Ingester) workers() int {
	if in.Workers <= 0 {
		return runtime.NumCPU()
	}
	return in.Workers
}

// runWorkerPool drains names with a fixed number of workers until the
// channel is closed. Names still queued after ctx ends are dropped.
func (in *Ingester) runWorkerPool(ctx context.Context, names <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < in.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range names {
				if ctx.Err() != nil {
					continue
				}
				in.processFile(ctx, name)
			}
		}()
	}
	wg.Wait()
}

func (in *Ingester) processFile(ctx context.Context, name string) {
	src := filepath.Join(in.Dir, name)
	url := filepath.ToSlash(src)
	if in.ProcessedDir != "" {
		url = filepath.ToSlash(filepath.Join(in.ProcessedDir, name))
	}
	if !in.DryRun && (in.Store.Seen(url) || in.Store.Seen(filepath.ToSlash(src))) {
		log.Debug().Str("file", name).Msg("skip: receipt already stored")
		in.skipped.Add(1)
		return
	}

	res, err := in.Runner.Run(ctx, ocr.Input{ImagePath: src})
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("ocr failed")
		in.failed.Add(1)
		return
	}
	if in.DryRun {
		log.Info().Str("file", name).Int("items", len(res.Items)).Bool("timed_out", res.TimedOut).Msg("dry-run receipt")
		for _, it := range res.Items {
			log.Debug().Str("file", name).Str("item", it.Name).Float64("qty", it.Quantity).Float64("unit_price", it.UnitPrice).Msg("dry-run item")
		}
		in.processed.Add(1)
		return
	}

	if in.ProcessedDir != "" {
		if err := MoveToProcessed(src, in.ProcessedDir, name, in.MaxProcessedBytes); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("failed to move processed file")
			url = filepath.ToSlash(src)
		}
	}
	if err := in.Store.Save(ctx, url, res); err != nil {
		log.Error().Err(err).Str("file", name).Msg("store receipt failed")
		in.failed.Add(1)
		return
	}
	in.processed.Add(1)
	log.Info().Str("file", name).Str("image_url", url).Int("items", len(res.Items)).Msg("receipt ingested")
}

// ListImageFiles returns the supported image names in dir, sorted.
func ListImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("read dir")
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// IsSupportedExt reports whether name looks like a receipt image. Hidden
// files and pipeline temp images are ignored.
func IsSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "ocr-") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}
