package ocr

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// tempPattern matches the images written by Enhancer.
const tempPattern = "ocr-*.png"

// SweepTempFiles removes preprocessed images in dir (os.TempDir() when
// empty) last modified more than olderThan ago. They are normally removed by
// the pipeline; leftovers come from recognitions that never returned or from
// a crashed process.
func SweepTempFiles(dir string, olderThan time.Duration) (int, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || !fi.Mode().IsRegular() || fi.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", m).Msg("remove stale ocr image")
			continue
		}
		removed++
	}
	return removed, nil
}

// RunTempJanitor sweeps dir every interval until ctx is done.
func RunTempJanitor(ctx context.Context, dir string, interval, olderThan time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := SweepTempFiles(dir, olderThan)
			if err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("sweep ocr temp files")
				continue
			}
			if n > 0 {
				log.Info().Int("removed", n).Str("dir", dir).Msg("removed stale ocr images")
			}
		}
	}
}
