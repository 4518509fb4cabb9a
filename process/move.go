package process

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

const defaultMaxProcessedBytes = 1_000_000

// MoveToProcessed moves src to dstDir/name. Images larger than maxBytes are
// downscaled on the way; anything that cannot be decoded is moved as is.
func MoveToProcessed(src, dstDir, name string, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = defaultMaxProcessedBytes
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dstDir, name)

	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.Size() <= maxBytes {
		return moveFile(src, dst)
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return moveFile(src, dst)
	}
	// encoded size roughly follows pixel area
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	img = imaging.Resize(img, w, 0, imaging.Lanczos)
	if err := imaging.Save(img, dst); err != nil {
		_ = os.Remove(dst)
		return moveFile(src, dst)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove original: %w", err)
	}
	return nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
