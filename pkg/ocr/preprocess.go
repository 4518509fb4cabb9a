package ocr

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	// WEBP uploads; imaging already registers JPEG/PNG/GIF/BMP/TIFF.
	_ "golang.org/x/image/webp"
)

// Preprocessor turns an uploaded photo into something the recognition engine
// reads well. Implementations never fail: on any problem they return the
// original path. A returned path different from the input is a temp file the
// caller must delete.
type Preprocessor interface {
	Preprocess(ctx context.Context, path string) string
}

// Passthrough is the Preprocessor used when image enhancement is disabled.
type Passthrough struct{}

func (Passthrough) Preprocess(_ context.Context, path string) string { return path }

// Cleaner runs the contrast stretch, denoise and threshold stages on a
// grayscale image. The returned image must be bilevel.
type Cleaner interface {
	Name() string
	Clean(gray *image.NRGBA, threshold uint8, medianRadius int) (image.Image, error)
}

// ImagingCleaner is the pure Go Cleaner. It is the default and the fallback
// when no native image library was compiled in.
type ImagingCleaner struct{}

func (ImagingCleaner) Name() string { return "imaging" }

func (ImagingCleaner) Clean(gray *image.NRGBA, threshold uint8, medianRadius int) (image.Image, error) {
	gray = stretchContrast(gray)
	gray = medianFilter(gray, medianRadius)
	return binarize(gray, threshold), nil
}

// Enhancer upscales, reorients and grayscales an image, hands it to its
// Cleaner and writes the result as a PNG temp file.
type Enhancer struct {
	minWidth     int
	maxWidth     int
	threshold    uint8
	medianRadius int
	tempDir      string
	metrics      *Metrics
	cleaner      Cleaner

	// decode is swapped in tests to simulate a broken image library.
	decode func(path string) (image.Image, error)
}

// EnhancerOption customizes an Enhancer.
type EnhancerOption func(*Enhancer)

// WithCleaner replaces ImagingCleaner. A nil c is ignored.
func WithCleaner(c Cleaner) EnhancerOption {
	return func(e *Enhancer) {
		if c != nil {
			e.cleaner = c
		}
	}
}

// NewEnhancer builds an Enhancer from the preprocessing fields of cfg.
func NewEnhancer(cfg Config, m *Metrics, opts ...EnhancerOption) *Enhancer {
	cfg = cfg.withDefaults()
	e := &Enhancer{
		minWidth:     cfg.MinWidth,
		maxWidth:     cfg.MaxWidth,
		threshold:    cfg.Threshold,
		medianRadius: cfg.MedianRadius,
		tempDir:      cfg.TempDir,
		metrics:      m,
		cleaner:      ImagingCleaner{},
		decode: func(path string) (image.Image, error) {
			return imaging.Open(path, imaging.AutoOrientation(true))
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CleanerName reports which Cleaner the enhancer uses.
func (e *Enhancer) CleanerName() string { return e.cleaner.Name() }

// Preprocess returns the path of the enhanced image, or path itself when
// anything goes wrong (including a panic inside the image code).
func (e *Enhancer) Preprocess(ctx context.Context, path string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("path", path).Interface("panic", r).Msg("ocr preprocess panicked; using original image")
			e.metrics.preprocessFallback()
			out = path
		}
	}()
	if ctx.Err() != nil {
		return path
	}
	prepped, err := e.enhance(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("ocr preprocess failed; using original image")
		e.metrics.preprocessFallback()
		return path
	}
	return prepped
}

func (e *Enhancer) enhance(path string) (string, error) {
	img, err := e.decode(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	w := img.Bounds().Dx()
	if w == 0 || img.Bounds().Dy() == 0 {
		return "", fmt.Errorf("empty image %dx%d", w, img.Bounds().Dy())
	}
	// small receipt photos recognize poorly at native resolution
	if w < e.minWidth {
		target := w * 2
		if target > e.maxWidth {
			target = e.maxWidth
		}
		img = imaging.Resize(img, target, 0, imaging.Lanczos)
	}
	bw, err := e.cleaner.Clean(imaging.Grayscale(img), e.threshold, e.medianRadius)
	if err != nil {
		return "", fmt.Errorf("clean image with %s: %w", e.cleaner.Name(), err)
	}

	dir := e.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	out := filepath.Join(dir, "ocr-"+uuid.NewString()+".png")
	if err := imaging.Save(bw, out, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("save preprocessed image: %w", err)
	}
	return out, nil
}

// stretchContrast maps the 1st..99th percentile of gray levels onto 0..255.
// The input must be grayscale (R == G == B).
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	var hist [256]int
	for i := 0; i < len(img.Pix); i += 4 {
		hist[img.Pix[i]]++
	}
	total := len(img.Pix) / 4
	cut := total / 100
	lo, hi := 0, 255
	for acc := 0; lo < 255; lo++ {
		acc += hist[lo]
		if acc > cut {
			break
		}
	}
	for acc := 0; hi > 0; hi-- {
		acc += hist[hi]
		if acc > cut {
			break
		}
	}
	if hi <= lo {
		return img
	}
	scale := 255.0 / float64(hi-lo)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := (float64(c.R) - float64(lo)) * scale
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		g := uint8(v + 0.5)
		return color.NRGBA{R: g, G: g, B: g, A: c.A}
	})
}

// medianFilter is a square median denoise over the red channel of a grayscale image.
func medianFilter(img *image.NRGBA, radius int) *image.NRGBA {
	if radius <= 0 {
		return img
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	window := make([]int, 0, (2*radius+1)*(2*radius+1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					window = append(window, int(img.Pix[yy*img.Stride+xx*4]))
				}
			}
			sort.Ints(window)
			v := uint8(window[len(window)/2])
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = v, v, v, 255
		}
	}
	return out
}

// binarize performs a global threshold on a grayscale image: levels below
// threshold become black, everything else white.
func binarize(img *image.NRGBA, threshold uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if c.R < threshold {
			return color.NRGBA{A: 255}
		}
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	})
}
