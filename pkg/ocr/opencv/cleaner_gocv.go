//go:build gocv

package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"homeledger/pkg/ocr"
)

// Available reports whether OpenCV support was compiled in.
func Available() bool { return true }

// Cleaner runs min-max normalization, median blur and a binary threshold
// with OpenCV.
type Cleaner struct {
	version string
}

// New returns the OpenCV cleaner.
func New() (ocr.Cleaner, error) {
	return &Cleaner{version: gocv.OpenCVVersion()}, nil
}

func (c *Cleaner) Name() string { return "opencv " + c.version }

func (c *Cleaner) Clean(gray *image.NRGBA, threshold uint8, medianRadius int) (image.Image, error) {
	b := gray.Bounds()
	if gray.Stride != 4*b.Dx() {
		return nil, fmt.Errorf("unexpected stride %d for width %d", gray.Stride, b.Dx())
	}
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, gray.Pix)
	if err != nil {
		return nil, fmt.Errorf("new mat: %w", err)
	}
	defer src.Close()

	g := gocv.NewMat()
	defer g.Close()
	gocv.CvtColor(src, &g, gocv.ColorRGBAToGray)

	stretched := gocv.NewMat()
	defer stretched.Close()
	gocv.Normalize(g, &stretched, 0, 255, gocv.NormMinMax)

	denoised := gocv.NewMat()
	defer denoised.Close()
	if medianRadius > 0 {
		gocv.MedianBlur(stretched, &denoised, 2*medianRadius+1)
	} else {
		stretched.CopyTo(&denoised)
	}

	// ThresholdBinary keeps v > thresh; levels >= threshold are white
	bw := gocv.NewMat()
	defer bw.Close()
	gocv.Threshold(denoised, &bw, float32(threshold)-1, 255, gocv.ThresholdBinary)

	out, err := bw.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	return out, nil
}
