// Package opencv provides an ocr.Cleaner backed by OpenCV (gocv). It is only
// compiled in with the "gocv" build tag; without it New reports
// ErrUnavailable and callers keep ocr.ImagingCleaner.
package opencv

import "errors"

// ErrUnavailable is returned by New when the binary lacks OpenCV support.
var ErrUnavailable = errors.New("opencv support not compiled in (build with -tags gocv)")
