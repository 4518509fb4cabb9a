//go:build !gocv

package opencv

import "homeledger/pkg/ocr"

// Available reports whether OpenCV support was compiled in.
func Available() bool { return false }

// New reports ErrUnavailable.
func New() (ocr.Cleaner, error) { return nil, ErrUnavailable }
