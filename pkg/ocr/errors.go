package ocr

import "errors"

// ErrMissingInput is returned when the image path does not name a readable
// regular file. It is the only error Pipeline.Run reports; OCR failures
// themselves produce an empty result instead.
var ErrMissingInput = errors.New("receipt image missing")
