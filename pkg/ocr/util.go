package ocr

import "unicode/utf8"

// snippet returns a shortened version of text for logging and transport,
// never splitting a UTF-8 sequence.
func snippet(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
