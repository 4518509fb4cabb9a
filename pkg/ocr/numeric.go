package ocr

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericRun matches stretches made only of digits, separators and the letters
// Tesseract commonly confuses with digits. Only runs holding a real digit are
// rewritten, so plain words like "TOTAL" or "Bulbs" are left alone.
var numericRun = regexp.MustCompile(`[0-9OlISB.,]+`)

// FixDigitConfusions repairs O->0, l/I->1 inside numeric runs and S->5, B->8
// where the letter touches a digit. Applying it twice is the same as once.
func FixDigitConfusions(line string) string {
	return numericRun.ReplaceAllStringFunc(line, fixRun)
}

func fixRun(run string) string {
	if !strings.ContainsAny(run, "0123456789") {
		return run
	}
	b := []byte(run)
	for i, c := range b {
		switch c {
		case 'O':
			b[i] = '0'
		case 'l', 'I':
			b[i] = '1'
		}
	}
	// S/B only flip when adjacent to a digit; iterate so "SS1" becomes "551".
	for changed := true; changed; {
		changed = false
		for i, c := range b {
			if c != 'S' && c != 'B' {
				continue
			}
			if (i > 0 && isDigit(b[i-1])) || (i+1 < len(b) && isDigit(b[i+1])) {
				if c == 'S' {
					b[i] = '5'
				} else {
					b[i] = '8'
				}
				changed = true
			}
		}
	}
	return string(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// ParseMoney parses "1,234.56" and "1.234,56" style amounts. When both
// separators are present the later one is the decimal point. Commas alone are
// always thousands separators ("2,99" is 299). A lone dot is a decimal point
// unless it repeats ("1.234.567"). Returns NaN when nothing finite remains.
func ParseMoney(raw string) float64 {
	s := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			return r
		}
		return -1
	}, raw)
	if s == "" {
		return math.NaN()
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return math.NaN()
	}
	return v
}

// finite reports whether v is a usable parsed number.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
