package ocr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Item is one parsed receipt line. UnitPrice is never negative: discount
// lines such as "Coupon -1.00" match no pattern and are dropped.
type Item struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// key identifies an item for de-duplication across passes.
func (it Item) key() string {
	return it.Name + "|" + strconv.FormatFloat(it.Quantity, 'g', -1, 64) + "|" + strconv.FormatFloat(it.UnitPrice, 'g', -1, 64)
}

var (
	lineBreakRE  = regexp.MustCompile(`\r\n|\r|\n`)
	multiSpaceRE = regexp.MustCompile(`[ \t]{2,}`)
	currencyRE   = regexp.MustCompile(`[$€£]`)
	timesRE      = regexp.MustCompile(`[×*@]`)

	// name qty x price: "Bananas 2 x 0.59"
	qtyTimesPriceRE = regexp.MustCompile(`(?i)^(.+?)\s+(\d+(?:[.,]\d+)?)\s*x\s*(\d+(?:[.,]\d+)*)(?:\s|$)`)
	// qty name price: "2 Apples 1.29"
	leadingQtyRE = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)\s+(.+?)\s+(\d+(?:[.,]\d+)*)(?:\s|$)`)
	// name price: "Milk 2.99"
	namePriceRE = regexp.MustCompile(`^(.+?)\s+(\d+(?:[.,]\d+)*)(?:\s|$)`)
)

// lineMatcher extracts an item from one normalized line or reports no match.
type lineMatcher func(line string) (Item, bool)

// Parser turns merged OCR text into receipt line items. It is safe for
// concurrent use; it holds no mutable state.
type Parser struct {
	noise    *regexp.Regexp
	maxItems int
	matchers []lineMatcher
}

// NewParser compiles noisePattern (DefaultNoisePattern when empty) and caps
// results at maxItems (DefaultMaxItems when <= 0).
func NewParser(noisePattern string, maxItems int) (*Parser, error) {
	if noisePattern == "" {
		noisePattern = DefaultNoisePattern
	}
	noise, err := regexp.Compile(noisePattern)
	if err != nil {
		return nil, fmt.Errorf("compile noise pattern: %w", err)
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Parser{
		noise:    noise,
		maxItems: maxItems,
		// Most specific first; name-price accepts almost anything with a number.
		matchers: []lineMatcher{matchQtyTimesPrice, matchLeadingQty, matchNamePrice},
	}, nil
}

var defaultParser, _ = NewParser(DefaultNoisePattern, DefaultMaxItems)

// ParseReceiptText parses text with the default noise pattern and item cap.
func ParseReceiptText(text string) []Item {
	return defaultParser.Parse(text)
}

// Parse returns items in first-occurrence order, de-duplicated on
// (name, quantity, unitPrice) and truncated to the configured maximum.
// Lines that match no pattern are dropped silently.
func (p *Parser) Parse(text string) []Item {
	out := []Item{}
	seen := map[string]struct{}{}
	for _, line := range splitLines(text) {
		if p.noise.MatchString(line) {
			continue
		}
		it, ok := p.matchLine(normalizeLine(line))
		if !ok {
			continue
		}
		k := it.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
		if len(out) == p.maxItems {
			break
		}
	}
	return out
}

func (p *Parser) matchLine(line string) (Item, bool) {
	for _, m := range p.matchers {
		if it, ok := m(line); ok {
			return it, true
		}
	}
	return Item{}, false
}

// splitLines splits on any newline convention, trims, collapses inner runs of
// blanks and drops empty lines.
func splitLines(text string) []string {
	var lines []string
	for _, l := range lineBreakRE.Split(text, -1) {
		l = strings.TrimSpace(multiSpaceRE.ReplaceAllString(l, " "))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// normalizeLine drops currency symbols, turns multiplication markers into a
// literal x and repairs digit confusions.
func normalizeLine(line string) string {
	line = currencyRE.ReplaceAllString(line, "")
	line = timesRE.ReplaceAllString(line, "x")
	return FixDigitConfusions(line)
}

func matchQtyTimesPrice(line string) (Item, bool) {
	m := qtyTimesPriceRE.FindStringSubmatch(line)
	if m == nil {
		return Item{}, false
	}
	return newItem(m[1], ParseMoney(m[2]), ParseMoney(m[3]))
}

func matchLeadingQty(line string) (Item, bool) {
	m := leadingQtyRE.FindStringSubmatch(line)
	if m == nil {
		return Item{}, false
	}
	return newItem(m[2], ParseMoney(m[1]), ParseMoney(m[3]))
}

func matchNamePrice(line string) (Item, bool) {
	m := namePriceRE.FindStringSubmatch(line)
	if m == nil {
		return Item{}, false
	}
	return newItem(m[1], 1, ParseMoney(m[2]))
}

// newItem validates a candidate: non-empty name, quantity > 0, finite price.
func newItem(name string, qty, price float64) (Item, bool) {
	name = strings.TrimSpace(name)
	if name == "" || !finite(qty) || qty <= 0 || !finite(price) {
		return Item{}, false
	}
	return Item{Name: name, Quantity: qty, UnitPrice: price}, true
}
