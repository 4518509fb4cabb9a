package ocr

import "time"

// DefaultWhitelist restricts Tesseract output to characters that show up on
// printed receipts: letters, digits, common punctuation and currency symbols.
const DefaultWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 .,:;+-_*/xX$€£()#%'\"&@"

// DefaultNoisePattern matches receipt boilerplate lines that are never line items.
const DefaultNoisePattern = `(?i)^(?:subtotal|total|tax|vat|gst|pst|hst|change|tender|cash|visa|mastercard|debit|balance|thank|invoice|items?)\b`

// DefaultMaxItems bounds how many parsed items a single receipt may produce.
const DefaultMaxItems = 128

// Config carries every tuning knob of the receipt pipeline. It is built by the
// caller (see pkg/config) and passed in explicitly; nothing here reads the
// process environment.
type Config struct {
	// Languages is a Tesseract language set, "+" separated (e.g. "eng+deu").
	Languages string
	// Timeout is the hard wall-clock budget for all recognition passes together.
	Timeout time.Duration

	// Images narrower than MinWidth are upscaled 2x, capped at MaxWidth.
	MinWidth int
	MaxWidth int
	// Threshold is the binarization cut; 0 means the default (180).
	Threshold uint8
	// MedianRadius is the half-size of the denoise window (1 => 3x3).
	MedianRadius int
	// TempDir receives preprocessed images; empty means os.TempDir().
	TempDir string

	Whitelist    string
	NoisePattern string
	MaxItems     int
	// RawTextLimit truncates Result.RawText for transport; 0 keeps everything.
	RawTextLimit int
}

// DefaultConfig returns the settings the pipeline was tuned with.
func DefaultConfig() Config {
	return Config{
		Languages:    "eng",
		Timeout:      12 * time.Second,
		MinWidth:     1500,
		MaxWidth:     2200,
		Threshold:    180,
		MedianRadius: 1,
		Whitelist:    DefaultWhitelist,
		NoisePattern: DefaultNoisePattern,
		MaxItems:     DefaultMaxItems,
		RawTextLimit: 4000,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Languages == "" {
		c.Languages = d.Languages
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MinWidth <= 0 {
		c.MinWidth = d.MinWidth
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = d.MaxWidth
	}
	if c.MaxWidth < c.MinWidth {
		c.MaxWidth = c.MinWidth
	}
	if c.Threshold == 0 {
		c.Threshold = d.Threshold
	}
	if c.MedianRadius < 0 {
		c.MedianRadius = 0
	}
	if c.Whitelist == "" {
		c.Whitelist = d.Whitelist
	}
	if c.NoisePattern == "" {
		c.NoisePattern = d.NoisePattern
	}
	if c.MaxItems <= 0 {
		c.MaxItems = d.MaxItems
	}
	if c.RawTextLimit < 0 {
		c.RawTextLimit = 0
	}
	return c
}
