package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// PageSegMode mirrors Tesseract's page segmentation modes.
type PageSegMode int

const (
	// SegSingleBlock assumes one uniform block of text (a clean item column).
	SegSingleBlock PageSegMode = 6
	// SegSparseText finds as much text as possible in no particular order
	// (cluttered or multi-column receipts).
	SegSparseText PageSegMode = 11
)

// Pass configures one recognition run over the image.
type Pass struct {
	Name        string
	PageSegMode PageSegMode
	Whitelist   string
	// Languages overrides the run's language set when non-empty.
	Languages      string
	PreserveSpaces bool
	// Weight is the pass's relative trust; it is reported, not used for merging.
	Weight float64
}

// DefaultPasses is the fixed pass order: single block first, then sparse text.
func DefaultPasses(whitelist string) []Pass {
	if whitelist == "" {
		whitelist = DefaultWhitelist
	}
	return []Pass{
		{Name: "block", PageSegMode: SegSingleBlock, Whitelist: whitelist, PreserveSpaces: true, Weight: 0.6},
		{Name: "sparse", PageSegMode: SegSparseText, Whitelist: whitelist, PreserveSpaces: true, Weight: 0.4},
	}
}

// Engine opens recognition sessions. The Tesseract implementation lives in
// pkg/ocr/tesseract; tests inject fakes.
type Engine interface {
	Open(languages string) (Session, error)
}

// Session is one engine instance. Passes run on it sequentially; it is not
// shared between goroutines.
type Session interface {
	Recognize(ctx context.Context, imagePath string, pass Pass) (string, error)
	Close() error
}

// Recognizer runs the configured passes and merges their text.
type Recognizer struct {
	engine  Engine
	passes  []Pass
	metrics *Metrics
}

// NewRecognizer runs passes (DefaultPasses when empty) on engine.
func NewRecognizer(engine Engine, passes []Pass, m *Metrics) *Recognizer {
	if len(passes) == 0 {
		passes = DefaultPasses("")
	}
	return &Recognizer{engine: engine, passes: passes, metrics: m}
}

// RecognizeMultiPass runs every pass in declaration order against one session
// and joins the non-empty outputs with newlines. A failing pass contributes
// nothing; once ctx is done the remaining passes are skipped. The result is
// trimmed and empty when nothing was recognized.
func (r *Recognizer) RecognizeMultiPass(ctx context.Context, imagePath, languages string) string {
	sess, err := r.engine.Open(languages)
	if err != nil {
		log.Warn().Err(err).Str("languages", languages).Msg("ocr engine unavailable")
		for _, p := range r.passes {
			r.metrics.passFailed(p.Name)
		}
		return ""
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug().Err(err).Msg("ocr session close")
		}
	}()

	var parts []string
	for _, pass := range r.passes {
		if ctx.Err() != nil {
			log.Debug().Str("pass", pass.Name).Msg("ocr pass skipped; deadline reached")
			break
		}
		text, err := runPass(ctx, sess, imagePath, pass)
		if err != nil {
			log.Warn().Err(err).Str("pass", pass.Name).Msg("ocr pass failed")
			r.metrics.passFailed(pass.Name)
			continue
		}
		log.Debug().Str("pass", pass.Name).Float64("weight", pass.Weight).Int("chars", len(text)).Msg("ocr pass done")
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// runPass turns a panicking engine call into an error.
func runPass(ctx context.Context, sess Session, imagePath string, pass Pass) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pass %s panicked: %v", pass.Name, r)
		}
	}()
	return sess.Recognize(ctx, imagePath, pass)
}
