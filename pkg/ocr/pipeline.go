package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// State is a step of a single pipeline run.
type State string

const (
	StateReceived      State = "received"
	StatePreprocessing State = "preprocessing"
	StateRecognizing   State = "recognizing"
	StateParsing       State = "parsing"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Input is what the upload handler hands to the pipeline.
type Input struct {
	ImagePath string
	// Languages overrides Config.Languages when non-empty.
	Languages string
}

// Result is the pipeline output handed back for persistence.
type Result struct {
	Items        []Item `json:"items"`
	RawText      string `json:"rawText"`
	ElapsedMs    int64  `json:"elapsedMs"`
	TimedOut     bool   `json:"timedOut"`
	Preprocessed bool   `json:"preprocessed"`
}

// Pipeline sequences preprocessing, time-boxed recognition and parsing. It
// keeps no per-run state, so one Pipeline serves concurrent uploads.
type Pipeline struct {
	cfg        Config
	pre        Preprocessor
	recognizer *Recognizer
	parser     *Parser
	metrics    *Metrics
	onState    func(path string, s State)
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithMetrics records runs on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithPasses replaces DefaultPasses.
func WithPasses(passes []Pass) Option {
	return func(p *Pipeline) {
		p.recognizer = NewRecognizer(p.recognizer.engine, passes, p.metrics)
	}
}

// WithStateHook is called on every state transition.
func WithStateHook(fn func(path string, s State)) Option {
	return func(p *Pipeline) { p.onState = fn }
}

// NewPipeline wires pre and engine with cfg. A nil pre means Passthrough.
func NewPipeline(cfg Config, pre Preprocessor, engine Engine, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("ocr engine is required")
	}
	cfg = cfg.withDefaults()
	parser, err := NewParser(cfg.NoisePattern, cfg.MaxItems)
	if err != nil {
		return nil, err
	}
	if pre == nil {
		pre = Passthrough{}
	}
	p := &Pipeline{cfg: cfg, pre: pre, parser: parser}
	p.recognizer = NewRecognizer(engine, DefaultPasses(cfg.Whitelist), nil)
	for _, o := range opts {
		o(p)
	}
	p.recognizer.metrics = p.metrics
	return p, nil
}

// Run processes one receipt image. It fails only when the input file is
// missing; preprocessing errors, pass failures and timeouts all degrade to a
// (possibly empty) Result.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	if err := checkInput(in.ImagePath); err != nil {
		p.transition(in.ImagePath, StateFailed)
		return nil, err
	}
	p.transition(in.ImagePath, StateReceived)

	langs := in.Languages
	if langs == "" {
		langs = p.cfg.Languages
	}

	p.transition(in.ImagePath, StatePreprocessing)
	prepped := p.pre.Preprocess(ctx, in.ImagePath)

	p.transition(in.ImagePath, StateRecognizing)
	text, abandoned := p.recognize(ctx, in.ImagePath, prepped, langs)
	timedOut := errors.Is(abandoned, errRecognitionTimeout)

	p.transition(in.ImagePath, StateParsing)
	items := p.parser.Parse(text)

	res := &Result{
		Items:        items,
		RawText:      snippet(text, p.cfg.RawTextLimit),
		ElapsedMs:    time.Since(start).Milliseconds(),
		TimedOut:     timedOut,
		Preprocessed: prepped != in.ImagePath,
	}
	p.transition(in.ImagePath, StateDone)

	outcome := OutcomeOK
	switch {
	case timedOut:
		outcome = OutcomeTimeout
	case abandoned != nil:
		outcome = OutcomeCancelled
	case len(items) == 0:
		outcome = OutcomeEmpty
	}
	p.metrics.observeRun(outcome, time.Since(start), len(items))
	log.Info().
		Str("path", in.ImagePath).
		Int64("elapsed_ms", res.ElapsedMs).
		Int("passes", len(p.recognizer.passes)).
		Int("chars", len(text)).
		Int("items", len(items)).
		Bool("preprocessed", res.Preprocessed).
		Bool("timed_out", timedOut).
		Str("outcome", outcome).
		Msg("receipt ocr done")
	log.Debug().Str("path", in.ImagePath).Str("text", snippet(text, 180)).Msg("receipt ocr text")
	return res, nil
}

// errRecognitionTimeout marks recognition abandoned at Config.Timeout.
var errRecognitionTimeout = errors.New("ocr recognition timed out")

// recognize runs all passes under the configured timeout. When recognition
// is abandoned it returns "" with errRecognitionTimeout, or with the caller's
// ctx error when ctx ended first. The preprocessed temp file is removed once
// the recognition goroutine no longer needs it, which may be after Run has
// returned.
func (p *Pipeline) recognize(ctx context.Context, original, prepped, langs string) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		done <- p.recognizer.RecognizeMultiPass(rctx, prepped, langs)
	}()

	select {
	case text := <-done:
		removeTemp(original, prepped)
		if err := ctx.Err(); err != nil {
			// passes after the cancellation were skipped
			return text, err
		}
		return text, nil
	case <-rctx.Done():
		go func() {
			<-done
			removeTemp(original, prepped)
		}()
		if err := ctx.Err(); err != nil {
			log.Info().Err(err).Str("path", original).Msg("ocr recognition cancelled by caller")
			return "", err
		}
		log.Warn().Str("path", original).Dur("timeout", p.cfg.Timeout).Msg("ocr recognition abandoned; continuing with empty text")
		return "", errRecognitionTimeout
	}
}

func removeTemp(original, prepped string) {
	if prepped == original {
		return
	}
	if err := os.Remove(prepped); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", prepped).Msg("remove preprocessed image")
	}
}

func checkInput(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrMissingInput)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrMissingInput, path)
	}
	return nil
}

func (p *Pipeline) transition(path string, s State) {
	if p.onState != nil {
		p.onState(path, s)
	}
}
