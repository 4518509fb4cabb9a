// Package tesseract implements ocr.Engine on top of gosseract (libtesseract).
// It lives apart from pkg/ocr so the pipeline and its tests build without cgo.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"homeledger/pkg/ocr"
)

// Engine opens one gosseract client per pipeline run.
type Engine struct{}

// New returns a Tesseract engine.
func New() *Engine { return &Engine{} }

// Open creates a client for the "+" separated language set (e.g. "eng+deu").
func (e *Engine) Open(languages string) (ocr.Session, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(splitLanguages(languages)...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set language %q: %w", languages, err)
	}
	return &session{client: client, languages: languages}, nil
}

// Version reports the linked libtesseract version.
func Version() string {
	return gosseract.Version()
}

type session struct {
	client    *gosseract.Client
	languages string
}

// Recognize applies the pass settings to the shared client and reads text.
// libtesseract cannot be interrupted mid-page, so ctx is only honoured
// before the call starts.
func (s *session) Recognize(ctx context.Context, imagePath string, pass ocr.Pass) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if pass.Languages != "" && pass.Languages != s.languages {
		if err := s.client.SetLanguage(splitLanguages(pass.Languages)...); err != nil {
			return "", fmt.Errorf("set language %q: %w", pass.Languages, err)
		}
		s.languages = pass.Languages
	}
	if err := s.client.SetPageSegMode(gosseract.PageSegMode(pass.PageSegMode)); err != nil {
		return "", fmt.Errorf("set page seg mode %d: %w", pass.PageSegMode, err)
	}
	if err := s.client.SetWhitelist(pass.Whitelist); err != nil {
		return "", fmt.Errorf("set whitelist: %w", err)
	}
	preserve := "0"
	if pass.PreserveSpaces {
		preserve = "1"
	}
	if err := s.client.SetVariable(gosseract.SettableVariable("preserve_interword_spaces"), preserve); err != nil {
		return "", fmt.Errorf("set preserve_interword_spaces: %w", err)
	}
	if err := s.client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := s.client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr error: %w", err)
	}
	return text, nil
}

func (s *session) Close() error {
	return s.client.Close()
}

func splitLanguages(languages string) []string {
	var out []string
	for _, l := range strings.Split(languages, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		out = []string{"eng"}
	}
	return out
}
