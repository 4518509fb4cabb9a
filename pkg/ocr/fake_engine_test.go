package ocr

import (
	"context"
	"errors"
	"sync"
)

// fakeEngine returns canned text per pass name and records what it was asked.
type fakeEngine struct {
	mu      sync.Mutex
	texts   map[string]string
	errs    map[string]error
	openErr error
	// block makes Recognize ignore ctx and wait for release, like a
	// libtesseract call that cannot be interrupted.
	block   bool
	release chan struct{}

	opened    []string
	passes    []string
	images    []string
	closed    int
	finished  chan struct{}
	finishOne sync.Once
}

func newFakeEngine(texts map[string]string) *fakeEngine {
	return &fakeEngine{texts: texts, errs: map[string]error{}, finished: make(chan struct{})}
}

func (f *fakeEngine) Open(languages string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = append(f.opened, languages)
	return &fakeSession{f: f}, nil
}

type fakeSession struct{ f *fakeEngine }

func (s *fakeSession) Recognize(_ context.Context, imagePath string, pass Pass) (string, error) {
	f := s.f
	f.mu.Lock()
	f.passes = append(f.passes, pass.Name)
	f.images = append(f.images, imagePath)
	block, release := f.block, f.release
	f.mu.Unlock()

	if block {
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[pass.Name]; err != nil {
		return "", err
	}
	if pass.Name == "panic" {
		panic("engine crashed")
	}
	return f.texts[pass.Name], nil
}

func (s *fakeSession) Close() error {
	s.f.mu.Lock()
	s.f.closed++
	s.f.mu.Unlock()
	s.f.finishOne.Do(func() { close(s.f.finished) })
	return nil
}

func (f *fakeEngine) calledPasses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.passes...)
}

var errEngine = errors.New("tesseract exploded")
