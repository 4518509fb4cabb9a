package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDefaultPassesOrder(t *testing.T) {
	passes := DefaultPasses("")
	if assert.Len(t, passes, 2) {
		assert.Equal(t, SegSingleBlock, passes[0].PageSegMode)
		assert.Equal(t, SegSparseText, passes[1].PageSegMode)
		assert.Equal(t, DefaultWhitelist, passes[0].Whitelist)
		assert.True(t, passes[1].PreserveSpaces)
	}
}

func TestRecognizeMultiPassMergesInOrder(t *testing.T) {
	eng := newFakeEngine(map[string]string{"block": "Milk 2.99\n", "sparse": "  Bread 1.50  "})
	r := NewRecognizer(eng, DefaultPasses(""), nil)

	text := r.RecognizeMultiPass(context.Background(), "/tmp/x.png", "eng+deu")
	assert.Equal(t, "Milk 2.99\nBread 1.50", text)
	assert.Equal(t, []string{"block", "sparse"}, eng.calledPasses())
	assert.Equal(t, []string{"eng+deu"}, eng.opened)
	assert.Equal(t, 1, eng.closed)
}

func TestRecognizeMultiPassDeterministic(t *testing.T) {
	texts := map[string]string{"block": "A 1", "sparse": "B 2"}
	a := NewRecognizer(newFakeEngine(texts), nil, nil).RecognizeMultiPass(context.Background(), "p", "eng")
	b := NewRecognizer(newFakeEngine(texts), nil, nil).RecognizeMultiPass(context.Background(), "p", "eng")
	assert.Equal(t, a, b)
}

func TestRecognizeMultiPassFailedPassContributesNothing(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	eng := newFakeEngine(map[string]string{"block": "ignored", "sparse": "Eggs 3.10"})
	eng.errs["block"] = errEngine
	r := NewRecognizer(eng, nil, m)

	assert.Equal(t, "Eggs 3.10", r.RecognizeMultiPass(context.Background(), "p", "eng"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passFailures.WithLabelValues("block")))
}

func TestRecognizeMultiPassAllFail(t *testing.T) {
	eng := newFakeEngine(nil)
	eng.errs["block"] = errEngine
	eng.errs["sparse"] = errEngine
	assert.Empty(t, NewRecognizer(eng, nil, nil).RecognizeMultiPass(context.Background(), "p", "eng"))

	eng = newFakeEngine(nil)
	eng.openErr = errors.New("no tessdata")
	assert.Empty(t, NewRecognizer(eng, nil, nil).RecognizeMultiPass(context.Background(), "p", "eng"))
}

func TestRecognizeMultiPassRecoversPanics(t *testing.T) {
	eng := newFakeEngine(map[string]string{"after": "Tea 4.00"})
	passes := []Pass{{Name: "panic"}, {Name: "after"}}
	r := NewRecognizer(eng, passes, nil)
	assert.Equal(t, "Tea 4.00", r.RecognizeMultiPass(context.Background(), "p", "eng"))
}

func TestRecognizeMultiPassStopsWhenContextDone(t *testing.T) {
	eng := newFakeEngine(map[string]string{"block": "A 1", "sparse": "B 2"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, NewRecognizer(eng, nil, nil).RecognizeMultiPass(ctx, "p", "eng"))
	assert.Empty(t, eng.calledPasses())
}
