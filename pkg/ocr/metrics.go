package ocr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes reported on homeledger_ocr_runs_total.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeTimeout = "timeout"
	// OutcomeCancelled is a run whose caller went away during recognition.
	OutcomeCancelled = "cancelled"
)

// Metrics holds the Prometheus collectors of the receipt pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	runs                *prometheus.CounterVec
	passFailures        *prometheus.CounterVec
	duration            prometheus.Histogram
	itemsParsed         prometheus.Histogram
	preprocessFallbacks prometheus.Counter
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homeledger_ocr_runs_total",
				Help: "Receipt OCR pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		passFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homeledger_ocr_pass_failures_total",
				Help: "Recognition passes that failed and contributed no text",
			},
			[]string{"pass"},
		),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "homeledger_ocr_duration_seconds",
			Help:    "Wall-clock time of a full pipeline run",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 12, 20, 30},
		}),
		itemsParsed: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "homeledger_ocr_items_parsed",
			Help:    "Line items produced per receipt",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 128},
		}),
		preprocessFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "homeledger_ocr_preprocess_fallbacks_total",
			Help: "Images recognized unprocessed because preprocessing failed",
		}),
	}
}

func (m *Metrics) observeRun(outcome string, elapsed time.Duration, items int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.itemsParsed.Observe(float64(items))
}

func (m *Metrics) passFailed(pass string) {
	if m == nil {
		return
	}
	m.passFailures.WithLabelValues(pass).Inc()
}

func (m *Metrics) preprocessFallback() {
	if m == nil {
		return
	}
	m.preprocessFallbacks.Inc()
}
