package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds per-pipeline Prometheus collectors.
// All methods are safe on a nil receiver.
type Metrics struct {
	eventsQueued  *prometheus.CounterVec
	txsSubmitted  *prometheus.CounterVec
	txsFailed     *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	eventsRetried *prometheus.CounterVec
	batchesFailed *prometheus.CounterVec
	pollErrors    *prometheus.CounterVec
	state         *prometheus.GaugeVec
	watermark     *prometheus.GaugeVec
	queueDepth    *prometheus.GaugeVec
}

var (
	once    sync.Once
	metrics *Metrics
)

var states = []string{"WAIT", "ENRICH", "RELAY", "YIELD"}

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = newMetrics()
		prometheus.MustRegister(metrics.collectors()...)
	})
	return metrics
}

func newMetrics() *Metrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge_relay",
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bridge_relay",
			Name:      name,
			Help:      help,
		}, labels)
	}
	return &Metrics{
		eventsQueued:  counter("events_queued_total", "Events appended to a pipeline queue", "pipeline"),
		txsSubmitted:  counter("txs_submitted_total", "Transactions mined successfully", "pipeline"),
		txsFailed:     counter("txs_failed_total", "Transactions that failed to sign, send or execute", "pipeline"),
		eventsDropped: counter("events_dropped_total", "Events permanently dropped", "pipeline", "reason"),
		eventsRetried: counter("events_retried_total", "Events requeued after a failed submission", "pipeline"),
		batchesFailed: counter("batches_failed_total", "Batches abandoned as a whole", "pipeline"),
		pollErrors:    counter("poll_errors_total", "Failed event queries and enrichment reads", "pipeline"),
		state:         gauge("state", "1 for the pipeline's current state", "pipeline", "state"),
		watermark:     gauge("watermark_block", "Lowest block not yet queried", "pipeline"),
		queueDepth:    gauge("queue_depth", "Events waiting in the pipeline queue", "pipeline"),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventsQueued, m.txsSubmitted, m.txsFailed, m.eventsDropped, m.eventsRetried,
		m.batchesFailed, m.pollErrors, m.state, m.watermark, m.queueDepth,
	}
}

// EventsQueued adds n queued events.
func (m *Metrics) EventsQueued(pipeline string, n int) {
	if m != nil && n > 0 {
		m.eventsQueued.WithLabelValues(pipeline).Add(float64(n))
	}
}

// TxSubmitted counts a mined transaction.
func (m *Metrics) TxSubmitted(pipeline string) {
	if m != nil {
		m.txsSubmitted.WithLabelValues(pipeline).Inc()
	}
}

// TxFailed counts a failed submission.
func (m *Metrics) TxFailed(pipeline string) {
	if m != nil {
		m.txsFailed.WithLabelValues(pipeline).Inc()
	}
}

// EventDropped counts a permanent drop.
func (m *Metrics) EventDropped(pipeline, reason string) {
	if m != nil {
		m.eventsDropped.WithLabelValues(pipeline, reason).Inc()
	}
}

// EventRetried counts a requeued event.
func (m *Metrics) EventRetried(pipeline string) {
	if m != nil {
		m.eventsRetried.WithLabelValues(pipeline).Inc()
	}
}

// BatchFailed counts an abandoned batch.
func (m *Metrics) BatchFailed(pipeline string) {
	if m != nil {
		m.batchesFailed.WithLabelValues(pipeline).Inc()
	}
}

// PollError counts a failed read.
func (m *Metrics) PollError(pipeline string) {
	if m != nil {
		m.pollErrors.WithLabelValues(pipeline).Inc()
	}
}

// Observe records the pipeline's state, watermark and queue depth.
func (m *Metrics) Observe(pipeline, state string, watermark uint64, queued int) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(pipeline, s).Set(v)
	}
	m.watermark.WithLabelValues(pipeline).Set(float64(watermark))
	m.queueDepth.WithLabelValues(pipeline).Set(float64(queued))
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
