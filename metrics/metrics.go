// Package metrics exports session activity as Prometheus metrics.
//
// A Metrics value is both an event handler and a span recorder:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	session, err := autotrace.NewSession(mem,
//		autotrace.WithOnEvent(m.OnEvent),
//		autotrace.WithRecorder(m),
//	)
package metrics

import (
	"time"

	autotrace "github.com/lightstep/lightstep-autotrace-go"
	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "autotrace"

type Metrics struct {
	SpansSent     prometheus.Counter
	SpansDropped  *prometheus.CounterVec
	DecodeErrors  prometheus.Counter
	FlushErrors   *prometheus.CounterVec
	PendingSpans  prometheus.Gauge
	SpanDurations *prometheus.HistogramVec
}

var _ autotrace.SpanRecorder = (*Metrics)(nil)

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SpansSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "spans_sent_total",
			Help:      "Spans decoded and handed to recorders.",
		}),
		SpansDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "spans_dropped_total",
			Help:      "Probe events that could not contribute to a span.",
		}, []string{"library", "reason"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decode_errors_total",
			Help:      "Output records that could not be decoded.",
		}),
		FlushErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "flush_errors_total",
			Help:      "Recorder flushes that failed.",
		}, []string{"state"}),
		PendingSpans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_spans",
			Help:      "Calls entered but not yet returned at the last status report.",
		}),
		SpanDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "span_duration_seconds",
			Help:      "Duration of finished spans.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"library", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SpansSent,
		m.SpansDropped,
		m.DecodeErrors,
		m.FlushErrors,
		m.PendingSpans,
		m.SpanDurations,
	}
}

// OnEvent is an autotrace event handler. Status reports carry per interval
// counts, so they are added as is.
func (m *Metrics) OnEvent(event autotrace.Event) {
	switch e := event.(type) {
	case autotrace.EventSpanDropped:
		m.SpansDropped.WithLabelValues(e.Library(), e.Reason().String()).Inc()
	case autotrace.EventFlushError:
		m.FlushErrors.WithLabelValues(flushErrorLabel(e.State())).Inc()
	case autotrace.EventStatusReport:
		m.SpansSent.Add(float64(e.SentSpans()))
		m.DecodeErrors.Add(float64(e.DecodeErrors()))
		m.PendingSpans.Set(float64(e.PendingSpans()))
	}
}

func (m *Metrics) RecordSpan(span autotrace.RawSpan) {
	m.SpanDurations.
		WithLabelValues(span.Library, span.Kind.String()).
		Observe(float64(span.Duration) / float64(time.Second))
}

func flushErrorLabel(state autotrace.EventFlushErrorState) string {
	switch state {
	case autotrace.FlushErrorSessionClosed:
		return "session_closed"
	case autotrace.FlushErrorRecorder:
		return "recorder"
	default:
		return "unknown"
	}
}
