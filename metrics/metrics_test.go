package metrics_test

import (
	"errors"
	"time"

	autotrace "github.com/lightstep/lightstep-autotrace-go"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
	"github.com/lightstep/lightstep-autotrace-go/metrics"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type spanDropped struct {
	library string
	reason  instrumentation.DropReason
}

func (spanDropped) Event() {}
func (spanDropped) EventSpanDropped() {}
func (d spanDropped) String() string { return "dropped" }
func (d spanDropped) Library() string { return d.library }
func (d spanDropped) Probe() string { return "probe" }
func (d spanDropped) Reason() instrumentation.DropReason { return d.reason }

type statusReport struct {
	sent, decodeErrors, pending int
}

func (statusReport) Event() {}
func (statusReport) EventStatusReport() {}
func (statusReport) String() string { return "status" }
func (statusReport) StartTime() time.Time { return time.Time{} }
func (statusReport) FinishTime() time.Time { return time.Time{} }
func (statusReport) Duration() time.Duration { return 0 }
func (r statusReport) SentSpans() int { return r.sent }
func (statusReport) DroppedSpans() int { return 0 }
func (r statusReport) DecodeErrors() int { return r.decodeErrors }
func (r statusReport) PendingSpans() int { return r.pending }

type flushError struct {
	state autotrace.EventFlushErrorState
}

func (flushError) Event() {}
func (flushError) EventFlushError() {}
func (flushError) String() string { return "flush" }
func (flushError) Error() string { return "flush" }
func (flushError) Err() error { return errors.New("flush") }
func (f flushError) State() autotrace.EventFlushErrorState { return f.state }

var _ = Describe("Metrics", func() {
	var (
		registry *prometheus.Registry
		m        *metrics.Metrics
	)

	BeforeEach(func() {
		registry = prometheus.NewRegistry()
		m = metrics.New(registry)
	})

	It("registers every collector", func() {
		m.OnEvent(spanDropped{library: "hyper", reason: instrumentation.ReasonCorrelationMiss})
		m.RecordSpan(autotrace.RawSpan{Library: "hyper"})

		families, err := registry.Gather()
		Expect(err).NotTo(HaveOccurred())
		names := make([]string, 0, len(families))
		for _, family := range families {
			names = append(names, family.GetName())
		}
		Expect(names).To(ContainElements(
			"autotrace_spans_sent_total",
			"autotrace_spans_dropped_total",
			"autotrace_decode_errors_total",
			"autotrace_pending_spans",
			"autotrace_span_duration_seconds",
		))
	})

	It("counts drops by library and reason", func() {
		m.OnEvent(spanDropped{library: "hyper", reason: instrumentation.ReasonCapacityExceeded})
		m.OnEvent(spanDropped{library: "hyper", reason: instrumentation.ReasonCapacityExceeded})
		m.OnEvent(spanDropped{library: "tonic", reason: instrumentation.ReasonOutputFull})

		Expect(testutil.ToFloat64(m.SpansDropped.WithLabelValues("hyper", instrumentation.ReasonCapacityExceeded.String()))).To(Equal(2.0))
		Expect(testutil.ToFloat64(m.SpansDropped.WithLabelValues("tonic", instrumentation.ReasonOutputFull.String()))).To(Equal(1.0))
	})

	It("accumulates status reports", func() {
		m.OnEvent(statusReport{sent: 3, decodeErrors: 1, pending: 7})
		m.OnEvent(statusReport{sent: 2, pending: 4})

		Expect(testutil.ToFloat64(m.SpansSent)).To(Equal(5.0))
		Expect(testutil.ToFloat64(m.DecodeErrors)).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.PendingSpans)).To(Equal(4.0))
	})

	It("labels flush errors by state", func() {
		m.OnEvent(flushError{state: autotrace.FlushErrorRecorder})

		Expect(testutil.ToFloat64(m.FlushErrors.WithLabelValues("recorder"))).To(Equal(1.0))
	})

	It("observes span durations", func() {
		m.RecordSpan(autotrace.RawSpan{Library: "tonic", Kind: autotrace.SpanKindClient, Duration: 2 * time.Millisecond})

		Expect(testutil.CollectAndCount(m.SpanDurations)).To(Equal(1))
	})

	It("leaves collectors unregistered without a registerer", func() {
		Expect(func() { metrics.New(nil) }).NotTo(Panic())
		Expect(func() { metrics.New(nil) }).NotTo(Panic())
	})
})
