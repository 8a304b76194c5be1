package autotrace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/lightstep/lightstep-autotrace-go"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation/hyper"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation/tonic"
	"github.com/lightstep/lightstep-autotrace-go/internal/timex/testtimex"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	"github.com/opentracing/opentracing-go"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const knownHeader = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

var _ = Describe("Session", func() {
	var (
		tgt       *target
		clock     *testtimex.Clock
		collector *spanCollector
		session   *Session
		opts      []Option

		eventHandler func(Event)
		eventChan    <-chan Event
	)
	const eventBufferSize = 100

	BeforeEach(func() {
		tgt = newTarget()
		clock = testtimex.NewClock(time.Unix(1700000000, 0))
		collector = &spanCollector{}
		eventHandler, eventChan = NewOnEventChannel(eventBufferSize)
		opts = []Option{
			WithClock(clock),
			WithServiceName("checkout"),
			WithResolver(testOffsets()),
			WithLibraryVersion(testVersion),
			WithRecorder(collector),
			WithOnEvent(eventHandler),
		}
	})

	JustBeforeEach(func() {
		var err error
		session, err = NewSession(tgt.mem, opts...)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		session.Close()
	})

	nextEvent := func(match func(Event) bool) Event {
		var found Event
		Eventually(func() bool {
			for {
				select {
				case e := <-eventChan:
					if match(e) {
						found = e
						return true
					}
				default:
					return false
				}
			}
		}).Should(BeTrue())
		return found
	}

	Describe("NewSession", func() {
		It("rejects out of range options", func() {
			_, err := NewSession(tgt.mem, WithMaxConcurrent(0), WithOnEvent(eventHandler))
			var invalid ErrInvalidOption
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(invalid.Option()).To(Equal("max concurrent"))

			event := nextEvent(func(e Event) bool { _, ok := e.(EventStartError); return ok })
			Expect(event.(EventStartError).Err()).To(Equal(err))
		})

		It("rejects a zero stack mask", func() {
			_, err := NewSession(tgt.mem, WithStackMaskBits(0))
			var invalid ErrInvalidOption
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(invalid.Option()).To(Equal("stack mask bits"))
		})

		It("requires target memory", func() {
			_, err := NewSession(nil)
			Expect(err).To(Equal(ErrNoMemory))
		})

		It("fails when the offsets file cannot be read", func() {
			_, err := NewSession(tgt.mem, WithOffsetsFile(filepath.Join(os.TempDir(), "autotrace-missing", "offsets.yaml")))
			Expect(err).To(HaveOccurred())
		})

		It("loads offsets from a file", func() {
			dir, err := os.MkdirTemp("", "autotrace")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(dir)
			path := filepath.Join(dir, "offsets.yaml")
			doc := `
versions:
  "hyper@test":
    "http::request::Request":
      method.ptr: 0
      method.len: 8
`
			Expect(os.WriteFile(path, []byte(doc), 0o600)).To(Succeed())

			var s *Session
			s, err = NewSession(tgt.mem, WithOffsetsFile(path), WithLibraryVersion(testVersion), WithRecorder(collector))
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()
			done := runSession(s)

			tgt.serve(s, "GET", "/ignored", "")
			Eventually(collector.Spans).Should(HaveLen(1))
			Expect(collector.Spans()[0].Operation).To(Equal("GET"))

			s.Close()
			Eventually(done).Should(Receive(BeNil()))
		})
	})

	Describe("Probes", func() {
		It("covers every instrumented library", func() {
			probes := session.Probes()
			Expect(probes).To(HaveKey(hyper.SymServeConnection))
			Expect(probes).To(HaveKey(tonic.SymClientUnary))
			Expect(session.Instrumentors()).To(HaveLen(2))
		})

		It("selects the instrumentors present in the target", func() {
			relevant := session.Relevant([]string{hyper.SymServeConnection, "main"})
			Expect(relevant).To(HaveLen(1))
			Expect(relevant[0].Library()).To(Equal(hyper.Library))
		})
	})

	Describe("Run", func() {
		It("delivers decoded spans to the recorders", func() {
			done := runSession(session)
			tgt.serve(session, "GET", "/cart", knownHeader)

			Eventually(collector.Spans).Should(HaveLen(1))
			span := collector.Spans()[0]
			remote, _ := spanctx.Decode(knownHeader)
			Expect(span.Operation).To(Equal("GET /cart"))
			Expect(span.Kind).To(Equal(SpanKindServer))
			Expect(span.Tags).To(HaveKeyWithValue(ServiceNameKey, "checkout"))
			Expect(span.Context.TraceID).To(Equal(remote.TraceID))
			Expect(span.ParentSpanID).To(Equal(remote.SpanID))

			session.Close()
			Eventually(done).Should(Receive(BeNil()))
			Expect(collector.Flushes()).To(Equal(1))
			Expect(session.Store().Len()).To(BeZero())
		})

		It("reports status on every interval", func() {
			runSession(session)
			tgt.serve(session, "GET", "/", "")
			Eventually(collector.Spans).Should(HaveLen(1))

			var report EventStatusReport
			Eventually(func() bool {
				clock.Advance(DefaultReportInterval)
				select {
				case e := <-eventChan:
					report, _ = e.(EventStatusReport)
				default:
				}
				return report != nil
			}).Should(BeTrue())
			Expect(report.SentSpans()).To(Equal(1))
			Expect(report.PendingSpans()).To(BeZero())
		})

		It("reports dropped probe events", func() {
			tgt.fire(session, hyper.SymServeConnection, true, tgt.request("GET", "/", ""))

			event := nextEvent(func(e Event) bool { _, ok := e.(EventSpanDropped); return ok })
			dropped := event.(EventSpanDropped)
			Expect(dropped.Library()).To(Equal(hyper.Library))
			Expect(dropped.Reason()).To(Equal(instrumentation.ReasonCorrelationMiss))
		})

		It("returns the context error when cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- session.Run(ctx) }()
			cancel()
			Eventually(done).Should(Receive(Equal(context.Canceled)))
		})

		It("refuses to run after close", func() {
			session.Close()
			session.Close()
			Expect(session.Run(context.Background())).To(Equal(ErrSessionClosed))
		})

		Context("when a recorder fails to flush", func() {
			BeforeEach(func() {
				collector.err = errors.New("collector unavailable")
			})

			It("emits a flush error", func() {
				session.Flush(context.Background())

				event := nextEvent(func(e Event) bool { _, ok := e.(EventFlushError); return ok })
				Expect(event.(EventFlushError).State()).To(Equal(FlushErrorRecorder))
			})
		})
	})

	Describe("Inject and Extract", func() {
		It("round trips through the configured propagators", func() {
			sc, _ := spanctx.Decode(knownHeader)
			carrier := opentracing.TextMapCarrier{}
			Expect(session.Inject(sc, carrier)).To(Succeed())
			Expect(carrier).To(HaveKeyWithValue("traceparent", knownHeader))

			extracted, err := session.Extract(carrier)
			Expect(err).NotTo(HaveOccurred())
			Expect(extracted).To(Equal(sc))
		})

		It("flushing a closed session is an error event", func() {
			session.Close()
			session.Flush(context.Background())
			event := nextEvent(func(e Event) bool { _, ok := e.(EventFlushError); return ok })
			Expect(event.(EventFlushError).State()).To(Equal(FlushErrorSessionClosed))
		})
	})
})
