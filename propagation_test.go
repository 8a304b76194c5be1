package autotrace_test

import (
	. "github.com/lightstep/lightstep-autotrace-go"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/opentracing/opentracing-go"
)

var _ = Describe("TraceContextPropagator", func() {
	It("rejects foreign span contexts", func() {
		err := TraceContextPropagator.Inject(opentracing.SpanContext(nil), opentracing.TextMapCarrier{})
		Expect(err).To(Equal(opentracing.ErrInvalidSpanContext))
	})

	It("rejects invalid span contexts", func() {
		err := TraceContextPropagator.Inject(spanctx.SpanContext{}, opentracing.TextMapCarrier{})
		Expect(err).To(Equal(opentracing.ErrInvalidSpanContext))
	})

	It("rejects carriers it cannot write", func() {
		sc, _ := spanctx.Decode(knownHeader)
		Expect(TraceContextPropagator.Inject(sc, "carrier")).To(Equal(opentracing.ErrInvalidCarrier))
		_, err := TraceContextPropagator.Extract("carrier")
		Expect(err).To(Equal(opentracing.ErrInvalidCarrier))
	})

	It("works with HTTP headers", func() {
		sc, _ := spanctx.Decode(knownHeader)
		headers := opentracing.HTTPHeadersCarrier{}
		Expect(TraceContextPropagator.Inject(sc, headers)).To(Succeed())

		extracted, err := TraceContextPropagator.Extract(headers)
		Expect(err).NotTo(HaveOccurred())
		Expect(extracted).To(Equal(sc))
	})
})

var _ = Describe("B3Propagator", func() {
	table.DescribeTable("extracting",
		func(carrier opentracing.TextMapCarrier, expectedTrace string, sampled bool) {
			ctx, err := B3Propagator.Extract(carrier)
			Expect(err).NotTo(HaveOccurred())
			sc := ctx.(SpanContext)
			Expect(sc.TraceID.String()).To(Equal(expectedTrace))
			Expect(sc.TraceFlags.IsSampled()).To(Equal(sampled))
		},
		table.Entry("128-bit trace id", opentracing.TextMapCarrier{
			"X-B3-TraceId": "4bf92f3577b34da6a3ce929d0e0e4736",
			"X-B3-SpanId":  "00f067aa0ba902b7",
			"X-B3-Sampled": "1",
		}, "4bf92f3577b34da6a3ce929d0e0e4736", true),
		table.Entry("64-bit trace id", opentracing.TextMapCarrier{
			"x-b3-traceid": "a3ce929d0e0e4736",
			"x-b3-spanid":  "00f067aa0ba902b7",
			"x-b3-sampled": "0",
		}, "0000000000000000a3ce929d0e0e4736", false),
	)

	table.DescribeTable("rejecting",
		func(carrier opentracing.TextMapCarrier, expected error) {
			_, err := B3Propagator.Extract(carrier)
			Expect(err).To(Equal(expected))
		},
		table.Entry("no headers", opentracing.TextMapCarrier{}, opentracing.ErrSpanContextNotFound),
		table.Entry("missing span id", opentracing.TextMapCarrier{
			"x-b3-traceid": "4bf92f3577b34da6a3ce929d0e0e4736",
			"x-b3-sampled": "1",
		}, opentracing.ErrSpanContextCorrupted),
		table.Entry("non-hex trace id", opentracing.TextMapCarrier{
			"x-b3-traceid": "zzf92f3577b34da6a3ce929d0e0e4736",
			"x-b3-spanid":  "00f067aa0ba902b7",
			"x-b3-sampled": "1",
		}, opentracing.ErrSpanContextCorrupted),
	)
})
