package autotrace

import (
	"strings"

	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	opentracing "github.com/opentracing/opentracing-go"
)

// Propagator moves a SpanContext in and out of an opentracing carrier.
type Propagator interface {
	Inject(opentracing.SpanContext, interface{}) error
	Extract(interface{}) (opentracing.SpanContext, error)
}

// TraceContextPropagator speaks the W3C traceparent header, the same wire
// form the probes read and write in target memory.
var TraceContextPropagator Propagator = traceContextPropagator{}

type traceContextPropagator struct{}

func (traceContextPropagator) Inject(
	spanContext opentracing.SpanContext,
	opaqueCarrier interface{},
) error {
	sc, ok := spanContext.(spanctx.SpanContext)
	if !ok || !sc.IsValid() {
		return opentracing.ErrInvalidSpanContext
	}
	carrier, ok := opaqueCarrier.(opentracing.TextMapWriter)
	if !ok {
		return opentracing.ErrInvalidCarrier
	}
	carrier.Set(spanctx.TraceparentHeader, spanctx.Encode(sc))
	return nil
}

func (traceContextPropagator) Extract(
	opaqueCarrier interface{},
) (opentracing.SpanContext, error) {
	carrier, ok := opaqueCarrier.(opentracing.TextMapReader)
	if !ok {
		return nil, opentracing.ErrInvalidCarrier
	}

	var (
		found bool
		sc    spanctx.SpanContext
	)
	err := carrier.ForeachKey(func(k, v string) error {
		if !strings.EqualFold(k, spanctx.TraceparentHeader) {
			return nil
		}
		found = true
		decoded, ok := spanctx.Decode(v)
		if !ok {
			return opentracing.ErrSpanContextCorrupted
		}
		sc = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, opentracing.ErrSpanContextNotFound
	}
	return sc, nil
}
