package autotrace

import (
	"encoding/hex"
	"strings"

	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	opentracing "github.com/opentracing/opentracing-go"
)

const (
	b3Prefix           = "x-b3-"
	b3FieldNameTraceID = b3Prefix + "traceid"
	b3FieldNameSpanID  = b3Prefix + "spanid"
	b3FieldNameSampled = b3Prefix + "sampled"

	b3FieldCount = 3
)

// B3Propagator speaks the multi-header Zipkin B3 format. 64-bit trace ids
// are widened to 128 bits with leading zeros.
var B3Propagator Propagator = b3Propagator{}

type b3Propagator struct{}

func b3TraceIDParser(v string) (spanctx.TraceID, bool) {
	var id spanctx.TraceID
	switch len(v) {
	case 2 * spanctx.TraceIDSize:
		_, err := hex.Decode(id[:], []byte(v))
		return id, err == nil && id.IsValid()
	case spanctx.SpanIDSize * 2:
		_, err := hex.Decode(id[spanctx.SpanIDSize:], []byte(v))
		return id, err == nil && id.IsValid()
	default:
		return id, false
	}
}

func b3SpanIDParser(v string) (spanctx.SpanID, bool) {
	var id spanctx.SpanID
	if len(v) != 2*spanctx.SpanIDSize {
		return id, false
	}
	_, err := hex.Decode(id[:], []byte(v))
	return id, err == nil && id.IsValid()
}

func (b3Propagator) Inject(
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
	sampled := "0"
	if sc.TraceFlags.IsSampled() {
		sampled = "1"
	}
	carrier.Set(b3FieldNameTraceID, sc.TraceID.String())
	carrier.Set(b3FieldNameSpanID, sc.SpanID.String())
	carrier.Set(b3FieldNameSampled, sampled)
	return nil
}

func (b3Propagator) Extract(
	opaqueCarrier interface{},
) (opentracing.SpanContext, error) {
	carrier, ok := opaqueCarrier.(opentracing.TextMapReader)
	if !ok {
		return nil, opentracing.ErrInvalidCarrier
	}

	requiredFieldCount := 0
	var sc spanctx.SpanContext
	err := carrier.ForeachKey(func(k, v string) error {
		switch strings.ToLower(k) {
		case b3FieldNameTraceID:
			id, ok := b3TraceIDParser(strings.ToLower(v))
			if !ok {
				return opentracing.ErrSpanContextCorrupted
			}
			sc.TraceID = id
			requiredFieldCount++
		case b3FieldNameSpanID:
			id, ok := b3SpanIDParser(strings.ToLower(v))
			if !ok {
				return opentracing.ErrSpanContextCorrupted
			}
			sc.SpanID = id
			requiredFieldCount++
		case b3FieldNameSampled:
			if v == "1" || strings.EqualFold(v, "true") {
				sc.TraceFlags = spanctx.FlagsSampled
			}
			requiredFieldCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if requiredFieldCount < b3FieldCount {
		if requiredFieldCount == 0 {
			return nil, opentracing.ErrSpanContextNotFound
		}
		return nil, opentracing.ErrSpanContextCorrupted
	}
	return sc, nil
}
