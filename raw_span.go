package autotrace

import (
	"github.com/lightstep/lightstep-autotrace-go/internal"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
)

// RawSpan is a finished span decoded from a probe record.
type RawSpan = internal.RawSpan

type SpanKind = internal.SpanKind

const (
	SpanKindServer = internal.SpanKindServer
	SpanKindClient = internal.SpanKindClient
)

// SpanContext is the W3C trace context threaded through probes. It
// implements opentracing.SpanContext.
type SpanContext = spanctx.SpanContext
