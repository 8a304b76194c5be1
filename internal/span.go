package internal

import (
	"time"

	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	opentracing "github.com/opentracing/opentracing-go"
)

// SpanKind tells whether the traced side served or issued the call.
type SpanKind uint8

const (
	SpanKindServer SpanKind = iota
	SpanKindClient
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "server"
	case SpanKindClient:
		return "client"
	default:
		return "unknown"
	}
}

// RawSpan is one decoded, finished span record.
type RawSpan struct {
	Context spanctx.SpanContext

	// Zero when the span is a trace root.
	ParentSpanID spanctx.SpanID

	Operation string
	Kind      SpanKind

	// Instrumented library, e.g. "hyper".
	Library string

	Start    time.Time
	Duration time.Duration

	Tags opentracing.Tags
}

func (s *RawSpan) SetTag(key string, value interface{}) {
	if s.Tags == nil {
		s.Tags = opentracing.Tags{}
	}
	s.Tags[key] = value
}
