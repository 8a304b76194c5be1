// Package autotraceot replays autotrace spans onto an OpenTracing tracer.
//
// Span identifiers are assigned by the target tracer, so the ones observed in
// the traced process are kept as tags.
package autotraceot

import (
	autotrace "github.com/lightstep/lightstep-autotrace-go"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

const (
	TraceIDKey      = "autotrace.trace_id"
	SpanIDKey       = "autotrace.span_id"
	ParentSpanIDKey = "autotrace.parent_span_id"
	LibraryKey      = "autotrace.library"
)

// Replayer is an autotrace.SpanRecorder that starts and finishes one
// OpenTracing span per recorded span.
type Replayer struct {
	tracer opentracing.Tracer
}

var _ autotrace.SpanRecorder = (*Replayer)(nil)

// New replays onto tracer, or onto the global tracer when tracer is nil.
func New(tracer opentracing.Tracer) *Replayer {
	return &Replayer{tracer: tracer}
}

func (r *Replayer) Tracer() opentracing.Tracer {
	if r.tracer != nil {
		return r.tracer
	}
	return opentracing.GlobalTracer()
}

func (r *Replayer) RecordSpan(span autotrace.RawSpan) {
	tags := opentracing.Tags{
		TraceIDKey: span.Context.TraceID.String(),
		SpanIDKey:  span.Context.SpanID.String(),
		LibraryKey: span.Library,
	}
	if span.ParentSpanID.IsValid() {
		tags[ParentSpanIDKey] = span.ParentSpanID.String()
	}

	opts := []opentracing.StartSpanOption{
		opentracing.StartTime(span.Start),
		tags,
		opentracing.Tags(span.Tags),
	}
	switch span.Kind {
	case autotrace.SpanKindServer:
		opts = append(opts, ext.SpanKindRPCServer)
	case autotrace.SpanKindClient:
		opts = append(opts, ext.SpanKindRPCClient)
	}

	otSpan := r.Tracer().StartSpan(span.Operation, opts...)
	otSpan.FinishWithOptions(opentracing.FinishOptions{
		FinishTime: span.Start.Add(span.Duration),
	})
}
