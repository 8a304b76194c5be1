// Package spanctx holds the span context carried between probes: the
// identifiers themselves, their W3C traceparent wire form, and the per
// execution unit store of currently active contexts.
package spanctx

import (
	"encoding/hex"

	opentracing "github.com/opentracing/opentracing-go"
)

const (
	TraceIDSize = 16
	SpanIDSize  = 8
)

// TraceID is a probabilistically unique identifier for a trace.
type TraceID [TraceIDSize]byte

// SpanID is a probabilistically unique identifier for a span.
type SpanID [SpanIDSize]byte

// TraceFlags carries the traceparent flag bits.
type TraceFlags byte

const FlagsSampled TraceFlags = 0x01

func (t TraceID) IsValid() bool {
	return t != TraceID{}
}

func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

func (s SpanID) IsValid() bool {
	return s != SpanID{}
}

func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

func (f TraceFlags) IsSampled() bool {
	return f&FlagsSampled == FlagsSampled
}

// SpanContext is the minimal state needed to create a child span or propagate
// a trace across a process boundary.
type SpanContext struct {
	TraceID    TraceID
	SpanID     SpanID
	TraceFlags TraceFlags
}

var _ opentracing.SpanContext = SpanContext{}

// IsValid reports whether both identifiers are set.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID.IsValid() && sc.SpanID.IsValid()
}

// ForeachBaggageItem belongs to the opentracing.SpanContext interface. Probe
// contexts never carry baggage.
func (sc SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {}

// Child returns the context of a new span whose parent is sc: the trace id and
// flags are kept and the span id is replaced.
func (sc SpanContext) Child(spanID SpanID) SpanContext {
	return SpanContext{TraceID: sc.TraceID, SpanID: spanID, TraceFlags: sc.TraceFlags}
}
