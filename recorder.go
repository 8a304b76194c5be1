package autotrace

import "context"

// SpanRecorder receives every span the session decodes. RecordSpan is called
// from the session's consumer goroutines and must not block for long.
type SpanRecorder interface {
	RecordSpan(RawSpan)
}

// Flusher is implemented by recorders that buffer spans. Flush is called
// when the session stops running.
type Flusher interface {
	Flush(context.Context) error
}

// SpanRecorderFunc adapts a function to a SpanRecorder.
type SpanRecorderFunc func(RawSpan)

func (f SpanRecorderFunc) RecordSpan(span RawSpan) {
	f(span)
}
