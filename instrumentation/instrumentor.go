package instrumentation

import (
	"encoding/binary"
	"time"

	"github.com/lightstep/lightstep-autotrace-go/emit"
	"github.com/lightstep/lightstep-autotrace-go/internal"
	"github.com/lightstep/lightstep-autotrace-go/offsets"
	"github.com/lightstep/lightstep-autotrace-go/probe"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
)

// Handler runs when an attached probe fires. Handlers never block and
// never fail; a probe that cannot do its work does nothing.
type Handler func(regs *probe.Regs)

// Probe binds handlers to one target symbol. Either handler may be nil.
type Probe struct {
	Symbol string
	Entry  Handler
	Return Handler
}

// Instrumentor is one instrumented library.
type Instrumentor interface {
	Library() string
	// FuncNames lists the symbols the attacher must resolve.
	FuncNames() []string
	Probes() []Probe
	// Fields lists the structure offsets the probes read.
	Fields() []offsets.ID
	Stream() *emit.Stream
	// Decode turns a record from Stream into a span.
	Decode(b []byte) (internal.RawSpan, bool)
	Pending() int
	Reset()
}

// ContextSize is the encoded size of a span context plus parent span id:
// trace id, span id, flags, parent span id.
const ContextSize = spanctx.TraceIDSize + spanctx.SpanIDSize + 1 + spanctx.SpanIDSize

// PutTimes writes start and end at b[0:16].
func PutTimes(b []byte, h *Header) {
	binary.LittleEndian.PutUint64(b[0:8], h.StartTime)
	binary.LittleEndian.PutUint64(b[8:16], h.EndTime)
}

// PutContext writes the header's span context and parent into
// b[:ContextSize].
func PutContext(b []byte, h *Header) {
	_ = b[ContextSize-1]
	n := copy(b, h.Context.TraceID[:])
	n += copy(b[n:], h.Context.SpanID[:])
	b[n] = byte(h.Context.TraceFlags)
	copy(b[n+1:], h.ParentSpanID[:])
}

// ReadHeader reverses PutTimes and PutContext.
func ReadHeader(times, ctx []byte) Header {
	var h Header
	h.StartTime = binary.LittleEndian.Uint64(times[0:8])
	h.EndTime = binary.LittleEndian.Uint64(times[8:16])
	n := copy(h.Context.TraceID[:], ctx)
	n += copy(h.Context.SpanID[:], ctx[n:])
	h.Context.TraceFlags = spanctx.TraceFlags(ctx[n])
	copy(h.ParentSpanID[:], ctx[n+1:])
	return h
}

// SpanFromHeader fills the fields of a span every record kind shares.
func SpanFromHeader(h Header) internal.RawSpan {
	start := time.Unix(0, int64(h.StartTime))
	return internal.RawSpan{
		Context:      h.Context,
		ParentSpanID: h.ParentSpanID,
		Start:        start,
		Duration:     time.Duration(h.EndTime - h.StartTime),
	}
}

// CString returns b up to its first zero byte.
func CString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
