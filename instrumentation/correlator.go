package instrumentation

import (
	"github.com/lightstep/lightstep-autotrace-go/emit"
	"github.com/lightstep/lightstep-autotrace-go/internal/table"
	"github.com/lightstep/lightstep-autotrace-go/internal/timex"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	"github.com/lightstep/lightstep-autotrace-go/unit"
)

// DefaultMaxConcurrent bounds in-flight calls per operation kind.
const DefaultMaxConcurrent = 50

// Header is the part of a request record every operation kind shares.
type Header struct {
	StartTime    uint64
	EndTime      uint64
	Context      spanctx.SpanContext
	ParentSpanID spanctx.SpanID
}

// Record is implemented by pointers to protocol request records.
type Record[R any] interface {
	*R
	Header() *Header
	// MarshalTo writes the fixed-size record layout into b.
	MarshalTo(b []byte)
}

type pending[R any] struct {
	unit    unit.Key
	hasUnit bool
	record  R
}

// Correlator drives the lifecycle of one operation kind:
//
//	(absent) -> Started -> Enriched* -> Completed -> (absent)
//
// Records are keyed by call site, the address of the call receiver. Every
// step is a single atomic table operation; none of them block.
type Correlator[R any, P Record[R]] struct {
	kind    string
	env     *Env
	pending *table.Table[pending[R]]
	stream  *emit.Stream
}

func NewCorrelator[R any, P Record[R]](kind string, capacity int, stream *emit.Stream, env *Env) *Correlator[R, P] {
	return &Correlator[R, P]{
		kind:    kind,
		env:     env,
		pending: table.New[pending[R]](capacity),
		stream:  stream,
	}
}

func (c *Correlator[R, P]) Kind() string {
	return c.kind
}

func (c *Correlator[R, P]) Stream() *emit.Stream {
	return c.stream
}

func (c *Correlator[R, P]) Env() *Env {
	return c.env
}

// Pending returns the number of started, unfinished calls.
func (c *Correlator[R, P]) Pending() int {
	return c.pending.Len()
}

func (c *Correlator[R, P]) report(probe string, reason DropReason) {
	c.env.drop(Drop{Kind: c.kind, Probe: probe, Reason: reason})
}

// Start opens a record for callSite. The parent is whatever span the
// execution unit is currently inside; without one a new trace begins. init
// may fill protocol fields known at entry.
func (c *Correlator[R, P]) Start(probe string, callSite uint64, exec unit.ExecContext, init func(P)) bool {
	if callSite == 0 {
		c.report(probe, ReasonNilReceiver)
		return false
	}

	var p pending[R]
	p.unit, p.hasUnit = c.env.Identifier.Identify(exec)
	if !p.hasUnit {
		c.report(probe, ReasonNoUnit)
	}

	if stale, ok := c.pending.Lookup(callSite); ok && stale.hasUnit {
		// the previous call on this receiver never returned; its frame must
		// not become the parent of the new span
		c.env.Store.Pop(stale.unit, P(&stale.record).Header().Context.SpanID)
	}

	h := P(&p.record).Header()
	h.Context.SpanID = c.env.spanID()
	if parent, ok := c.parent(p); ok {
		h.Context.TraceID = parent.TraceID
		h.Context.TraceFlags = parent.TraceFlags
		h.ParentSpanID = parent.SpanID
	} else {
		h.Context.TraceID = c.env.traceID()
		h.Context.TraceFlags = spanctx.FlagsSampled
	}
	h.StartTime = timex.UnixNanos(c.env.Clock)
	if init != nil {
		init(P(&p.record))
	}

	old, replaced, err := c.pending.Insert(callSite, p)
	if err != nil {
		c.report(probe, ReasonCapacityExceeded)
		return false
	}
	if replaced && old.hasUnit {
		// a concurrent Start may have replaced the record after the lookup
		c.env.Store.Pop(old.unit, P(&old.record).Header().Context.SpanID)
	}

	if p.hasUnit {
		if err := c.env.Store.Push(p.unit, h.Context); err != nil {
			c.report(probe, ReasonContextStoreFull)
		}
	}
	return true
}

func (c *Correlator[R, P]) parent(p pending[R]) (spanctx.SpanContext, bool) {
	if !p.hasUnit {
		return spanctx.SpanContext{}, false
	}
	return c.env.Store.Get(p.unit)
}

// Enrich applies fn to the pending record of callSite. A miss is a no-op.
func (c *Correlator[R, P]) Enrich(probe string, callSite uint64, fn func(P)) bool {
	if callSite == 0 {
		c.report(probe, ReasonNilReceiver)
		return false
	}
	ok := c.pending.Update(callSite, func(p *pending[R]) {
		fn(P(&p.record))
	})
	if !ok {
		c.report(probe, ReasonCorrelationMiss)
	}
	return ok
}

// Lookup returns a copy of the pending record of callSite.
func (c *Correlator[R, P]) Lookup(callSite uint64) (R, bool) {
	p, ok := c.pending.Lookup(callSite)
	return p.record, ok
}

// Context returns the span context of the pending record of callSite.
func (c *Correlator[R, P]) Context(callSite uint64) (spanctx.SpanContext, bool) {
	p, ok := c.pending.Lookup(callSite)
	if !ok {
		return spanctx.SpanContext{}, false
	}
	return P(&p.record).Header().Context, true
}

// Adopt re-parents the pending record of callSite under a context received
// from another process. The span keeps its own id; the execution unit's
// current context is updated so later children join the remote trace.
func (c *Correlator[R, P]) Adopt(probe string, callSite uint64, remote spanctx.SpanContext) bool {
	if !remote.IsValid() {
		return false
	}
	var (
		before, after spanctx.SpanContext
		owner         unit.Key
		hasUnit       bool
	)
	ok := c.pending.Update(callSite, func(p *pending[R]) {
		h := P(&p.record).Header()
		before = h.Context
		h.Context = remote.Child(h.Context.SpanID)
		h.ParentSpanID = remote.SpanID
		after = h.Context
		owner, hasUnit = p.unit, p.hasUnit
	})
	if !ok {
		c.report(probe, ReasonCorrelationMiss)
		return false
	}
	if hasUnit {
		c.env.Store.Replace(owner, before.SpanID, after)
	}
	return true
}

// Finish completes the record of callSite and emits it. At most one Finish
// per Start can succeed.
func (c *Correlator[R, P]) Finish(probe string, callSite uint64) bool {
	if callSite == 0 {
		c.report(probe, ReasonNilReceiver)
		return false
	}
	p, ok := c.pending.Take(callSite)
	if !ok {
		c.report(probe, ReasonCorrelationMiss)
		return false
	}

	h := P(&p.record).Header()
	h.EndTime = timex.UnixNanos(c.env.Clock)
	if h.EndTime < h.StartTime {
		h.EndTime = h.StartTime
	}
	emitted := c.stream.Emit(func(b []byte) {
		P(&p.record).MarshalTo(b)
	})
	if !emitted {
		c.report(probe, ReasonOutputFull)
	}
	if p.hasUnit {
		c.env.Store.Pop(p.unit, h.Context.SpanID)
	}
	return emitted
}

// Reset discards every pending record.
func (c *Correlator[R, P]) Reset() {
	c.pending.Reset()
}
