// Package instrumentation correlates entry, enrichment and return probe
// events into span records.
package instrumentation

import (
	"github.com/lightstep/lightstep-autotrace-go/internal/randx"
	"github.com/lightstep/lightstep-autotrace-go/internal/timex"
	"github.com/lightstep/lightstep-autotrace-go/probe"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	"github.com/lightstep/lightstep-autotrace-go/unit"
	"go.uber.org/zap"
)

// Env is the state shared by every instrumentor of one session. The Store
// in particular must be the same instance for all of them so a client call
// sees the server span it runs under as its parent.
type Env struct {
	Builder    *probe.Builder
	Store      *spanctx.Store
	Identifier unit.Identifier
	Clock      timex.Clock
	IDs        *randx.Pool
	Logger     *zap.Logger
	OnDrop     func(Drop)
}

// NewEnv returns an Env with defaults for everything but the builder.
func NewEnv(builder *probe.Builder) *Env {
	return &Env{
		Builder:    builder,
		Store:      spanctx.NewStore(spanctx.DefaultStoreCapacity, spanctx.MaxDepth),
		Identifier: unit.Default(),
		Clock:      timex.NewClock(),
		Logger:     zap.NewNop(),
	}
}

func (e *Env) traceID() spanctx.TraceID {
	if e.IDs != nil {
		return randx.TraceID(randx.WithPool(e.IDs))
	}
	return randx.TraceID()
}

func (e *Env) spanID() spanctx.SpanID {
	if e.IDs != nil {
		return randx.SpanID(randx.WithPool(e.IDs))
	}
	return randx.SpanID()
}

func (e *Env) drop(d Drop) {
	if e.Logger != nil {
		e.Logger.Debug("probe event dropped",
			zap.String("kind", d.Kind),
			zap.String("probe", d.Probe),
			zap.Stringer("reason", d.Reason),
		)
	}
	if e.OnDrop != nil {
		e.OnDrop(d)
	}
}
