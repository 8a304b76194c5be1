package autotraceoc

import (
	"context"
	"sync"

	autotrace "github.com/lightstep/lightstep-autotrace-go"
	"github.com/lightstep/lightstep-autotrace-go/autotraceoc/internal/conversions"
	"go.opencensus.io/trace"
)

// Option provides configuration for the Exporter
type Option func(*config)

// WithExporter adds an OpenCensus exporter that receives every span.
func WithExporter(exporter trace.Exporter) Option {
	return func(c *config) {
		if exporter != nil {
			c.exporters = append(c.exporters, exporter)
		}
	}
}

// WithSampledOnly skips spans whose sampled flag is unset.
func WithSampledOnly() Option {
	return func(c *config) {
		c.sampledOnly = true
	}
}

type config struct {
	exporters   []trace.Exporter
	sampledOnly bool
}

func defaultConfig() *config {
	return &config{}
}

// flusher matches the Flush method most OpenCensus exporters provide.
type flusher interface {
	Flush()
}

// Exporter converts finished autotrace spans to OpenCensus span data.
type Exporter struct {
	sampledOnly bool

	lock      sync.RWMutex
	exporters []trace.Exporter
}

var (
	_ autotrace.SpanRecorder = (*Exporter)(nil)
	_ autotrace.Flusher      = (*Exporter)(nil)
)

func NewExporter(opts ...Option) *Exporter {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return &Exporter{
		sampledOnly: c.sampledOnly,
		exporters:   c.exporters,
	}
}

// Register adds an exporter after construction.
func (e *Exporter) Register(exporter trace.Exporter) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.exporters = append(e.exporters, exporter)
}

// Unregister removes an exporter added before.
func (e *Exporter) Unregister(exporter trace.Exporter) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for i, registered := range e.exporters {
		if registered == exporter {
			e.exporters = append(e.exporters[:i:i], e.exporters[i+1:]...)
			return
		}
	}
}

func (e *Exporter) RecordSpan(span autotrace.RawSpan) {
	if e.sampledOnly && !span.Context.TraceFlags.IsSampled() {
		return
	}
	sd := conversions.ConvertSpan(span)

	e.lock.RLock()
	defer e.lock.RUnlock()
	for _, exporter := range e.exporters {
		exporter.ExportSpan(sd)
	}
}

// Flush flushes every registered exporter that supports it.
func (e *Exporter) Flush(ctx context.Context) error {
	e.lock.RLock()
	defer e.lock.RUnlock()
	for _, exporter := range e.exporters {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f, ok := exporter.(flusher); ok {
			f.Flush()
		}
	}
	return nil
}
