// Package autotrace turns probe events from an uninstrumented process into
// finished spans.
//
// A Session owns the shared correlation state for one attached target: the
// span context store, one instrumentor per supported library, and their
// output streams. An external attacher binds Probes() to the target's
// symbols and feeds each probe event to the matching handler; Run drains the
// finished records and hands decoded spans to the configured recorders.
package autotrace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation/hyper"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation/tonic"
	"github.com/lightstep/lightstep-autotrace-go/offsets"
	"github.com/lightstep/lightstep-autotrace-go/probe"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	"github.com/lightstep/lightstep-autotrace-go/unit"
	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// ServiceNameKey is the tag carrying the configured service name.
const ServiceNameKey = "service.name"

type Session struct {
	config        *config
	env           *instrumentation.Env
	instrumentors []instrumentation.Instrumentor
	propagators   PropagatorStack

	running   atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}

	sent         atomic.Int64
	dropped      atomic.Int64
	decodeErrors atomic.Int64
}

// NewSession prepares tracing of the process whose memory is mem.
func NewSession(mem probe.Memory, opts ...Option) (*Session, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		c.onEvent(newEventStartError(err))
		return nil, err
	}
	if mem == nil {
		c.onEvent(newEventStartError(ErrNoMemory))
		return nil, ErrNoMemory
	}

	resolver := c.resolver
	if resolver == nil && c.offsetsFile != "" {
		table, err := offsets.LoadFile(c.offsetsFile)
		if err != nil {
			c.onEvent(newEventStartError(err))
			return nil, err
		}
		resolver = table
	}

	fields := append(hyper.Fields(), tonic.Fields()...)
	layout := offsets.Resolve(resolver, c.libraryVersion, fields...)
	if missing := layout.Missing(); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, id := range missing {
			names = append(names, id.String())
		}
		c.logger.Warn("structure offsets unavailable, fields will be skipped",
			zap.String("version", c.libraryVersion),
			zap.Strings("fields", names),
		)
	}

	s := &Session{
		config: c,
		closed: make(chan struct{}),
	}
	s.env = &instrumentation.Env{
		Builder: probe.NewBuilder(mem, layout),
		Store:   spanctx.NewStore(c.contextCapacity, c.contextDepth),
		Identifier: unit.Chain{
			unit.TaskIdentifier{},
			unit.StackIdentifier{MaskBits: c.stackMaskBits},
		},
		Clock:  c.clock,
		Logger: c.logger,
		OnDrop: s.onDrop,
	}
	s.instrumentors = []instrumentation.Instrumentor{
		hyper.New(s.env, hyper.WithMaxConcurrent(c.maxConcurrent), hyper.WithOutputBuffer(c.outputBuffer)),
		tonic.New(s.env, tonic.WithMaxConcurrent(c.maxConcurrent), tonic.WithOutputBuffer(c.outputBuffer)),
	}
	for _, p := range c.propagators {
		s.propagators.PushPropagator(p)
	}

	c.logger.Info("autotrace session created",
		zap.String("service", c.serviceName),
		zap.Int("max_concurrent", c.maxConcurrent),
		zap.Int("context_depth", c.contextDepth),
	)
	return s, nil
}

func (s *Session) onDrop(d instrumentation.Drop) {
	s.dropped.Add(1)
	if s.config.verbose {
		s.config.logger.Info("probe event dropped",
			zap.String("library", d.Kind),
			zap.String("probe", d.Probe),
			zap.Stringer("reason", d.Reason),
		)
	}
	s.config.onEvent(newEventSpanDropped(d))
}

func (s *Session) Instrumentors() []instrumentation.Instrumentor {
	return s.instrumentors
}

// Probes maps each target symbol to the handlers to attach to it.
func (s *Session) Probes() map[string]instrumentation.Probe {
	probes := map[string]instrumentation.Probe{}
	for _, inst := range s.instrumentors {
		for _, p := range inst.Probes() {
			probes[p.Symbol] = p
		}
	}
	return probes
}

// Relevant returns the instrumentors with at least one of their functions
// among symbols, the demangled symbol names found in the target.
func (s *Session) Relevant(symbols []string) []instrumentation.Instrumentor {
	present := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		present[sym] = struct{}{}
	}

	var relevant []instrumentation.Instrumentor
	for _, inst := range s.instrumentors {
		names := inst.FuncNames()
		found := 0
		for _, name := range names {
			if _, ok := present[name]; ok {
				found++
			}
		}
		if found == 0 {
			s.config.logger.Warn("instrumentor has no matching functions", zap.String("library", inst.Library()))
			continue
		}
		s.config.logger.Info("instrumentor matched",
			zap.String("library", inst.Library()),
			zap.Int("found", found),
			zap.Int("total", len(names)),
		)
		relevant = append(relevant, inst)
	}
	return relevant
}

// Store exposes the span context store shared by every instrumentor.
func (s *Session) Store() *spanctx.Store {
	return s.env.Store
}

// Run consumes finished records until ctx is done or the session is closed,
// then flushes the recorders.
func (s *Session) Run(ctx context.Context) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, inst := range s.instrumentors {
		wg.Add(1)
		go func(inst instrumentation.Instrumentor) {
			defer wg.Done()
			inst.Stream().Consume(ctx, func(b []byte) {
				s.handleRecord(inst, b)
			})
		}(inst)
	}

	ticker := s.config.clock.NewTicker(s.config.reportInterval)
	defer ticker.Stop()
	reportStart := s.config.clock.Now()

	var err error
loop:
	for {
		select {
		case <-ticker.C():
			reportStart = s.report(reportStart)
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case <-s.closed:
			break loop
		}
	}
	// on Close the streams are already closed and consumers drain what is queued
	wg.Wait()
	s.report(reportStart)

	flushCtx, flushCancel := context.WithTimeout(context.Background(), s.config.reportInterval)
	defer flushCancel()
	s.flush(flushCtx)
	return err
}

func (s *Session) handleRecord(inst instrumentation.Instrumentor, b []byte) {
	span, ok := inst.Decode(b)
	if !ok {
		s.decodeErrors.Add(1)
		return
	}
	if s.config.serviceName != "" {
		span.SetTag(ServiceNameKey, s.config.serviceName)
	}
	s.sent.Add(1)
	for _, r := range s.config.recorders {
		r.RecordSpan(span)
	}
}

func (s *Session) report(start time.Time) time.Time {
	now := s.config.clock.Now()
	pending := 0
	for _, inst := range s.instrumentors {
		pending += inst.Pending()
	}
	s.config.onEvent(newEventStatusReport(
		start, now,
		int(s.sent.Swap(0)),
		int(s.dropped.Swap(0)),
		int(s.decodeErrors.Swap(0)),
		pending,
	))
	return now
}

func (s *Session) flush(ctx context.Context) {
	for _, r := range s.config.recorders {
		f, ok := r.(Flusher)
		if !ok {
			continue
		}
		if err := f.Flush(ctx); err != nil {
			s.config.logger.Warn("span recorder flush failed", zap.Error(err))
			s.config.onEvent(newEventFlushError(err, FlushErrorRecorder))
		}
	}
}

// Flush forces buffered spans out of every recorder that buffers.
func (s *Session) Flush(ctx context.Context) {
	select {
	case <-s.closed:
		s.config.onEvent(newEventFlushError(ErrSessionClosed, FlushErrorSessionClosed))
		return
	default:
	}
	s.flush(ctx)
}

// Close stops the output streams and discards all correlation state.
// Records already queued are still delivered to a running Run.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, inst := range s.instrumentors {
			inst.Stream().Close()
		}
		close(s.closed)
		for _, inst := range s.instrumentors {
			inst.Reset()
		}
		s.env.Store.Reset()
		s.config.logger.Info("autotrace session closed")
	})
}

// Inject writes sc into carrier with the configured propagators.
func (s *Session) Inject(sc opentracing.SpanContext, carrier interface{}) error {
	return s.propagators.Inject(sc, carrier)
}

// Extract reads a span context from carrier with the configured propagators.
func (s *Session) Extract(carrier interface{}) (opentracing.SpanContext, error) {
	return s.propagators.Extract(carrier)
}
