// Package lightstepgrpc reports autotrace spans to a LightStep collector over
// gRPC.
package lightstepgrpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"

	autotrace "github.com/lightstep/lightstep-autotrace-go"
	"github.com/lightstep/lightstep-tracer-common/golang/gogo/collectorpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

const (
	DefaultAddr             = "localhost:8360"
	DefaultMaxBufferedSpans = 1000

	ComponentNameKey = "lightstep.component_name"
)

var (
	ErrDisabled = errors.New("lightstepgrpc: collector disabled reporting")
	ErrClosed   = errors.New("lightstepgrpc: recorder is closed")
)

type Option func(*config)

func WithAddress(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

func WithInsecure() Option {
	return func(c *config) {
		c.insecure = true
	}
}

func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(c *config) {
		c.tlsConfig = tlsConfig
	}
}

func WithAccessToken(accessToken string) Option {
	return func(c *config) {
		c.accessToken = accessToken
	}
}

// WithComponentName names the reporting service in LightStep.
func WithComponentName(name string) Option {
	return func(c *config) {
		c.componentName = name
	}
}

// WithMaxBufferedSpans bounds the spans held between flushes. Spans recorded
// past the bound are dropped and counted.
func WithMaxBufferedSpans(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBufferedSpans = n
		}
	}
}

// WithClient reports through an existing client instead of dialing.
func WithClient(client collectorpb.CollectorServiceClient) Option {
	return func(c *config) {
		c.client = client
	}
}

type config struct {
	addr             string
	insecure         bool
	tlsConfig        *tls.Config
	accessToken      string
	componentName    string
	maxBufferedSpans int
	client           collectorpb.CollectorServiceClient
}

func defaultConfig() *config {
	return &config{
		addr:             DefaultAddr,
		tlsConfig:        &tls.Config{},
		componentName:    autotrace.DefaultServiceName,
		maxBufferedSpans: DefaultMaxBufferedSpans,
	}
}

// Recorder is an autotrace.SpanRecorder that buffers spans until Flush.
type Recorder struct {
	accessToken   string
	componentName string
	reporterID    uint64
	maxBuffered   int

	conn      *grpc.ClientConn
	satellite collectorpb.CollectorServiceClient

	lock     sync.Mutex
	buffer   []autotrace.RawSpan
	dropped  int
	disabled bool
	closed   bool
}

var (
	_ autotrace.SpanRecorder = (*Recorder)(nil)
	_ autotrace.Flusher      = (*Recorder)(nil)
)

func New(opts ...Option) (*Recorder, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	r := &Recorder{
		accessToken:   c.accessToken,
		componentName: c.componentName,
		reporterID:    reporterID(),
		maxBuffered:   c.maxBufferedSpans,
		satellite:     c.client,
	}
	if r.satellite != nil {
		return r, nil
	}

	var dialOptions []grpc.DialOption
	if c.insecure {
		dialOptions = append(dialOptions, grpc.WithInsecure())
	} else {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsConfig)))
	}
	conn, err := grpc.Dial(c.addr, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("lightstepgrpc: dial %s: %w", c.addr, err)
	}
	r.conn = conn
	r.satellite = collectorpb.NewCollectorServiceClient(conn)
	return r, nil
}

func (r *Recorder) RecordSpan(span autotrace.RawSpan) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.disabled || r.closed {
		return
	}
	if len(r.buffer) >= r.maxBuffered {
		r.dropped++
		return
	}
	r.buffer = append(r.buffer, span)
}

// Dropped returns the number of spans dropped because the buffer was full
// since the recorder was created.
func (r *Recorder) Dropped() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.dropped
}

// Flush sends every buffered span in one report.
func (r *Recorder) Flush(ctx context.Context) error {
	r.lock.Lock()
	if r.disabled {
		r.lock.Unlock()
		return ErrDisabled
	}
	spans := r.buffer
	r.buffer = nil
	r.lock.Unlock()

	if len(spans) == 0 {
		return nil
	}

	res, err := r.satellite.Report(ctx, r.translate(spans))
	if err != nil {
		return fmt.Errorf("lightstepgrpc: report: %w", err)
	}
	for _, command := range res.GetCommands() {
		if command.Disable {
			r.lock.Lock()
			r.disabled = true
			r.buffer = nil
			r.lock.Unlock()
			return ErrDisabled
		}
	}
	if errs := res.GetErrors(); len(errs) > 0 {
		return fmt.Errorf("lightstepgrpc: report contained errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Close flushes and releases the connection.
func (r *Recorder) Close(ctx context.Context) error {
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return ErrClosed
	}
	r.lock.Unlock()

	flushErr := r.Flush(ctx)

	r.lock.Lock()
	r.closed = true
	r.lock.Unlock()

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return err
		}
	}
	if flushErr == ErrDisabled {
		return nil
	}
	return flushErr
}
