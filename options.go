package autotrace

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
	"github.com/lightstep/lightstep-autotrace-go/internal/timex"
	"github.com/lightstep/lightstep-autotrace-go/offsets"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	"github.com/lightstep/lightstep-autotrace-go/unit"
	"go.uber.org/zap"
)

const (
	DefaultServiceName    = "autotrace"
	DefaultReportInterval = time.Second * 3
	DefaultOutputBuffer   = 1024
	DefaultMaxConcurrent  = instrumentation.DefaultMaxConcurrent

	// EnvPrefix prefixes every variable read by OptionsFromEnv.
	EnvPrefix = "AUTOTRACE"
)

type Option func(*config)

type config struct {
	serviceName     string
	maxConcurrent   int
	outputBuffer    int
	contextCapacity int
	contextDepth    int
	stackMaskBits   uint
	resolver        offsets.Resolver
	offsetsFile     string
	libraryVersion  string
	reportInterval  time.Duration
	recorders       []SpanRecorder
	propagators     []Propagator
	onEvent         func(Event)
	logger          *zap.Logger
	verbose         bool
	clock           timex.Clock
}

func defaultConfig() *config {
	return &config{
		serviceName:     DefaultServiceName,
		maxConcurrent:   DefaultMaxConcurrent,
		outputBuffer:    DefaultOutputBuffer,
		contextCapacity: spanctx.DefaultStoreCapacity,
		contextDepth:    spanctx.MaxDepth,
		stackMaskBits:   unit.DefaultStackMaskBits,
		reportInterval:  DefaultReportInterval,
		propagators:     []Propagator{TraceContextPropagator},
		onEvent:         func(Event) {},
		logger:          zap.NewNop(),
		clock:           timex.NewClock(),
	}
}

func (c *config) validate() error {
	switch {
	case c.maxConcurrent < 1:
		return newErrInvalidOption("max concurrent", c.maxConcurrent)
	case c.outputBuffer < 1:
		return newErrInvalidOption("output buffer", c.outputBuffer)
	case c.contextCapacity < 1:
		return newErrInvalidOption("context capacity", c.contextCapacity)
	case c.contextDepth < 1:
		return newErrInvalidOption("context depth", c.contextDepth)
	case c.stackMaskBits == 0 || c.stackMaskBits >= 64:
		return newErrInvalidOption("stack mask bits", c.stackMaskBits)
	case c.reportInterval <= 0:
		return newErrInvalidOption("report interval", c.reportInterval)
	}
	return nil
}

// WithServiceName sets the service.name tag added to every span.
func WithServiceName(name string) Option {
	return func(c *config) {
		c.serviceName = name
	}
}

// WithMaxConcurrent bounds in-flight calls per instrumented library.
func WithMaxConcurrent(n int) Option {
	return func(c *config) {
		c.maxConcurrent = n
	}
}

// WithOutputBuffer sets how many finished records each library may queue.
func WithOutputBuffer(n int) Option {
	return func(c *config) {
		c.outputBuffer = n
	}
}

// WithContextCapacity bounds the number of execution units holding an
// active span context.
func WithContextCapacity(n int) Option {
	return func(c *config) {
		c.contextCapacity = n
	}
}

// WithContextDepth bounds how many nested spans one execution unit tracks.
func WithContextDepth(n int) Option {
	return func(c *config) {
		c.contextDepth = n
	}
}

// WithStackMaskBits sets the stack region granularity used to tell execution
// units apart when no runtime task id is available. Valid values are 1 to 63.
func WithStackMaskBits(bits uint) Option {
	return func(c *config) {
		c.stackMaskBits = bits
	}
}

// WithResolver supplies structure offsets directly.
func WithResolver(r offsets.Resolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// WithOffsetsFile loads structure offsets from a YAML document. Ignored when
// a resolver is set.
func WithOffsetsFile(path string) Option {
	return func(c *config) {
		c.offsetsFile = path
	}
}

// WithLibraryVersion selects the offsets version key, e.g. "hyper@0.14.27".
func WithLibraryVersion(version string) Option {
	return func(c *config) {
		c.libraryVersion = version
	}
}

func WithReportInterval(reportInterval time.Duration) Option {
	return func(c *config) {
		c.reportInterval = reportInterval
	}
}

// WithRecorder adds a destination for finished spans.
func WithRecorder(r SpanRecorder) Option {
	return func(c *config) {
		c.recorders = append(c.recorders, r)
	}
}

// WithPropagators replaces the userspace propagators used by Inject and
// Extract.
func WithPropagators(p ...Propagator) Option {
	return func(c *config) {
		c.propagators = p
	}
}

func WithOnEvent(fn func(Event)) Option {
	return func(c *config) {
		if fn != nil {
			c.onEvent = fn
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithVerbose logs every dropped probe event at info level.
func WithVerbose(verbose bool) Option {
	return func(c *config) {
		c.verbose = verbose
	}
}

func withClock(clock timex.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// EnvSpec lists the AUTOTRACE_* environment variables.
type EnvSpec struct {
	ServiceName    string        `envconfig:"SERVICE_NAME" default:"autotrace"`
	MaxConcurrent  int           `envconfig:"MAX_CONCURRENT" default:"50"`
	OutputBuffer   int           `envconfig:"OUTPUT_BUFFER" default:"1024"`
	ContextDepth   int           `envconfig:"CONTEXT_DEPTH" default:"8"`
	StackMaskBits  uint          `envconfig:"STACK_MASK_BITS" default:"16"`
	OffsetsFile    string        `envconfig:"OFFSETS_FILE"`
	LibraryVersion string        `envconfig:"LIBRARY_VERSION"`
	ReportInterval time.Duration `envconfig:"REPORT_INTERVAL" default:"3s"`
	Verbose        bool          `envconfig:"VERBOSE"`
}

// OptionsFromEnv reads the AUTOTRACE_* environment.
func OptionsFromEnv() ([]Option, error) {
	var env EnvSpec
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, err
	}
	opts := []Option{
		WithServiceName(env.ServiceName),
		WithMaxConcurrent(env.MaxConcurrent),
		WithOutputBuffer(env.OutputBuffer),
		WithContextDepth(env.ContextDepth),
		WithStackMaskBits(env.StackMaskBits),
		WithReportInterval(env.ReportInterval),
		WithVerbose(env.Verbose),
	}
	if env.OffsetsFile != "" {
		opts = append(opts, WithOffsetsFile(env.OffsetsFile))
	}
	if env.LibraryVersion != "" {
		opts = append(opts, WithLibraryVersion(env.LibraryVersion))
	}
	return opts, nil
}
