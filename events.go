package autotrace

import (
	"fmt"
	"sync"
	"time"

	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
	"go.uber.org/zap"
)

// Events are emitted by the Session as a reporting mechanism. They are
// handled by passing an OnEvent callback with WithOnEvent. Events may be cast
// to specific event types in order to access additional information.
//
// NOTE: To ensure that events can be accurately identified, each event type
// contains a sentinel method matching the name of the type. This method is a
// no-op, it is only used for type coercion.
type Event interface {
	Event()
	String() string
}

// The ErrorEvent type can be used to filter events for errors. The `Err`
// method returns the underlying error.
type ErrorEvent interface {
	Event
	error
	Err() error
}

// EventStartError occurs if the options passed to NewSession are invalid,
// and the session has failed to start.
type EventStartError interface {
	ErrorEvent
	EventStartError()
}

type eventStartError struct {
	err error
}

func newEventStartError(err error) *eventStartError {
	return &eventStartError{err: err}
}

func (*eventStartError) Event()           {}
func (*eventStartError) EventStartError() {}

func (e *eventStartError) String() string {
	return e.err.Error()
}

func (e *eventStartError) Error() string {
	return e.err.Error()
}

func (e *eventStartError) Err() error {
	return e.err
}

// EventSpanDropped occurs when a probe event could not contribute to a span.
// Most reasons are expected under load and mean the call goes untraced.
type EventSpanDropped interface {
	Event
	EventSpanDropped()
	Library() string
	Probe() string
	Reason() instrumentation.DropReason
}

type eventSpanDropped struct {
	drop instrumentation.Drop
}

func newEventSpanDropped(d instrumentation.Drop) *eventSpanDropped {
	return &eventSpanDropped{drop: d}
}

func (*eventSpanDropped) Event()            {}
func (*eventSpanDropped) EventSpanDropped() {}

func (e *eventSpanDropped) Library() string {
	return e.drop.Kind
}

func (e *eventSpanDropped) Probe() string {
	return e.drop.Probe
}

func (e *eventSpanDropped) Reason() instrumentation.DropReason {
	return e.drop.Reason
}

func (e *eventSpanDropped) String() string {
	return fmt.Sprintf("span dropped: library=%s probe=%s reason=%s", e.drop.Kind, e.drop.Probe, e.drop.Reason)
}

// EventFlushErrorState lists the possible causes for a flush to fail.
type EventFlushErrorState string

const (
	FlushErrorSessionClosed EventFlushErrorState = "flush failed, the session is closed."
	FlushErrorRecorder      EventFlushErrorState = "flush failed, a span recorder returned an error"
)

// EventFlushError occurs when a recorder fails to flush. Call the `State`
// method to determine the type of error.
type EventFlushError interface {
	ErrorEvent
	EventFlushError()
	State() EventFlushErrorState
}

type eventFlushError struct {
	err   error
	state EventFlushErrorState
}

func newEventFlushError(err error, state EventFlushErrorState) *eventFlushError {
	return &eventFlushError{err: err, state: state}
}

func (*eventFlushError) Event()           {}
func (*eventFlushError) EventFlushError() {}

func (e *eventFlushError) State() EventFlushErrorState {
	return e.state
}

func (e *eventFlushError) String() string {
	return e.err.Error()
}

func (e *eventFlushError) Error() string {
	return e.err.Error()
}

func (e *eventFlushError) Err() error {
	return e.err
}

// EventStatusReport occurs on every report interval. It contains the counts
// collected since the previous report.
type EventStatusReport interface {
	Event
	EventStatusReport()
	StartTime() time.Time
	FinishTime() time.Time
	Duration() time.Duration
	SentSpans() int
	DroppedSpans() int
	DecodeErrors() int
	PendingSpans() int
}

type eventStatusReport struct {
	startTime    time.Time
	finishTime   time.Time
	sentSpans    int
	droppedSpans int
	decodeErrors int
	pendingSpans int
}

func newEventStatusReport(startTime, finishTime time.Time, sentSpans, droppedSpans, decodeErrors, pendingSpans int) *eventStatusReport {
	return &eventStatusReport{
		startTime:    startTime,
		finishTime:   finishTime,
		sentSpans:    sentSpans,
		droppedSpans: droppedSpans,
		decodeErrors: decodeErrors,
		pendingSpans: pendingSpans,
	}
}

func (*eventStatusReport) Event() {}

func (*eventStatusReport) EventStatusReport() {}

func (s *eventStatusReport) StartTime() time.Time {
	return s.startTime
}

func (s *eventStatusReport) FinishTime() time.Time {
	return s.finishTime
}

func (s *eventStatusReport) Duration() time.Duration {
	return s.finishTime.Sub(s.startTime)
}

func (s *eventStatusReport) SentSpans() int {
	return s.sentSpans
}

func (s *eventStatusReport) DroppedSpans() int {
	return s.droppedSpans
}

func (s *eventStatusReport) DecodeErrors() int {
	return s.decodeErrors
}

func (s *eventStatusReport) PendingSpans() int {
	return s.pendingSpans
}

func (s *eventStatusReport) String() string {
	return fmt.Sprint("STATUS REPORT start: ", s.startTime, ", end: ", s.finishTime,
		", sent spans: ", s.sentSpans, ", dropped spans: ", s.droppedSpans,
		", decode errors: ", s.decodeErrors, ", pending spans: ", s.pendingSpans)
}

/*
	OnEvent Handlers
*/

// NewOnEventLogger logs every event to logger.
func NewOnEventLogger(logger *zap.Logger) func(Event) {
	return func(event Event) {
		switch event := event.(type) {
		case ErrorEvent:
			logger.Error("autotrace error", zap.Error(event.Err()))
		case EventSpanDropped:
			logger.Debug("autotrace event",
				zap.String("library", event.Library()),
				zap.String("probe", event.Probe()),
				zap.Stringer("reason", event.Reason()),
			)
		default:
			logger.Info("autotrace event", zap.Stringer("event", event))
		}
	}
}

// NewOnEventLogOneError only logs the first error.
func NewOnEventLogOneError(logger *zap.Logger) func(Event) {
	l := &logOneError{logger: logger}
	return l.OnEvent
}

type logOneError struct {
	sync.Once
	logger *zap.Logger
}

func (l *logOneError) OnEvent(event Event) {
	switch event := event.(type) {
	case ErrorEvent:
		l.Once.Do(func() {
			l.logger.Error("autotrace error. NOTE: Set the Verbose option to enable more logging.", zap.Error(event.Err()))
		})
	}
}

// NewOnEventChannel returns an OnEvent callback handler, and a channel that
// produces the events. When the channel buffer is full, subsequent events
// will be dropped. A buffer size of less than one is incorrect, and will be
// adjusted to a buffer size of one.
func NewOnEventChannel(buffer int) (func(Event), <-chan Event) {
	if buffer < 1 {
		buffer = 1
	}

	eventChan := make(chan Event, buffer)

	handler := func(event Event) {
		select {
		case eventChan <- event:
		default:
		}
	}

	return handler, eventChan
}
