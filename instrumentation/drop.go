package instrumentation

// DropReason classifies why a probe event produced no (or a partial) span.
type DropReason uint8

const (
	// ReasonNilReceiver: the call receiver was null.
	ReasonNilReceiver DropReason = iota
	// ReasonCapacityExceeded: the pending table was full at entry.
	ReasonCapacityExceeded
	// ReasonCorrelationMiss: no pending record for the call site.
	ReasonCorrelationMiss
	// ReasonOutputFull: the record was complete but the stream was full.
	ReasonOutputFull
	// ReasonContextStoreFull: the span started but children will not see it
	// as their parent.
	ReasonContextStoreFull
	// ReasonNoUnit: the execution unit could not be identified.
	ReasonNoUnit
)

var dropReasonNames = [...]string{
	ReasonNilReceiver:      "nil_receiver",
	ReasonCapacityExceeded: "capacity_exceeded",
	ReasonCorrelationMiss:  "correlation_miss",
	ReasonOutputFull:       "output_full",
	ReasonContextStoreFull: "context_store_full",
	ReasonNoUnit:           "no_unit",
}

func (r DropReason) String() string {
	if int(r) < len(dropReasonNames) {
		return dropReasonNames[r]
	}
	return "unknown"
}

// Drop describes one degraded probe event.
type Drop struct {
	Kind   string
	Probe  string
	Reason DropReason
}
