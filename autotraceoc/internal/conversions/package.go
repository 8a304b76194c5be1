package conversions

import (
	"fmt"
	"strconv"

	"github.com/lightstep/lightstep-autotrace-go/instrumentation/tonic"
	"github.com/lightstep/lightstep-autotrace-go/internal"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.opencensus.io/trace"
)

func ConvertTraceID(original spanctx.TraceID) trace.TraceID {
	return trace.TraceID(original)
}

func ConvertSpanID(original spanctx.SpanID) trace.SpanID {
	return trace.SpanID(original)
}

func ConvertTraceOptions(flags spanctx.TraceFlags) trace.TraceOptions {
	if flags.IsSampled() {
		return trace.TraceOptions(1)
	}
	return trace.TraceOptions(0)
}

func ConvertSpanKind(kind internal.SpanKind) int {
	switch kind {
	case internal.SpanKindServer:
		return trace.SpanKindServer
	case internal.SpanKindClient:
		return trace.SpanKindClient
	default:
		return trace.SpanKindUnspecified
	}
}

// ConvertAttributes keeps the value types OpenCensus exporters understand and
// formats the rest as strings.
func ConvertAttributes(tags opentracing.Tags) map[string]interface{} {
	if len(tags) == 0 {
		return nil
	}
	attributes := make(map[string]interface{}, len(tags))
	for k, v := range tags {
		switch typed := v.(type) {
		case string, bool, int64, float64:
			attributes[k] = typed
		case int:
			attributes[k] = int64(typed)
		case int32:
			attributes[k] = int64(typed)
		case uint16:
			attributes[k] = int64(typed)
		case uint32:
			attributes[k] = int64(typed)
		case float32:
			attributes[k] = float64(typed)
		default:
			attributes[k] = fmt.Sprint(typed)
		}
	}
	return attributes
}

// ConvertStatus derives the span status from the gRPC status code tag, or
// failing that from the HTTP status code tag.
func ConvertStatus(tags opentracing.Tags) trace.Status {
	if v, ok := tags[tonic.GRPCStatusCodeKey].(string); ok {
		if code, err := strconv.ParseInt(v, 10, 32); err == nil {
			return trace.Status{Code: int32(code)}
		}
	}
	if v, ok := tags[string(ext.HTTPStatusCode)].(uint16); ok {
		return httpStatus(int(v))
	}
	return trace.Status{Code: trace.StatusCodeOK}
}

func httpStatus(code int) trace.Status {
	var status trace.Status
	switch code {
	case 0:
		status.Code = trace.StatusCodeUnknown
	case 400:
		status.Code = trace.StatusCodeInvalidArgument
	case 401:
		status.Code = trace.StatusCodeUnauthenticated
	case 403:
		status.Code = trace.StatusCodePermissionDenied
	case 404:
		status.Code = trace.StatusCodeNotFound
	case 429:
		status.Code = trace.StatusCodeResourceExhausted
	case 501:
		status.Code = trace.StatusCodeUnimplemented
	case 503:
		status.Code = trace.StatusCodeUnavailable
	case 504:
		status.Code = trace.StatusCodeDeadlineExceeded
	default:
		if code < 400 {
			status.Code = trace.StatusCodeOK
		} else {
			status.Code = trace.StatusCodeUnknown
		}
	}
	if status.Code != trace.StatusCodeOK {
		status.Message = strconv.Itoa(code)
	}
	return status
}

func ConvertSpan(span internal.RawSpan) *trace.SpanData {
	return &trace.SpanData{
		SpanContext: trace.SpanContext{
			TraceID:      ConvertTraceID(span.Context.TraceID),
			SpanID:       ConvertSpanID(span.Context.SpanID),
			TraceOptions: ConvertTraceOptions(span.Context.TraceFlags),
		},
		ParentSpanID: ConvertSpanID(span.ParentSpanID),
		SpanKind:     ConvertSpanKind(span.Kind),
		Name:         span.Operation,
		StartTime:    span.Start,
		EndTime:      span.Start.Add(span.Duration),
		Attributes:   ConvertAttributes(span.Tags),
		Status:       ConvertStatus(span.Tags),
	}
}
