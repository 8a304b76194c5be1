package lightstepgrpc

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/gogo/protobuf/types"
	autotrace "github.com/lightstep/lightstep-autotrace-go"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
	"github.com/lightstep/lightstep-tracer-common/golang/gogo/collectorpb"
	opentracing "github.com/opentracing/opentracing-go"
)

// TraceIDKey carries the full 128-bit trace id; the collector's own trace id
// field only holds the low 64 bits.
const TraceIDKey = "trace_id"

func reporterID() uint64 {
	for {
		if id := rand.Uint64(); id != 0 {
			return id
		}
	}
}

func (r *Recorder) translate(spans []autotrace.RawSpan) *collectorpb.ReportRequest {
	req := &collectorpb.ReportRequest{
		Auth: &collectorpb.Auth{
			AccessToken: r.accessToken,
		},
		Reporter: &collectorpb.Reporter{
			ReporterId: r.reporterID,
			Tags: []*collectorpb.KeyValue{
				stringKeyValue(ComponentNameKey, r.componentName),
			},
		},
	}
	for _, span := range spans {
		req.Spans = append(req.Spans, translateSpan(span))
	}
	return req
}

func translateSpan(span autotrace.RawSpan) *collectorpb.Span {
	s := &collectorpb.Span{
		OperationName: span.Operation,
		SpanContext:   spanContext(span.Context.TraceID, span.Context.SpanID),
		StartTimestamp: &types.Timestamp{
			Seconds: span.Start.Unix(),
			Nanos:   int32(span.Start.Nanosecond()),
		},
		DurationMicros: uint64(span.Duration / time.Microsecond),
		Tags:           translateTags(span.Tags),
	}
	s.Tags = append(s.Tags, stringKeyValue(TraceIDKey, span.Context.TraceID.String()))
	if span.ParentSpanID.IsValid() {
		s.References = []*collectorpb.Reference{{
			Relationship: collectorpb.Reference_CHILD_OF,
			SpanContext:  spanContext(span.Context.TraceID, span.ParentSpanID),
		}}
	}
	return s
}

func spanContext(traceID spanctx.TraceID, spanID spanctx.SpanID) *collectorpb.SpanContext {
	return &collectorpb.SpanContext{
		TraceId: binary.BigEndian.Uint64(traceID[8:]),
		SpanId:  binary.BigEndian.Uint64(spanID[:]),
	}
}

func translateTags(tags opentracing.Tags) []*collectorpb.KeyValue {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	kvs := make([]*collectorpb.KeyValue, 0, len(tags)+1)
	for _, key := range keys {
		kvs = append(kvs, keyValue(key, tags[key]))
	}
	return kvs
}

func stringKeyValue(key, value string) *collectorpb.KeyValue {
	return &collectorpb.KeyValue{
		Key:   key,
		Value: &collectorpb.KeyValue_StringValue{StringValue: value},
	}
}

func keyValue(key string, value interface{}) *collectorpb.KeyValue {
	kv := &collectorpb.KeyValue{Key: key}
	switch v := value.(type) {
	case string:
		kv.Value = &collectorpb.KeyValue_StringValue{StringValue: v}
	case bool:
		kv.Value = &collectorpb.KeyValue_BoolValue{BoolValue: v}
	case int:
		kv.Value = &collectorpb.KeyValue_IntValue{IntValue: int64(v)}
	case int32:
		kv.Value = &collectorpb.KeyValue_IntValue{IntValue: int64(v)}
	case int64:
		kv.Value = &collectorpb.KeyValue_IntValue{IntValue: v}
	case uint16:
		kv.Value = &collectorpb.KeyValue_IntValue{IntValue: int64(v)}
	case uint32:
		kv.Value = &collectorpb.KeyValue_IntValue{IntValue: int64(v)}
	case float64:
		kv.Value = &collectorpb.KeyValue_DoubleValue{DoubleValue: v}
	default:
		kv.Value = &collectorpb.KeyValue_StringValue{StringValue: fmt.Sprint(v)}
	}
	return kv
}
