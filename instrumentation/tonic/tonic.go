// Package tonic traces gRPC calls served and issued through tonic. Outbound
// calls carry the active span context to the callee in a traceparent
// metadata entry.
package tonic

import (
	"strconv"

	"github.com/lightstep/lightstep-autotrace-go/emit"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
	"github.com/lightstep/lightstep-autotrace-go/internal"
	"github.com/lightstep/lightstep-autotrace-go/offsets"
	"github.com/lightstep/lightstep-autotrace-go/probe"
	"github.com/opentracing/opentracing-go/ext"
)

const Library = "tonic"

// Span tag keys set by Decode.
const (
	RPCServiceKey     = "rpc.service"
	RPCMethodKey      = "rpc.method"
	GRPCStatusCodeKey = "rpc.grpc.status_code"
)

const (
	SymServerServe     = "tonic::transport::server::Server<L>::serve"
	SymRequestMetadata = "tonic::request::Request<T>::metadata"
	SymClientUnary     = "tonic::client::grpc::Grpc<T>::unary"
	SymCreateRequest   = "tonic::client::grpc::Grpc<T>::create_request"
	SymClientStatus    = "tonic::status::Status::from_header_map"
)

var (
	GrpcServicePtr = offsets.ID{Struct: "tonic::client::grpc::Grpc", Field: "service.ptr"}
	GrpcServiceLen = offsets.ID{Struct: "tonic::client::grpc::Grpc", Field: "service.len"}
	GrpcMethodPtr  = offsets.ID{Struct: "tonic::client::grpc::Grpc", Field: "method.ptr"}
	GrpcMethodLen  = offsets.ID{Struct: "tonic::client::grpc::Grpc", Field: "method.len"}

	RequestTraceparentPtr = offsets.ID{Struct: "tonic::request::Request", Field: "metadata.traceparent.ptr"}
	RequestTraceparentLen = offsets.ID{Struct: "tonic::request::Request", Field: "metadata.traceparent.len"}
	RequestTraceparentCap = offsets.ID{Struct: "tonic::request::Request", Field: "metadata.traceparent.cap"}

	StatusCode = offsets.ID{Struct: "tonic::status::Status", Field: "code"}
)

var (
	serviceField     = probe.StringField{Ptr: GrpcServicePtr, Len: GrpcServiceLen}
	methodField      = probe.StringField{Ptr: GrpcMethodPtr, Len: GrpcMethodLen}
	traceparentField = probe.StringField{Ptr: RequestTraceparentPtr, Len: RequestTraceparentLen}
	traceparentBuf   = probe.BufferField{Ptr: RequestTraceparentPtr, Len: RequestTraceparentLen, Cap: RequestTraceparentCap}
)

// Fields lists every offset the tonic probes read or write.
func Fields() []offsets.ID {
	return []offsets.ID{
		GrpcServicePtr, GrpcServiceLen, GrpcMethodPtr, GrpcMethodLen,
		RequestTraceparentPtr, RequestTraceparentLen, RequestTraceparentCap,
		StatusCode,
	}
}

type Instrumentor struct {
	correlator *instrumentation.Correlator[Call, *Call]
	builder    *probe.Builder
}

var _ instrumentation.Instrumentor = (*Instrumentor)(nil)

func New(env *instrumentation.Env, opts ...Option) *Instrumentor {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	stream := emit.NewStream(Library, RecordSize, c.outputBuffer)
	return &Instrumentor{
		correlator: instrumentation.NewCorrelator[Call, *Call](Library, c.maxConcurrent, stream, env),
		builder:    env.Builder,
	}
}

func (i *Instrumentor) Library() string {
	return Library
}

func (i *Instrumentor) FuncNames() []string {
	return []string{SymServerServe, SymRequestMetadata, SymClientUnary, SymCreateRequest, SymClientStatus}
}

func (i *Instrumentor) Probes() []instrumentation.Probe {
	return []instrumentation.Probe{
		{Symbol: SymServerServe, Entry: i.serverServe, Return: i.finish(SymServerServe)},
		{Symbol: SymRequestMetadata, Entry: i.requestMetadata},
		{Symbol: SymClientUnary, Entry: i.clientUnary, Return: i.finish(SymClientUnary)},
		{Symbol: SymCreateRequest, Entry: i.createRequest},
		{Symbol: SymClientStatus, Entry: i.clientStatus},
	}
}

func (i *Instrumentor) Fields() []offsets.ID {
	return Fields()
}

func (i *Instrumentor) Stream() *emit.Stream {
	return i.correlator.Stream()
}

func (i *Instrumentor) Pending() int {
	return i.correlator.Pending()
}

func (i *Instrumentor) Reset() {
	i.correlator.Reset()
}

// Lookup returns the in-progress record for a server or client receiver.
func (i *Instrumentor) Lookup(self uint64) (Call, bool) {
	return i.correlator.Lookup(self)
}

func (i *Instrumentor) serverServe(regs *probe.Regs) {
	i.correlator.Start(SymServerServe, regs.Arg(1), regs.Exec(), func(c *Call) {
		c.Kind = internal.SpanKindServer
	})
}

func (i *Instrumentor) finish(symbol string) instrumentation.Handler {
	return func(regs *probe.Regs) {
		self, _ := probe.StackArg(i.builder.Memory(), regs, 1)
		i.correlator.Finish(symbol, self)
	}
}

func (i *Instrumentor) requestMetadata(regs *probe.Regs) {
	req := regs.Arg(1)
	remote, ok := i.builder.ExtractTraceparent(req, traceparentField)
	if !ok {
		return
	}
	i.correlator.Adopt(SymRequestMetadata, req, remote)
}

func (i *Instrumentor) clientUnary(regs *probe.Regs) {
	self := regs.Arg(1)
	i.correlator.Start(SymClientUnary, self, regs.Exec(), func(c *Call) {
		c.Kind = internal.SpanKindClient
		i.builder.CopyString(self, serviceField, c.Service[:])
		i.builder.CopyString(self, methodField, c.Method[:])
	})
}

// createRequest writes the client span's context into the outgoing request
// metadata so the callee joins the trace.
func (i *Instrumentor) createRequest(regs *probe.Regs) {
	self, req := regs.Arg(1), regs.Arg(2)
	sc, ok := i.correlator.Context(self)
	if !ok {
		return
	}
	i.builder.InjectTraceparent(req, traceparentBuf, sc)
}

func (i *Instrumentor) clientStatus(regs *probe.Regs) {
	self, status := regs.Arg(1), regs.Arg(2)
	code, ok := i.builder.ReadUint32(status, StatusCode)
	if !ok {
		return
	}
	i.correlator.Enrich(SymClientStatus, self, func(c *Call) {
		c.Status = code
	})
}

// Decode turns a gRPC record into a server or client span.
func (i *Instrumentor) Decode(b []byte) (internal.RawSpan, bool) {
	c, ok := UnmarshalCall(b)
	if !ok {
		return internal.RawSpan{}, false
	}
	service := instrumentation.CString(c.Service[:])
	method := instrumentation.CString(c.Method[:])

	span := instrumentation.SpanFromHeader(c.header)
	span.Kind = c.Kind
	span.Library = Library
	span.Operation = operationName(service, method)
	span.SetTag(string(ext.Component), Library)
	if c.Kind == internal.SpanKindClient {
		span.SetTag(string(ext.SpanKind), string(ext.SpanKindRPCClientEnum))
	} else {
		span.SetTag(string(ext.SpanKind), string(ext.SpanKindRPCServerEnum))
	}
	if service != "" {
		span.SetTag(RPCServiceKey, service)
	}
	if method != "" {
		span.SetTag(RPCMethodKey, method)
	}
	// only the client side observes a status
	if c.Kind == internal.SpanKindClient {
		span.SetTag(GRPCStatusCodeKey, strconv.FormatUint(uint64(c.Status), 10))
		if c.Status != 0 {
			span.SetTag(string(ext.Error), true)
		}
	}
	return span, true
}

func operationName(service, method string) string {
	switch {
	case service == "" && method == "":
		return "grpc"
	case method == "":
		return service
	default:
		return service + "/" + method
	}
}
