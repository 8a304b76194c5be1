// Package hyper traces requests served by the hyper HTTP server.
package hyper

import (
	"strings"

	"github.com/lightstep/lightstep-autotrace-go/emit"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
	"github.com/lightstep/lightstep-autotrace-go/internal"
	"github.com/lightstep/lightstep-autotrace-go/offsets"
	"github.com/lightstep/lightstep-autotrace-go/probe"
	"github.com/opentracing/opentracing-go/ext"
)

const Library = "hyper"

const (
	SymServeConnection = "hyper::server::conn::Http::serve_connection"
	SymRequestMethod   = "http::request::Request<T>::method"
	SymRequestURI      = "http::request::Request<T>::uri"
	SymRequestHeaders  = "http::request::Request<T>::headers"
	SymWriteHead       = "hyper::proto::h1::conn::Conn<I,B,T>::write_head"
)

var (
	RequestMethodPtr      = offsets.ID{Struct: "http::request::Request", Field: "method.ptr"}
	RequestMethodLen      = offsets.ID{Struct: "http::request::Request", Field: "method.len"}
	RequestURI            = offsets.ID{Struct: "http::request::Request", Field: "uri"}
	RequestTraceparentPtr = offsets.ID{Struct: "http::request::Request", Field: "headers.traceparent.ptr"}
	RequestTraceparentLen = offsets.ID{Struct: "http::request::Request", Field: "headers.traceparent.len"}
	URIPathPtr            = offsets.ID{Struct: "http::uri::Uri", Field: "path.ptr"}
	URIPathLen            = offsets.ID{Struct: "http::uri::Uri", Field: "path.len"}
	ResponseStatus        = offsets.ID{Struct: "http::response::Response", Field: "status"}
)

var (
	methodField      = probe.StringField{Ptr: RequestMethodPtr, Len: RequestMethodLen}
	pathField        = probe.StringField{Ptr: URIPathPtr, Len: URIPathLen}
	traceparentField = probe.StringField{Ptr: RequestTraceparentPtr, Len: RequestTraceparentLen}
)

// Fields lists every offset the hyper probes read.
func Fields() []offsets.ID {
	return []offsets.ID{
		RequestMethodPtr, RequestMethodLen, RequestURI,
		RequestTraceparentPtr, RequestTraceparentLen,
		URIPathPtr, URIPathLen, ResponseStatus,
	}
}

type Instrumentor struct {
	correlator *instrumentation.Correlator[Request, *Request]
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
		correlator: instrumentation.NewCorrelator[Request, *Request](Library, c.maxConcurrent, stream, env),
		builder:    env.Builder,
	}
}

func (i *Instrumentor) Library() string {
	return Library
}

func (i *Instrumentor) FuncNames() []string {
	return []string{SymServeConnection, SymRequestMethod, SymRequestURI, SymRequestHeaders, SymWriteHead}
}

func (i *Instrumentor) Probes() []instrumentation.Probe {
	return []instrumentation.Probe{
		{Symbol: SymServeConnection, Entry: i.serveConnection, Return: i.serveConnectionReturn},
		{Symbol: SymRequestMethod, Entry: i.requestMethod},
		{Symbol: SymRequestURI, Entry: i.requestURI},
		{Symbol: SymRequestHeaders, Entry: i.requestHeaders},
		{Symbol: SymWriteHead, Entry: i.writeHead},
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

// Lookup returns the in-progress record for a connection.
func (i *Instrumentor) Lookup(conn uint64) (Request, bool) {
	return i.correlator.Lookup(conn)
}

func (i *Instrumentor) serveConnection(regs *probe.Regs) {
	i.correlator.Start(SymServeConnection, regs.Arg(1), regs.Exec(), nil)
}

func (i *Instrumentor) serveConnectionReturn(regs *probe.Regs) {
	self, _ := probe.StackArg(i.builder.Memory(), regs, 1)
	i.correlator.Finish(SymServeConnection, self)
}

func (i *Instrumentor) requestMethod(regs *probe.Regs) {
	req := regs.Arg(1)
	var method [MaxMethodSize]byte
	if _, ok := i.builder.CopyString(req, methodField, method[:]); !ok {
		return
	}
	i.correlator.Enrich(SymRequestMethod, req, func(r *Request) {
		r.Method = method
	})
}

func (i *Instrumentor) requestURI(regs *probe.Regs) {
	req := regs.Arg(1)
	uri, ok := i.builder.Deref(req, RequestURI)
	if !ok {
		return
	}
	var path [MaxPathSize]byte
	if _, ok := i.builder.CopyString(uri, pathField, path[:]); !ok {
		return
	}
	i.correlator.Enrich(SymRequestURI, req, func(r *Request) {
		r.Path = path
	})
}

func (i *Instrumentor) requestHeaders(regs *probe.Regs) {
	req := regs.Arg(1)
	remote, ok := i.builder.ExtractTraceparent(req, traceparentField)
	if !ok {
		return
	}
	i.correlator.Adopt(SymRequestHeaders, req, remote)
}

func (i *Instrumentor) writeHead(regs *probe.Regs) {
	conn, resp := regs.Arg(1), regs.Arg(2)
	status, ok := i.builder.ReadUint16(resp, ResponseStatus)
	if !ok {
		return
	}
	i.correlator.Enrich(SymWriteHead, conn, func(r *Request) {
		r.Status = status
	})
}

// Decode turns a hyper record into a server span.
func (i *Instrumentor) Decode(b []byte) (internal.RawSpan, bool) {
	r, ok := UnmarshalRequest(b)
	if !ok {
		return internal.RawSpan{}, false
	}
	method := instrumentation.CString(r.Method[:])
	path := instrumentation.CString(r.Path[:])

	span := instrumentation.SpanFromHeader(r.header)
	span.Kind = internal.SpanKindServer
	span.Library = Library
	span.Operation = operationName(method, path)
	span.SetTag(string(ext.Component), Library)
	span.SetTag(string(ext.SpanKind), string(ext.SpanKindRPCServerEnum))
	if method != "" {
		span.SetTag(string(ext.HTTPMethod), method)
	}
	if path != "" {
		span.SetTag(string(ext.HTTPUrl), path)
	}
	if r.Status != 0 {
		span.SetTag(string(ext.HTTPStatusCode), r.Status)
		if r.Status >= 500 {
			span.SetTag(string(ext.Error), true)
		}
	}
	return span, true
}

func operationName(method, path string) string {
	name := strings.TrimSpace(method + " " + path)
	if name == "" {
		return "HTTP"
	}
	return name
}
