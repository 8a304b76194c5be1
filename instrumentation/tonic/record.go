package tonic

import (
	"encoding/binary"

	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
	"github.com/lightstep/lightstep-autotrace-go/internal"
)

const (
	MaxServiceSize = 256
	MaxMethodSize  = 16

	// RecordSize is the size of one record on the gRPC stream:
	//
	//	0    start time, unix ns
	//	8    end time, unix ns
	//	16   service [256]byte, zero padded
	//	272  method [16]byte, zero padded
	//	288  status code uint32
	//	292  trace id [16]byte
	//	308  span id [8]byte
	//	316  trace flags
	//	317  parent span id [8]byte
	//	325  kind, 0 server 1 client
	//	326  padding
	//
	// All integers are little endian.
	RecordSize = 328

	offService = 16
	offMethod  = offService + MaxServiceSize
	offStatus  = offMethod + MaxMethodSize
	offContext = offStatus + 4
	offKind    = offContext + instrumentation.ContextSize
)

// Call is the in-progress record of one gRPC call, served or issued.
type Call struct {
	header  instrumentation.Header
	Service [MaxServiceSize]byte
	Method  [MaxMethodSize]byte
	Status  uint32
	Kind    internal.SpanKind
}

func (c *Call) Header() *instrumentation.Header {
	return &c.header
}

func (c *Call) MarshalTo(b []byte) {
	_ = b[RecordSize-1]
	instrumentation.PutTimes(b, &c.header)
	copy(b[offService:offMethod], c.Service[:])
	copy(b[offMethod:offStatus], c.Method[:])
	binary.LittleEndian.PutUint32(b[offStatus:], c.Status)
	instrumentation.PutContext(b[offContext:], &c.header)
	b[offKind] = byte(c.Kind)
}

// UnmarshalCall decodes a record produced by MarshalTo.
func UnmarshalCall(b []byte) (Call, bool) {
	var c Call
	if len(b) != RecordSize {
		return c, false
	}
	c.header = instrumentation.ReadHeader(b[:offService], b[offContext:offKind])
	copy(c.Service[:], b[offService:offMethod])
	copy(c.Method[:], b[offMethod:offStatus])
	c.Status = binary.LittleEndian.Uint32(b[offStatus:])
	c.Kind = internal.SpanKind(b[offKind])
	return c, true
}
