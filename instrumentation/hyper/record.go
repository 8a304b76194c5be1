package hyper

import (
	"encoding/binary"

	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
)

const (
	MaxMethodSize = 16
	MaxPathSize   = 256

	// RecordSize is the size of one record on the hyper stream:
	//
	//	0    start time, unix ns
	//	8    end time, unix ns
	//	16   method [16]byte, zero padded
	//	32   path [256]byte, zero padded
	//	288  status code uint16
	//	290  trace id [16]byte
	//	306  span id [8]byte
	//	314  trace flags
	//	315  parent span id [8]byte
	//	323  padding
	//
	// All integers are little endian.
	RecordSize = 328

	offMethod  = 16
	offPath    = offMethod + MaxMethodSize
	offStatus  = offPath + MaxPathSize
	offContext = offStatus + 2
)

// Request is the in-progress record of one served HTTP request.
type Request struct {
	header instrumentation.Header
	Method [MaxMethodSize]byte
	Path   [MaxPathSize]byte
	Status uint16
}

func (r *Request) Header() *instrumentation.Header {
	return &r.header
}

func (r *Request) MarshalTo(b []byte) {
	_ = b[RecordSize-1]
	instrumentation.PutTimes(b, &r.header)
	copy(b[offMethod:offPath], r.Method[:])
	copy(b[offPath:offStatus], r.Path[:])
	binary.LittleEndian.PutUint16(b[offStatus:], r.Status)
	instrumentation.PutContext(b[offContext:], &r.header)
}

// UnmarshalRequest decodes a record produced by MarshalTo.
func UnmarshalRequest(b []byte) (Request, bool) {
	var r Request
	if len(b) != RecordSize {
		return r, false
	}
	r.header = instrumentation.ReadHeader(b[:offMethod], b[offContext:offContext+instrumentation.ContextSize])
	copy(r.Method[:], b[offMethod:offPath])
	copy(r.Path[:], b[offPath:offStatus])
	r.Status = binary.LittleEndian.Uint16(b[offStatus:])
	return r, true
}
