package spanctx

import "encoding/hex"

// TraceparentSize is the length of an encoded traceparent header value:
// "00-" + 32 hex + "-" + 16 hex + "-" + 2 hex.
const TraceparentSize = 55

const (
	TraceparentHeader = "traceparent"

	traceparentVersion = "00"

	traceIDOffset = 3
	spanIDOffset  = traceIDOffset + 2*TraceIDSize + 1
	flagsOffset   = spanIDOffset + 2*SpanIDSize + 1
)

// Encode returns the canonical traceparent form of sc.
func Encode(sc SpanContext) string {
	var buf [TraceparentSize]byte
	EncodeTo(buf[:], sc)
	return string(buf[:])
}

// EncodeTo writes the canonical traceparent form of sc into dst, which must
// hold at least TraceparentSize bytes, and returns the number of bytes
// written. It returns 0 and writes nothing when dst is too small.
func EncodeTo(dst []byte, sc SpanContext) int {
	if len(dst) < TraceparentSize {
		return 0
	}

	copy(dst, traceparentVersion)
	dst[2] = '-'
	hex.Encode(dst[traceIDOffset:], sc.TraceID[:])
	dst[spanIDOffset-1] = '-'
	hex.Encode(dst[spanIDOffset:], sc.SpanID[:])
	dst[flagsOffset-1] = '-'
	hex.Encode(dst[flagsOffset:], []byte{byte(sc.TraceFlags)})
	return TraceparentSize
}

// Decode parses a traceparent header value. Anything other than the exact
// version 00 grammar with lowercase hex digits, or a value carrying an
// all-zero trace or span id, yields false and a zero SpanContext.
func Decode(s string) (SpanContext, bool) {
	if len(s) != TraceparentSize {
		return SpanContext{}, false
	}
	var buf [TraceparentSize]byte
	copy(buf[:], s)
	return DecodeBytes(buf[:])
}

// DecodeBytes is Decode for a byte slice read out of target memory.
func DecodeBytes(b []byte) (SpanContext, bool) {
	if len(b) != TraceparentSize {
		return SpanContext{}, false
	}
	if b[0] != '0' || b[1] != '0' {
		return SpanContext{}, false
	}
	if b[2] != '-' || b[spanIDOffset-1] != '-' || b[flagsOffset-1] != '-' {
		return SpanContext{}, false
	}

	var sc SpanContext
	if !decodeLowerHex(sc.TraceID[:], b[traceIDOffset:spanIDOffset-1]) {
		return SpanContext{}, false
	}
	if !decodeLowerHex(sc.SpanID[:], b[spanIDOffset:flagsOffset-1]) {
		return SpanContext{}, false
	}
	var flags [1]byte
	if !decodeLowerHex(flags[:], b[flagsOffset:]) {
		return SpanContext{}, false
	}
	sc.TraceFlags = TraceFlags(flags[0])

	if !sc.IsValid() {
		return SpanContext{}, false
	}
	return sc, true
}

func decodeLowerHex(dst, src []byte) bool {
	if len(src) != 2*len(dst) {
		return false
	}
	for i, c := range src {
		v, ok := fromLowerHex(c)
		if !ok {
			return false
		}
		if i%2 == 0 {
			dst[i/2] = v << 4
		} else {
			dst[i/2] |= v
		}
	}
	return true
}

func fromLowerHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
