package probe

import (
	"encoding/binary"

	"github.com/lightstep/lightstep-autotrace-go/offsets"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"
)

// StringField locates a (pointer, length) pair inside a structure.
type StringField struct {
	Ptr offsets.ID
	Len offsets.ID
}

// BufferField locates a writable (pointer, length, capacity) triple.
type BufferField struct {
	Ptr offsets.ID
	Len offsets.ID
	Cap offsets.ID
}

// Builder reads fields out of target memory at the offsets of one Layout.
// Every read is bounded by the destination buffer; a field whose offsets
// are unknown, or whose memory cannot be read, is skipped.
type Builder struct {
	mem    Memory
	layout offsets.Layout
}

func NewBuilder(mem Memory, layout offsets.Layout) *Builder {
	return &Builder{mem: mem, layout: layout}
}

func (b *Builder) Memory() Memory {
	return b.mem
}

func (b *Builder) Layout() offsets.Layout {
	return b.layout
}

func (b *Builder) addr(base uint64, id offsets.ID) (uint64, bool) {
	off := b.layout.Get(id)
	if base == 0 || !off.Known() {
		return 0, false
	}
	return base + uint64(off), true
}

// Deref reads the pointer stored at base+offset(id).
func (b *Builder) Deref(base uint64, id offsets.ID) (uint64, bool) {
	addr, ok := b.addr(base, id)
	if !ok {
		return 0, false
	}
	ptr, ok := readUint64(b.mem, addr)
	if !ok || ptr == 0 {
		return 0, false
	}
	return ptr, true
}

func (b *Builder) ReadUint64(base uint64, id offsets.ID) (uint64, bool) {
	addr, ok := b.addr(base, id)
	if !ok {
		return 0, false
	}
	return readUint64(b.mem, addr)
}

func (b *Builder) ReadUint32(base uint64, id offsets.ID) (uint32, bool) {
	addr, ok := b.addr(base, id)
	if !ok {
		return 0, false
	}
	var v [4]byte
	if !readFull(b.mem, addr, v[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v[:]), true
}

func (b *Builder) ReadUint16(base uint64, id offsets.ID) (uint16, bool) {
	addr, ok := b.addr(base, id)
	if !ok {
		return 0, false
	}
	var v [2]byte
	if !readFull(b.mem, addr, v[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(v[:]), true
}

// CopyString copies min(length, len(dst)) bytes of the string described by
// f into dst and returns the count copied. The source is never assumed to be
// terminated.
func (b *Builder) CopyString(base uint64, f StringField, dst []byte) (int, bool) {
	ptr, ok := b.Deref(base, f.Ptr)
	if !ok {
		return 0, false
	}
	length, ok := b.ReadUint64(base, f.Len)
	if !ok {
		return 0, false
	}
	n := len(dst)
	if length < uint64(n) {
		n = int(length)
	}
	if n == 0 {
		return 0, true
	}
	if !readFull(b.mem, ptr, dst[:n]) {
		return 0, false
	}
	return n, true
}

// ExtractTraceparent reads a traceparent value from target memory. Anything
// that is not exactly one well formed header reads as no context.
func (b *Builder) ExtractTraceparent(base uint64, f StringField) (spanctx.SpanContext, bool) {
	length, ok := b.ReadUint64(base, f.Len)
	if !ok || length != spanctx.TraceparentSize {
		return spanctx.SpanContext{}, false
	}
	var buf [spanctx.TraceparentSize]byte
	n, ok := b.CopyString(base, f, buf[:])
	if !ok || n != spanctx.TraceparentSize {
		return spanctx.SpanContext{}, false
	}
	return spanctx.DecodeBytes(buf[:])
}

// InjectTraceparent writes the encoded context into the buffer described by
// f. The write happens only if the buffer's capacity holds a full header;
// the data is written before the length so a concurrent reader never sees a
// length covering unwritten bytes. Returns false, leaving memory untouched,
// when the buffer cannot be used; if the length write fails the original
// data bytes are restored.
func (b *Builder) InjectTraceparent(base uint64, f BufferField, sc spanctx.SpanContext) bool {
	if !sc.IsValid() {
		return false
	}
	ptr, ok := b.Deref(base, f.Ptr)
	if !ok {
		return false
	}
	capacity, ok := b.ReadUint64(base, f.Cap)
	if !ok || capacity < spanctx.TraceparentSize {
		return false
	}
	lenAddr, ok := b.addr(base, f.Len)
	if !ok {
		return false
	}
	var saved [spanctx.TraceparentSize]byte
	if !readFull(b.mem, ptr, saved[:]) {
		return false
	}
	var buf [spanctx.TraceparentSize]byte
	spanctx.EncodeTo(buf[:], sc)
	if n, err := b.mem.WriteAt(buf[:], int64(ptr)); err != nil || n != len(buf) {
		b.mem.WriteAt(saved[:], int64(ptr))
		return false
	}
	var length [8]byte
	binary.LittleEndian.PutUint64(length[:], spanctx.TraceparentSize)
	if n, err := b.mem.WriteAt(length[:], int64(lenAddr)); err != nil || n != len(length) {
		b.mem.WriteAt(saved[:], int64(ptr))
		return false
	}
	return true
}
