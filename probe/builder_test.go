package probe_test

import (
	"errors"
	"strings"

	"github.com/lightstep/lightstep-autotrace-go/offsets"
	. "github.com/lightstep/lightstep-autotrace-go/probe"
	"github.com/lightstep/lightstep-autotrace-go/probe/probetest"
	"github.com/lightstep/lightstep-autotrace-go/spanctx"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const knownHeader = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

var (
	namePtr = offsets.ID{Struct: "T", Field: "name.ptr"}
	nameLen = offsets.ID{Struct: "T", Field: "name.len"}
	bufPtr  = offsets.ID{Struct: "T", Field: "buf.ptr"}
	bufLen  = offsets.ID{Struct: "T", Field: "buf.len"}
	bufCap  = offsets.ID{Struct: "T", Field: "buf.cap"}
	code    = offsets.ID{Struct: "T", Field: "code"}
	missing = offsets.ID{Struct: "T", Field: "missing"}

	name = StringField{Ptr: namePtr, Len: nameLen}
	buf  = BufferField{Ptr: bufPtr, Len: bufLen, Cap: bufCap}
)

func layout() offsets.Layout {
	table := &offsets.Table{}
	for id, off := range map[offsets.ID]uint64{
		namePtr: 0, nameLen: 8, bufPtr: 16, bufLen: 24, bufCap: 32, code: 40,
	} {
		table.Set("v1", id, off)
	}
	return offsets.Resolve(table, "v1", namePtr, nameLen, bufPtr, bufLen, bufCap, code, missing)
}

var _ = Describe("Builder", func() {
	var (
		mem     *probetest.Memory
		builder *Builder
		obj     uint64
	)

	BeforeEach(func() {
		mem = probetest.NewMemory()
		builder = NewBuilder(mem, layout())
		obj = mem.Alloc(48)
	})

	setName := func(s string) {
		mem.PutUint64(obj, mem.String(s))
		mem.PutUint64(obj+8, uint64(len(s)))
	}

	Describe("CopyString", func() {
		It("copies the whole string when it fits", func() {
			setName("GET")
			dst := make([]byte, 16)
			n, ok := builder.CopyString(obj, name, dst)
			Expect(ok).To(BeTrue())
			Expect(string(dst[:n])).To(Equal("GET"))
		})

		It("truncates to the destination size", func() {
			setName("/a/rather/long/path")
			dst := make([]byte, 4)
			n, ok := builder.CopyString(obj, name, dst)
			Expect(ok).To(BeTrue())
			Expect(n).To(Equal(4))
			Expect(string(dst)).To(Equal("/a/r"))
		})

		It("skips fields with unknown offsets", func() {
			setName("GET")
			dst := make([]byte, 16)
			_, ok := builder.CopyString(obj, StringField{Ptr: namePtr, Len: missing}, dst)
			Expect(ok).To(BeFalse())
			Expect(dst).To(Equal(make([]byte, 16)))
		})

		It("skips null pointers and null bases", func() {
			dst := make([]byte, 16)
			_, ok := builder.CopyString(obj, name, dst)
			Expect(ok).To(BeFalse())
			_, ok = builder.CopyString(0, name, dst)
			Expect(ok).To(BeFalse())
		})

		It("skips strings pointing at unmapped memory", func() {
			mem.PutUint64(obj, 0xdead0000)
			mem.PutUint64(obj+8, 3)
			_, ok := builder.CopyString(obj, name, make([]byte, 16))
			Expect(ok).To(BeFalse())
		})
	})

	Describe("integer reads", func() {
		It("reads little-endian values", func() {
			mem.PutUint32(obj+40, 0x01020304)
			v32, ok := builder.ReadUint32(obj, code)
			Expect(ok).To(BeTrue())
			Expect(v32).To(Equal(uint32(0x01020304)))

			v16, ok := builder.ReadUint16(obj, code)
			Expect(ok).To(BeTrue())
			Expect(v16).To(Equal(uint16(0x0304)))

			_, ok = builder.ReadUint16(obj, missing)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ExtractTraceparent", func() {
		It("decodes a well formed header", func() {
			setName(knownHeader)
			sc, ok := builder.ExtractTraceparent(obj, name)
			Expect(ok).To(BeTrue())
			Expect(spanctx.Encode(sc)).To(Equal(knownHeader))
		})

		It("treats other lengths as absent", func() {
			setName(knownHeader + "-extra")
			_, ok := builder.ExtractTraceparent(obj, name)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("InjectTraceparent", func() {
		var sc spanctx.SpanContext

		BeforeEach(func() {
			sc, _ = spanctx.Decode(knownHeader)
		})

		setBuffer := func(capacity int) uint64 {
			data := mem.Alloc(capacity)
			mem.PutUint64(obj+16, data)
			mem.PutUint64(obj+24, 0)
			mem.PutUint64(obj+32, uint64(capacity))
			return data
		}

		It("writes data then length when the buffer is large enough", func() {
			data := setBuffer(64)
			Expect(builder.InjectTraceparent(obj, buf, sc)).To(BeTrue())
			Expect(string(mem.Bytes(data, spanctx.TraceparentSize))).To(Equal(knownHeader))
			Expect(mem.Uint64(obj + 24)).To(Equal(uint64(spanctx.TraceparentSize)))
		})

		It("leaves a short buffer untouched", func() {
			data := setBuffer(54)
			Expect(builder.InjectTraceparent(obj, buf, sc)).To(BeFalse())
			Expect(mem.Bytes(data, 54)).To(Equal(make([]byte, 54)))
			Expect(mem.Uint64(obj + 24)).To(BeZero())
		})

		It("restores the data when the length cannot be written", func() {
			data := setBuffer(64)
			original := []byte(strings.Repeat("x", spanctx.TraceparentSize))
			_, err := mem.WriteAt(original, int64(data))
			Expect(err).NotTo(HaveOccurred())

			failing := NewBuilder(&readOnlyAt{Memory: mem, addr: int64(obj + 24)}, layout())
			Expect(failing.InjectTraceparent(obj, buf, sc)).To(BeFalse())
			Expect(mem.Bytes(data, spanctx.TraceparentSize)).To(Equal(original))
			Expect(mem.Uint64(obj + 24)).To(BeZero())
		})

		It("refuses invalid contexts", func() {
			setBuffer(64)
			Expect(builder.InjectTraceparent(obj, buf, spanctx.SpanContext{})).To(BeFalse())
		})
	})
})

// readOnlyAt rejects writes at one address.
type readOnlyAt struct {
	*probetest.Memory
	addr int64
}

func (m *readOnlyAt) WriteAt(b []byte, off int64) (int, error) {
	if off == m.addr {
		return 0, errors.New("read-only")
	}
	return m.Memory.WriteAt(b, off)
}

var _ = Describe("StackArg", func() {
	It("reads the receiver from the stack slot", func() {
		mem := probetest.NewMemory()
		sp := mem.Alloc(32)
		mem.PutUint64(sp+8, 0xAA)
		regs := &Regs{SP: sp}

		v, ok := StackArg(mem, regs, 1)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0xAA)))

		_, ok = StackArg(mem, &Regs{}, 1)
		Expect(ok).To(BeFalse())
	})

	It("reports arguments by 1-based position", func() {
		regs := &Regs{Args: [MaxArgs]uint64{1, 2, 3}}
		Expect(regs.Arg(1)).To(Equal(uint64(1)))
		Expect(regs.Arg(3)).To(Equal(uint64(3)))
		Expect(regs.Arg(0)).To(BeZero())
		Expect(regs.Arg(MaxArgs + 1)).To(BeZero())
	})
})
