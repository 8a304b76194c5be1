package offsets_test

import (
	"strings"

	. "github.com/lightstep/lightstep-autotrace-go/offsets"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const document = `
versions:
  "hyper@0.14.27":
    "http::request::Request":
      method.ptr: 16
      method.len: 24
    "http::uri::Uri":
      path.ptr: 40
`

var _ = Describe("offsets", func() {
	methodPtr := ID{Struct: "http::request::Request", Field: "method.ptr"}
	methodLen := ID{Struct: "http::request::Request", Field: "method.len"}
	pathLen := ID{Struct: "http::uri::Uri", Field: "path.len"}

	Describe("Decode", func() {
		It("reads a YAML offsets document", func() {
			table, err := Decode(strings.NewReader(document))
			Expect(err).NotTo(HaveOccurred())

			off, ok := table.OffsetOf("http::request::Request", "method.len", "hyper@0.14.27")
			Expect(ok).To(BeTrue())
			Expect(off).To(Equal(uint64(24)))

			_, ok = table.OffsetOf("http::request::Request", "method.len", "hyper@1.0.0")
			Expect(ok).To(BeFalse())
		})

		It("fails on malformed documents", func() {
			_, err := Decode(strings.NewReader("versions: [1, 2"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Resolve", func() {
		It("marks unresolvable fields unknown", func() {
			table, _ := Decode(strings.NewReader(document))
			layout := Resolve(table, "hyper@0.14.27", methodPtr, methodLen, pathLen)

			Expect(layout.Version()).To(Equal("hyper@0.14.27"))
			Expect(layout.Get(methodPtr)).To(Equal(Offset(16)))
			Expect(layout.Get(methodLen).Known()).To(BeTrue())
			Expect(layout.Get(pathLen)).To(Equal(Unknown))
			Expect(layout.Missing()).To(ConsistOf(pathLen))
		})

		It("treats fields it was never asked for as unknown", func() {
			layout := Resolve(&Table{}, "v")
			Expect(layout.Get(methodPtr).Known()).To(BeFalse())
		})

		It("tolerates a nil resolver", func() {
			layout := Resolve(nil, "v", methodPtr)
			Expect(layout.Get(methodPtr)).To(Equal(Unknown))
		})

		It("does not observe later changes to the table", func() {
			table := &Table{}
			table.Set("v", methodPtr, 8)
			layout := Resolve(table, "v", methodPtr)
			table.Set("v", methodPtr, 99)
			Expect(layout.Get(methodPtr)).To(Equal(Offset(8)))
		})
	})
})
