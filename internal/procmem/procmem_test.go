package procmem_test

import (
	"os"
	"runtime"

	. "github.com/lightstep/lightstep-autotrace-go/internal/procmem"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Open", func() {
	It("rejects processes that do not exist", func() {
		_, err := Open(-1)
		Expect(err).To(HaveOccurred())
	})

	It("describes the current process", func() {
		if runtime.GOOS != "linux" {
			Skip("requires /proc")
		}
		p, err := Open(int32(os.Getpid()))
		if err != nil {
			Skip("/proc/self/mem not accessible: " + err.Error())
		}
		defer p.Close()

		Expect(p.PID()).To(Equal(int32(os.Getpid())))
		Expect(p.Name()).NotTo(BeEmpty())
	})
})
