package randx_test

import (
	"sync"

	. "github.com/lightstep/lightstep-autotrace-go/internal/randx"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("randx", func() {
	It("never returns an all-zero identifier", func() {
		for i := 0; i < 1000; i++ {
			Expect(TraceID()).NotTo(Equal([16]byte{}))
			Expect(SpanID()).NotTo(Equal([8]byte{}))
		}
	})

	It("is deterministic for a seeded pool", func() {
		a := NewPool(42, 1)
		b := NewPool(42, 1)
		Expect(SpanID(WithPool(a))).To(Equal(SpanID(WithPool(b))))
		Expect(TraceID(WithPool(a))).To(Equal(TraceID(WithPool(b))))
	})

	It("can be used concurrently without duplicates", func() {
		pool := NewPool(7, 4)
		var (
			lock sync.Mutex
			wg   sync.WaitGroup
			seen = map[[8]byte]bool{}
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					id := SpanID(WithPool(pool))
					lock.Lock()
					seen[id] = true
					lock.Unlock()
				}
			}()
		}
		wg.Wait()
		Expect(seen).To(HaveLen(1600))
	})
})
