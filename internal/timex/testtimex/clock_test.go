package testtimex_test

import (
	"sync"
	"time"

	"github.com/lightstep/lightstep-autotrace-go/internal/timex"
	. "github.com/lightstep/lightstep-autotrace-go/internal/timex/testtimex"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Clock", func() {
	var (
		epoch time.Time
		clock *Clock
	)

	BeforeEach(func() {
		epoch = time.Unix(1700000000, 0)
		clock = NewClock(epoch)
	})

	It("reports the start time until moved", func() {
		Expect(clock.Now()).To(Equal(epoch))
		Expect(timex.UnixNanos(clock)).To(Equal(uint64(epoch.UnixNano())))
	})

	table.DescribeTable("advancing",
		func(steps []time.Duration, want time.Duration) {
			for _, d := range steps {
				clock.Advance(d)
			}
			Expect(clock.Since(epoch)).To(Equal(want))
		},
		table.Entry("nothing", []time.Duration{0}, time.Duration(0)),
		table.Entry("accumulates", []time.Duration{time.Second, time.Minute}, time.Minute+time.Second),
		table.Entry("ignores negative steps", []time.Duration{-time.Hour, time.Second}, time.Second),
	)

	It("sleeps concurrently without losing steps", func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				clock.Sleep(time.Millisecond)
			}()
		}
		wg.Wait()
		Expect(clock.Since(epoch)).To(Equal(10 * time.Millisecond))
	})

	It("steps backwards on Rewind", func() {
		clock.Rewind(time.Second)
		Expect(timex.UnixNanos(clock)).To(Equal(uint64(epoch.Add(-time.Second).UnixNano())))
	})

	Describe("tickers", func() {
		It("rejects non-positive periods", func() {
			Expect(func() { clock.NewTicker(0) }).To(Panic())
			Expect(func() { clock.NewTicker(-time.Second) }).To(Panic())
		})

		It("fires once per elapsed period and coalesces missed ones", func() {
			report := clock.NewTicker(3 * time.Second)

			clock.Advance(2 * time.Second)
			Consistently(report.C(), 50*time.Millisecond).ShouldNot(Receive())

			clock.Advance(time.Second)
			Eventually(report.C()).Should(Receive(Equal(epoch.Add(3 * time.Second))))

			clock.Advance(30 * time.Second)
			Eventually(report.C()).Should(Receive())
			Consistently(report.C(), 50*time.Millisecond).ShouldNot(Receive())
		})

		It("keeps tickers independent", func() {
			fast := clock.NewTicker(time.Second)
			slow := clock.NewTicker(time.Minute)

			clock.Advance(time.Second)
			Eventually(fast.C()).Should(Receive())
			Consistently(slow.C(), 50*time.Millisecond).ShouldNot(Receive())
		})

		It("closes on Stop and tolerates repeated stops", func() {
			report := clock.NewTicker(time.Second)
			Expect(func() {
				report.Stop()
				report.Stop()
			}).NotTo(Panic())

			clock.Advance(time.Minute)
			Eventually(report.C()).Should(BeClosed())
		})
	})
})
