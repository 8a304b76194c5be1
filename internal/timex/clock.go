package timex

import "time"

// Clock is the time source used to stamp probe records and drive the session
// report loop.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
	Since(time.Time) time.Duration
	NewTicker(time.Duration) Ticker
}

func NewClock() Clock {
	return clock{}
}

type clock struct{}

func (c clock) Now() time.Time {
	return time.Now()
}

func (c clock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (c clock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (c clock) NewTicker(d time.Duration) Ticker {
	return newTicker(d)
}

// UnixNanos returns the clock's current time as unsigned nanoseconds since the
// epoch, the unit carried in fixed-size probe records. Times before the epoch
// clamp to zero.
func UnixNanos(c Clock) uint64 {
	n := c.Now().UnixNano()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// Ticker is the subset of time.Ticker the session report loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct {
	*time.Ticker
}

func newTicker(d time.Duration) Ticker {
	return stdTicker{Ticker: time.NewTicker(d)}
}

func (t stdTicker) C() <-chan time.Time {
	return t.Ticker.C
}
