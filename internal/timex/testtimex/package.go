// Package testtimex provides a manually advanced timex.Clock for tests.
package testtimex

import (
	"sync"
	"time"

	"github.com/lightstep/lightstep-autotrace-go/internal/timex"
)

// Clock is a fake clock. Time only moves when Sleep or Advance is called.
type Clock struct {
	lock    sync.Mutex
	now     time.Time
	tickers []*ticker
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

var _ timex.Clock = (*Clock)(nil)

func (c *Clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

// Sleep advances the clock instead of blocking.
func (c *Clock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward by d and fires any tickers that came due.
// Non-positive durations are ignored.
func (c *Clock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		go t.send(c.now)
	}
}

// Rewind moves the clock backwards. Used to simulate wall clock steps.
func (c *Clock) Rewind(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(-d)
}

func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *Clock) NewTicker(d time.Duration) timex.Ticker {
	if d <= 0 {
		panic("duration must be > 0")
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	t := &ticker{
		c:    make(chan time.Time, 1),
		d:    d,
		next: c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)

	return t
}

type ticker struct {
	lock   sync.Mutex
	c      chan time.Time
	d      time.Duration
	next   time.Time
	closed bool
}

func (t *ticker) C() <-chan time.Time {
	return t.c
}

func (t *ticker) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.closed {
		t.closed = true
		close(t.c)
	}
}

func (t *ticker) send(now time.Time) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed || now.Before(t.next) {
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.d)
	}

	select {
	case t.c <- now:
	default:
	}
}
