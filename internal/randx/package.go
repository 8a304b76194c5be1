// Package randx generates trace and span identifiers without contending on a
// single random source.
package randx

import (
	"encoding/binary"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// one generator per CPU, but never fewer than 16, to spread probe handlers
	// running on different processors across independent sources.
	defaultPool = NewPool(time.Now().UnixNano(), max(16, runtime.NumCPU()))
)

// Pool hands out lock-protected random sources in round robin.
type Pool struct {
	next    atomic.Uint64
	sources []*source
}

type source struct {
	lock sync.Mutex
	rnd  *rand.Rand
}

func NewPool(seed int64, size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{sources: make([]*source, size)}
	for i := range p.sources {
		p.sources[i] = &source{rnd: rand.New(rand.NewSource(seed + int64(i)))}
	}
	return p
}

func (p *Pool) pick() *source {
	return p.sources[p.next.Add(1)%uint64(len(p.sources))]
}

// Fill writes random bytes into b, guaranteeing that the result is not all
// zeroes since an all-zero identifier is invalid on the wire.
func (p *Pool) Fill(b []byte) {
	s := p.pick()
	s.lock.Lock()
	defer s.lock.Unlock()

	for {
		var word [8]byte
		for i := 0; i < len(b); i += 8 {
			binary.LittleEndian.PutUint64(word[:], s.rnd.Uint64())
			copy(b[i:], word[:])
		}
		for _, c := range b {
			if c != 0 {
				return
			}
		}
	}
}

type Option func(*config)

func WithPool(pool *Pool) Option {
	return func(c *config) {
		c.pool = pool
	}
}

type config struct {
	pool *Pool
}

func defaultConfig() *config {
	return &config{
		pool: defaultPool,
	}
}

// TraceID returns 16 random, non-zero bytes.
func TraceID(opts ...Option) [16]byte {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	var id [16]byte
	c.pool.Fill(id[:])
	return id
}

// SpanID returns 8 random, non-zero bytes.
func SpanID(opts ...Option) [8]byte {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	var id [8]byte
	c.pool.Fill(id[:])
	return id
}

// max returns the larger value among x and y
func max(x, y int) int {
	if x > y {
		return x
	}
	return y
}
