// Package emit publishes completed records to bounded per-kind streams.
//
// A record is a fixed-size binary blob with no framing; consumers decode it by
// the byte layout its producer documents. Producers never block: a record
// that does not fit is dropped and counted.
package emit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Stream carries fixed-size records for one operation kind.
type Stream struct {
	kind       string
	recordSize int

	free chan []byte
	out  chan []byte

	dropped atomic.Uint64
	emitted atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewStream pre-allocates capacity buffers of recordSize bytes.
func NewStream(kind string, recordSize, capacity int) *Stream {
	if capacity < 1 {
		capacity = 1
	}
	s := &Stream{
		kind:       kind,
		recordSize: recordSize,
		free:       make(chan []byte, capacity),
		out:        make(chan []byte, capacity),
		done:       make(chan struct{}),
	}
	for i := 0; i < capacity; i++ {
		s.free <- make([]byte, recordSize)
	}
	return s
}

func (s *Stream) Kind() string {
	return s.kind
}

func (s *Stream) RecordSize() int {
	return s.recordSize
}

// Emit hands a record to the stream. fill writes the record into a zeroed
// buffer of RecordSize bytes. Returns false if the record was dropped.
func (s *Stream) Emit(fill func(b []byte)) bool {
	select {
	case <-s.done:
		s.dropped.Add(1)
		return false
	default:
	}

	var b []byte
	select {
	case b = <-s.free:
	default:
		s.dropped.Add(1)
		return false
	}
	clear(b)
	fill(b)

	select {
	case s.out <- b:
		s.emitted.Add(1)
		return true
	default:
		s.free <- b
		s.dropped.Add(1)
		return false
	}
}

// Records is the consumer side of the stream. Every received buffer must be
// handed back with Release.
func (s *Stream) Records() <-chan []byte {
	return s.out
}

// Release returns a buffer obtained from Records.
func (s *Stream) Release(b []byte) {
	if len(b) != s.recordSize {
		return
	}
	select {
	case s.free <- b:
	default:
	}
}

// Consume calls fn for each record until ctx is done or the stream is
// closed. Records still queued at close are delivered before returning.
func (s *Stream) Consume(ctx context.Context, fn func(b []byte)) {
	for {
		select {
		case b := <-s.out:
			fn(b)
			s.Release(b)
		case <-ctx.Done():
			return
		case <-s.done:
			s.drain(fn)
			return
		}
	}
}

func (s *Stream) drain(fn func(b []byte)) {
	for {
		select {
		case b := <-s.out:
			fn(b)
			s.Release(b)
		default:
			return
		}
	}
}

// Done is closed when the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close stops accepting records. It is safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Stream) Emitted() uint64 {
	return s.emitted.Load()
}
