package spanctx

import (
	"github.com/lightstep/lightstep-autotrace-go/internal/table"
	"github.com/lightstep/lightstep-autotrace-go/unit"
)

const (
	// MaxDepth bounds the number of nested active spans tracked per unit.
	MaxDepth = 8

	DefaultStoreCapacity = 1024
)

// ErrStoreFull is returned when a new unit cannot be tracked because the
// store is at capacity.
var ErrStoreFull = table.ErrFull

// frames is the bounded stack of active contexts of one unit. frames[n-1] is
// the current context.
type frames struct {
	n     int
	depth int
	ctx   [MaxDepth]SpanContext
}

func (f *frames) top() (SpanContext, bool) {
	if f.n == 0 {
		return SpanContext{}, false
	}
	return f.ctx[f.n-1], true
}

func (f *frames) push(sc SpanContext) {
	if f.n == f.depth {
		// drop the outermost frame
		copy(f.ctx[:f.n-1], f.ctx[1:f.n])
		f.n--
	}
	f.ctx[f.n] = sc
	f.n++
}

// find returns the index of the innermost frame with the given span id.
func (f *frames) find(spanID SpanID) int {
	for i := f.n - 1; i >= 0; i-- {
		if f.ctx[i].SpanID == spanID {
			return i
		}
	}
	return -1
}

func (f *frames) remove(i int) {
	copy(f.ctx[i:f.n-1], f.ctx[i+1:f.n])
	f.n--
	f.ctx[f.n] = SpanContext{}
}

// Store maps execution units to their currently active span context. One
// Store is shared by every instrumentor of a session.
//
// Each unit holds a small stack: starting a span pushes its context and
// finishing it pops that context, which makes the parent current again for
// later siblings. Concurrent use across units never conflicts; concurrent use
// of one unit is last-write-wins.
type Store struct {
	depth int
	units *table.Table[frames]
}

// NewStore returns a store tracking at most capacity units with at most depth
// nested contexts each. depth is clamped to [1, MaxDepth].
func NewStore(capacity, depth int) *Store {
	if capacity < 1 {
		capacity = DefaultStoreCapacity
	}
	if depth < 1 || depth > MaxDepth {
		depth = MaxDepth
	}
	return &Store{
		depth: depth,
		units: table.New[frames](capacity),
	}
}

// Get returns the current context of the unit.
func (s *Store) Get(key unit.Key) (SpanContext, bool) {
	f, ok := s.units.Lookup(uint64(key))
	if !ok {
		return SpanContext{}, false
	}
	return f.top()
}

// Set unconditionally overwrites the current context of the unit.
func (s *Store) Set(key unit.Key, sc SpanContext) error {
	return s.units.Modify(uint64(key), func(f *frames) bool {
		f.depth = s.depth
		if f.n == 0 {
			f.push(sc)
		} else {
			f.ctx[f.n-1] = sc
		}
		return true
	})
}

// Delete forgets everything about the unit.
func (s *Store) Delete(key unit.Key) {
	s.units.Delete(uint64(key))
}

// Push makes sc the unit's current context, keeping the previous one to be
// restored by Pop. When the unit already holds depth contexts the outermost
// is discarded.
func (s *Store) Push(key unit.Key, sc SpanContext) error {
	return s.units.Modify(uint64(key), func(f *frames) bool {
		f.depth = s.depth
		f.push(sc)
		return true
	})
}

// Pop removes the context of the span with spanID from the unit, restoring
// whatever was current before it started. Spans that finish out of order are
// removed from the middle of the stack. A unit left without contexts is
// deleted.
func (s *Store) Pop(key unit.Key, spanID SpanID) {
	s.units.Modify(uint64(key), func(f *frames) bool {
		if i := f.find(spanID); i >= 0 {
			f.remove(i)
		}
		return f.n > 0
	})
}

// Replace swaps the context of the active span with spanID for sc. It is used
// when a span adopts a remote parent after it started.
func (s *Store) Replace(key unit.Key, spanID SpanID, sc SpanContext) bool {
	replaced := false
	s.units.Update(uint64(key), func(f *frames) {
		if i := f.find(spanID); i >= 0 {
			f.ctx[i] = sc
			replaced = true
		}
	})
	return replaced
}

// Len returns the number of tracked units.
func (s *Store) Len() int {
	return s.units.Len()
}

// Reset drops every unit. Called on session teardown.
func (s *Store) Reset() {
	s.units.Reset()
}
