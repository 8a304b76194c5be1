// Package table implements the fixed-capacity, uint64-keyed maps shared by
// probe handlers. Every operation is atomic for its key, never blocks on
// another key's shard, and never retries: an insert that would exceed the
// capacity fails immediately.
package table

import (
	"errors"
	"sync"
	"sync/atomic"
)

const shardCount = 16

// ErrFull is returned by Insert when the key is new and the table already
// holds its capacity of entries.
var ErrFull = errors.New("table: capacity exceeded")

type shard[V any] struct {
	lock    sync.Mutex
	entries map[uint64]V
}

// Table is a fixed-capacity map of uint64 keys to values of type V.
type Table[V any] struct {
	capacity int64
	size     atomic.Int64
	shards   [shardCount]shard[V]
}

// New returns a table that holds at most capacity entries. The shard maps are
// pre-sized so that steady-state use does not grow them.
func New[V any](capacity int) *Table[V] {
	if capacity < 1 {
		capacity = 1
	}
	t := &Table[V]{capacity: int64(capacity)}
	hint := capacity/shardCount + 1
	for i := range t.shards {
		t.shards[i].entries = make(map[uint64]V, hint)
	}
	return t
}

func (t *Table[V]) shardFor(key uint64) *shard[V] {
	// fibonacci hashing; pointer keys share their low bits
	return &t.shards[(key*0x9E3779B97F4A7C15)>>60]
}

// Capacity returns the maximum number of entries.
func (t *Table[V]) Capacity() int {
	return int(t.capacity)
}

// Len returns the current number of entries.
func (t *Table[V]) Len() int {
	return int(t.size.Load())
}

// Insert stores v under key, overwriting any existing value. It returns the
// replaced value and true when the key was already present.
func (t *Table[V]) Insert(key uint64, v V) (V, bool, error) {
	s := t.shardFor(key)
	s.lock.Lock()
	defer s.lock.Unlock()

	if old, ok := s.entries[key]; ok {
		s.entries[key] = v
		return old, true, nil
	}

	var zero V
	if t.size.Add(1) > t.capacity {
		t.size.Add(-1)
		return zero, false, ErrFull
	}
	s.entries[key] = v
	return zero, false, nil
}

// Lookup returns a copy of the value stored under key.
func (t *Table[V]) Lookup(key uint64) (V, bool) {
	s := t.shardFor(key)
	s.lock.Lock()
	defer s.lock.Unlock()

	v, ok := s.entries[key]
	return v, ok
}

// Update applies fn to the value stored under key in place. A missing key is
// left missing and Update reports false.
func (t *Table[V]) Update(key uint64, fn func(*V)) bool {
	s := t.shardFor(key)
	s.lock.Lock()
	defer s.lock.Unlock()

	v, ok := s.entries[key]
	if !ok {
		return false
	}
	fn(&v)
	s.entries[key] = v
	return true
}

// Modify applies fn to the value stored under key, inserting the zero value
// first when the key is missing. fn returns false to delete the entry. Modify
// fails with ErrFull, without calling fn, when the key is new and the table is
// at capacity.
func (t *Table[V]) Modify(key uint64, fn func(v *V) bool) error {
	s := t.shardFor(key)
	s.lock.Lock()
	defer s.lock.Unlock()

	v, ok := s.entries[key]
	if !ok {
		if t.size.Add(1) > t.capacity {
			t.size.Add(-1)
			return ErrFull
		}
	}

	if fn(&v) {
		s.entries[key] = v
		return nil
	}

	if ok {
		delete(s.entries, key)
	}
	t.size.Add(-1)
	return nil
}

// Take atomically removes and returns the value stored under key. Of several
// concurrent Takes for one key, exactly one succeeds.
func (t *Table[V]) Take(key uint64) (V, bool) {
	s := t.shardFor(key)
	s.lock.Lock()
	defer s.lock.Unlock()

	v, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		t.size.Add(-1)
	}
	return v, ok
}

// Delete removes key, reporting whether it was present.
func (t *Table[V]) Delete(key uint64) bool {
	_, ok := t.Take(key)
	return ok
}

// Reset drops every entry. Used at session teardown.
func (t *Table[V]) Reset() {
	for i := range t.shards {
		s := &t.shards[i]
		s.lock.Lock()
		n := len(s.entries)
		for k := range s.entries {
			delete(s.entries, k)
		}
		t.size.Add(int64(-n))
		s.lock.Unlock()
	}
}
