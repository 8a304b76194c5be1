// Package probetest provides a sparse in-memory address space for driving
// probe handlers without a live target process.
package probetest

import (
	"encoding/binary"
	"errors"
	"sync"
)

const pageSize = 4096

// ErrUnmapped is returned for accesses touching unmapped pages.
var ErrUnmapped = errors.New("probetest: unmapped address")

// Memory is a sparse, page-granular address space. Pages only exist once
// allocated; every other access fails the way a fault in the target would.
type Memory struct {
	mu    sync.RWMutex
	pages map[uint64]*[pageSize]byte
	next  uint64
}

func NewMemory() *Memory {
	return &Memory{
		pages: map[uint64]*[pageSize]byte{},
		next:  0x10000,
	}
}

// Alloc maps size bytes and returns their base address. Allocations are
// word aligned and never reuse addresses.
func (m *Memory) Alloc(size int) uint64 {
	if size <= 0 {
		size = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	base := m.next
	m.next = (base + uint64(size) + 7) &^ 7
	for p := base / pageSize; p <= (m.next-1)/pageSize; p++ {
		if _, ok := m.pages[p]; !ok {
			m.pages[p] = new([pageSize]byte)
		}
	}
	return base
}

// String allocates s and returns its address.
func (m *Memory) String(s string) uint64 {
	addr := m.Alloc(len(s))
	m.mustWrite(addr, []byte(s))
	return addr
}

func (m *Memory) PutUint64(addr, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	m.mustWrite(addr, b[:])
}

func (m *Memory) PutUint32(addr uint64, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	m.mustWrite(addr, b[:])
}

func (m *Memory) PutUint16(addr uint64, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	m.mustWrite(addr, b[:])
}

// Uint64 reads a word, returning 0 for unmapped memory.
func (m *Memory) Uint64(addr uint64) uint64 {
	var b [8]byte
	if _, err := m.ReadAt(b[:], int64(addr)); err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b[:])
}

// Bytes reads n bytes, returning nil for unmapped memory.
func (m *Memory) Bytes(addr uint64, n int) []byte {
	b := make([]byte, n)
	if _, err := m.ReadAt(b, int64(addr)); err != nil {
		return nil
	}
	return b
}

func (m *Memory) mustWrite(addr uint64, b []byte) {
	if _, err := m.WriteAt(b, int64(addr)); err != nil {
		panic(err)
	}
}

func (m *Memory) ReadAt(b []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access(b, off, false)
}

func (m *Memory) WriteAt(b []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access(b, off, true)
}

func (m *Memory) access(b []byte, off int64, write bool) (int, error) {
	if off < 0 {
		return 0, ErrUnmapped
	}
	addr := uint64(off)
	end := addr + uint64(len(b))
	for p := addr / pageSize; len(b) > 0 && p <= (end-1)/pageSize; p++ {
		if _, ok := m.pages[p]; !ok {
			return 0, ErrUnmapped
		}
	}
	n := 0
	for n < len(b) {
		a := addr + uint64(n)
		page := m.pages[a/pageSize]
		in := int(a % pageSize)
		var c int
		if write {
			c = copy(page[in:], b[n:])
		} else {
			c = copy(b[n:], page[in:])
		}
		n += c
	}
	return n, nil
}
