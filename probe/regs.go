// Package probe holds the pieces every probe handler shares: the register
// snapshot delivered with each probe event, access to the target's memory,
// and the Builder that reads bounded fields out of target structures.
package probe

import (
	"encoding/binary"
	"io"

	"github.com/lightstep/lightstep-autotrace-go/unit"
)

const (
	// MaxArgs is the number of argument registers captured per event.
	MaxArgs = 8
	// WordSize is the size of one stack slot on the supported targets.
	WordSize = 8
)

// Regs is the register snapshot taken when a probe fires.
type Regs struct {
	Args   [MaxArgs]uint64
	SP     uint64
	PID    uint32
	TID    uint32
	TaskID uint64
}

// Arg returns the argument at the 1-based position pos, or 0 when pos is
// out of range.
func (r *Regs) Arg(pos int) uint64 {
	if pos < 1 || pos > MaxArgs {
		return 0
	}
	return r.Args[pos-1]
}

// Exec describes the execution unit the probe fired on.
func (r *Regs) Exec() unit.ExecContext {
	return unit.ExecContext{PID: r.PID, TID: r.TID, SP: r.SP, TaskID: r.TaskID}
}

// Memory is the target process address space.
type Memory interface {
	io.ReaderAt
	io.WriterAt
}

// StackArg reads the word at sp + pos*WordSize. Return trampolines no longer
// carry the receiver in a register, so it is recovered from the stack slot
// the entry left behind.
func StackArg(mem Memory, regs *Regs, pos int) (uint64, bool) {
	if mem == nil || regs == nil || regs.SP == 0 || pos < 0 {
		return 0, false
	}
	return readUint64(mem, regs.SP+uint64(pos)*WordSize)
}

func readUint64(mem Memory, addr uint64) (uint64, bool) {
	var b [8]byte
	if !readFull(mem, addr, b[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b[:]), true
}

func readFull(mem Memory, addr uint64, b []byte) bool {
	if addr == 0 || int64(addr) < 0 {
		return false
	}
	n, err := mem.ReadAt(b, int64(addr))
	return err == nil && n == len(b)
}
