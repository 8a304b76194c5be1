// Package unit derives the correlation key for "the current logical unit of
// work" from the raw execution context seen by a probe.
//
// No identifier is exact for every runtime. Threads are reused by async
// executors, runtime task ids are only exposed by some runtimes, and stack
// fingerprints can collide when a stack region is reused by a later task or
// when one task nests deeply enough to cross a region boundary. Strategies are
// therefore pluggable; pick the one that matches the target runtime.
package unit

// Key identifies one logical thread or task. It is opaque: the only valid
// operation is equality.
type Key uint64

// ExecContext is the raw execution context available to a probe handler.
type ExecContext struct {
	PID uint32
	TID uint32
	// SP is the stack pointer at probe time.
	SP uint64
	// TaskID is a runtime-exposed task id, or 0 when the runtime exposes none.
	TaskID uint64
}

// Identifier maps an execution context to a Key. It returns false when the
// strategy cannot identify the unit from the given context.
type Identifier interface {
	Identify(ExecContext) (Key, bool)
}

// variant tags keep keys derived by different strategies apart.
const (
	tagThread uint64 = iota + 1
	tagTask
	tagStack
)

// DefaultStackMaskBits groups stack addresses into 64KiB regions.
const DefaultStackMaskBits = 16

// ThreadIdentifier keys by OS thread only. Exact for thread-per-request
// servers; wrong for async executors that multiplex tasks on a thread.
type ThreadIdentifier struct{}

func (ThreadIdentifier) Identify(ec ExecContext) (Key, bool) {
	if ec.TID == 0 {
		return 0, false
	}
	return mix(tagThread, uint64(ec.PID)<<32|uint64(ec.TID), 0), true
}

// TaskIdentifier keys by the runtime task id. It fails when the runtime did
// not expose one.
type TaskIdentifier struct{}

func (TaskIdentifier) Identify(ec ExecContext) (Key, bool) {
	if ec.TaskID == 0 {
		return 0, false
	}
	return mix(tagTask, uint64(ec.PID), ec.TaskID), true
}

// StackIdentifier combines the thread with a coarse fingerprint of the stack
// region (the stack pointer with its low MaskBits cleared), so that tasks with
// distinct stacks on one thread map to distinct keys.
//
// Collisions: two units whose stacks fall in the same region share a key, and
// one unit whose probes fire more than a region apart gets two keys. Neither
// case is detected.
type StackIdentifier struct {
	MaskBits uint
}

func (s StackIdentifier) Identify(ec ExecContext) (Key, bool) {
	if ec.TID == 0 || ec.SP == 0 {
		return 0, false
	}
	bits := s.MaskBits
	if bits == 0 {
		bits = DefaultStackMaskBits
	}
	if bits > 63 {
		bits = 63
	}
	return mix(tagStack, uint64(ec.PID)<<32|uint64(ec.TID), ec.SP>>bits), true
}

// Chain tries each identifier in order and returns the first key found.
type Chain []Identifier

func (c Chain) Identify(ec ExecContext) (Key, bool) {
	for _, id := range c {
		if k, ok := id.Identify(ec); ok {
			return k, true
		}
	}
	return 0, false
}

// Default prefers the runtime task id and falls back to the stack heuristic.
func Default() Identifier {
	return Chain{TaskIdentifier{}, StackIdentifier{MaskBits: DefaultStackMaskBits}}
}

// mix folds the inputs with the splitmix64 finalizer. Deterministic across
// processes and sessions.
func mix(tag, a, b uint64) Key {
	h := tag*0x9E3779B97F4A7C15 ^ a
	h = fmix(h)
	h ^= b + 0x9E3779B97F4A7C15 + (h << 6) + (h >> 2)
	return Key(fmix(h))
}

func fmix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
