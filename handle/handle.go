// Package handle implements an arena of opaque handles for exposing
// entities across an API boundary without sharing pointers. A Handle
// is a slot number plus a generation counter; deleting a slot bumps
// its generation, so stale handles miss instead of aliasing a reused
// slot.
package handle

import "sync"

// Handle refers to one stored value. The zero Handle is never issued.
type Handle uint64

const invalid Handle = 0

// Slot returns the arena slot of h.
func (h Handle) Slot() uint32 { return uint32(h >> 32) }

// Generation returns the generation of h.
func (h Handle) Generation() uint32 { return uint32(h) }

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(slot)<<32 | uint64(gen))
}

// Table stores values of one type behind handles. Safe for concurrent
// use.
type Table[T any] struct {
	mu    sync.Mutex
	slots []entry[T]
	free  []uint32
}

type entry[T any] struct {
	value T
	gen   uint32
	live  bool
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{}
}

// Put stores v and returns its handle.
func (t *Table[T]) Put(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var slot uint32
	if n := len(t.free); n > 0 {
		slot = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, entry[T]{})
		slot = uint32(len(t.slots) - 1)
	}
	e := &t.slots[slot]
	e.value = v
	e.live = true
	// Generations start at 1 so that the zero Handle stays invalid.
	if e.gen == 0 {
		e.gen = 1
	}
	return makeHandle(slot, e.gen)
}

// Get returns the value behind h. Stale and foreign handles report
// false.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if h == invalid || int(h.Slot()) >= len(t.slots) {
		return zero, false
	}
	e := &t.slots[h.Slot()]
	if !e.live || e.gen != h.Generation() {
		return zero, false
	}
	return e.value, true
}

// Delete releases the value behind h and reports whether h was live.
// The slot is recycled under a new generation.
func (t *Table[T]) Delete(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h == invalid || int(h.Slot()) >= len(t.slots) {
		return false
	}
	e := &t.slots[h.Slot()]
	if !e.live || e.gen != h.Generation() {
		return false
	}
	var zero T
	e.value = zero
	e.live = false
	e.gen++
	t.free = append(t.free, h.Slot())
	return true
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots) - len(t.free)
}
