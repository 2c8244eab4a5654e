// Package alloc implements the address slot allocator (component A):
// a fixed pool of N integer slots handed out with a lock-free test-and-set,
// identifying a peer's suffix on both the VPN and sandbox subnets.
package alloc

import "sync/atomic"

// Allocator hands out integer slots in [1, N] using per-slot atomic
// test-and-set. There is no multi-slot transaction, so a mutex + bitset
// would be strictly more coordination than the problem needs.
type Allocator struct {
	used []atomic.Bool
}

// New creates an Allocator with n free slots.
func New(n int) *Allocator {
	if n <= 0 {
		panic("alloc: n must be positive")
	}
	return &Allocator{used: make([]atomic.Bool, n)}
}

// N returns the total number of slots.
func (a *Allocator) N() int {
	return len(a.used)
}

// Take returns the lowest-indexed free slot suffix (1-based) and true, or
// (0, false) if every slot is taken. Safe for concurrent use without
// external coordination.
func (a *Allocator) Take() (uint8, bool) {
	for i := range a.used {
		if !a.used[i].Swap(true) {
			return uint8(i + 1), true
		}
	}
	return 0, false
}

// Release marks suffix as free again. Releasing an already-free slot is a
// no-op. Panics if suffix is out of range — that is always a caller bug,
// never a runtime condition to recover from.
func (a *Allocator) Release(suffix uint8) {
	if int(suffix) < 1 || int(suffix) > len(a.used) {
		panic("alloc: suffix out of range")
	}
	a.used[suffix-1].Store(false)
}
