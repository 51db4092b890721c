package vm

import "sync/atomic"

// ---------------------------------------------------------------------------
// Allocator: realloc-shaped memory accounting boundary
// ---------------------------------------------------------------------------

// Region is an opaque token identifying one allocation granted by an
// Allocator. The zero Region means "no allocation" and doubles as the
// failure result.
type Region uint64

// Allocator handles all explicit memory accounting used by the VM. It
// mirrors a realloc-style contract:
//
//   - To allocate, r is zero and oldSize is zero; the allocator returns a
//     new non-zero Region, or zero on failure.
//   - To grow or shrink, r is the region and oldSize its previous size;
//     the returned Region may differ from r to signal relocation.
//   - To free, newSize is zero; the allocator returns zero.
//
// A VM instance routes every object it creates through its one Allocator,
// so an instrumented implementation observes the exact allocation traffic:
// after the VM is destroyed, every granted region has been freed.
type Allocator interface {
	Reallocate(r Region, oldSize, newSize int) Region
}

// systemAllocator is the default allocator. Object payloads live in Go
// memory; the allocator's job is to issue region tokens and keep the
// byte-accounting contract observable.
type systemAllocator struct {
	next atomic.Uint64
}

// NewSystemAllocator creates the default allocator used when a
// configuration leaves the Allocator field nil.
func NewSystemAllocator() Allocator {
	return &systemAllocator{}
}

func (a *systemAllocator) Reallocate(r Region, oldSize, newSize int) Region {
	if newSize == 0 {
		return 0
	}
	if r != 0 {
		return r
	}
	return Region(a.next.Add(1))
}

// ---------------------------------------------------------------------------
// CountingAllocator: instrumented allocator for tests and diagnostics
// ---------------------------------------------------------------------------

// CountingAllocator wraps the realloc contract with bookkeeping. It tracks
// the size of every outstanding region, so leaks and double frees are
// detectable. FailAfter, when positive, makes the allocator return the
// failure Region after that many successful grants, for fault injection.
type CountingAllocator struct {
	next      uint64
	live      map[Region]int
	Grants    int
	Frees     int
	Resizes   int
	FailAfter int
}

// NewCountingAllocator creates an empty counting allocator.
func NewCountingAllocator() *CountingAllocator {
	return &CountingAllocator{live: make(map[Region]int)}
}

func (a *CountingAllocator) Reallocate(r Region, oldSize, newSize int) Region {
	switch {
	case newSize == 0:
		if r != 0 {
			delete(a.live, r)
			a.Frees++
		}
		return 0

	case r == 0:
		if a.FailAfter > 0 && a.Grants >= a.FailAfter {
			return 0
		}
		a.next++
		region := Region(a.next)
		a.live[region] = newSize
		a.Grants++
		return region

	default:
		a.live[r] = newSize
		a.Resizes++
		return r
	}
}

// LiveRegions returns the number of outstanding regions.
func (a *CountingAllocator) LiveRegions() int {
	return len(a.live)
}

// LiveBytes returns the total size of outstanding regions.
func (a *CountingAllocator) LiveBytes() int {
	total := 0
	for _, size := range a.live {
		total += size
	}
	return total
}
