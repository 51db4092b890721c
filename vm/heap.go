package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Heap: handle arena and garbage collector
// ---------------------------------------------------------------------------

// Default collector tuning, applied when the configuration leaves the
// corresponding field zero.
const (
	DefaultInitialHeapSize = 10 * 1024 * 1024
	DefaultMinHeapSize     = 1024 * 1024
	DefaultGrowthPercent   = 50
)

// RootScanner is implemented by anything that holds values the collector
// must treat as live. The scanner calls mark once per root value.
type RootScanner interface {
	ScanRoots(mark func(Value))
}

// heapSlot is one arena entry. The generation increments every time the
// slot is recycled, so handles minted for a previous occupant no longer
// resolve.
type heapSlot struct {
	obj    *Object
	gen    uint16
	region Region
	size   int
	live   bool
}

// GCStats accumulates collector activity over the life of a heap.
type GCStats struct {
	Collections    int
	ObjectsFreed   int
	BytesFreed     int
	BytesAllocated int
}

// Heap owns every object a VM creates. Handles index into the slot arena;
// all allocation flows through the configured Allocator so byte accounting
// is externally observable. Collections happen only at allocation
// boundaries, before the new object exists, so a freshly allocated object
// can never be swept out from under its creator.
type Heap struct {
	alloc Allocator
	slots []heapSlot
	free  []uint32

	bytesLive int
	nextGC    int
	minHeap   int
	growth    int

	scanners []RootScanner
	pins     []Value

	stats GCStats
	log   commonlog.Logger
}

// NewHeap creates a heap over the given allocator with the given tuning.
// Zero tuning values take the package defaults.
func NewHeap(alloc Allocator, initialHeap, minHeap, growthPercent int) *Heap {
	if initialHeap <= 0 {
		initialHeap = DefaultInitialHeapSize
	}
	if minHeap <= 0 {
		minHeap = DefaultMinHeapSize
	}
	if growthPercent <= 0 {
		growthPercent = DefaultGrowthPercent
	}
	return &Heap{
		alloc:   alloc,
		nextGC:  initialHeap,
		minHeap: minHeap,
		growth:  growthPercent,
		log:     commonlog.GetLogger("lark.gc"),
	}
}

// AddScanner registers a root provider. Scanners are consulted on every
// collection for as long as the heap lives.
func (h *Heap) AddScanner(s RootScanner) {
	h.scanners = append(h.scanners, s)
}

// Pin marks a value live across the next collections regardless of
// reachability. Pins nest; Unpin releases the most recent one.
func (h *Heap) Pin(v Value) {
	h.pins = append(h.pins, v)
}

// Unpin releases the most recently pinned value.
func (h *Heap) Unpin() {
	h.pins = h.pins[:len(h.pins)-1]
}

// Allocate places obj on the heap and returns its handle. If the live set
// has crossed the collection threshold, a collection runs first. A failure
// from the allocator is fatal.
func (h *Heap) Allocate(obj *Object) Handle {
	size := obj.Size()
	if h.bytesLive+size > h.nextGC {
		h.Collect()
	}

	region := h.alloc.Reallocate(0, 0, size)
	if region == 0 {
		panic(fmt.Sprintf("lark: out of memory allocating %d bytes for %s", size, obj.Kind))
	}

	var index uint32
	if n := len(h.free); n > 0 {
		index = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		index = uint32(len(h.slots))
		h.slots = append(h.slots, heapSlot{})
	}

	slot := &h.slots[index]
	slot.obj = obj
	slot.region = region
	slot.size = size
	slot.live = true

	h.bytesLive += size
	h.stats.BytesAllocated += size
	return Handle{Index: index, Gen: slot.gen}
}

// Get resolves a handle to its object. Stale or never-issued handles are a
// VM bug and panic.
func (h *Heap) Get(handle Handle) *Object {
	obj, ok := h.Resolve(handle)
	if !ok {
		panic(fmt.Sprintf("Heap.Get: stale handle %d@%d", handle.Index, handle.Gen))
	}
	return obj
}

// Resolve resolves a handle, reporting false for stale handles instead of
// panicking.
func (h *Heap) Resolve(handle Handle) (*Object, bool) {
	if int(handle.Index) >= len(h.slots) {
		return nil, false
	}
	slot := &h.slots[handle.Index]
	if !slot.live || slot.gen != handle.Gen {
		return nil, false
	}
	return slot.obj, true
}

// UpdateSize re-accounts an object whose payload grew or shrank since it
// was allocated, such as a class gaining methods.
func (h *Heap) UpdateSize(handle Handle) {
	slot := &h.slots[handle.Index]
	newSize := slot.obj.Size()
	if newSize == slot.size {
		return
	}
	slot.region = h.alloc.Reallocate(slot.region, slot.size, newSize)
	if slot.region == 0 {
		panic(fmt.Sprintf("lark: out of memory resizing %s to %d bytes", slot.obj.Kind, newSize))
	}
	h.bytesLive += newSize - slot.size
	if newSize > slot.size {
		h.stats.BytesAllocated += newSize - slot.size
	}
	slot.size = newSize
}

// BytesLive returns the currently accounted live byte total.
func (h *Heap) BytesLive() int {
	return h.bytesLive
}

// NextGC returns the live-byte threshold that triggers the next
// collection.
func (h *Heap) NextGC() int {
	return h.nextGC
}

// Stats returns accumulated collector statistics.
func (h *Heap) Stats() GCStats {
	return h.stats
}

// Collect runs a full stop-the-world mark/sweep pass and recomputes the
// next collection threshold from the surviving live set.
func (h *Heap) Collect() {
	before := h.bytesLive

	// Mark phase: seed a worklist from every registered root, then trace.
	var worklist []Handle
	mark := func(v Value) {
		if !v.IsObject() {
			return
		}
		handle := v.ObjectHandle()
		obj, ok := h.Resolve(handle)
		if !ok || obj.Marked {
			return
		}
		obj.Marked = true
		worklist = append(worklist, handle)
	}
	for _, s := range h.scanners {
		s.ScanRoots(mark)
	}
	for _, v := range h.pins {
		mark(v)
	}
	for len(worklist) > 0 {
		handle := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		h.trace(h.Get(handle), mark)
	}

	// Sweep phase: free unmarked slots, clear marks on survivors.
	freed := 0
	for i := range h.slots {
		slot := &h.slots[i]
		if !slot.live {
			continue
		}
		if slot.obj.Marked {
			slot.obj.Marked = false
			continue
		}
		h.release(uint32(i))
		freed++
	}

	h.nextGC = h.bytesLive + h.bytesLive*h.growth/100
	if h.nextGC < h.minHeap {
		h.nextGC = h.minHeap
	}

	h.stats.Collections++
	h.stats.ObjectsFreed += freed
	h.stats.BytesFreed += before - h.bytesLive
	h.log.Debugf("collected %d objects, %d -> %d bytes, next at %d",
		freed, before, h.bytesLive, h.nextGC)
}

// trace marks every value reachable from obj.
func (h *Heap) trace(obj *Object, mark func(Value)) {
	switch obj.Kind {
	case KindClass:
		c := obj.Class
		mark(c.Superclass)
		for _, m := range c.Methods.methods {
			if m.Kind == MethodBytecode {
				mark(FromHandle(m.Fn))
			}
		}
		for _, m := range c.Statics.methods {
			if m.Kind == MethodBytecode {
				mark(FromHandle(m.Fn))
			}
		}
	case KindInstance:
		inst := obj.Instance
		mark(FromHandle(inst.Class))
		for _, v := range inst.Fields {
			mark(v)
		}
	}
}

// release frees one live slot: returns its bytes to the allocator and
// bumps the generation so outstanding handles go stale.
func (h *Heap) release(index uint32) {
	slot := &h.slots[index]
	h.alloc.Reallocate(slot.region, slot.size, 0)
	h.bytesLive -= slot.size
	slot.obj = nil
	slot.region = 0
	slot.size = 0
	slot.live = false
	slot.gen++
	h.free = append(h.free, index)
}

// FreeAll releases every live object unconditionally. Used when the owning
// VM is destroyed; afterwards the allocator ledger nets to zero.
func (h *Heap) FreeAll() {
	for i := range h.slots {
		if h.slots[i].live {
			h.release(uint32(i))
		}
	}
	h.scanners = nil
	h.pins = nil
}
