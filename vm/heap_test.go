package vm

import "testing"

// rootList is a scanner fixture holding explicit roots.
type rootList struct {
	values []Value
}

func (r *rootList) ScanRoots(mark func(Value)) {
	for _, v := range r.values {
		mark(v)
	}
}

func newTestHeap(alloc Allocator, initial, min, growth int) (*Heap, *rootList) {
	h := NewHeap(alloc, initial, min, growth)
	roots := &rootList{}
	h.AddScanner(roots)
	return h, roots
}

func strObject(s string) *Object {
	return &Object{Kind: KindString, Str: s}
}

func TestAllocateAndResolve(t *testing.T) {
	h, _ := newTestHeap(NewSystemAllocator(), 0, 0, 0)

	handle := h.Allocate(strObject("hello"))
	obj, ok := h.Resolve(handle)
	if !ok {
		t.Fatal("fresh handle did not resolve")
	}
	if obj.Kind != KindString || obj.Str != "hello" {
		t.Fatalf("resolved object = %v %q", obj.Kind, obj.Str)
	}
}

func TestDefaultThresholds(t *testing.T) {
	h := NewHeap(NewSystemAllocator(), 0, 0, 0)
	if h.NextGC() != DefaultInitialHeapSize {
		t.Errorf("initial threshold = %d, want %d", h.NextGC(), DefaultInitialHeapSize)
	}
}

func TestReachableSurvivesCollection(t *testing.T) {
	h, roots := newTestHeap(NewSystemAllocator(), 0, 0, 0)

	handle := h.Allocate(strObject("keep"))
	roots.values = append(roots.values, FromHandle(handle))

	h.Collect()

	obj, ok := h.Resolve(handle)
	if !ok || obj.Str != "keep" {
		t.Fatal("reachable object did not survive collection")
	}
}

func TestUnreachableFreedInOnePass(t *testing.T) {
	alloc := NewCountingAllocator()
	h, roots := newTestHeap(alloc, 0, 0, 0)

	kept := h.Allocate(strObject("keep"))
	roots.values = append(roots.values, FromHandle(kept))
	dropped := h.Allocate(strObject("drop"))

	h.Collect()

	if _, ok := h.Resolve(dropped); ok {
		t.Error("unreachable object survived a collection")
	}
	if _, ok := h.Resolve(kept); !ok {
		t.Error("reachable object was freed")
	}
	if alloc.LiveRegions() != 1 {
		t.Errorf("live regions = %d, want 1", alloc.LiveRegions())
	}
}

func TestCollectionTracesReferences(t *testing.T) {
	h, roots := newTestHeap(NewSystemAllocator(), 0, 0, 0)

	classHandle := h.Allocate(&Object{Kind: KindClass, Class: NewClassObject("Point", Null)})
	field := h.Allocate(strObject("payload"))
	instance := h.Allocate(&Object{
		Kind:     KindInstance,
		Instance: &InstanceObject{Class: classHandle, Fields: []Value{FromHandle(field)}},
	})
	roots.values = append(roots.values, FromHandle(instance))

	h.Collect()

	if _, ok := h.Resolve(classHandle); !ok {
		t.Error("class reachable through instance was freed")
	}
	if _, ok := h.Resolve(field); !ok {
		t.Error("field value reachable through instance was freed")
	}
}

func TestStaleHandleAfterFree(t *testing.T) {
	h, roots := newTestHeap(NewSystemAllocator(), 0, 0, 0)

	old := h.Allocate(strObject("first"))
	h.Collect() // unrooted: slot freed, generation bumped

	if _, ok := h.Resolve(old); ok {
		t.Fatal("stale handle resolved")
	}

	// The slot is recycled for the next allocation; the old handle must
	// still not resolve to the new occupant.
	fresh := h.Allocate(strObject("second"))
	roots.values = append(roots.values, FromHandle(fresh))
	if fresh.Index != old.Index {
		t.Fatalf("expected slot reuse, got index %d and %d", old.Index, fresh.Index)
	}
	if fresh.Gen == old.Gen {
		t.Fatal("recycled slot kept its generation")
	}
	if _, ok := h.Resolve(old); ok {
		t.Fatal("stale handle resolves to the new occupant")
	}
	if obj, ok := h.Resolve(fresh); !ok || obj.Str != "second" {
		t.Fatal("fresh handle does not resolve")
	}
}

func TestThresholdLaw(t *testing.T) {
	h, roots := newTestHeap(NewSystemAllocator(), 100000, 100, 50)

	// Keep a known number of bytes live.
	for i := 0; i < 10; i++ {
		handle := h.Allocate(strObject("0123456789abcdef")) // 32 + 16 bytes each
		roots.values = append(roots.values, FromHandle(handle))
	}
	h.Allocate(strObject("garbage"))

	h.Collect()

	live := h.BytesLive()
	if live != 10*(objectHeaderSize+16) {
		t.Fatalf("live bytes = %d, want %d", live, 10*(objectHeaderSize+16))
	}
	want := live + live*50/100
	if want < 100 {
		want = 100
	}
	if h.NextGC() != want {
		t.Errorf("next threshold = %d, want %d", h.NextGC(), want)
	}
}

func TestThresholdFloor(t *testing.T) {
	h, _ := newTestHeap(NewSystemAllocator(), 100000, 5000, 50)

	h.Allocate(strObject("transient"))
	h.Collect()

	if h.BytesLive() != 0 {
		t.Fatalf("live bytes = %d, want 0", h.BytesLive())
	}
	if h.NextGC() != 5000 {
		t.Errorf("threshold = %d, want the 5000 floor", h.NextGC())
	}
}

func TestCollectionTriggersAtThreshold(t *testing.T) {
	h, _ := newTestHeap(NewSystemAllocator(), 200, 100, 50)

	// Each unrooted allocation is garbage; crossing the 200-byte threshold
	// must run a pass without any explicit Collect call.
	for i := 0; i < 20; i++ {
		h.Allocate(strObject("0123456789abcdef"))
	}
	if h.Stats().Collections == 0 {
		t.Error("no collection ran despite crossing the threshold")
	}
	if h.Stats().ObjectsFreed == 0 {
		t.Error("collections freed nothing")
	}
}

func TestPinnedValueSurvives(t *testing.T) {
	h, _ := newTestHeap(NewSystemAllocator(), 0, 0, 0)

	handle := h.Allocate(strObject("pinned"))
	h.Pin(FromHandle(handle))
	h.Collect()
	if _, ok := h.Resolve(handle); !ok {
		t.Fatal("pinned value was collected")
	}

	h.Unpin()
	h.Collect()
	if _, ok := h.Resolve(handle); ok {
		t.Fatal("unpinned, unreachable value survived")
	}
}

func TestUpdateSizeAdjustsAccounting(t *testing.T) {
	alloc := NewCountingAllocator()
	h, roots := newTestHeap(alloc, 0, 0, 0)

	classHandle := h.Allocate(&Object{Kind: KindClass, Class: NewClassObject("C", Null)})
	roots.values = append(roots.values, FromHandle(classHandle))
	before := h.BytesLive()

	class := h.Get(classHandle).Class
	class.Methods.Set(0, Method{Kind: MethodForeign, Foreign: func(*Call) {}})
	h.UpdateSize(classHandle)

	if h.BytesLive() <= before {
		t.Errorf("BytesLive = %d, want growth past %d", h.BytesLive(), before)
	}
	if h.BytesLive() != alloc.LiveBytes() {
		t.Errorf("heap accounts %d bytes, allocator %d", h.BytesLive(), alloc.LiveBytes())
	}
}

func TestFreeAllNetsToZero(t *testing.T) {
	alloc := NewCountingAllocator()
	h, roots := newTestHeap(alloc, 0, 0, 0)

	for i := 0; i < 50; i++ {
		handle := h.Allocate(strObject("payload"))
		if i%2 == 0 {
			roots.values = append(roots.values, FromHandle(handle))
		}
	}
	h.Collect()
	h.FreeAll()

	if h.BytesLive() != 0 {
		t.Errorf("BytesLive = %d after FreeAll", h.BytesLive())
	}
	if alloc.LiveRegions() != 0 || alloc.LiveBytes() != 0 {
		t.Errorf("allocator still holds %d regions, %d bytes",
			alloc.LiveRegions(), alloc.LiveBytes())
	}
	if alloc.Grants != alloc.Frees {
		t.Errorf("grants = %d, frees = %d, want equal", alloc.Grants, alloc.Frees)
	}
}

func TestAllocationFailureIsFatal(t *testing.T) {
	alloc := NewCountingAllocator()
	alloc.FailAfter = 1
	h, _ := newTestHeap(alloc, 0, 0, 0)

	h.Allocate(strObject("first"))
	defer func() {
		if recover() == nil {
			t.Fatal("allocation failure must panic")
		}
	}()
	h.Allocate(strObject("second"))
}

func TestCountingAllocatorContract(t *testing.T) {
	a := NewCountingAllocator()

	r := a.Reallocate(0, 0, 100)
	if r == 0 {
		t.Fatal("grant returned the failure region")
	}
	if a.LiveBytes() != 100 {
		t.Errorf("live bytes = %d, want 100", a.LiveBytes())
	}

	r2 := a.Reallocate(r, 100, 250)
	if r2 != r {
		t.Errorf("resize moved the region: %d -> %d", r, r2)
	}
	if a.LiveBytes() != 250 {
		t.Errorf("live bytes after resize = %d, want 250", a.LiveBytes())
	}

	if freed := a.Reallocate(r, 250, 0); freed != 0 {
		t.Errorf("free returned %d, want 0", freed)
	}
	if a.LiveRegions() != 0 {
		t.Errorf("live regions = %d after free", a.LiveRegions())
	}
}
