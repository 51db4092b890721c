package vm

import "github.com/chazu/lark/bytecode"

// ---------------------------------------------------------------------------
// Fiber: value stack and call frames
// ---------------------------------------------------------------------------

const maxCallDepth = 256

// FiberState tracks a fiber through its lifecycle.
type FiberState uint8

const (
	FiberReady FiberState = iota
	FiberRunning
	FiberSuspended // host re-entered the VM during a foreign call
	FiberDoneSuccess
	FiberDoneError
)

// callFrame is one active bytecode invocation. base indexes the stack slot
// holding the receiver (slot 0 of the frame's locals).
type callFrame struct {
	chunk  *bytecode.Chunk
	reader *bytecode.Reader
	base   int
	isInit bool
}

// Fiber carries one thread of execution: a value stack and its call
// frames. Every value on the stack is a GC root while the fiber is live.
type Fiber struct {
	state  FiberState
	stack  []Value
	frames []callFrame
}

// NewFiber creates an empty fiber in the Ready state.
func NewFiber() *Fiber {
	return &Fiber{
		state:  FiberReady,
		stack:  make([]Value, 0, 64),
		frames: make([]callFrame, 0, 8),
	}
}

// State returns the fiber's lifecycle state.
func (f *Fiber) State() FiberState {
	return f.state
}

func (f *Fiber) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Fiber) pop() Value {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

// peek returns the value distance slots down from the top without popping.
func (f *Fiber) peek(distance int) Value {
	return f.stack[len(f.stack)-1-distance]
}

// setTop overwrites the value distance slots down from the top.
func (f *Fiber) setTop(distance int, v Value) {
	f.stack[len(f.stack)-1-distance] = v
}

// truncate drops the stack back to n values.
func (f *Fiber) truncate(n int) {
	f.stack = f.stack[:n]
}

func (f *Fiber) frame() *callFrame {
	return &f.frames[len(f.frames)-1]
}

// pushFrame enters a chunk whose receiver sits at stack slot base.
// Arguments occupy the slots above it; body locals materialize as the
// chunk's declarations execute.
func (f *Fiber) pushFrame(chunk *bytecode.Chunk, base int, isInit bool) {
	f.frames = append(f.frames, callFrame{
		chunk:  chunk,
		reader: bytecode.NewReader(chunk.Code),
		base:   base,
		isInit: isInit,
	})
}

// popFrame leaves the current frame, discarding its stack window down to
// the receiver slot.
func (f *Fiber) popFrame() callFrame {
	frame := f.frames[len(f.frames)-1]
	f.frames = f.frames[:len(f.frames)-1]
	return frame
}

// ScanRoots marks every value on the fiber's stack.
func (f *Fiber) ScanRoots(mark func(Value)) {
	for _, v := range f.stack {
		mark(v)
	}
}

// trace captures the fiber's call stack, innermost frame first.
func (f *Fiber) trace(module string) []TraceEntry {
	entries := make([]TraceEntry, 0, len(f.frames))
	for i := len(f.frames) - 1; i >= 0; i-- {
		frame := &f.frames[i]
		entries = append(entries, TraceEntry{
			Function: frame.chunk.Name,
			Module:   module,
			Line:     frame.chunk.Line(frame.reader.Position() - 1),
		})
	}
	return entries
}
