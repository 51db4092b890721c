package vm

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/lark/bytecode"
	"github.com/chazu/lark/compiler"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Configuration tunes a VM at construction time. The zero value of every
// field selects the documented default; NewVM copies the struct, so later
// mutation by the caller has no effect.
type Configuration struct {
	// Allocator handles all memory accounting. Nil selects the built-in
	// system allocator.
	Allocator Allocator

	// InitialHeapSize is the live-byte threshold for the first collection.
	// Zero selects 10 MiB.
	InitialHeapSize int

	// MinHeapSize is the floor for the post-collection threshold. Zero
	// selects 1 MiB.
	MinHeapSize int

	// HeapGrowthPercent sets how far past the live set the next threshold
	// lands. Zero selects 50.
	HeapGrowthPercent int
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM is one isolated interpreter instance: its own heap, globals, and
// class registry. Instances share nothing; a VM is not safe for concurrent
// use.
type VM struct {
	id        uuid.UUID
	alloc     Allocator
	heap      *Heap
	selectors *SelectorTable
	globals   map[string]Value

	objectClass Handle
	numClass    Handle
	boolClass   Handle
	nullClass   Handle
	stringClass Handle
	fnClass     Handle

	fibers  []*Fiber // innermost interpret last
	path    string   // source label of the innermost interpret
	lastErr error
	freed   bool

	log commonlog.Logger
}

// NewVM creates a VM from the configuration. A nil configuration is
// equivalent to the zero configuration.
func NewVM(cfg *Configuration) *VM {
	var c Configuration
	if cfg != nil {
		c = *cfg
	}
	if c.Allocator == nil {
		c.Allocator = NewSystemAllocator()
	}

	vm := &VM{
		id:        uuid.New(),
		alloc:     c.Allocator,
		selectors: NewSelectorTable(),
		globals:   make(map[string]Value),
		log:       commonlog.GetLogger("lark.vm"),
	}
	vm.heap = NewHeap(c.Allocator, c.InitialHeapSize, c.MinHeapSize, c.HeapGrowthPercent)
	vm.heap.AddScanner(vm)
	vm.bootstrapClasses()
	vm.log.Debugf("vm %s created", vm.id)
	return vm
}

// Free releases every object the VM allocated and renders it unusable.
// With an instrumented allocator, every grant has a matching free after
// this returns.
func (vm *VM) Free() {
	if vm.freed {
		return
	}
	vm.heap.FreeAll()
	vm.globals = nil
	vm.fibers = nil
	vm.freed = true
	vm.log.Debugf("vm %s freed", vm.id)
}

// LastError returns the error behind the most recent non-success
// interpret result: a *compiler.Error or a *RuntimeError.
func (vm *VM) LastError() error {
	return vm.lastErr
}

// Heap exposes the VM's heap for diagnostics.
func (vm *VM) Heap() *Heap {
	return vm.heap
}

// ScanRoots marks the globals, the built-in classes, and every active
// fiber's stack.
func (vm *VM) ScanRoots(mark func(Value)) {
	for _, v := range vm.globals {
		mark(v)
	}
	mark(FromHandle(vm.objectClass))
	mark(FromHandle(vm.numClass))
	mark(FromHandle(vm.boolClass))
	mark(FromHandle(vm.nullClass))
	mark(FromHandle(vm.stringClass))
	mark(FromHandle(vm.fnClass))
	for _, f := range vm.fibers {
		f.ScanRoots(mark)
	}
}

// ---------------------------------------------------------------------------
// Interpreting
// ---------------------------------------------------------------------------

// Interpret compiles and runs source. sourcePath labels the code in error
// traces; empty is allowed. Compilation errors leave the VM untouched:
// no bytecode runs.
func (vm *VM) Interpret(sourcePath, source string) InterpretResult {
	module, err := compiler.Compile(sourcePath, source)
	if err != nil {
		vm.lastErr = err
		vm.log.Debugf("vm %s: compile error: %s", vm.id, err)
		return ResultCompileError
	}
	return vm.InterpretModule(sourcePath, module)
}

// InterpretModule runs an already-compiled module, as produced by
// compiler.Compile or loaded from the module cache. Re-entrant: a foreign
// method may call back into the VM; the outer fiber is suspended for the
// duration.
func (vm *VM) InterpretModule(sourcePath string, module *bytecode.Module) InterpretResult {
	top := module.TopLevel()
	if top == nil {
		return ResultSuccess
	}

	prevPath := vm.path
	vm.path = sourcePath
	if n := len(vm.fibers); n > 0 {
		vm.fibers[n-1].state = FiberSuspended
	}

	fiber := NewFiber()
	vm.fibers = append(vm.fibers, fiber)
	fiber.push(Null) // receiver slot of the top-level frame
	fiber.pushFrame(top, 0, false)

	err := vm.run(fiber, module)

	vm.fibers = vm.fibers[:len(vm.fibers)-1]
	if n := len(vm.fibers); n > 0 {
		vm.fibers[n-1].state = FiberRunning
	}
	vm.path = prevPath

	if err != nil {
		vm.lastErr = err
		vm.log.Debugf("vm %s: runtime error: %s", vm.id, err.Message)
		return ResultRuntimeError
	}
	vm.lastErr = nil
	return ResultSuccess
}

// ---------------------------------------------------------------------------
// Host method binding
// ---------------------------------------------------------------------------

// DefineMethod binds a foreign instance method on the named class. An
// unknown class is created on the spot, inheriting Object, and bound as a
// global under its own name. Rebinding an existing (name, arity) pair
// replaces it; a different arity occupies a separate slot.
func (vm *VM) DefineMethod(className, methodName string, arity int, fn ForeignFn) {
	vm.defineForeign(className, methodName, arity, fn, false)
}

// DefineStaticMethod binds a foreign static method on the named class,
// creating the class like DefineMethod does.
func (vm *VM) DefineStaticMethod(className, methodName string, arity int, fn ForeignFn) {
	vm.defineForeign(className, methodName, arity, fn, true)
}

func (vm *VM) defineForeign(className, methodName string, arity int, fn ForeignFn, static bool) {
	if fn == nil {
		panic("VM.DefineMethod: nil function")
	}
	classHandle := vm.ensureClass(className)
	class := vm.heap.Get(classHandle).Class
	id := vm.selectors.Intern(methodName, arity)
	method := Method{Kind: MethodForeign, Foreign: fn}
	if static {
		class.Statics.Set(id, method)
	} else {
		class.Methods.Set(id, method)
	}
	vm.heap.UpdateSize(classHandle)
}

// ensureClass returns the class bound to the global name, creating and
// binding it when absent.
func (vm *VM) ensureClass(name string) Handle {
	if v, ok := vm.globals[name]; ok && v.IsObject() {
		if obj, live := vm.heap.Resolve(v.ObjectHandle()); live && obj.Kind == KindClass {
			return v.ObjectHandle()
		}
	}
	classVal := vm.newClass(name, FromHandle(vm.objectClass))
	vm.globals[name] = classVal
	return classVal.ObjectHandle()
}

// ---------------------------------------------------------------------------
// Allocation helpers
// ---------------------------------------------------------------------------

func (vm *VM) newString(s string) Value {
	return FromHandle(vm.heap.Allocate(&Object{Kind: KindString, Str: s}))
}

func (vm *VM) newFunction(chunk *bytecode.Chunk) Value {
	return FromHandle(vm.heap.Allocate(&Object{Kind: KindFunction, Fn: chunk}))
}

func (vm *VM) newClass(name string, superclass Value) Value {
	return FromHandle(vm.heap.Allocate(&Object{
		Kind:  KindClass,
		Class: NewClassObject(name, superclass),
	}))
}

// ---------------------------------------------------------------------------
// Built-in classes
// ---------------------------------------------------------------------------

// bootstrapClasses creates the root Object class, the primitive dispatch
// classes, and their built-in methods.
func (vm *VM) bootstrapClasses() {
	vm.objectClass = vm.newClass("Object", Null).ObjectHandle()
	vm.globals["Object"] = FromHandle(vm.objectClass)

	object := FromHandle(vm.objectClass)
	vm.numClass = vm.newClass("Num", object).ObjectHandle()
	vm.boolClass = vm.newClass("Bool", object).ObjectHandle()
	vm.nullClass = vm.newClass("Null", object).ObjectHandle()
	vm.stringClass = vm.newClass("String", object).ObjectHandle()
	vm.fnClass = vm.newClass("Fn", object).ObjectHandle()

	vm.DefineMethod("Object", "toString", 0, func(call *Call) {
		call.ReturnString(vm.describe(call.arg(0)))
	})
	vm.bindBuiltin(vm.numClass, "toString", 0, func(call *Call) {
		call.ReturnString(formatNum(call.DoubleArg(0)))
	})
	vm.bindBuiltin(vm.boolClass, "toString", 0, func(call *Call) {
		call.ReturnString(strconv.FormatBool(call.BoolArg(0)))
	})
	vm.bindBuiltin(vm.nullClass, "toString", 0, func(call *Call) {
		call.ReturnString("null")
	})
	vm.bindBuiltin(vm.stringClass, "toString", 0, func(call *Call) {
		s, _ := call.StringArg(0)
		call.ReturnString(s)
	})
	vm.bindBuiltin(vm.stringClass, "count", 0, func(call *Call) {
		s, _ := call.StringArg(0)
		call.ReturnDouble(float64(len(s)))
	})
}

// bindBuiltin attaches a foreign method directly to a built-in class that
// is not addressable by global name (primitive dispatch classes shadow no
// global).
func (vm *VM) bindBuiltin(classHandle Handle, name string, arity int, fn ForeignFn) {
	class := vm.heap.Get(classHandle).Class
	class.Methods.Set(vm.selectors.Intern(name, arity), Method{Kind: MethodForeign, Foreign: fn})
	vm.heap.UpdateSize(classHandle)
}

// classForValue returns the dispatch class for a primitive value.
func (vm *VM) classForValue(v Value) Handle {
	switch {
	case v.IsNum():
		return vm.numClass
	case v.IsBool():
		return vm.boolClass
	case v.IsNull():
		return vm.nullClass
	}
	obj := vm.heap.Get(v.ObjectHandle())
	switch obj.Kind {
	case KindString:
		return vm.stringClass
	case KindFunction:
		return vm.fnClass
	}
	return vm.objectClass
}

// describe renders a value for display.
func (vm *VM) describe(v Value) string {
	switch {
	case v.IsNum():
		return formatNum(v.Num())
	case v.IsBool():
		return strconv.FormatBool(v.Bool())
	case v.IsNull():
		return "null"
	}
	obj, ok := vm.heap.Resolve(v.ObjectHandle())
	if !ok {
		return "<stale>"
	}
	switch obj.Kind {
	case KindString:
		return obj.Str
	case KindFunction:
		return fmt.Sprintf("<fn %s>", obj.Fn.Name)
	case KindClass:
		return obj.Class.Name
	case KindInstance:
		return fmt.Sprintf("instance of %s", vm.heap.Get(obj.Instance.Class).Class.Name)
	}
	return "<object>"
}

func formatNum(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
