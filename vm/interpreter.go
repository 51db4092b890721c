package vm

import (
	"fmt"
	"math"

	"github.com/chazu/lark/bytecode"
)

// ---------------------------------------------------------------------------
// Bytecode execution
// ---------------------------------------------------------------------------

// run executes the fiber's current top frame (and everything it calls)
// until that frame returns. module supplies the constant pool context for
// function constants, which only occur in top-level code.
func (vm *VM) run(fiber *Fiber, module *bytecode.Module) *RuntimeError {
	startDepth := len(fiber.frames)
	fiber.state = FiberRunning

	for {
		frame := fiber.frame()
		reader := frame.reader
		op := reader.ReadOpcode()

		switch op {
		case bytecode.OpNop:

		case bytecode.OpPop:
			fiber.pop()

		case bytecode.OpDup:
			fiber.push(fiber.peek(0))

		case bytecode.OpNull:
			fiber.push(Null)

		case bytecode.OpTrue:
			fiber.push(True)

		case bytecode.OpFalse:
			fiber.push(False)

		case bytecode.OpConstant:
			k := frame.chunk.Constants[reader.ReadUint16()]
			switch k.Kind {
			case bytecode.ConstNum:
				fiber.push(FromNum(k.Num))
			case bytecode.ConstStr:
				fiber.push(vm.newString(k.Str))
			case bytecode.ConstFn:
				if module == nil || k.Fn >= len(module.Chunks) {
					return vm.fail(fiber, "function constant outside module load")
				}
				fiber.push(vm.newFunction(module.Chunks[k.Fn]))
			}

		case bytecode.OpGetLocal:
			fiber.push(fiber.stack[frame.base+int(reader.ReadByte())])

		case bytecode.OpSetLocal:
			fiber.stack[frame.base+int(reader.ReadByte())] = fiber.peek(0)

		case bytecode.OpGetGlobal:
			name := frame.chunk.Constants[reader.ReadUint16()].Str
			v, ok := vm.globals[name]
			if !ok {
				return vm.fail(fiber, "undefined variable '%s'", name)
			}
			fiber.push(v)

		case bytecode.OpSetGlobal:
			name := frame.chunk.Constants[reader.ReadUint16()].Str
			if _, ok := vm.globals[name]; !ok {
				return vm.fail(fiber, "undefined variable '%s'", name)
			}
			vm.globals[name] = fiber.peek(0)

		case bytecode.OpDefineGlobal:
			name := frame.chunk.Constants[reader.ReadUint16()].Str
			vm.globals[name] = fiber.pop()

		case bytecode.OpGetField:
			name := frame.chunk.Constants[reader.ReadUint16()].Str
			receiver := fiber.pop()
			inst, err := vm.instanceOf(fiber, receiver)
			if err != nil {
				return err
			}
			fiber.push(vm.fieldGet(inst, receiver, name))

		case bytecode.OpSetField:
			name := frame.chunk.Constants[reader.ReadUint16()].Str
			value := fiber.pop()
			receiver := fiber.pop()
			inst, err := vm.instanceOf(fiber, receiver)
			if err != nil {
				return err
			}
			vm.fieldSet(inst, receiver, name, value)
			fiber.push(value)

		case bytecode.OpAdd:
			b, a := fiber.peek(0), fiber.peek(1)
			switch {
			case a.IsNum() && b.IsNum():
				fiber.pop()
				fiber.pop()
				fiber.push(FromNum(a.Num() + b.Num()))
			default:
				sa, aok := vm.stringValue(a)
				sb, bok := vm.stringValue(b)
				if !aok || !bok {
					return vm.fail(fiber, "operands must be two numbers or two strings")
				}
				// Allocate while both operands are still stack-rooted.
				result := vm.newString(sa + sb)
				fiber.pop()
				fiber.pop()
				fiber.push(result)
			}

		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide, bytecode.OpModulo:
			b, a := fiber.peek(0), fiber.peek(1)
			if !a.IsNum() || !b.IsNum() {
				return vm.fail(fiber, "operands must be numbers")
			}
			var n float64
			switch op {
			case bytecode.OpSubtract:
				n = a.Num() - b.Num()
			case bytecode.OpMultiply:
				n = a.Num() * b.Num()
			case bytecode.OpDivide:
				if b.Num() == 0 {
					return vm.fail(fiber, "division by zero")
				}
				n = a.Num() / b.Num()
			case bytecode.OpModulo:
				if b.Num() == 0 {
					return vm.fail(fiber, "division by zero")
				}
				n = math.Mod(a.Num(), b.Num())
			}
			fiber.pop()
			fiber.pop()
			fiber.push(FromNum(n))

		case bytecode.OpNegate:
			if !fiber.peek(0).IsNum() {
				return vm.fail(fiber, "operand must be a number")
			}
			fiber.push(FromNum(-fiber.pop().Num()))

		case bytecode.OpNot:
			fiber.push(FromBool(fiber.pop().IsFalsy()))

		case bytecode.OpEqual:
			b, a := fiber.pop(), fiber.pop()
			fiber.push(FromBool(vm.valuesEqual(a, b)))

		case bytecode.OpNotEqual:
			b, a := fiber.pop(), fiber.pop()
			fiber.push(FromBool(!vm.valuesEqual(a, b)))

		case bytecode.OpLess, bytecode.OpLessEqual, bytecode.OpGreater, bytecode.OpGreaterEqual:
			b, a := fiber.peek(0), fiber.peek(1)
			if !a.IsNum() || !b.IsNum() {
				return vm.fail(fiber, "operands must be numbers")
			}
			fiber.pop()
			fiber.pop()
			var result bool
			switch op {
			case bytecode.OpLess:
				result = a.Num() < b.Num()
			case bytecode.OpLessEqual:
				result = a.Num() <= b.Num()
			case bytecode.OpGreater:
				result = a.Num() > b.Num()
			case bytecode.OpGreaterEqual:
				result = a.Num() >= b.Num()
			}
			fiber.push(FromBool(result))

		case bytecode.OpJump:
			offset := reader.ReadUint16()
			reader.Skip(int(offset))

		case bytecode.OpJumpIfFalse:
			offset := reader.ReadUint16()
			if fiber.peek(0).IsFalsy() {
				reader.Skip(int(offset))
			}

		case bytecode.OpJumpIfTrue:
			offset := reader.ReadUint16()
			if fiber.peek(0).IsTruthy() {
				reader.Skip(int(offset))
			}

		case bytecode.OpLoop:
			offset := reader.ReadUint16()
			reader.Skip(-int(offset))

		case bytecode.OpInvoke:
			name := frame.chunk.Constants[reader.ReadUint16()].Str
			argc := int(reader.ReadByte())
			if err := vm.invoke(fiber, name, argc); err != nil {
				return err
			}

		case bytecode.OpClass:
			name := frame.chunk.Constants[reader.ReadUint16()].Str
			fiber.push(vm.newClass(name, FromHandle(vm.objectClass)))

		case bytecode.OpMethod, bytecode.OpStaticMethod:
			name := frame.chunk.Constants[reader.ReadUint16()].Str
			arity := int(reader.ReadByte())
			fn := fiber.peek(0)
			classVal := fiber.peek(1)
			classHandle := classVal.ObjectHandle()
			class := vm.heap.Get(classHandle).Class

			id := vm.selectors.Intern(name, arity)
			method := Method{Kind: MethodBytecode, Fn: fn.ObjectHandle()}
			if op == bytecode.OpStaticMethod {
				class.Statics.Set(id, method)
			} else {
				class.Methods.Set(id, method)
			}
			vm.heap.UpdateSize(classHandle)
			fiber.pop()

		case bytecode.OpReturn:
			result := fiber.pop()
			frame := fiber.popFrame()
			if frame.isInit {
				result = fiber.stack[frame.base]
			}
			fiber.truncate(frame.base)
			if len(fiber.frames) < startDepth {
				fiber.push(result)
				fiber.state = FiberDoneSuccess
				return nil
			}
			fiber.push(result)

		default:
			return vm.fail(fiber, "invalid opcode %s", op)
		}
	}
}

// fail builds a RuntimeError carrying the fiber's current call trace.
func (vm *VM) fail(fiber *Fiber, format string, args ...any) *RuntimeError {
	fiber.state = FiberDoneError
	return &RuntimeError{
		Message: fmt.Sprintf(format, args...),
		Trace:   fiber.trace(vm.path),
	}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// invoke dispatches name/argc on the receiver sitting argc slots below the
// stack top.
func (vm *VM) invoke(fiber *Fiber, name string, argc int) *RuntimeError {
	receiver := fiber.peek(argc)

	if receiver.IsObject() {
		obj := vm.heap.Get(receiver.ObjectHandle())
		if obj.Kind == KindClass {
			if name == "new" {
				return vm.construct(fiber, receiver.ObjectHandle(), argc)
			}
			return vm.dispatch(fiber, receiver.ObjectHandle(), true, name, argc)
		}
		if obj.Kind == KindInstance {
			return vm.dispatch(fiber, obj.Instance.Class, false, name, argc)
		}
	}

	// Primitive receivers dispatch on their built-in class.
	return vm.dispatch(fiber, vm.classForValue(receiver), false, name, argc)
}

// dispatch looks name/argc up on the class (walking the superclass chain)
// and runs the bound method. static selects the static table.
func (vm *VM) dispatch(fiber *Fiber, classHandle Handle, static bool, name string, argc int) *RuntimeError {
	method, ok := vm.lookupMethod(classHandle, static, name, argc)
	if !ok {
		return vm.fail(fiber, "%s does not implement '%s/%d'",
			vm.heap.Get(classHandle).Class.Name, name, argc)
	}
	return vm.callMethod(fiber, method, argc, false)
}

// callMethod runs a bound method against the receiver and args on the
// stack top.
func (vm *VM) callMethod(fiber *Fiber, method Method, argc int, isInit bool) *RuntimeError {
	base := len(fiber.stack) - argc - 1

	switch method.Kind {
	case MethodBytecode:
		if len(fiber.frames) >= maxCallDepth {
			return vm.fail(fiber, "stack overflow")
		}
		fiber.pushFrame(vm.heap.Get(method.Fn).Fn, base, isInit)
		return nil

	case MethodForeign:
		call := newCall(vm, fiber.stack[base:])
		method.Foreign(call)
		receiver := fiber.stack[base]
		fiber.truncate(base)
		if isInit {
			fiber.push(receiver)
		} else {
			fiber.push(call.result)
		}
		if call.pinned {
			vm.heap.Unpin()
		}
		return nil
	}
	return vm.fail(fiber, "unbound method slot")
}

// construct handles `Class.new(args...)`: allocate the instance, swap it
// into the receiver slot, then run init/argc if the class declares one.
func (vm *VM) construct(fiber *Fiber, classHandle Handle, argc int) *RuntimeError {
	class := vm.heap.Get(classHandle).Class

	fields := make([]Value, class.NumFields())
	for i := range fields {
		fields[i] = Null
	}
	instance := vm.heap.Allocate(&Object{
		Kind:     KindInstance,
		Instance: &InstanceObject{Class: classHandle, Fields: fields},
	})
	fiber.setTop(argc, FromHandle(instance))

	init, ok := vm.lookupMethod(classHandle, false, "init", argc)
	if !ok {
		if argc > 0 {
			return vm.fail(fiber, "%s does not implement 'init/%d'", class.Name, argc)
		}
		return nil
	}
	return vm.callMethod(fiber, init, argc, true)
}

// lookupMethod resolves name/argc starting at classHandle and walking the
// superclass chain.
func (vm *VM) lookupMethod(classHandle Handle, static bool, name string, argc int) (Method, bool) {
	id, ok := vm.selectors.Lookup(name, argc)
	if !ok {
		return Method{}, false
	}
	for {
		class := vm.heap.Get(classHandle).Class
		table := &class.Methods
		if static {
			table = &class.Statics
		}
		if m := table.Get(id); m.IsBound() {
			return m, true
		}
		if !class.Superclass.IsObject() {
			return Method{}, false
		}
		classHandle = class.Superclass.ObjectHandle()
	}
}

// ---------------------------------------------------------------------------
// Value helpers
// ---------------------------------------------------------------------------

// valuesEqual implements ==: inline values by content, strings by content,
// other objects by identity.
func (vm *VM) valuesEqual(a, b Value) bool {
	if a.IsNum() && b.IsNum() {
		return a.Num() == b.Num()
	}
	if a.IsObject() && b.IsObject() {
		if a == b {
			return true
		}
		sa, aok := vm.stringValue(a)
		sb, bok := vm.stringValue(b)
		return aok && bok && sa == sb
	}
	return a == b
}

// stringValue unwraps v if it is a live string object.
func (vm *VM) stringValue(v Value) (string, bool) {
	if !v.IsObject() {
		return "", false
	}
	obj, ok := vm.heap.Resolve(v.ObjectHandle())
	if !ok || obj.Kind != KindString {
		return "", false
	}
	return obj.Str, true
}

// instanceOf unwraps v as an instance or reports a field-access error.
func (vm *VM) instanceOf(fiber *Fiber, v Value) (*InstanceObject, *RuntimeError) {
	if v.IsObject() {
		obj := vm.heap.Get(v.ObjectHandle())
		if obj.Kind == KindInstance {
			return obj.Instance, nil
		}
	}
	return nil, vm.fail(fiber, "only instances have fields")
}

// fieldGet reads a named field, growing the instance's storage when the
// class learns a new field name at runtime. Unassigned fields read null.
func (vm *VM) fieldGet(inst *InstanceObject, receiver Value, name string) Value {
	class := vm.heap.Get(inst.Class).Class
	slot := class.FieldSlot(name)
	if slot >= len(inst.Fields) {
		vm.growFields(inst, receiver, class.NumFields())
	}
	return inst.Fields[slot]
}

func (vm *VM) fieldSet(inst *InstanceObject, receiver Value, name string, value Value) {
	class := vm.heap.Get(inst.Class).Class
	slot := class.FieldSlot(name)
	if slot >= len(inst.Fields) {
		vm.growFields(inst, receiver, class.NumFields())
	}
	inst.Fields[slot] = value
}

func (vm *VM) growFields(inst *InstanceObject, receiver Value, n int) {
	for len(inst.Fields) < n {
		inst.Fields = append(inst.Fields, Null)
	}
	vm.heap.UpdateSize(receiver.ObjectHandle())
}
