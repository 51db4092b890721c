package vm

import "fmt"

// ---------------------------------------------------------------------------
// Call: the foreign method bridge
// ---------------------------------------------------------------------------

// Call is the context handed to a ForeignFn. Argument index 0 is the
// receiver; indices 1..Argc() are the call's arguments, left to right.
//
// Accessors are lenient about value kinds: asking for a number where the
// caller passed a string yields the kind's zero value rather than an
// error, matching the language's loose typing at the boundary. Contract
// violations by the host are not lenient: an index outside [0, Argc()],
// a second Return call, or reading arguments after returning all panic.
type Call struct {
	vm       *VM
	args     []Value // args[0] is the receiver
	result   Value
	returned bool
	pinned   bool
}

func newCall(vm *VM, args []Value) *Call {
	return &Call{vm: vm, args: args, result: Null}
}

// Argc returns the number of arguments, not counting the receiver.
func (c *Call) Argc() int {
	return len(c.args) - 1
}

func (c *Call) arg(index int) Value {
	if c.returned {
		panic("Call: argument access after return")
	}
	if index < 0 || index >= len(c.args) {
		panic(fmt.Sprintf("Call: argument index %d out of range [0, %d]", index, len(c.args)-1))
	}
	return c.args[index]
}

// BoolArg returns argument index as a boolean, or false if it is not one.
func (c *Call) BoolArg(index int) bool {
	v := c.arg(index)
	if !v.IsBool() {
		return false
	}
	return v.Bool()
}

// DoubleArg returns argument index as a number, or 0 if it is not one.
func (c *Call) DoubleArg(index int) float64 {
	v := c.arg(index)
	if !v.IsNum() {
		return 0
	}
	return v.Num()
}

// StringArg returns argument index as a string. ok is false when the
// argument is not a string.
func (c *Call) StringArg(index int) (string, bool) {
	v := c.arg(index)
	if !v.IsObject() {
		return "", false
	}
	obj, live := c.vm.heap.Resolve(v.ObjectHandle())
	if !live || obj.Kind != KindString {
		return "", false
	}
	return obj.Str, true
}

// StringifyArg renders argument index for display, whatever its kind.
func (c *Call) StringifyArg(index int) string {
	return c.vm.describe(c.arg(index))
}

// IsNull reports whether argument index is null.
func (c *Call) IsNull(index int) bool {
	return c.arg(index).IsNull()
}

func (c *Call) setResult(v Value) {
	if c.returned {
		panic("Call: return value set twice")
	}
	c.result = v
	c.returned = true
	// Keep an object result live until the engine moves it onto a stack:
	// the host may re-enter the VM before this call unwinds.
	if v.IsObject() {
		c.vm.heap.Pin(v)
		c.pinned = true
	}
}

// ReturnBool sets the call's return value to a boolean.
func (c *Call) ReturnBool(b bool) {
	c.setResult(FromBool(b))
}

// ReturnDouble sets the call's return value to a number.
func (c *Call) ReturnDouble(n float64) {
	c.setResult(FromNum(n))
}

// ReturnString sets the call's return value to a fresh string object
// holding a copy of s.
func (c *Call) ReturnString(s string) {
	c.setResult(c.vm.newString(s))
}

// ReturnBytes sets the call's return value to a fresh string object
// holding a copy of exactly len(b) bytes.
func (c *Call) ReturnBytes(b []byte) {
	c.setResult(c.vm.newString(string(b)))
}

// ReturnNull sets the call's return value to null. This is also the
// result when the foreign function returns nothing.
func (c *Call) ReturnNull() {
	c.setResult(Null)
}
