package vm

// ---------------------------------------------------------------------------
// Method: the closed method variant
// ---------------------------------------------------------------------------

// ForeignFn is a host function bound into a class. It receives a Call
// context for reading arguments and writing the return value.
type ForeignFn func(call *Call)

// MethodKind discriminates the method variants held in a method table.
type MethodKind uint8

const (
	// MethodNone marks an unbound slot; invoking it is a missing-method
	// runtime error.
	MethodNone MethodKind = iota

	// MethodBytecode runs a compiled chunk on the fiber.
	MethodBytecode

	// MethodForeign calls back into the host.
	MethodForeign
)

// Method is one entry in a class's method table. Kind selects which
// payload field is meaningful.
type Method struct {
	Kind    MethodKind
	Fn      Handle    // MethodBytecode: handle to a KindFunction object
	Foreign ForeignFn // MethodForeign
}

// IsBound reports whether the slot holds a callable method.
func (m Method) IsBound() bool {
	return m.Kind != MethodNone
}
