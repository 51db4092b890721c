package vm

import "github.com/chazu/lark/bytecode"

// ---------------------------------------------------------------------------
// Object: heap-resident values
// ---------------------------------------------------------------------------

// ObjectKind discriminates the heap object variants. There is deliberately
// no kind carrying an opaque host payload; see DESIGN.md for that decision.
type ObjectKind uint8

const (
	KindString ObjectKind = iota
	KindFunction
	KindClass
	KindInstance
)

var objectKindNames = map[ObjectKind]string{
	KindString:   "string",
	KindFunction: "function",
	KindClass:    "class",
	KindInstance: "instance",
}

// String returns the lowercase name of the kind.
func (k ObjectKind) String() string {
	if name, ok := objectKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Object is the header shared by all heap values. Exactly one of the
// kind-specific payload fields is populated, selected by Kind.
type Object struct {
	Kind   ObjectKind
	Marked bool

	// Str holds the payload for KindString.
	Str string

	// Fn holds the compiled chunk for KindFunction.
	Fn *bytecode.Chunk

	// Class holds the payload for KindClass.
	Class *ClassObject

	// Instance holds the payload for KindInstance.
	Instance *InstanceObject
}

// InstanceObject is a user-level instance: a pointer to its class plus its
// field storage, sized by the class at construction time.
type InstanceObject struct {
	Class  Handle
	Fields []Value
}

// approximate per-object byte costs used by heap accounting. Sizes do not
// need to equal Go's real footprint; they need to be consistent so the
// allocate/free ledger nets to zero.
const (
	objectHeaderSize = 32
	valueSize        = 8
)

// Size reports the accounted byte cost of the object.
func (o *Object) Size() int {
	size := objectHeaderSize
	switch o.Kind {
	case KindString:
		size += len(o.Str)
	case KindFunction:
		if o.Fn != nil {
			size += len(o.Fn.Code) + len(o.Fn.Constants)*valueSize
		}
	case KindClass:
		if o.Class != nil {
			size += o.Class.size()
		}
	case KindInstance:
		if o.Instance != nil {
			size += len(o.Instance.Fields) * valueSize
		}
	}
	return size
}
