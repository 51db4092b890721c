package vm

// ---------------------------------------------------------------------------
// ClassObject: classes and method tables
// ---------------------------------------------------------------------------

// MethodTable maps selector ids to methods. It is a dense slice indexed by
// SelectorID; unbound slots hold MethodNone.
type MethodTable struct {
	methods []Method
}

// Get returns the method bound under id, or an unbound Method.
func (t *MethodTable) Get(id SelectorID) Method {
	if int(id) >= len(t.methods) {
		return Method{}
	}
	return t.methods[id]
}

// Set binds a method under id, growing the table as needed. Binding over
// an existing entry replaces it.
func (t *MethodTable) Set(id SelectorID, m Method) {
	for int(id) >= len(t.methods) {
		t.methods = append(t.methods, Method{})
	}
	t.methods[id] = m
}

// Len returns the current table capacity in slots.
func (t *MethodTable) Len() int {
	return len(t.methods)
}

// ClassObject is the payload of a KindClass object. Statics live in their
// own table rather than on a separate metaclass object; dispatch on a
// class receiver consults Statics, dispatch on an instance consults
// Methods and walks the superclass chain.
type ClassObject struct {
	Name       string
	Superclass Value // class Value or Null for no superclass
	Methods    MethodTable
	Statics    MethodTable

	// fieldIndex assigns each declared instance field a stable slot in
	// InstanceObject.Fields, in first-seen order.
	fieldIndex map[string]int
}

// NewClassObject creates a class with no methods and no fields.
func NewClassObject(name string, superclass Value) *ClassObject {
	return &ClassObject{
		Name:       name,
		Superclass: superclass,
		fieldIndex: make(map[string]int),
	}
}

// FieldSlot returns the storage slot for the named instance field,
// assigning the next free slot on first sight.
func (c *ClassObject) FieldSlot(name string) int {
	if slot, ok := c.fieldIndex[name]; ok {
		return slot
	}
	slot := len(c.fieldIndex)
	c.fieldIndex[name] = slot
	return slot
}

// NumFields returns how many instance field slots the class declares.
func (c *ClassObject) NumFields() int {
	return len(c.fieldIndex)
}

func (c *ClassObject) size() int {
	size := len(c.Name)
	size += (c.Methods.Len() + c.Statics.Len()) * valueSize
	size += len(c.fieldIndex) * valueSize
	return size
}
