package vm

import "fmt"

// ---------------------------------------------------------------------------
// SelectorTable: method selector interning
// ---------------------------------------------------------------------------

// Selector identifies a method by name and argument count. Two methods
// with the same name but different arity occupy distinct selectors, so
// `write(x)` and `write(x, y)` can coexist on one class.
type Selector struct {
	Name  string
	Arity int
}

// String renders the conventional name/arity form, e.g. "write/2".
func (s Selector) String() string {
	return fmt.Sprintf("%s/%d", s.Name, s.Arity)
}

// SelectorID is a dense index into method tables.
type SelectorID uint16

// SelectorTable interns selectors to stable dense ids for the lifetime of
// one VM. Ids are assigned in first-seen order and never reused.
type SelectorTable struct {
	ids       map[Selector]SelectorID
	selectors []Selector
}

// NewSelectorTable creates an empty table.
func NewSelectorTable() *SelectorTable {
	return &SelectorTable{ids: make(map[Selector]SelectorID)}
}

// Intern returns the id for the selector, assigning the next free id on
// first sight.
func (t *SelectorTable) Intern(name string, arity int) SelectorID {
	sel := Selector{Name: name, Arity: arity}
	if id, ok := t.ids[sel]; ok {
		return id
	}
	id := SelectorID(len(t.selectors))
	t.ids[sel] = id
	t.selectors = append(t.selectors, sel)
	return id
}

// Lookup returns the id for a selector that has already been interned.
func (t *SelectorTable) Lookup(name string, arity int) (SelectorID, bool) {
	id, ok := t.ids[Selector{Name: name, Arity: arity}]
	return id, ok
}

// Selector returns the selector registered under id.
func (t *SelectorTable) Selector(id SelectorID) Selector {
	if int(id) >= len(t.selectors) {
		panic(fmt.Sprintf("SelectorTable: unknown selector id %d", id))
	}
	return t.selectors[id]
}

// Len reports how many selectors have been interned.
func (t *SelectorTable) Len() int {
	return len(t.selectors)
}
