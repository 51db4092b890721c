package bytecode

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// ConstKind discriminates the entries of a chunk's constant pool.
type ConstKind uint8

const (
	ConstNum ConstKind = iota // 64-bit float
	ConstStr                  // immutable string
	ConstFn                   // index of another chunk in the same module
)

// Const is one constant-pool entry. Exactly one payload field is meaningful,
// selected by Kind.
type Const struct {
	Kind ConstKind `cbor:"k"`
	Num  float64   `cbor:"n,omitempty"`
	Str  string    `cbor:"s,omitempty"`
	Fn   int       `cbor:"f,omitempty"`
}

// NumConst creates a number constant.
func NumConst(n float64) Const { return Const{Kind: ConstNum, Num: n} }

// StrConst creates a string constant.
func StrConst(s string) Const { return Const{Kind: ConstStr, Str: s} }

// FnConst creates a function constant referring to a chunk index.
func FnConst(idx int) Const { return Const{Kind: ConstFn, Fn: idx} }

// String returns a human-readable form of the constant for disassembly.
func (c Const) String() string {
	switch c.Kind {
	case ConstNum:
		return fmt.Sprintf("%g", c.Num)
	case ConstStr:
		return fmt.Sprintf("%q", c.Str)
	case ConstFn:
		return fmt.Sprintf("fn#%d", c.Fn)
	default:
		return fmt.Sprintf("const?%d", c.Kind)
	}
}

// ---------------------------------------------------------------------------
// Chunk: one compiled function body
// ---------------------------------------------------------------------------

// MaxConstants is the number of constants addressable by a 16-bit operand.
const MaxConstants = 1 << 16

// Chunk holds the bytecode and constant pool for one function body.
// Lines records the source line for every code byte, for runtime traces.
type Chunk struct {
	Name       string  `cbor:"name"`
	Arity      int     `cbor:"arity"`
	LocalCount int     `cbor:"locals"` // including the receiver slot 0
	Code       []byte  `cbor:"code"`
	Constants  []Const `cbor:"consts"`
	Lines      []int   `cbor:"lines"`
}

// NewChunk creates an empty chunk for a function with the given name and arity.
func NewChunk(name string, arity int) *Chunk {
	return &Chunk{
		Name:       name,
		Arity:      arity,
		LocalCount: arity + 1,
		Code:       make([]byte, 0, 64),
	}
}

// AddConstant appends a constant to the pool and returns its index.
// Identical constants are deduplicated.
func (c *Chunk) AddConstant(k Const) (int, error) {
	for i, existing := range c.Constants {
		if existing == k {
			return i, nil
		}
	}
	if len(c.Constants) >= MaxConstants {
		return 0, fmt.Errorf("too many constants in %s", c.Name)
	}
	c.Constants = append(c.Constants, k)
	return len(c.Constants) - 1, nil
}

// Emit appends an opcode with no operands.
func (c *Chunk) Emit(line int, op Opcode) {
	c.Code = append(c.Code, byte(op))
	c.Lines = append(c.Lines, line)
}

// EmitByte appends an opcode with a single byte operand.
func (c *Chunk) EmitByte(line int, op Opcode, operand byte) {
	c.Code = append(c.Code, byte(op), operand)
	c.Lines = append(c.Lines, line, line)
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (c *Chunk) EmitUint16(line int, op Opcode, operand uint16) {
	c.Code = append(c.Code, byte(op), byte(operand), byte(operand>>8))
	c.Lines = append(c.Lines, line, line, line)
}

// EmitInvoke appends an INVOKE instruction.
func (c *Chunk) EmitInvoke(line int, nameConst uint16, argc byte) {
	c.Code = append(c.Code, byte(OpInvoke), byte(nameConst), byte(nameConst>>8), argc)
	c.Lines = append(c.Lines, line, line, line, line)
}

// EmitMethod appends a METHOD or STATIC_METHOD instruction.
func (c *Chunk) EmitMethod(line int, op Opcode, nameConst uint16, arity byte) {
	c.Code = append(c.Code, byte(op), byte(nameConst), byte(nameConst>>8), arity)
	c.Lines = append(c.Lines, line, line, line, line)
}

// EmitJump appends a forward jump with a placeholder offset and returns the
// offset position for later patching.
func (c *Chunk) EmitJump(line int, op Opcode) int {
	c.Emit(line, op)
	pos := len(c.Code)
	c.Code = append(c.Code, 0xFF, 0xFF)
	c.Lines = append(c.Lines, line, line)
	return pos
}

// PatchJump resolves a forward jump emitted by EmitJump to the current
// position. The offset is measured from the byte after the operand.
func (c *Chunk) PatchJump(pos int) error {
	offset := len(c.Code) - (pos + 2)
	if offset > 0xFFFF {
		return fmt.Errorf("jump too long in %s", c.Name)
	}
	binary.LittleEndian.PutUint16(c.Code[pos:], uint16(offset))
	return nil
}

// EmitLoop appends a backward jump to the given code position.
func (c *Chunk) EmitLoop(line int, target int) error {
	c.Emit(line, OpLoop)
	// +2 accounts for the operand itself.
	offset := len(c.Code) + 2 - target
	if offset > 0xFFFF {
		return fmt.Errorf("loop body too long in %s", c.Name)
	}
	c.Code = append(c.Code, byte(offset), byte(offset>>8))
	c.Lines = append(c.Lines, c.lastLine(), c.lastLine())
	return nil
}

func (c *Chunk) lastLine() int {
	if len(c.Lines) == 0 {
		return 0
	}
	return c.Lines[len(c.Lines)-1]
}

// Line returns the source line for the code byte at the given offset.
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// ---------------------------------------------------------------------------
// Module: a compiled source unit
// ---------------------------------------------------------------------------

// Module is the unit exchanged between the compiler and the engine.
// Chunks[0] is the top-level code; the rest are method bodies referenced by
// ConstFn constants.
type Module struct {
	Path   string   `cbor:"path"` // source label for traces; may be empty
	Chunks []*Chunk `cbor:"chunks"`
}

// TopLevel returns the module's entry chunk, or nil for an empty module.
func (m *Module) TopLevel() *Chunk {
	if len(m.Chunks) == 0 {
		return nil
	}
	return m.Chunks[0]
}

// ---------------------------------------------------------------------------
// Bytecode reader
// ---------------------------------------------------------------------------

// Reader reads bytecode for disassembly and testing.
type Reader struct {
	code []byte
	pos  int
}

// NewReader creates a reader over a code stream.
func NewReader(code []byte) *Reader {
	return &Reader{code: code}
}

// Position returns the current read position.
func (r *Reader) Position() int { return r.pos }

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool { return r.pos < len(r.code) }

// ReadOpcode reads and returns the next opcode.
func (r *Reader) ReadOpcode() Opcode {
	if r.pos >= len(r.code) {
		panic("bytecode underflow")
	}
	op := Opcode(r.code[r.pos])
	r.pos++
	return op
}

// ReadByte reads a single byte operand.
func (r *Reader) ReadByte() byte {
	if r.pos >= len(r.code) {
		panic("bytecode underflow")
	}
	b := r.code[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *Reader) ReadUint16() uint16 {
	if r.pos+2 > len(r.code) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.code[r.pos:])
	r.pos += 2
	return v
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) { r.pos += n }
