package bytecode

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack operations
const (
	OpNop Opcode = 0x00 // no operation
	OpPop Opcode = 0x01 // discard top of stack
	OpDup Opcode = 0x02 // duplicate top of stack
)

// Push constants
const (
	OpNull     Opcode = 0x10 // push null
	OpTrue     Opcode = 0x11 // push true
	OpFalse    Opcode = 0x12 // push false
	OpConstant Opcode = 0x13 // push constant from pool (16-bit index)
)

// Variable operations
const (
	OpGetLocal     Opcode = 0x20 // push local/argument (8-bit slot)
	OpSetLocal     Opcode = 0x21 // store top of stack into local (8-bit slot)
	OpGetGlobal    Opcode = 0x22 // push global (16-bit name constant)
	OpSetGlobal    Opcode = 0x23 // store into existing global (16-bit name constant)
	OpDefineGlobal Opcode = 0x24 // pop, define global (16-bit name constant)
	OpGetField     Opcode = 0x25 // pop receiver, push field (16-bit name constant)
	OpSetField     Opcode = 0x26 // store field on receiver (16-bit name constant)
)

// Arithmetic and comparison
const (
	OpAdd          Opcode = 0x30 // pop 2, push sum (numbers) or concatenation (strings)
	OpSubtract     Opcode = 0x31
	OpMultiply     Opcode = 0x32
	OpDivide       Opcode = 0x33
	OpModulo       Opcode = 0x34
	OpNegate       Opcode = 0x35 // pop 1, push arithmetic negation
	OpNot          Opcode = 0x36 // pop 1, push logical negation
	OpEqual        Opcode = 0x37
	OpNotEqual     Opcode = 0x38
	OpLess         Opcode = 0x39
	OpLessEqual    Opcode = 0x3A
	OpGreater      Opcode = 0x3B
	OpGreaterEqual Opcode = 0x3C
)

// Control flow
const (
	OpJump        Opcode = 0x40 // unconditional forward jump (16-bit offset)
	OpJumpIfFalse Opcode = 0x41 // jump if top of stack is falsy, without popping (16-bit offset)
	OpJumpIfTrue  Opcode = 0x42 // jump if top of stack is truthy, without popping (16-bit offset)
	OpLoop        Opcode = 0x43 // unconditional backward jump (16-bit offset)
)

// Dispatch
const (
	OpInvoke Opcode = 0x50 // send message (16-bit name constant, 8-bit argc)
)

// Classes
const (
	OpClass        Opcode = 0x58 // create class, push it (16-bit name constant)
	OpMethod       Opcode = 0x59 // bind instance method: class, fn on stack (16-bit name constant, 8-bit arity)
	OpStaticMethod Opcode = 0x5A // bind static method: class, fn on stack (16-bit name constant, 8-bit arity)
)

// Returns
const (
	OpReturn Opcode = 0x60 // return top of stack to the caller
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", 0},
	OpPop: {"POP", 0},
	OpDup: {"DUP", 0},

	OpNull:     {"NULL", 0},
	OpTrue:     {"TRUE", 0},
	OpFalse:    {"FALSE", 0},
	OpConstant: {"CONSTANT", 2},

	OpGetLocal:     {"GET_LOCAL", 1},
	OpSetLocal:     {"SET_LOCAL", 1},
	OpGetGlobal:    {"GET_GLOBAL", 2},
	OpSetGlobal:    {"SET_GLOBAL", 2},
	OpDefineGlobal: {"DEFINE_GLOBAL", 2},
	OpGetField:     {"GET_FIELD", 2},
	OpSetField:     {"SET_FIELD", 2},

	OpAdd:          {"ADD", 0},
	OpSubtract:     {"SUBTRACT", 0},
	OpMultiply:     {"MULTIPLY", 0},
	OpDivide:       {"DIVIDE", 0},
	OpModulo:       {"MODULO", 0},
	OpNegate:       {"NEGATE", 0},
	OpNot:          {"NOT", 0},
	OpEqual:        {"EQUAL", 0},
	OpNotEqual:     {"NOT_EQUAL", 0},
	OpLess:         {"LESS", 0},
	OpLessEqual:    {"LESS_EQUAL", 0},
	OpGreater:      {"GREATER", 0},
	OpGreaterEqual: {"GREATER_EQUAL", 0},

	OpJump:        {"JUMP", 2},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 2},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", 2},
	OpLoop:        {"LOOP", 2},

	OpInvoke: {"INVOKE", 3},

	OpClass:        {"CLASS", 2},
	OpMethod:       {"METHOD", 3},
	OpStaticMethod: {"STATIC_METHOD", 3},

	OpReturn: {"RETURN", 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}
