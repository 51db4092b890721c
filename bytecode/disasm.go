package bytecode

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles the instruction at the reader's
// position and advances the reader.
func DisassembleInstruction(c *Chunk, r *Reader) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	constName := func(idx uint16) string {
		if int(idx) < len(c.Constants) {
			return c.Constants[idx].String()
		}
		return "<bad const>"
	}

	switch op {
	case OpConstant, OpGetGlobal, OpSetGlobal, OpDefineGlobal, OpGetField, OpSetField, OpClass:
		idx := r.ReadUint16()
		return fmt.Sprintf("%04d  %-14s %d (%s)", pos, info.Name, idx, constName(idx))

	case OpGetLocal, OpSetLocal:
		slot := r.ReadByte()
		return fmt.Sprintf("%04d  %-14s %d", pos, info.Name, slot)

	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		offset := r.ReadUint16()
		return fmt.Sprintf("%04d  %-14s %d (-> %04d)", pos, info.Name, offset, r.Position()+int(offset))

	case OpLoop:
		offset := r.ReadUint16()
		return fmt.Sprintf("%04d  %-14s %d (-> %04d)", pos, info.Name, offset, r.Position()-int(offset))

	case OpInvoke:
		idx := r.ReadUint16()
		argc := r.ReadByte()
		return fmt.Sprintf("%04d  %-14s %s argc=%d", pos, info.Name, constName(idx), argc)

	case OpMethod, OpStaticMethod:
		idx := r.ReadUint16()
		arity := r.ReadByte()
		return fmt.Sprintf("%04d  %-14s %s arity=%d", pos, info.Name, constName(idx), arity)

	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of a chunk's code.
func Disassemble(c *Chunk) string {
	r := NewReader(c.Code)
	var sb strings.Builder
	for r.HasMore() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(DisassembleInstruction(c, r))
	}
	return sb.String()
}

// DisassembleModule returns a disassembly of every chunk in a module.
func DisassembleModule(m *Module) string {
	var sb strings.Builder
	for i, c := range m.Chunks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "== %s (arity %d) ==\n", c.Name, c.Arity)
		sb.WriteString(Disassemble(c))
		sb.WriteByte('\n')
	}
	return sb.String()
}
