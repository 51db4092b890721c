package bytecode

import (
	"strings"
	"testing"
)

func TestAddConstantDeduplicates(t *testing.T) {
	c := NewChunk("test", 0)

	a, err := c.AddConstant(NumConst(42))
	if err != nil {
		t.Fatalf("AddConstant: %v", err)
	}
	b, err := c.AddConstant(NumConst(42))
	if err != nil {
		t.Fatalf("AddConstant: %v", err)
	}
	if a != b {
		t.Errorf("identical constants got indices %d and %d", a, b)
	}

	s, _ := c.AddConstant(StrConst("42"))
	if s == a {
		t.Errorf("string constant shares index %d with number constant", s)
	}
}

func TestEmitAndRead(t *testing.T) {
	c := NewChunk("test", 0)
	idx, _ := c.AddConstant(NumConst(1.5))
	c.EmitUint16(3, OpConstant, uint16(idx))
	c.Emit(3, OpReturn)

	r := NewReader(c.Code)
	if op := r.ReadOpcode(); op != OpConstant {
		t.Fatalf("op = %v, want CONSTANT", op)
	}
	if got := r.ReadUint16(); got != uint16(idx) {
		t.Errorf("operand = %d, want %d", got, idx)
	}
	if op := r.ReadOpcode(); op != OpReturn {
		t.Errorf("op = %v, want RETURN", op)
	}
	if r.HasMore() {
		t.Error("reader has unexpected trailing bytes")
	}
}

func TestLinesTrackEveryByte(t *testing.T) {
	c := NewChunk("test", 0)
	c.Emit(1, OpNull)
	c.EmitUint16(2, OpConstant, 0)
	c.Emit(7, OpReturn)

	if len(c.Lines) != len(c.Code) {
		t.Fatalf("len(Lines) = %d, len(Code) = %d", len(c.Lines), len(c.Code))
	}
	if c.Line(0) != 1 {
		t.Errorf("Line(0) = %d, want 1", c.Line(0))
	}
	if c.Line(len(c.Code)-1) != 7 {
		t.Errorf("last line = %d, want 7", c.Line(len(c.Code)-1))
	}
}

func TestJumpPatching(t *testing.T) {
	c := NewChunk("test", 0)
	c.Emit(1, OpTrue)
	pos := c.EmitJump(1, OpJumpIfFalse)
	c.Emit(1, OpPop)
	c.Emit(1, OpNull)
	if err := c.PatchJump(pos); err != nil {
		t.Fatalf("PatchJump: %v", err)
	}

	r := NewReader(c.Code)
	r.ReadOpcode() // TRUE
	if op := r.ReadOpcode(); op != OpJumpIfFalse {
		t.Fatalf("op = %v, want JUMP_IF_FALSE", op)
	}
	offset := r.ReadUint16()
	target := r.Position() + int(offset)
	if target != len(c.Code) {
		t.Errorf("jump target = %d, want %d", target, len(c.Code))
	}
}

func TestEmitLoop(t *testing.T) {
	c := NewChunk("test", 0)
	start := len(c.Code)
	c.Emit(1, OpTrue)
	c.Emit(1, OpPop)
	if err := c.EmitLoop(1, start); err != nil {
		t.Fatalf("EmitLoop: %v", err)
	}

	r := NewReader(c.Code)
	r.ReadOpcode()
	r.ReadOpcode()
	if op := r.ReadOpcode(); op != OpLoop {
		t.Fatalf("op = %v, want LOOP", op)
	}
	offset := r.ReadUint16()
	if got := r.Position() - int(offset); got != start {
		t.Errorf("loop target = %d, want %d", got, start)
	}
}

func TestWireRoundTrip(t *testing.T) {
	c := NewChunk("main", 0)
	idx, _ := c.AddConstant(StrConst("hello"))
	c.EmitUint16(1, OpConstant, uint16(idx))
	c.Emit(1, OpReturn)
	m := &Module{Path: "main.lark", Chunks: []*Chunk{c}}

	data, err := MarshalModule(m)
	if err != nil {
		t.Fatalf("MarshalModule: %v", err)
	}
	got, err := UnmarshalModule(data)
	if err != nil {
		t.Fatalf("UnmarshalModule: %v", err)
	}
	if got.Path != m.Path {
		t.Errorf("Path = %q, want %q", got.Path, m.Path)
	}
	if len(got.Chunks) != 1 {
		t.Fatalf("len(Chunks) = %d, want 1", len(got.Chunks))
	}
	tc := got.TopLevel()
	if tc.Name != "main" || len(tc.Code) != len(c.Code) {
		t.Errorf("top-level chunk = %+v, want %+v", tc, c)
	}
	if len(tc.Constants) != 1 || tc.Constants[0].Str != "hello" {
		t.Errorf("constants = %+v", tc.Constants)
	}
}

func TestWireDeterministic(t *testing.T) {
	c := NewChunk("main", 0)
	c.Emit(1, OpNull)
	c.Emit(1, OpReturn)
	m := &Module{Chunks: []*Chunk{c}}

	a, _ := MarshalModule(m)
	b, _ := MarshalModule(m)
	if string(a) != string(b) {
		t.Error("canonical encoding is not deterministic")
	}
}

func TestDisassembleNamesConstants(t *testing.T) {
	c := NewChunk("test", 0)
	idx, _ := c.AddConstant(StrConst("greet"))
	c.EmitInvoke(1, uint16(idx), 2)

	out := Disassemble(c)
	if !strings.Contains(out, "INVOKE") || !strings.Contains(out, `"greet"`) {
		t.Errorf("disassembly missing invoke details: %q", out)
	}
	if !strings.Contains(out, "argc=2") {
		t.Errorf("disassembly missing argc: %q", out)
	}
}
