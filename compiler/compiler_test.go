package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/lark/bytecode"
)

// ---------------------------------------------------------------------------
// Lexer tests
// ---------------------------------------------------------------------------

func TestLexerTokens(t *testing.T) {
	input := `var x = 1.5; // comment
if (x >= 2) { x = x + 1; }`

	want := []TokenType{
		TokenVar, TokenIdentifier, TokenEqual, TokenNumber, TokenSemicolon,
		TokenIf, TokenLParen, TokenIdentifier, TokenGreaterEqual, TokenNumber,
		TokenRParen, TokenLBrace, TokenIdentifier, TokenEqual, TokenIdentifier,
		TokenPlus, TokenNumber, TokenSemicolon, TokenRBrace, TokenEOF,
	}

	l := NewLexer(input)
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w {
			t.Fatalf("token %d = %v, want %v", i, tok, w)
		}
	}
}

func TestLexerStringEscapes(t *testing.T) {
	l := NewLexer(`"a\nb\t\"c\""`)
	tok := l.NextToken()
	if tok.Type != TokenString {
		t.Fatalf("type = %v, want STRING", tok.Type)
	}
	if tok.Lexeme != "a\nb\t\"c\"" {
		t.Errorf("lexeme = %q", tok.Lexeme)
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	l := NewLexer(`"abc`)
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("type = %v, want ERROR", tok.Type)
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("a\n  b")
	a := l.NextToken()
	b := l.NextToken()
	if a.Pos.Line != 1 || a.Pos.Column != 1 {
		t.Errorf("a at %d:%d, want 1:1", a.Pos.Line, a.Pos.Column)
	}
	if b.Pos.Line != 2 || b.Pos.Column != 3 {
		t.Errorf("b at %d:%d, want 2:3", b.Pos.Line, b.Pos.Column)
	}
}

func TestLexerKeywordsVsIdentifiers(t *testing.T) {
	l := NewLexer("classy class this那 static")
	if tok := l.NextToken(); tok.Type != TokenIdentifier {
		t.Errorf("classy = %v, want IDENTIFIER", tok.Type)
	}
	if tok := l.NextToken(); tok.Type != TokenClass {
		t.Errorf("class = %v, want class", tok.Type)
	}
	if tok := l.NextToken(); tok.Type != TokenIdentifier {
		t.Errorf("this那 = %v, want IDENTIFIER", tok.Type)
	}
	if tok := l.NextToken(); tok.Type != TokenStatic {
		t.Errorf("static = %v, want static", tok.Type)
	}
}

// ---------------------------------------------------------------------------
// Compiler tests
// ---------------------------------------------------------------------------

func compile(t *testing.T, source string) *bytecode.Module {
	t.Helper()
	m, err := Compile("test", source)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return m
}

func compileError(t *testing.T, source string) *Error {
	t.Helper()
	_, err := Compile("test", source)
	if err == nil {
		t.Fatalf("Compile(%q) succeeded, want error", source)
	}
	cerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type %T, want *Error", err)
	}
	return cerr
}

func TestCompileNumberLiteral(t *testing.T) {
	m := compile(t, "42;")
	c := m.TopLevel()

	r := bytecode.NewReader(c.Code)
	if op := r.ReadOpcode(); op != bytecode.OpConstant {
		t.Fatalf("op = %v, want CONSTANT", op)
	}
	k := c.Constants[r.ReadUint16()]
	if k.Kind != bytecode.ConstNum || k.Num != 42 {
		t.Errorf("constant = %+v, want number 42", k)
	}
	if op := r.ReadOpcode(); op != bytecode.OpPop {
		t.Errorf("op = %v, want POP", op)
	}
}

func TestCompileArithmeticPrecedence(t *testing.T) {
	m := compile(t, "1 + 2 * 3;")
	out := bytecode.Disassemble(m.TopLevel())

	mulPos := strings.Index(out, "MULTIPLY")
	addPos := strings.Index(out, "ADD")
	if mulPos == -1 || addPos == -1 || mulPos > addPos {
		t.Errorf("expected MULTIPLY before ADD:\n%s", out)
	}
}

func TestCompileGlobalVar(t *testing.T) {
	m := compile(t, "var x = 1; x = x + 1;")
	out := bytecode.Disassemble(m.TopLevel())
	for _, want := range []string{"DEFINE_GLOBAL", "GET_GLOBAL", "SET_GLOBAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %s:\n%s", want, out)
		}
	}
}

func TestCompileLocalsInBlock(t *testing.T) {
	m := compile(t, "{ var a = 1; a = 2; }")
	out := bytecode.Disassemble(m.TopLevel())
	if strings.Contains(out, "GLOBAL") {
		t.Errorf("block-scoped variable compiled as global:\n%s", out)
	}
	if !strings.Contains(out, "SET_LOCAL") {
		t.Errorf("missing SET_LOCAL:\n%s", out)
	}
}

func TestCompileMethodCall(t *testing.T) {
	m := compile(t, `answer.compute(1, "two");`)
	out := bytecode.Disassemble(m.TopLevel())
	if !strings.Contains(out, `INVOKE`) || !strings.Contains(out, `"compute" argc=2`) {
		t.Errorf("bad invoke:\n%s", out)
	}
}

func TestCompileGetterIsArityZeroInvoke(t *testing.T) {
	m := compile(t, "point.x;")
	out := bytecode.Disassemble(m.TopLevel())
	if !strings.Contains(out, `"x" argc=0`) {
		t.Errorf("bare property should invoke with arity 0:\n%s", out)
	}
}

func TestCompileClassWithMethods(t *testing.T) {
	m := compile(t, `
class Point {
	init(x, y) {
		_x = x;
		_y = y;
	}
	sum() {
		return _x + _y;
	}
	static origin() {
		return 0;
	}
}`)
	if len(m.Chunks) != 4 {
		t.Fatalf("len(Chunks) = %d, want 4 (script + 3 methods)", len(m.Chunks))
	}
	names := map[string]bool{}
	for _, c := range m.Chunks[1:] {
		names[c.Name] = true
	}
	for _, want := range []string{"Point.init", "Point.sum", "Point.origin"} {
		if !names[want] {
			t.Errorf("missing method chunk %q (have %v)", want, names)
		}
	}
	if m.Chunks[1].Arity != 2 {
		t.Errorf("init arity = %d, want 2", m.Chunks[1].Arity)
	}

	out := bytecode.Disassemble(m.TopLevel())
	if !strings.Contains(out, "CLASS") || !strings.Contains(out, "STATIC_METHOD") {
		t.Errorf("class binding missing:\n%s", out)
	}
	init := bytecode.Disassemble(m.Chunks[1])
	if !strings.Contains(init, "SET_FIELD") {
		t.Errorf("field store missing:\n%s", init)
	}
}

func TestCompileIfElse(t *testing.T) {
	m := compile(t, "var x = 0; if (x < 1) { x = 1; } else { x = 2; }")
	out := bytecode.Disassemble(m.TopLevel())
	if !strings.Contains(out, "JUMP_IF_FALSE") || !strings.Contains(out, "JUMP") {
		t.Errorf("conditional jumps missing:\n%s", out)
	}
}

func TestCompileWhile(t *testing.T) {
	m := compile(t, "var i = 0; while (i < 10) { i = i + 1; }")
	out := bytecode.Disassemble(m.TopLevel())
	if !strings.Contains(out, "LOOP") {
		t.Errorf("LOOP missing:\n%s", out)
	}
}

func TestCompileLogicalShortCircuit(t *testing.T) {
	m := compile(t, "true && false || true;")
	out := bytecode.Disassemble(m.TopLevel())
	if !strings.Contains(out, "JUMP_IF_FALSE") || !strings.Contains(out, "JUMP_IF_TRUE") {
		t.Errorf("short-circuit jumps missing:\n%s", out)
	}
}

// ---------------------------------------------------------------------------
// Compile error tests
// ---------------------------------------------------------------------------

func TestCompileErrorStrayToken(t *testing.T) {
	err := compileError(t, "var x = ;")
	if !strings.Contains(err.Message, "expected expression") {
		t.Errorf("message = %q", err.Message)
	}
	if err.Line != 1 {
		t.Errorf("line = %d, want 1", err.Line)
	}
}

func TestCompileErrorFirstWins(t *testing.T) {
	// Both lines are faulty; only the first is reported.
	err := compileError(t, "var = 1;\nvar = 2;")
	if err.Line != 1 {
		t.Errorf("line = %d, want 1", err.Line)
	}
}

func TestCompileErrorThisAtTopLevel(t *testing.T) {
	err := compileError(t, "this;")
	if !strings.Contains(err.Message, "'this'") {
		t.Errorf("message = %q", err.Message)
	}
}

func TestCompileErrorFieldAtTopLevel(t *testing.T) {
	err := compileError(t, "_x;")
	if !strings.Contains(err.Message, "field") {
		t.Errorf("message = %q", err.Message)
	}
}

func TestCompileErrorReturnAtTopLevel(t *testing.T) {
	err := compileError(t, "return 1;")
	if !strings.Contains(err.Message, "top-level") {
		t.Errorf("message = %q", err.Message)
	}
}

func TestCompileErrorNestedClass(t *testing.T) {
	err := compileError(t, "{ class Inner {} }")
	if !strings.Contains(err.Message, "top level") {
		t.Errorf("message = %q", err.Message)
	}
}

func TestCompileErrorAssignToCall(t *testing.T) {
	err := compileError(t, "a.b = 1;")
	if !strings.Contains(err.Message, "assign") {
		t.Errorf("message = %q", err.Message)
	}
}

func TestCompileErrorDuplicateLocal(t *testing.T) {
	err := compileError(t, "{ var a = 1; var a = 2; }")
	if !strings.Contains(err.Message, "already declared") {
		t.Errorf("message = %q", err.Message)
	}
}

func TestCompileErrorPosition(t *testing.T) {
	err := compileError(t, "var x =\n  ;")
	if err.Line != 2 || err.Column != 3 {
		t.Errorf("error at %d:%d, want 2:3", err.Line, err.Column)
	}
}

func TestCompileErrorPathInMessage(t *testing.T) {
	_, err := Compile("main.lark", "var x = ;")
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.HasPrefix(err.Error(), "main.lark:") {
		t.Errorf("error = %q, want path prefix", err.Error())
	}

	_, err = Compile("", "var x = ;")
	if err == nil {
		t.Fatal("want error")
	}
	if strings.Contains(err.Error(), "lark:") {
		t.Errorf("empty path should be suppressed: %q", err.Error())
	}
}
