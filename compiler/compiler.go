package compiler

import (
	"strconv"
	"strings"

	"github.com/chazu/lark/bytecode"
)

// ---------------------------------------------------------------------------
// Compiler: single-pass parser and code generator
// ---------------------------------------------------------------------------

// MaxArity is the largest parameter count a method may declare.
const MaxArity = 255

// maxLocals is the number of locals addressable by an 8-bit slot operand.
const maxLocals = 256

// Compile parses source text and produces a bytecode module. path labels
// diagnostics and traces; it may be empty. The first error encountered
// aborts compilation and is returned.
func Compile(path, source string) (*bytecode.Module, error) {
	c := &Compiler{
		path:   path,
		lexer:  NewLexer(source),
		module: &bytecode.Module{Path: path},
	}
	c.fn = newFuncState(bytecode.NewChunk("(script)", 0), false)
	c.module.Chunks = append(c.module.Chunks, c.fn.chunk)

	c.advance()
	for !c.check(TokenEOF) && c.err == nil {
		c.declaration()
	}
	c.emit(bytecode.OpNull)
	c.emit(bytecode.OpReturn)

	if c.err != nil {
		return nil, c.err
	}
	return c.module, nil
}

// Compiler holds the state of one compilation.
type Compiler struct {
	path     string
	lexer    *Lexer
	current  Token
	previous Token

	module *bytecode.Module
	fn     *funcState // function currently being compiled
	class  string     // name of the enclosing class declaration, or ""

	err *Error // first error; compilation stops once set
}

// local is one declared local variable slot.
type local struct {
	name  string
	depth int
}

// funcState is the per-function compilation state. Slot 0 holds the
// receiver in methods and null in top-level code.
type funcState struct {
	chunk      *bytecode.Chunk
	locals     []local
	scopeDepth int
	inMethod   bool
}

func newFuncState(chunk *bytecode.Chunk, inMethod bool) *funcState {
	fs := &funcState{chunk: chunk, inMethod: inMethod}
	name := ""
	if inMethod {
		name = "this"
	}
	fs.locals = append(fs.locals, local{name: name, depth: 0})
	return fs
}

// ---------------------------------------------------------------------------
// Token plumbing
// ---------------------------------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lexer.NextToken()
		if c.current.Type != TokenError {
			return
		}
		c.errorAt(c.current, c.current.Lexeme)
		return
	}
}

func (c *Compiler) check(t TokenType) bool {
	return c.current.Type == t
}

func (c *Compiler) match(t TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t TokenType, msg string) {
	if c.check(t) {
		c.advance()
		return
	}
	c.errorAt(c.current, msg)
}

func (c *Compiler) errorAt(tok Token, msg string) {
	if c.err != nil {
		return
	}
	c.err = &Error{
		Path:    c.path,
		Line:    tok.Pos.Line,
		Column:  tok.Pos.Column,
		Message: msg,
	}
}

// ---------------------------------------------------------------------------
// Emit helpers
// ---------------------------------------------------------------------------

func (c *Compiler) line() int {
	return c.previous.Pos.Line
}

func (c *Compiler) emit(op bytecode.Opcode) {
	c.fn.chunk.Emit(c.line(), op)
}

func (c *Compiler) emitByte(op bytecode.Opcode, operand byte) {
	c.fn.chunk.EmitByte(c.line(), op, operand)
}

func (c *Compiler) emitUint16(op bytecode.Opcode, operand uint16) {
	c.fn.chunk.EmitUint16(c.line(), op, operand)
}

func (c *Compiler) makeConstant(k bytecode.Const) uint16 {
	idx, err := c.fn.chunk.AddConstant(k)
	if err != nil {
		c.errorAt(c.previous, err.Error())
		return 0
	}
	return uint16(idx)
}

func (c *Compiler) emitConstant(k bytecode.Const) {
	c.emitUint16(bytecode.OpConstant, c.makeConstant(k))
}

func (c *Compiler) emitInvoke(name string, argc int) {
	c.fn.chunk.EmitInvoke(c.line(), c.makeConstant(bytecode.StrConst(name)), byte(argc))
}

func (c *Compiler) emitJump(op bytecode.Opcode) int {
	return c.fn.chunk.EmitJump(c.line(), op)
}

func (c *Compiler) patchJump(pos int) {
	if err := c.fn.chunk.PatchJump(pos); err != nil {
		c.errorAt(c.previous, err.Error())
	}
}

func (c *Compiler) emitLoop(target int) {
	if err := c.fn.chunk.EmitLoop(c.line(), target); err != nil {
		c.errorAt(c.previous, err.Error())
	}
}

// ---------------------------------------------------------------------------
// Declarations and statements
// ---------------------------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(TokenClass):
		c.classDeclaration()
	case c.match(TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}
}

func (c *Compiler) varDeclaration() {
	c.consume(TokenIdentifier, "expected variable name after 'var'")
	name := c.previous.Lexeme

	if c.fn.scopeDepth > 0 {
		c.declareLocal(name)
	}

	if c.match(TokenEqual) {
		c.expression()
	} else {
		c.emit(bytecode.OpNull)
	}
	c.consume(TokenSemicolon, "expected ';' after variable declaration")

	if c.fn.scopeDepth > 0 {
		// The initializer value on the stack becomes the local's slot.
		c.markInitialized()
		return
	}
	c.emitUint16(bytecode.OpDefineGlobal, c.makeConstant(bytecode.StrConst(name)))
}

func (c *Compiler) declareLocal(name string) {
	for i := len(c.fn.locals) - 1; i >= 0; i-- {
		l := c.fn.locals[i]
		if l.depth != -1 && l.depth < c.fn.scopeDepth {
			break
		}
		if l.name == name {
			c.errorAt(c.previous, "variable '"+name+"' already declared in this scope")
			return
		}
	}
	if len(c.fn.locals) >= maxLocals {
		c.errorAt(c.previous, "too many local variables")
		return
	}
	// depth -1 marks the local as declared but not yet initialized.
	c.fn.locals = append(c.fn.locals, local{name: name, depth: -1})
	if len(c.fn.locals) > c.fn.chunk.LocalCount {
		c.fn.chunk.LocalCount = len(c.fn.locals)
	}
}

func (c *Compiler) markInitialized() {
	c.fn.locals[len(c.fn.locals)-1].depth = c.fn.scopeDepth
}

func (c *Compiler) statement() {
	switch {
	case c.match(TokenIf):
		c.ifStatement()
	case c.match(TokenWhile):
		c.whileStatement()
	case c.match(TokenReturn):
		c.returnStatement()
	case c.match(TokenLBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(TokenSemicolon, "expected ';' after expression")
	c.emit(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(TokenLParen, "expected '(' after 'if'")
	c.expression()
	c.consume(TokenRParen, "expected ')' after condition")

	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)
	c.statement()
	endJump := c.emitJump(bytecode.OpJump)

	c.patchJump(elseJump)
	c.emit(bytecode.OpPop)
	if c.match(TokenElse) {
		c.statement()
	}
	c.patchJump(endJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.fn.chunk.Code)
	c.consume(TokenLParen, "expected '(' after 'while'")
	c.expression()
	c.consume(TokenRParen, "expected ')' after condition")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emit(bytecode.OpPop)
}

func (c *Compiler) returnStatement() {
	if !c.fn.inMethod {
		c.errorAt(c.previous, "cannot return from top-level code")
	}
	if c.match(TokenSemicolon) {
		c.emit(bytecode.OpNull)
		c.emit(bytecode.OpReturn)
		return
	}
	c.expression()
	c.consume(TokenSemicolon, "expected ';' after return value")
	c.emit(bytecode.OpReturn)
}

func (c *Compiler) block() {
	for !c.check(TokenRBrace) && !c.check(TokenEOF) && c.err == nil {
		c.declaration()
	}
	c.consume(TokenRBrace, "expected '}' after block")
}

func (c *Compiler) beginScope() {
	c.fn.scopeDepth++
}

func (c *Compiler) endScope() {
	c.fn.scopeDepth--
	for len(c.fn.locals) > 0 && c.fn.locals[len(c.fn.locals)-1].depth > c.fn.scopeDepth {
		c.emit(bytecode.OpPop)
		c.fn.locals = c.fn.locals[:len(c.fn.locals)-1]
	}
}

// ---------------------------------------------------------------------------
// Class declarations
// ---------------------------------------------------------------------------

func (c *Compiler) classDeclaration() {
	if c.fn.inMethod || c.fn.scopeDepth > 0 {
		c.errorAt(c.previous, "classes may only be declared at top level")
		return
	}
	c.consume(TokenIdentifier, "expected class name after 'class'")
	className := c.previous.Lexeme
	nameConst := c.makeConstant(bytecode.StrConst(className))

	c.emitUint16(bytecode.OpClass, nameConst)

	prevClass := c.class
	c.class = className

	c.consume(TokenLBrace, "expected '{' before class body")
	for !c.check(TokenRBrace) && !c.check(TokenEOF) && c.err == nil {
		c.method(className)
	}
	c.consume(TokenRBrace, "expected '}' after class body")

	c.class = prevClass
	c.emitUint16(bytecode.OpDefineGlobal, nameConst)
}

// method compiles one method declaration inside a class body and emits the
// code that binds it to the class sitting on the stack.
func (c *Compiler) method(className string) {
	op := bytecode.OpMethod
	if c.match(TokenStatic) {
		op = bytecode.OpStaticMethod
	}
	c.consume(TokenIdentifier, "expected method name")
	methodName := c.previous.Lexeme
	nameConst := c.makeConstant(bytecode.StrConst(methodName))

	chunk := bytecode.NewChunk(className+"."+methodName, 0)
	chunkIndex := len(c.module.Chunks)
	c.module.Chunks = append(c.module.Chunks, chunk)

	enclosing := c.fn
	c.fn = newFuncState(chunk, true)

	c.consume(TokenLParen, "expected '(' after method name")
	if !c.check(TokenRParen) {
		for {
			c.consume(TokenIdentifier, "expected parameter name")
			if chunk.Arity >= MaxArity {
				c.errorAt(c.previous, "too many parameters")
				break
			}
			chunk.Arity++
			c.declareLocal(c.previous.Lexeme)
			c.markInitialized()
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRParen, "expected ')' after parameters")
	chunk.LocalCount = chunk.Arity + 1

	c.consume(TokenLBrace, "expected '{' before method body")
	c.beginScope()
	c.block()
	c.endScope()
	c.emit(bytecode.OpNull)
	c.emit(bytecode.OpReturn)

	c.fn = enclosing

	c.emitUint16(bytecode.OpConstant, c.makeConstant(bytecode.FnConst(chunkIndex)))
	c.fn.chunk.EmitMethod(c.line(), op, nameConst, byte(chunk.Arity))
}

// ---------------------------------------------------------------------------
// Expressions (Pratt parser)
// ---------------------------------------------------------------------------

type precedence int

const (
	precNone precedence = iota
	precAssignment // =
	precOr         // ||
	precAnd        // &&
	precEquality   // == !=
	precComparison // < > <= >=
	precTerm       // + -
	precFactor     // * / %
	precUnary      // ! -
	precCall       // .
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

// rules is populated in init to avoid an initialization cycle through the
// grouping and call rules.
var rules map[TokenType]parseRule

func init() {
	rules = map[TokenType]parseRule{
		TokenNumber:       {prefix: (*Compiler).number},
		TokenString:       {prefix: (*Compiler).stringLiteral},
		TokenIdentifier:   {prefix: (*Compiler).variable},
		TokenThis:         {prefix: (*Compiler).this},
		TokenTrue:         {prefix: (*Compiler).literal},
		TokenFalse:        {prefix: (*Compiler).literal},
		TokenNull:         {prefix: (*Compiler).literal},
		TokenLParen:       {prefix: (*Compiler).grouping},
		TokenMinus:        {prefix: (*Compiler).unary, infix: (*Compiler).binary, prec: precTerm},
		TokenBang:         {prefix: (*Compiler).unary},
		TokenPlus:         {infix: (*Compiler).binary, prec: precTerm},
		TokenStar:         {infix: (*Compiler).binary, prec: precFactor},
		TokenSlash:        {infix: (*Compiler).binary, prec: precFactor},
		TokenPercent:      {infix: (*Compiler).binary, prec: precFactor},
		TokenEqualEqual:   {infix: (*Compiler).binary, prec: precEquality},
		TokenBangEqual:    {infix: (*Compiler).binary, prec: precEquality},
		TokenLess:         {infix: (*Compiler).binary, prec: precComparison},
		TokenLessEqual:    {infix: (*Compiler).binary, prec: precComparison},
		TokenGreater:      {infix: (*Compiler).binary, prec: precComparison},
		TokenGreaterEqual: {infix: (*Compiler).binary, prec: precComparison},
		TokenAndAnd:       {infix: (*Compiler).and, prec: precAnd},
		TokenOrOr:         {infix: (*Compiler).or, prec: precOr},
		TokenDot:          {infix: (*Compiler).dot, prec: precCall},
	}
}

func getRule(t TokenType) parseRule {
	return rules[t]
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	rule := getRule(c.previous.Type)
	if rule.prefix == nil {
		c.errorAt(c.previous, "expected expression")
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(c, canAssign)

	for c.err == nil && prec <= getRule(c.current.Type).prec {
		c.advance()
		getRule(c.previous.Type).infix(c, canAssign)
	}

	if canAssign && c.match(TokenEqual) {
		c.errorAt(c.previous, "invalid assignment target")
	}
}

func (c *Compiler) number(canAssign bool) {
	n, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		c.errorAt(c.previous, "invalid number literal")
		return
	}
	c.emitConstant(bytecode.NumConst(n))
}

func (c *Compiler) stringLiteral(canAssign bool) {
	c.emitConstant(bytecode.StrConst(c.previous.Lexeme))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.previous.Type {
	case TokenTrue:
		c.emit(bytecode.OpTrue)
	case TokenFalse:
		c.emit(bytecode.OpFalse)
	case TokenNull:
		c.emit(bytecode.OpNull)
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(TokenRParen, "expected ')' after expression")
}

func (c *Compiler) unary(canAssign bool) {
	op := c.previous.Type
	c.parsePrecedence(precUnary)
	switch op {
	case TokenMinus:
		c.emit(bytecode.OpNegate)
	case TokenBang:
		c.emit(bytecode.OpNot)
	}
}

func (c *Compiler) binary(canAssign bool) {
	op := c.previous.Type
	rule := getRule(op)
	c.parsePrecedence(rule.prec + 1)

	switch op {
	case TokenPlus:
		c.emit(bytecode.OpAdd)
	case TokenMinus:
		c.emit(bytecode.OpSubtract)
	case TokenStar:
		c.emit(bytecode.OpMultiply)
	case TokenSlash:
		c.emit(bytecode.OpDivide)
	case TokenPercent:
		c.emit(bytecode.OpModulo)
	case TokenEqualEqual:
		c.emit(bytecode.OpEqual)
	case TokenBangEqual:
		c.emit(bytecode.OpNotEqual)
	case TokenLess:
		c.emit(bytecode.OpLess)
	case TokenLessEqual:
		c.emit(bytecode.OpLessEqual)
	case TokenGreater:
		c.emit(bytecode.OpGreater)
	case TokenGreaterEqual:
		c.emit(bytecode.OpGreaterEqual)
	}
}

func (c *Compiler) and(canAssign bool) {
	short := c.emitJump(bytecode.OpJumpIfFalse)
	c.emit(bytecode.OpPop)
	c.parsePrecedence(precAnd + 1)
	c.patchJump(short)
}

func (c *Compiler) or(canAssign bool) {
	short := c.emitJump(bytecode.OpJumpIfTrue)
	c.emit(bytecode.OpPop)
	c.parsePrecedence(precOr + 1)
	c.patchJump(short)
}

// variable compiles an identifier reference or assignment. Identifiers
// beginning with an underscore are instance fields of the receiver and are
// only meaningful inside a method body.
func (c *Compiler) variable(canAssign bool) {
	name := c.previous.Lexeme

	if strings.HasPrefix(name, "_") {
		c.field(name, canAssign)
		return
	}

	if slot := c.resolveLocal(name); slot >= 0 {
		if canAssign && c.match(TokenEqual) {
			c.expression()
			c.emitByte(bytecode.OpSetLocal, byte(slot))
			return
		}
		c.emitByte(bytecode.OpGetLocal, byte(slot))
		return
	}

	nameConst := c.makeConstant(bytecode.StrConst(name))
	if canAssign && c.match(TokenEqual) {
		c.expression()
		c.emitUint16(bytecode.OpSetGlobal, nameConst)
		return
	}
	c.emitUint16(bytecode.OpGetGlobal, nameConst)
}

// field compiles a read or write of an instance field on the receiver.
func (c *Compiler) field(name string, canAssign bool) {
	if !c.fn.inMethod {
		c.errorAt(c.previous, "field '"+name+"' referenced outside of a method")
		return
	}
	nameConst := c.makeConstant(bytecode.StrConst(name))
	if canAssign && c.match(TokenEqual) {
		c.emitByte(bytecode.OpGetLocal, 0)
		c.expression()
		c.emitUint16(bytecode.OpSetField, nameConst)
		return
	}
	c.emitByte(bytecode.OpGetLocal, 0)
	c.emitUint16(bytecode.OpGetField, nameConst)
}

func (c *Compiler) resolveLocal(name string) int {
	for i := len(c.fn.locals) - 1; i >= 0; i-- {
		l := c.fn.locals[i]
		if l.name == name {
			if l.depth == -1 {
				c.errorAt(c.previous, "cannot read variable '"+name+"' in its own initializer")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) this(canAssign bool) {
	if !c.fn.inMethod {
		c.errorAt(c.previous, "cannot use 'this' outside of a method")
		return
	}
	c.emitByte(bytecode.OpGetLocal, 0)
}

// dot compiles a method invocation. A bare property reference compiles to an
// arity-0 invoke; a parenthesized argument list sets the arity explicitly.
func (c *Compiler) dot(canAssign bool) {
	c.consume(TokenIdentifier, "expected method name after '.'")
	name := c.previous.Lexeme

	if canAssign && c.check(TokenEqual) {
		c.errorAt(c.current, "cannot assign to a method call")
		return
	}

	argc := 0
	if c.match(TokenLParen) {
		argc = c.argumentList()
	}
	c.emitInvoke(name, argc)
}

func (c *Compiler) argumentList() int {
	argc := 0
	if !c.check(TokenRParen) {
		for {
			c.expression()
			if argc >= MaxArity {
				c.errorAt(c.previous, "too many arguments")
				break
			}
			argc++
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRParen, "expected ')' after arguments")
	return argc
}
