package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for Lark source
// ---------------------------------------------------------------------------

// Lexer tokenizes Lark source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   1,
	}
	l.readChar()
	return l
}

// readChar reads the next character. line and col always describe the
// character currently loaded in ch, so they advance past the previous
// character before the next one is decoded.
func (l *Lexer) readChar() {
	if l.pos < l.readPos {
		if l.ch == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
	} else {
		r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
		l.ch = r
		l.pos = l.readPos
		l.readPos += size
	}
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}
	case l.ch == '"':
		return l.readString(pos)
	case unicode.IsDigit(l.ch):
		return l.readNumber(pos)
	case isIdentStart(l.ch):
		return l.readIdentifier(pos)
	}

	// Operators and delimiters.
	tok := func(t TokenType, lexeme string) Token {
		l.readChar()
		return Token{Type: t, Lexeme: lexeme, Pos: pos}
	}
	tok2 := func(t TokenType, lexeme string) Token {
		l.readChar()
		l.readChar()
		return Token{Type: t, Lexeme: lexeme, Pos: pos}
	}

	switch l.ch {
	case '(':
		return tok(TokenLParen, "(")
	case ')':
		return tok(TokenRParen, ")")
	case '{':
		return tok(TokenLBrace, "{")
	case '}':
		return tok(TokenRBrace, "}")
	case ',':
		return tok(TokenComma, ",")
	case '.':
		return tok(TokenDot, ".")
	case ';':
		return tok(TokenSemicolon, ";")
	case '+':
		return tok(TokenPlus, "+")
	case '-':
		return tok(TokenMinus, "-")
	case '*':
		return tok(TokenStar, "*")
	case '/':
		return tok(TokenSlash, "/")
	case '%':
		return tok(TokenPercent, "%")
	case '!':
		if l.peekChar() == '=' {
			return tok2(TokenBangEqual, "!=")
		}
		return tok(TokenBang, "!")
	case '=':
		if l.peekChar() == '=' {
			return tok2(TokenEqualEqual, "==")
		}
		return tok(TokenEqual, "=")
	case '<':
		if l.peekChar() == '=' {
			return tok2(TokenLessEqual, "<=")
		}
		return tok(TokenLess, "<")
	case '>':
		if l.peekChar() == '=' {
			return tok2(TokenGreaterEqual, ">=")
		}
		return tok(TokenGreater, ">")
	case '&':
		if l.peekChar() == '&' {
			return tok2(TokenAndAnd, "&&")
		}
	case '|':
		if l.peekChar() == '|' {
			return tok2(TokenOrOr, "||")
		}
	}

	bad := string(l.ch)
	l.readChar()
	return Token{Type: TokenError, Lexeme: "unexpected character " + bad, Pos: pos}
}

// skipWhitespaceAndComments consumes whitespace and // line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

// readString reads a double-quoted string literal with escapes.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // consume opening quote

	var sb strings.Builder
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return Token{Type: TokenError, Lexeme: "unterminated string", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case '0':
				sb.WriteByte(0)
			default:
				return Token{Type: TokenError, Lexeme: "invalid escape \\" + string(l.ch), Pos: pos}
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar() // consume closing quote

	return Token{Type: TokenString, Lexeme: sb.String(), Pos: pos}
}

// readNumber reads a numeric literal: digits, optional fraction, optional
// exponent.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for unicode.IsDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && unicode.IsDigit(l.peekChar()) {
		l.readChar()
		for unicode.IsDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if unicode.IsDigit(next) || next == '+' || next == '-' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for unicode.IsDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return Token{Type: TokenNumber, Lexeme: l.input[start:l.pos], Pos: pos}
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isIdentStart(l.ch) || unicode.IsDigit(l.ch) {
		l.readChar()
	}
	lexeme := l.input[start:l.pos]
	if t, ok := keywords[lexeme]; ok {
		return Token{Type: t, Lexeme: lexeme, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Lexeme: lexeme, Pos: pos}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
