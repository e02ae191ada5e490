package parser

import (
	"strings"
	"unicode"

	"github.com/leapstack-labs/fedplan/pkg/token"
)

// Operators and punctuation, longest match first.
var (
	doubleCharOps = map[string]token.TokenType{
		"<=": token.LE,
		">=": token.GE,
		"<>": token.NE,
		"!=": token.NE,
		"||": token.DPIPE,
	}
	singleCharOps = map[byte]token.TokenType{
		'+': token.PLUS,
		'-': token.MINUS,
		'*': token.STAR,
		'/': token.SLASH,
		'%': token.PERCENT,
		'=': token.EQ,
		'<': token.LT,
		'>': token.GT,
		'.': token.DOT,
		',': token.COMMA,
		'(': token.LPAREN,
		')': token.RPAREN,
		';': token.SEMICOLON,
		'?': token.PARAM,
	}
)

// Lexer tokenizes SQL input.
type Lexer struct {
	input     string
	off       int // offset of the next unread byte
	line      int // 1-based line of off
	lineStart int // offset of the first byte of line

	// Errors found while scanning, such as unterminated strings.
	Errors []*ParseError
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1}
}

// Tokenize returns all tokens of input, ending with EOF.
func Tokenize(input string) []token.Token {
	l := NewLexer(input)
	var tokens []token.Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens
		}
	}
}

// at returns the byte i positions ahead, or 0 past the end.
func (l *Lexer) at(i int) byte {
	if l.off+i >= len(l.input) {
		return 0
	}
	return l.input[l.off+i]
}

func (l *Lexer) advance(n int) {
	for ; n > 0 && l.off < len(l.input); n-- {
		if l.input[l.off] == '\n' {
			l.line++
			l.lineStart = l.off + 1
		}
		l.off++
	}
}

// seek restarts scanning at offset.
func (l *Lexer) seek(offset int) {
	head := l.input[:offset]
	l.off = offset
	l.line = strings.Count(head, "\n") + 1
	l.lineStart = strings.LastIndexByte(head, '\n') + 1
}

func (l *Lexer) position() token.Position {
	return token.Position{Line: l.line, Column: l.off - l.lineStart + 1, Offset: l.off}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() token.Token {
	l.skipSpace()
	tok := token.Token{Pos: l.position()}

	c := l.at(0)
	switch {
	case c == 0:
		tok.Type = token.EOF
	case c == '\'':
		tok.Type = token.STRING
		tok.Literal = l.scanQuoted(ErrUnterminatedString)
	case c == '"' || c == '`':
		tok.Type = token.IDENT
		tok.Quoted = true
		tok.Literal = l.scanQuoted(ErrUnterminatedIdent)
	case isLetter(c) || c == '_':
		tok.Literal = l.scanWhile(func(b byte) bool {
			return isLetter(b) || isDigit(b) || b == '_' || b == '$'
		})
		tok.Type = token.LookupIdent(strings.ToLower(tok.Literal))
	case isDigit(c):
		tok.Type = token.NUMBER
		tok.Literal = l.scanNumber()
	default:
		if l.off+2 <= len(l.input) {
			if typ, ok := doubleCharOps[l.input[l.off:l.off+2]]; ok {
				tok.Type, tok.Literal = typ, l.input[l.off:l.off+2]
				l.advance(2)
				return tok
			}
		}
		tok.Type, tok.Literal = token.ILLEGAL, string(c)
		if typ, ok := singleCharOps[c]; ok {
			tok.Type = typ
		}
		l.advance(1)
	}
	return tok
}

// skipSpace skips whitespace, -- line comments and /* block */ comments.
func (l *Lexer) skipSpace() {
	for {
		switch c := l.at(0); {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.advance(1)
		case c == '-' && l.at(1) == '-':
			for l.at(0) != '\n' && l.at(0) != 0 {
				l.advance(1)
			}
		case c == '/' && l.at(1) == '*':
			end := strings.Index(l.input[l.off+2:], "*/")
			if end < 0 {
				l.advance(len(l.input))
				return
			}
			l.advance(end + 4)
		default:
			return
		}
	}
}

func (l *Lexer) scanWhile(ok func(byte) bool) string {
	start := l.off
	for l.off < len(l.input) && ok(l.input[l.off]) {
		l.advance(1)
	}
	return l.input[start:l.off]
}

// scanQuoted reads text up to the closing quote. A doubled quote is an escaped quote.
func (l *Lexer) scanQuoted(unterminated string) string {
	start := l.position()
	quote := l.at(0)
	l.advance(1)

	var sb strings.Builder
	for l.off < len(l.input) {
		c := l.at(0)
		if c == quote {
			if l.at(1) != quote {
				l.advance(1)
				return sb.String()
			}
			l.advance(1)
		}
		sb.WriteByte(c)
		l.advance(1)
	}
	l.Errors = append(l.Errors, &ParseError{Pos: start, Message: unterminated})
	return sb.String()
}

// scanNumber reads an integer, decimal or scientific literal.
func (l *Lexer) scanNumber() string {
	start := l.off
	l.scanWhile(isDigit)
	if l.at(0) == '.' && isDigit(l.at(1)) {
		l.advance(1)
		l.scanWhile(isDigit)
	}
	if e := l.at(0); e == 'e' || e == 'E' {
		next := l.at(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.at(2))) {
			l.advance(2)
			l.scanWhile(isDigit)
		}
	}
	return l.input[start:l.off]
}

// matchingParen returns the offset of the parenthesis closing the one at open,
// skipping quoted text. It returns -1 when the input ends first.
func (l *Lexer) matchingParen(open int) int {
	depth := 0
	for i := open; i < len(l.input); i++ {
		switch c := l.input[i]; c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		case '\'', '"', '`':
			for i++; i < len(l.input) && l.input[i] != c; i++ {
			}
		}
	}
	return -1
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
