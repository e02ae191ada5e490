// Package token defines the lexical tokens of the federated SQL dialect.
package token

import "fmt"

// TokenType represents the type of a lexical token.
//
//nolint:revive // token.TokenType reads clearly at call sites
type TokenType int

const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL

	// Literals
	IDENT  // identifier, possibly quoted
	NUMBER // 123, 45.67, 1e10
	STRING // 'hello'
	PARAM  // ?

	// Operators
	PLUS      // +
	MINUS     // -
	STAR      // *
	SLASH     // /
	PERCENT   // %
	DPIPE     // ||
	EQ        // =
	NE        // != or <>
	LT        // <
	GT        // >
	LE        // <=
	GE        // >=
	DOT       // .
	COMMA     // ,
	LPAREN    // (
	RPAREN    // )
	SEMICOLON // ;

	keywordStart

	// Keywords (alphabetical)
	ALL
	AND
	AS
	ASC
	BETWEEN
	BY
	CAST
	CREATE
	CROSS
	DELETE
	DESC
	DISTINCT
	EXCEPT
	FALSE
	FIRST
	FROM
	FULL
	GROUP
	HAVING
	IN
	INNER
	INSERT
	INTERSECT
	INTO
	IS
	JOIN
	LAST
	LATEST
	LEFT
	LIKE
	LIMIT
	NOT
	NULL
	NULLS
	OFFSET
	ON
	OR
	ORDER
	OUTER
	REPLACE
	RIGHT
	SELECT
	SET
	TABLE
	TRUE
	UNION
	UPDATE
	USING
	VALUES
	WHERE
	WITH

	keywordEnd
)

var tokenNames = map[TokenType]string{
	EOF:     "EOF",
	ILLEGAL: "ILLEGAL",

	IDENT:  "IDENT",
	NUMBER: "NUMBER",
	STRING: "STRING",
	PARAM:  "?",

	PLUS:      "+",
	MINUS:     "-",
	STAR:      "*",
	SLASH:     "/",
	PERCENT:   "%",
	DPIPE:     "||",
	EQ:        "=",
	NE:        "!=",
	LT:        "<",
	GT:        ">",
	LE:        "<=",
	GE:        ">=",
	DOT:       ".",
	COMMA:     ",",
	LPAREN:    "(",
	RPAREN:    ")",
	SEMICOLON: ";",
}

// keywordWords spells the keyword tokens, in declaration order.
var keywordWords = [keywordEnd - keywordStart - 1]string{
	"all", "and", "as", "asc", "between", "by", "cast", "create", "cross", "delete",
	"desc", "distinct", "except", "false", "first", "from", "full", "group", "having", "in",
	"inner", "insert", "intersect", "into", "is", "join", "last", "latest", "left", "like",
	"limit", "not", "null", "nulls", "offset", "on", "or", "order", "outer", "replace",
	"right", "select", "set", "table", "true", "union", "update", "using", "values", "where",
	"with",
}

// keywords maps lowercase keyword strings to their token types.
var keywords = make(map[string]TokenType, len(keywordWords))

func init() {
	for i, word := range keywordWords {
		t := keywordStart + 1 + TokenType(i)
		keywords[word] = t
		tokenNames[t] = fmt.Sprintf("%q", word)
	}
}

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", int(t))
}

// LookupIdent returns the keyword token for a lowercase word, or IDENT.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// IsKeyword returns true if the token type is a keyword.
func IsKeyword(t TokenType) bool {
	return t > keywordStart && t < keywordEnd
}

// Position represents a location in the source text.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // 0-based byte offset
}

// String formats the position as line:column.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token with position information.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	// Quoted is set for identifiers written in double quotes or backquotes,
	// which never match keywords.
	Quoted bool
}
