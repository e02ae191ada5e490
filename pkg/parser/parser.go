// Package parser turns the federated SQL dialect into pkg/ast trees.
//
// # Usage
//
//	stmt, err := parser.Parse("SELECT a, b FROM int.tab WHERE a > 1")
//	if err != nil {
//	    // handle error
//	}
//
// # Grammar Overview
//
// The parser is a recursive descent parser with a Pratt expression core:
//
//	statement     → (query | insert | update | delete | create) [;]
//	query         → [WITH cte_list] set_operation
//	set_operation → select_core {(UNION|INTERSECT|EXCEPT) [ALL|DISTINCT] select_core}
//	select_core   → SELECT [DISTINCT] select_list [FROM from_clause]
//	                [WHERE expr] [GROUP BY expr_list] [HAVING expr]
//	                [ORDER BY order_list] [LIMIT n [OFFSET m] | LIMIT m, n]
//	                [USING name = value {, name = value}]
//	              | ( query )
//
// See each file for detailed grammar rules for that section.
package parser

import (
	"fmt"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/token"
)

// Parser parses SQL into an AST.
type Parser struct {
	lexer  *Lexer
	input  string
	token  token.Token // current token
	peek   token.Token // lookahead token
	peek2  token.Token // second lookahead token
	errors ParseErrors
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string) *Parser {
	p := &Parser{
		lexer: NewLexer(sql),
		input: sql,
	}
	p.fill()
	return p
}

// Parse parses one statement. The returned error is a ParseErrors.
func Parse(sql string) (ast.Node, error) {
	p := NewParser(sql)
	stmt := p.ParseStatement()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, errs
	}
	return stmt, nil
}

// ParseStatement parses a statement followed by an optional semicolon and EOF.
func (p *Parser) ParseStatement() ast.Node {
	stmt := p.parseStatement()
	p.match(token.SEMICOLON)
	if !p.check(token.EOF) {
		p.addError(fmt.Sprintf("unexpected token %s after statement", p.describe(p.token)))
	}
	return stmt
}

// Errors returns lexer and parser errors ordered by position.
func (p *Parser) Errors() ParseErrors {
	if len(p.lexer.Errors) == 0 {
		return p.errors
	}
	out := make(ParseErrors, 0, len(p.lexer.Errors)+len(p.errors))
	out = append(out, p.lexer.Errors...)
	out = append(out, p.errors...)
	return out
}

// ---------- Token Helpers ----------

// fill loads the three lookahead tokens from the lexer's current position.
func (p *Parser) fill() {
	p.token = p.lexer.NextToken()
	p.peek = p.lexer.NextToken()
	p.peek2 = p.lexer.NextToken()
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t token.TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t token.TokenType) bool {
	return p.peek.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), t))
	return false
}

// addError adds a parse error at the current token.
func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{
		Pos:     p.token.Pos,
		Message: msg,
	})
}

func (p *Parser) describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "EOF"
	case token.IDENT, token.NUMBER:
		return tok.Literal
	case token.STRING:
		return fmt.Sprintf("'%s'", tok.Literal)
	}
	return tok.Type.String()
}

// ---------- Names ----------

// isName reports whether tok can be used as a path segment after a dot.
func isName(tok token.Token) bool {
	return tok.Type == token.IDENT || token.IsKeyword(tok.Type)
}

// parseName consumes an identifier. Keywords are accepted when allowKeyword is set.
func (p *Parser) parseName(allowKeyword bool) string {
	if p.check(token.IDENT) || (allowKeyword && token.IsKeyword(p.token.Type)) {
		name := p.token.Literal
		p.nextToken()
		return name
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "identifier"))
	return ""
}

// parseIdentifierPath parses name {. name}. A trailing .* and numeric
// segments such as model.2 are allowed.
func (p *Parser) parseIdentifierPath() *ast.Identifier {
	id := &ast.Identifier{Parts: []string{p.parseName(false)}}
	for p.check(token.DOT) {
		p.nextToken()
		switch {
		case p.check(token.STAR):
			p.nextToken()
			id.Parts = append(id.Parts, "*")
			return id
		case p.check(token.NUMBER) || isName(p.token):
			id.Parts = append(id.Parts, p.token.Literal)
			p.nextToken()
		default:
			p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "identifier"))
			return id
		}
	}
	return id
}

// parseAlias parses an optional [AS] alias. Without AS only a plain identifier
// is taken, so clause keywords end the item.
func (p *Parser) parseAlias() string {
	if p.match(token.AS) {
		if p.check(token.STRING) {
			name := p.token.Literal
			p.nextToken()
			return name
		}
		return p.parseName(true)
	}
	if p.check(token.IDENT) {
		name := p.token.Literal
		p.nextToken()
		return name
	}
	return ""
}

// parseIntConstant parses the integer operand of LIMIT or OFFSET.
func (p *Parser) parseIntConstant(clause string) *ast.Constant {
	if !p.check(token.NUMBER) {
		p.addError(fmt.Sprintf(ErrExpectedInteger, clause, p.describe(p.token)))
		return nil
	}
	c := p.numberConstant()
	if _, ok := c.Value.(int64); !ok {
		p.addError(fmt.Sprintf(ErrExpectedInteger, clause, p.token.Literal))
	}
	p.nextToken()
	return c
}
