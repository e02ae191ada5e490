package parser

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/token"
)

// ---------- FROM Clause Parsing ----------

// parseFromClause parses: table_ref {(, | join_type JOIN) table_ref [ON expr]}
//
// Joins are built left-deep.
func (p *Parser) parseFromClause() ast.Node {
	left := p.parseTableRef()
	for {
		if p.match(token.COMMA) {
			right := p.parseTableRef()
			left = &ast.Join{Left: left, Right: right, Type: ast.InnerJoin, Implicit: true}
			continue
		}
		jt, ok := p.parseJoinType()
		if !ok {
			return left
		}
		j := &ast.Join{Left: left, Right: p.parseTableRef(), Type: jt}
		if p.match(token.ON) {
			j.Condition = p.parseExpression()
		}
		left = j
	}
}

// parseJoinType consumes [INNER | LEFT [OUTER] | RIGHT [OUTER] | FULL [OUTER] | CROSS] JOIN.
func (p *Parser) parseJoinType() (ast.JoinType, bool) {
	var jt ast.JoinType
	switch p.token.Type {
	case token.JOIN:
		p.nextToken()
		return ast.InnerJoin, true
	case token.INNER:
		jt = ast.InnerJoin
	case token.LEFT:
		jt = ast.LeftJoin
	case token.RIGHT:
		jt = ast.RightJoin
	case token.FULL:
		jt = ast.FullJoin
	case token.CROSS:
		jt = ast.CrossJoin
	default:
		return "", false
	}
	p.nextToken()
	if jt != ast.InnerJoin && jt != ast.CrossJoin {
		p.match(token.OUTER)
	}
	p.expect(token.JOIN)
	return jt, true
}

// parseTableRef parses one FROM item:
//
//	path [[AS] alias]
//	integration (native query text) [[AS] alias]
//	( query ) [AS] alias
//	( VALUES rows ) [AS] alias [(col, ...)]
//	( from_clause )
func (p *Parser) parseTableRef() ast.Node {
	if p.check(token.LPAREN) {
		switch {
		case startsQuery(p.peek.Type):
			p.nextToken()
			q := p.parseQuery()
			p.expect(token.RPAREN)
			if alias := p.parseAlias(); alias != "" {
				return ast.WithAlias(q, alias)
			}
			return q
		case p.checkPeek(token.VALUES):
			return p.parseValuesSource()
		default:
			p.nextToken()
			inner := p.parseFromClause()
			p.expect(token.RPAREN)
			return inner
		}
	}

	if p.check(token.IDENT) && p.checkPeek(token.LPAREN) {
		return p.parseNativeQuery()
	}

	id := p.parseIdentifierPath()
	id.Alias = p.parseAlias()
	return id
}

// parseValuesSource parses: ( VALUES rows ) [AS] alias [(col, ...)]
func (p *Parser) parseValuesSource() ast.Node {
	p.expect(token.LPAREN)
	p.expect(token.VALUES)
	data := &ast.Data{Rows: p.parseValueRows()}
	p.expect(token.RPAREN)
	data.Alias = p.parseAlias()
	if data.Alias != "" && p.match(token.LPAREN) {
		data.Columns = p.parseNameList()
		p.expect(token.RPAREN)
	}
	return data
}

// parseNativeQuery parses integration (raw text). The text between the
// parentheses is taken verbatim from the input and never tokenized.
func (p *Parser) parseNativeQuery() ast.Node {
	integration := p.token.Literal
	open := p.peek.Pos.Offset
	closing := p.lexer.matchingParen(open)
	if closing < 0 {
		p.addError(fmt.Sprintf(ErrUnterminatedNative, integration))
		for !p.check(token.EOF) {
			p.nextToken()
		}
		return nil
	}

	native := &ast.NativeQuery{
		Integration: integration,
		Query:       strings.TrimSpace(p.input[open+1 : closing]),
	}
	p.lexer.seek(closing + 1)
	p.fill()
	native.Alias = p.parseAlias()
	return native
}
