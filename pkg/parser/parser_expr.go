package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/token"
)

// ---------- Expression Parsing (Pratt Parser) ----------

// Operator precedence levels (higher binds tighter).
const (
	precNone       = iota
	precOr         // OR
	precAnd        // AND
	precNot        // NOT
	precComparison // =, <>, <, >, <=, >=, LIKE, IN, BETWEEN, IS
	precAddition   // +, -, ||
	precMultiply   // *, /, %
	precUnary      // -x, +x
)

// infixPrecedence returns the precedence of tokens that continue an expression.
func infixPrecedence(t token.TokenType) int {
	switch t {
	case token.OR:
		return precOr
	case token.AND:
		return precAnd
	case token.EQ, token.NE, token.LT, token.GT, token.LE, token.GE,
		token.LIKE, token.IN, token.BETWEEN, token.IS, token.NOT:
		return precComparison
	case token.PLUS, token.MINUS, token.DPIPE:
		return precAddition
	case token.STAR, token.SLASH, token.PERCENT:
		return precMultiply
	}
	return precNone
}

// parseExpression parses a full expression.
func (p *Parser) parseExpression() ast.Node {
	return p.parseExpressionWithPrecedence(precOr)
}

// parseExpressionWithPrecedence parses operators binding at least as tightly as minPrec.
func (p *Parser) parseExpressionWithPrecedence(minPrec int) ast.Node {
	left := p.parsePrefixExpr()
	for left != nil {
		prec := infixPrecedence(p.token.Type)
		if prec == precNone || prec < minPrec {
			break
		}
		left = p.parseInfixExpr(left, prec)
	}
	return left
}

func (p *Parser) parseExpressionList() []ast.Node {
	var list []ast.Node
	for {
		if expr := p.parseExpression(); expr != nil {
			list = append(list, expr)
		}
		if !p.match(token.COMMA) {
			return list
		}
	}
}

// parsePrefixExpr handles NOT, unary signs and primaries.
func (p *Parser) parsePrefixExpr() ast.Node {
	switch p.token.Type {
	case token.NOT:
		p.nextToken()
		arg := p.parseExpressionWithPrecedence(precNot)
		if arg == nil {
			return nil
		}
		return &ast.UnaryOperation{Op: "not", Arg: arg}
	case token.MINUS:
		p.nextToken()
		arg := p.parseExpressionWithPrecedence(precUnary)
		if c, ok := arg.(*ast.Constant); ok {
			switch v := c.Value.(type) {
			case int64:
				return &ast.Constant{Value: -v}
			case float64:
				return &ast.Constant{Value: -v}
			}
		}
		if arg == nil {
			return nil
		}
		return &ast.UnaryOperation{Op: "-", Arg: arg}
	case token.PLUS:
		p.nextToken()
		return p.parseExpressionWithPrecedence(precUnary)
	}
	return p.parsePrimary()
}

// parseInfixExpr continues left with the operator at the current token.
func (p *Parser) parseInfixExpr(left ast.Node, prec int) ast.Node {
	switch p.token.Type {
	case token.NOT:
		return p.parseNotInfix(left)
	case token.IS:
		p.nextToken()
		op := "is"
		if p.match(token.NOT) {
			op = "is not"
		}
		return p.binary(op, left, p.parseExpressionWithPrecedence(precAddition))
	case token.IN:
		p.nextToken()
		return p.binary("in", left, p.parseInList())
	case token.BETWEEN:
		p.nextToken()
		return p.parseBetween(left)
	}

	op := strings.ToLower(p.token.Literal)
	p.nextToken()
	return p.binary(op, left, p.parseExpressionWithPrecedence(prec+1))
}

func (p *Parser) binary(op string, left, right ast.Node) ast.Node {
	if right == nil {
		return nil
	}
	return ast.Binary(op, left, right)
}

// parseNotInfix parses x NOT IN, x NOT LIKE and x NOT BETWEEN.
func (p *Parser) parseNotInfix(left ast.Node) ast.Node {
	p.nextToken()
	switch p.token.Type {
	case token.IN:
		p.nextToken()
		return p.binary("not in", left, p.parseInList())
	case token.LIKE:
		p.nextToken()
		return p.binary("not like", left, p.parseExpressionWithPrecedence(precAddition))
	case token.BETWEEN:
		p.nextToken()
		between := p.parseBetween(left)
		if between == nil {
			return nil
		}
		return &ast.UnaryOperation{Op: "not", Arg: between}
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "IN, LIKE or BETWEEN after NOT"))
	return nil
}

// parseBetween parses the bounds of x BETWEEN low AND high.
func (p *Parser) parseBetween(left ast.Node) ast.Node {
	low := p.parseExpressionWithPrecedence(precAddition)
	if !p.expect(token.AND) {
		return nil
	}
	high := p.parseExpressionWithPrecedence(precAddition)
	if low == nil || high == nil {
		return nil
	}
	return &ast.BetweenOperation{Args: [3]ast.Node{left, low, high}}
}

// parseInList parses (expr, ...) or (query) on the right side of IN.
func (p *Parser) parseInList() ast.Node {
	if !p.expect(token.LPAREN) {
		return nil
	}
	if startsQuery(p.token.Type) && p.token.Type != token.LPAREN {
		q := p.parseQuery()
		p.expect(token.RPAREN)
		return q
	}
	items := p.parseExpressionList()
	p.expect(token.RPAREN)
	return &ast.Tuple{Items: items}
}

// parsePrimary parses literals, identifiers, calls, casts and parenthesized forms.
//
//nolint:gocyclo // one case per primary form
func (p *Parser) parsePrimary() ast.Node {
	switch p.token.Type {
	case token.NUMBER:
		c := p.numberConstant()
		p.nextToken()
		return c
	case token.STRING:
		c := &ast.Constant{Value: p.token.Literal}
		p.nextToken()
		return c
	case token.TRUE, token.FALSE:
		c := &ast.Constant{Value: p.check(token.TRUE)}
		p.nextToken()
		return c
	case token.NULL:
		p.nextToken()
		return ast.Null()
	case token.LATEST:
		p.nextToken()
		return &ast.Latest{}
	case token.PARAM:
		p.nextToken()
		return &ast.Parameter{}
	case token.STAR:
		p.nextToken()
		return &ast.Star{}
	case token.CAST:
		return p.parseCast()
	case token.LPAREN:
		return p.parseParenExpr()
	case token.IDENT:
		return p.parseIdentifierOrCall()
	case token.LEFT, token.RIGHT, token.REPLACE:
		// Function names that collide with keywords.
		if p.checkPeek(token.LPAREN) {
			name := strings.ToLower(p.token.Literal)
			p.nextToken()
			return p.parseCall(name)
		}
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "an expression"))
	if !p.check(token.EOF) {
		p.nextToken()
	}
	return nil
}

// numberConstant converts the current NUMBER token without consuming it.
func (p *Parser) numberConstant() *ast.Constant {
	lit := p.token.Literal
	if !strings.ContainsAny(lit, ".eE") {
		if v, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return &ast.Constant{Value: v}
		}
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		p.addError(fmt.Sprintf(ErrInvalidNumber, lit))
	}
	return &ast.Constant{Value: v}
}

func (p *Parser) parseIdentifierOrCall() ast.Node {
	if p.checkPeek(token.LPAREN) {
		name := p.token.Literal
		p.nextToken()
		return p.parseCall(name)
	}
	return p.parseIdentifierPath()
}

// parseCall parses (args) after a function name: f(), f(*), f([DISTINCT] expr, ...)
func (p *Parser) parseCall(name string) ast.Node {
	p.expect(token.LPAREN)
	fn := &ast.Function{Name: name}
	switch {
	case p.check(token.RPAREN):
	case p.check(token.STAR) && p.checkPeek(token.RPAREN):
		p.nextToken()
		fn.Args = []ast.Node{&ast.Star{}}
	default:
		fn.Distinct = p.match(token.DISTINCT)
		fn.Args = p.parseExpressionList()
	}
	p.expect(token.RPAREN)
	return fn
}

// parseCast parses CAST(expr AS type[(n, ...)]).
func (p *Parser) parseCast() ast.Node {
	p.expect(token.CAST)
	p.expect(token.LPAREN)
	arg := p.parseExpression()
	p.expect(token.AS)

	typ := strings.ToUpper(p.parseName(true))
	if p.match(token.LPAREN) {
		var args []string
		for p.check(token.NUMBER) {
			args = append(args, p.token.Literal)
			p.nextToken()
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RPAREN)
		typ += "(" + strings.Join(args, ", ") + ")"
	}
	p.expect(token.RPAREN)
	if arg == nil {
		return nil
	}
	return &ast.TypeCast{Arg: arg, Type: typ}
}

// parseParenExpr parses a scalar subquery, a grouped expression or a tuple.
func (p *Parser) parseParenExpr() ast.Node {
	if startsQuery(p.peek.Type) && p.peek.Type != token.LPAREN {
		p.nextToken()
		q := p.parseQuery()
		p.expect(token.RPAREN)
		return q
	}

	p.expect(token.LPAREN)
	first := p.parseExpression()
	if p.check(token.COMMA) {
		items := []ast.Node{first}
		for p.match(token.COMMA) {
			items = append(items, p.parseExpression())
		}
		p.expect(token.RPAREN)
		return &ast.Tuple{Items: items}
	}
	p.expect(token.RPAREN)
	if b, ok := first.(*ast.BinaryOperation); ok {
		b.Parens = true
	}
	return first
}
