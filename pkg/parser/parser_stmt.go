package parser

import (
	"fmt"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/token"
)

// ---------- Statement Parsing ----------

// parseStatement dispatches on the leading keyword.
func (p *Parser) parseStatement() ast.Node {
	switch p.token.Type {
	case token.SELECT, token.WITH, token.LPAREN:
		return p.parseQuery()
	case token.INSERT:
		return p.parseInsert()
	case token.UPDATE:
		return p.parseUpdate()
	case token.DELETE:
		return p.parseDelete()
	case token.CREATE:
		return p.parseCreateTable()
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "a statement"))
	return nil
}

// parseQuery parses: [WITH cte_list] set_operation
func (p *Parser) parseQuery() ast.Node {
	var ctes []*ast.CTE
	if p.match(token.WITH) {
		ctes = p.parseCTEList()
	}
	q := p.parseSetOperation()
	if len(ctes) > 0 {
		if sel := leftmostSelect(q); sel != nil {
			sel.CTEs = append(ctes, sel.CTEs...)
		}
	}
	return q
}

// leftmostSelect returns the first SELECT of a set operation chain, which is
// planned first and so owns the WITH clause.
func leftmostSelect(n ast.Node) *ast.Select {
	for {
		switch q := n.(type) {
		case *ast.Select:
			return q
		case *ast.Union:
			n = q.Left
		default:
			return nil
		}
	}
}

// parseCTEList parses: name [(col, ...)] AS (query) {, ...}
func (p *Parser) parseCTEList() []*ast.CTE {
	var ctes []*ast.CTE
	for {
		cte := &ast.CTE{Name: p.parseName(false)}
		if p.match(token.LPAREN) {
			cte.Columns = p.parseNameList()
			p.expect(token.RPAREN)
		}
		p.expect(token.AS)
		p.expect(token.LPAREN)
		cte.Query = p.parseQuery()
		p.expect(token.RPAREN)
		ctes = append(ctes, cte)

		if !p.match(token.COMMA) {
			return ctes
		}
	}
}

func (p *Parser) parseNameList() []string {
	names := []string{p.parseName(true)}
	for p.match(token.COMMA) {
		names = append(names, p.parseName(true))
	}
	return names
}

// parseSetOperation parses left-associative UNION, INTERSECT and EXCEPT chains.
func (p *Parser) parseSetOperation() ast.Node {
	left := p.parseSelectCore()
	for {
		var op ast.SetOp
		switch p.token.Type {
		case token.UNION:
			op = ast.OpUnion
		case token.INTERSECT:
			op = ast.OpIntersect
		case token.EXCEPT:
			op = ast.OpExcept
		default:
			return left
		}
		p.nextToken()

		unique := true
		if p.match(token.ALL) {
			unique = false
		} else {
			p.match(token.DISTINCT)
		}
		right := p.parseSelectCore()
		left = &ast.Union{Op: op, Left: left, Right: right, Unique: unique}
	}
}

// parseSelectCore parses a SELECT or a parenthesized query.
func (p *Parser) parseSelectCore() ast.Node {
	if p.match(token.LPAREN) {
		q := p.parseQuery()
		p.expect(token.RPAREN)
		if sel, ok := q.(*ast.Select); ok {
			sel.Parens = true
		}
		return q
	}

	sel := &ast.Select{}
	if !p.expect(token.SELECT) {
		return sel
	}
	if p.match(token.DISTINCT) {
		sel.Distinct = true
	} else {
		p.match(token.ALL)
	}
	sel.Targets = p.parseTargets()

	if p.match(token.FROM) {
		sel.From = p.parseFromClause()
	}
	if p.match(token.WHERE) {
		sel.Where = p.parseExpression()
	}
	if p.match(token.GROUP) {
		p.expect(token.BY)
		sel.GroupBy = p.parseExpressionList()
	}
	if p.match(token.HAVING) {
		sel.Having = p.parseExpression()
	}
	if p.match(token.ORDER) {
		p.expect(token.BY)
		sel.OrderBy = p.parseOrderByList()
	}
	if p.match(token.LIMIT) {
		first := p.parseIntConstant("LIMIT")
		if p.match(token.COMMA) {
			sel.Offset = first
			sel.Limit = p.parseIntConstant("LIMIT")
		} else {
			sel.Limit = first
		}
	}
	if p.match(token.OFFSET) {
		sel.Offset = p.parseIntConstant("OFFSET")
	}
	if p.match(token.USING) {
		sel.Using = p.parseUsing()
	}
	return sel
}

// parseTargets parses the select list.
func (p *Parser) parseTargets() []ast.Node {
	var targets []ast.Node
	for {
		if p.match(token.STAR) {
			targets = append(targets, &ast.Star{})
		} else if expr := p.parseExpression(); expr != nil {
			if alias := p.parseAlias(); alias != "" {
				expr = ast.WithAlias(expr, alias)
			}
			targets = append(targets, expr)
		}
		if !p.match(token.COMMA) {
			return targets
		}
	}
}

// parseOrderByList parses: expr [ASC|DESC] [NULLS FIRST|LAST] {, ...}
func (p *Parser) parseOrderByList() []*ast.OrderBy {
	var items []*ast.OrderBy
	for {
		item := &ast.OrderBy{Field: p.parseExpression()}
		switch {
		case p.match(token.ASC):
			item.Direction = "ASC"
		case p.match(token.DESC):
			item.Direction = "DESC"
		}
		if p.match(token.NULLS) {
			switch {
			case p.match(token.FIRST):
				item.Nulls = "NULLS FIRST"
			case p.match(token.LAST):
				item.Nulls = "NULLS LAST"
			default:
				p.addError(fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), "FIRST or LAST"))
			}
		}
		items = append(items, item)
		if !p.match(token.COMMA) {
			return items
		}
	}
}

// parseUsing parses: name = value {, name = value}. Values become plain Go
// values; bare words are kept as strings.
func (p *Parser) parseUsing() map[string]any {
	using := map[string]any{}
	for {
		key := p.parseName(true)
		p.expect(token.EQ)
		switch v := p.parseExpressionWithPrecedence(precAddition).(type) {
		case *ast.Constant:
			using[key] = v.Value
		case *ast.Identifier:
			using[key] = v.Path()
		case nil:
		default:
			p.addError(fmt.Sprintf("USING value for %s must be a literal, found %s", key, ast.String(v)))
		}
		if !p.match(token.COMMA) {
			return using
		}
	}
}

// parseInsert parses: INSERT INTO path [(col, ...)] (VALUES rows | query)
func (p *Parser) parseInsert() ast.Node {
	p.expect(token.INSERT)
	p.expect(token.INTO)
	ins := &ast.Insert{Table: p.parseIdentifierPath()}

	if p.check(token.LPAREN) && !startsQuery(p.peek.Type) {
		p.nextToken()
		for {
			ins.Columns = append(ins.Columns, p.parseIdentifierPath())
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RPAREN)
	}

	if p.match(token.VALUES) {
		ins.Values = p.parseValueRows()
	} else {
		ins.From = p.parseQuery()
	}
	return ins
}

// parseValueRows parses: (expr, ...) {, (expr, ...)}
func (p *Parser) parseValueRows() [][]ast.Node {
	var rows [][]ast.Node
	for {
		p.expect(token.LPAREN)
		rows = append(rows, p.parseExpressionList())
		p.expect(token.RPAREN)
		if !p.match(token.COMMA) {
			return rows
		}
	}
}

// parseUpdate parses: UPDATE path SET col = expr {, ...} [FROM (query) [AS] alias] [WHERE expr]
func (p *Parser) parseUpdate() ast.Node {
	p.expect(token.UPDATE)
	up := &ast.Update{Table: p.parseIdentifierPath()}
	p.expect(token.SET)
	for {
		col := p.parseIdentifierPath()
		p.expect(token.EQ)
		up.Set = append(up.Set, &ast.Assignment{Column: col.Last(), Value: p.parseExpression()})
		if !p.match(token.COMMA) {
			break
		}
	}
	if p.match(token.FROM) {
		p.expect(token.LPAREN)
		up.From = p.parseQuery()
		p.expect(token.RPAREN)
		up.FromAlias = p.parseAlias()
	}
	if p.match(token.WHERE) {
		up.Where = p.parseExpression()
	}
	return up
}

// parseDelete parses: DELETE FROM path [WHERE expr]
func (p *Parser) parseDelete() ast.Node {
	p.expect(token.DELETE)
	p.expect(token.FROM)
	del := &ast.Delete{Table: p.parseIdentifierPath()}
	if p.match(token.WHERE) {
		del.Where = p.parseExpression()
	}
	return del
}

// parseCreateTable parses: CREATE [OR REPLACE] TABLE path [AS] [query]
func (p *Parser) parseCreateTable() ast.Node {
	p.expect(token.CREATE)
	ct := &ast.CreateTable{}
	if p.match(token.OR) {
		p.expect(token.REPLACE)
		ct.Replace = true
	}
	p.expect(token.TABLE)
	ct.Name = p.parseIdentifierPath()
	p.match(token.AS)
	if startsQuery(p.token.Type) {
		ct.From = p.parseQuery()
		if sel, ok := ct.From.(*ast.Select); ok {
			sel.Parens = false
		}
	}
	return ct
}

func startsQuery(t token.TokenType) bool {
	switch t {
	case token.SELECT, token.WITH, token.LPAREN:
		return true
	}
	return false
}
