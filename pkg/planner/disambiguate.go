package planner

import (
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
)

// scopeTable is one table a column reference can bind to.
type scopeTable struct {
	ref   []string // alias, or the table path if unaliased; nil for anonymous sources
	alias bool
}

// match returns the canonical prefix for a column qualifier, accepting a
// trailing part of the table path when the table is unaliased.
func (t scopeTable) match(prefix []string) ([]string, bool) {
	if t.ref == nil || len(prefix) > len(t.ref) {
		return nil, false
	}
	if t.alias && len(prefix) != len(t.ref) {
		return nil, false
	}
	tail := t.ref[len(t.ref)-len(prefix):]
	for i := range prefix {
		if !strings.EqualFold(prefix[i], tail[i]) {
			return nil, false
		}
	}
	return t.ref, true
}

// scope is the set of tables visible to one SELECT, chained to the enclosing query.
type scope struct {
	tables []scopeTable
	parent *scope
}

func (s *scope) anonymous() bool {
	for _, t := range s.tables {
		if t.ref == nil {
			return true
		}
	}
	return len(s.tables) == 0
}

// disambiguator rewrites a query that is sent whole to one integration: table
// identifiers lose the integration prefix and column identifiers are qualified
// by the single table they can bind to.
type disambiguator struct {
	integration string
}

// prepareIntegrationSelect returns a copy of sel ready for integration.
func prepareIntegrationSelect(integration string, sel *ast.Select) (*ast.Select, error) {
	d := disambiguator{integration: integration}
	return d.selectStmt(sel, nil)
}

// stripIntegrationPrefix removes a leading integration segment from every
// identifier of an expression, without qualifying bare columns.
func stripIntegrationPrefix(integration string, n ast.Node) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	d := disambiguator{integration: integration}
	return d.expr(n, &scope{}, nil)
}

func (d disambiguator) strip(parts []string) []string {
	if len(parts) > 1 && strings.EqualFold(parts[0], d.integration) {
		return parts[1:]
	}
	return parts
}

func (d disambiguator) selectStmt(sel *ast.Select, parent *scope) (*ast.Select, error) {
	out := ast.Clone(sel)
	out.Using = nil

	sc := &scope{parent: parent}
	from, err := d.source(sel.From, sc)
	if err != nil {
		return nil, err
	}
	out.From = from

	for i, cte := range sel.CTEs {
		if q, ok := cte.Query.(*ast.Select); ok {
			prepared, err := d.selectStmt(q, parent)
			if err != nil {
				return nil, err
			}
			out.CTEs[i].Query = prepared
		}
	}

	for i, t := range sel.Targets {
		if id, ok := t.(*ast.Identifier); ok {
			if out.Targets[i], err = d.column(id, sc, true); err != nil {
				return nil, err
			}
			continue
		}
		if out.Targets[i], err = d.expr(t, sc, nil); err != nil {
			return nil, err
		}
	}

	if out.Where, err = d.expr(sel.Where, sc, nil); err != nil {
		return nil, err
	}

	// GROUP BY, HAVING and ORDER BY may name target aliases, which stay bare.
	aliases := make(map[string]bool)
	for _, t := range sel.Targets {
		if a := ast.AliasOf(t); a != "" {
			aliases[strings.ToLower(a)] = true
		}
	}
	for i, g := range sel.GroupBy {
		if out.GroupBy[i], err = d.expr(g, sc, aliases); err != nil {
			return nil, err
		}
	}
	if out.Having, err = d.expr(sel.Having, sc, aliases); err != nil {
		return nil, err
	}
	for i, o := range sel.OrderBy {
		if out.OrderBy[i].Field, err = d.expr(o.Field, sc, aliases); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// source rewrites a FROM item and registers the tables it exposes in sc.
func (d disambiguator) source(n ast.Node, sc *scope) (ast.Node, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case *ast.Identifier:
		t := &ast.Identifier{Parts: append([]string(nil), d.strip(n.Parts)...), Alias: n.Alias}
		if n.Alias != "" {
			sc.tables = append(sc.tables, scopeTable{ref: []string{n.Alias}, alias: true})
		} else {
			sc.tables = append(sc.tables, scopeTable{ref: t.Parts})
		}
		return t, nil
	case *ast.Select:
		inner, err := d.selectStmt(n, sc.parent)
		if err != nil {
			return nil, err
		}
		sc.tables = append(sc.tables, aliasTable(n.Alias))
		return inner, nil
	case *ast.Union:
		out := ast.Clone(n)
		var err error
		if out.Left, err = d.query(n.Left, sc.parent); err != nil {
			return nil, err
		}
		if out.Right, err = d.query(n.Right, sc.parent); err != nil {
			return nil, err
		}
		sc.tables = append(sc.tables, aliasTable(n.Alias))
		return out, nil
	case *ast.Join:
		left, err := d.source(n.Left, sc)
		if err != nil {
			return nil, err
		}
		right, err := d.source(n.Right, sc)
		if err != nil {
			return nil, err
		}
		cond, err := d.expr(n.Condition, sc, nil)
		if err != nil {
			return nil, err
		}
		return &ast.Join{Left: left, Right: right, Type: n.Type, Condition: cond, Implicit: n.Implicit}, nil
	case *ast.NativeQuery:
		sc.tables = append(sc.tables, aliasTable(n.Alias))
		return ast.Clone(n), nil
	case *ast.Data:
		sc.tables = append(sc.tables, aliasTable(n.Alias))
		return ast.Clone(n), nil
	}
	return nil, errorf("unsupported table source %s", kindName(n))
}

func aliasTable(alias string) scopeTable {
	if alias == "" {
		return scopeTable{}
	}
	return scopeTable{ref: []string{alias}, alias: true}
}

func (d disambiguator) query(n ast.Node, parent *scope) (ast.Node, error) {
	switch q := n.(type) {
	case *ast.Select:
		return d.selectStmt(q, parent)
	case *ast.Union:
		out := ast.Clone(q)
		var err error
		if out.Left, err = d.query(q.Left, parent); err != nil {
			return nil, err
		}
		if out.Right, err = d.query(q.Right, parent); err != nil {
			return nil, err
		}
		return out, nil
	}
	return ast.Clone(n), nil
}

// expr rewrites every column reference of an expression tree. Subqueries
// are rewritten in their own scope chained to sc.
func (d disambiguator) expr(n ast.Node, sc *scope, targetAliases map[string]bool) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	return ast.Rewrite(n, func(n ast.Node, _ ast.Slot) (ast.Node, error) {
		switch n := n.(type) {
		case *ast.Identifier:
			if len(n.Parts) == 1 && targetAliases[strings.ToLower(n.Parts[0])] {
				return ast.Clone(n), nil
			}
			return d.column(n, sc, false)
		case *ast.Select, *ast.Union:
			return d.query(n, sc)
		}
		return nil, nil
	})
}

// column applies the qualification rule to one column reference. A SELECT
// target keeps its pre-rewrite name as alias so output columns are stable.
func (d disambiguator) column(id *ast.Identifier, sc *scope, isTarget bool) (*ast.Identifier, error) {
	parts := d.strip(id.Parts)
	out := &ast.Identifier{Alias: id.Alias}

	switch {
	case len(parts) > 1:
		prefix, col := parts[:len(parts)-1], parts[len(parts)-1]
		resolved, found := resolveColumn(prefix, sc)
		switch {
		case found && resolved != nil:
			parts = append(append([]string(nil), resolved...), col)
		case found:
			// Bound to an enclosing query; keep it as written.
		case !sc.anonymous():
			return nil, errorf("table not found for identifier: %s", id.Path())
		}
	case len(parts) == 1 && len(sc.tables) == 1 && sc.tables[0].ref != nil:
		parts = append(append([]string(nil), sc.tables[0].ref...), parts[0])
	}

	out.Parts = append([]string(nil), parts...)
	if isTarget && out.Alias == "" && id.Last() != "*" {
		out.Alias = id.Last()
	}
	return out, nil
}

// resolveColumn looks up prefix in sc. A match in an enclosing scope reports
// found with a nil prefix so the reference is left untouched.
func resolveColumn(prefix []string, sc *scope) ([]string, bool) {
	for _, t := range sc.tables {
		if ref, ok := t.match(prefix); ok {
			return ref, true
		}
	}
	for p := sc.parent; p != nil; p = p.parent {
		for _, t := range p.tables {
			if _, ok := t.match(prefix); ok {
				return nil, true
			}
		}
	}
	return nil, false
}
