package planner

import (
	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
)

// queryInfo is what a read-only scan finds a query touching.
type queryInfo struct {
	integrations map[string]bool
	// mdbEntities counts sources no single integration can serve: predictors,
	// project objects, native queries, literal rows and WITH references.
	mdbEntities int
	predictors  int
}

func (b *builder) queryInfo(n ast.Node) queryInfo {
	info := queryInfo{integrations: make(map[string]bool)}
	ast.Walk(n, func(n ast.Node, slot ast.Slot) bool {
		switch n := n.(type) {
		case *ast.NativeQuery, *ast.Data:
			info.mdbEntities++
		case *ast.Identifier:
			if slot != ast.SlotTable {
				return true
			}
			if _, ok := b.cteRef(n); ok {
				info.mdbEntities++
				return true
			}
			if b.isPredictor(n) {
				info.predictors++
				info.mdbEntities++
				return true
			}
			integration, _, err := b.resolveTable(n)
			if err != nil {
				// Reported when the table itself is planned.
				return true
			}
			if b.cat.KindOf(integration) == catalog.KindProject {
				info.mdbEntities++
				return true
			}
			info.integrations[integration] = true
		}
		return true
	})
	return info
}

// needsOwnPlan reports whether a subquery cannot travel inside a query sent to main.
func (info queryInfo) needsOwnPlan(main string) bool {
	return len(info.integrations) > 1 || !info.integrations[main] || info.mdbEntities > 0
}

// flattenSubqueries plans every subquery of an expression tree that cannot be
// sent along to main (all of them when force is set) and replaces it by a
// parameter bound to its result. The outermost qualifying subquery is planned
// as a whole, which flattens its own subqueries first.
func (b *builder) flattenSubqueries(n ast.Node, slot ast.Slot, main string, force bool) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	return ast.RewriteSlot(n, slot, func(n ast.Node, slot ast.Slot) (ast.Node, error) {
		if slot == ast.SlotTable || !ast.IsQuery(n) {
			return nil, nil
		}
		if !force && !b.queryInfo(n).needsOwnPlan(main) {
			return nil, nil
		}
		inner := ast.WithAlias(n, "")
		if sel, ok := inner.(*ast.Select); ok {
			sel.Parens = false
		}
		b.log.Debug("planning subquery separately", "subquery", ast.ExprString(inner), "target", main)
		res, err := b.query(inner)
		if err != nil {
			return nil, err
		}
		return &ast.Parameter{Value: res}, nil
	})
}

// flattenSelect applies flattenSubqueries to the targets and WHERE of a copy of sel.
func (b *builder) flattenSelect(sel *ast.Select, main string, force bool) (*ast.Select, error) {
	out := ast.Clone(sel)
	for i, t := range out.Targets {
		ft, err := b.flattenSubqueries(t, ast.SlotTarget, main, force)
		if err != nil {
			return nil, err
		}
		out.Targets[i] = ft
	}
	where, err := b.flattenSubqueries(out.Where, ast.SlotExpr, main, force)
	if err != nil {
		return nil, err
	}
	out.Where = where
	return out, nil
}
