package planner

import (
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/plan"
)

// joinItem is one entry of a linearized join: either a table source or a
// marker combining the two operands produced before it.
type joinItem struct {
	// marker fields
	join *ast.Join
	swap bool

	// source fields
	source      ast.Node
	integration string
	predictor   *predictorRef
	cte         *plan.Result
	aliases     [][]string
	canon       string
	conds       []ast.Node

	// clauses pushed into the fetch of a table joined with a predictor
	orderBy []*ast.OrderBy
	limit   *ast.Constant
	offset  *ast.Constant
}

func (it *joinItem) isMarker() bool { return it.join != nil }

// linearize flattens a left-deep join into its sources and markers, in
// execution order.
func (b *builder) linearize(n ast.Node) ([]*joinItem, error) {
	j, ok := n.(*ast.Join)
	if !ok {
		item, err := b.joinSource(n)
		if err != nil {
			return nil, err
		}
		return []*joinItem{item}, nil
	}
	if _, nested := j.Right.(*ast.Join); nested {
		return nil, unsupportedf("right-nested joins are not supported")
	}
	seq, err := b.linearize(j.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.joinSource(j.Right)
	if err != nil {
		return nil, err
	}
	return append(seq, right, &joinItem{join: j}), nil
}

// joinSource resolves one FROM item of a join.
func (b *builder) joinSource(n ast.Node) (*joinItem, error) {
	switch n := n.(type) {
	case *ast.Identifier:
		if res, ok := b.cteRef(n); ok {
			name := tableName(n)
			return &joinItem{source: n, cte: &res, aliases: [][]string{{name}}, canon: name}, nil
		}
		if pred, ok := b.predictor(n); ok {
			return &joinItem{source: n, predictor: &pred, aliases: pred.prefixes(), canon: pred.alias()}, nil
		}
		integration, table, err := b.resolveTable(n)
		if err != nil {
			return nil, err
		}
		item := &joinItem{source: n, integration: integration, canon: tableName(table)}
		if n.Alias != "" {
			item.aliases = [][]string{{n.Alias}}
		} else {
			// Any trailing part of the qualified path may be used to refer to the table.
			full := append([]string{integration}, table.Parts...)
			for i := range full {
				item.aliases = append(item.aliases, full[i:])
			}
		}
		return item, nil
	case *ast.Select, *ast.Union, *ast.NativeQuery, *ast.Data:
		alias := ast.AliasOf(n)
		if alias == "" {
			return nil, errorf("%s in a join must have an alias", strings.ToLower(kindName(n)))
		}
		return &joinItem{source: n, aliases: [][]string{{alias}}, canon: alias}, nil
	}
	return nil, errorf("unsupported join source %s", kindName(n))
}

// joinScope indexes the sources of a join by every name they can be referred to.
type joinScope struct {
	items   []*joinItem
	byCanon map[string]int
	keys    map[string]int
}

const ambiguous = -1

func newJoinScope(seq []*joinItem) (*joinScope, error) {
	s := &joinScope{byCanon: make(map[string]int), keys: make(map[string]int)}
	for _, it := range seq {
		if it.isMarker() {
			continue
		}
		idx := len(s.items)
		s.items = append(s.items, it)
		canon := strings.ToLower(it.canon)
		if _, dup := s.byCanon[canon]; dup {
			return nil, errorf("duplicate table name in join: %s", it.canon)
		}
		s.byCanon[canon] = idx
		for _, a := range it.aliases {
			key := foldKey(a)
			if prev, seen := s.keys[key]; seen && prev != idx {
				s.keys[key] = ambiguous
				continue
			}
			s.keys[key] = idx
		}
	}
	return s, nil
}

func foldKey(parts []string) string {
	return strings.ToLower(strings.Join(parts, "."))
}

func (s *joinScope) lookup(prefix []string) (int, bool, error) {
	idx, ok := s.keys[foldKey(prefix)]
	if !ok {
		return 0, false, nil
	}
	if idx == ambiguous {
		return 0, false, errorf("ambiguous table reference: %s", strings.Join(prefix, "."))
	}
	return idx, true, nil
}

// canonical rewrites the column references of n to <canonical table name>.<column>.
// onBare decides what happens to unqualified columns; nil keeps them as written.
func (s *joinScope) canonical(n ast.Node, onBare func(*ast.Identifier) error) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	return ast.Rewrite(n, func(n ast.Node, _ ast.Slot) (ast.Node, error) {
		switch n := n.(type) {
		case *ast.Identifier:
			return s.column(n, onBare)
		case *ast.Select, *ast.Union:
			return ast.Clone(n), nil
		}
		return nil, nil
	})
}

func (s *joinScope) column(id *ast.Identifier, onBare func(*ast.Identifier) error) (*ast.Identifier, error) {
	if len(id.Parts) == 1 {
		if onBare != nil {
			if err := onBare(id); err != nil {
				return nil, err
			}
		}
		return ast.Clone(id), nil
	}
	for k := len(id.Parts) - 1; k >= 1; k-- {
		idx, ok, err := s.lookup(id.Parts[:k])
		if err != nil {
			return nil, err
		}
		if ok {
			parts := append([]string{s.items[idx].canon}, id.Parts[k:]...)
			return &ast.Identifier{Parts: parts, Alias: id.Alias}, nil
		}
	}
	return nil, errorf("table not found for identifier: %s", id.Path())
}

// owner returns the source a condition can be pushed to: a binary comparison
// between one of its columns and a constant or parameter.
func (s *joinScope) owner(cond ast.Node) (int, *ast.Identifier, ast.Node, bool) {
	bin, ok := cond.(*ast.BinaryOperation)
	if !ok || bin.Op == "and" || bin.Op == "or" {
		return 0, nil, nil, false
	}
	id, value := bin.Args[0], bin.Args[1]
	if _, isIdent := id.(*ast.Identifier); !isIdent {
		id, value = value, id
	}
	col, isIdent := id.(*ast.Identifier)
	if !isIdent || len(col.Parts) < 2 || !isValue(value) {
		return 0, nil, nil, false
	}
	idx, found := s.byCanon[strings.ToLower(col.Parts[0])]
	if !found {
		return 0, nil, nil, false
	}
	return idx, col, value, true
}

func isValue(n ast.Node) bool {
	switch n.(type) {
	case *ast.Constant, *ast.Parameter:
		return true
	}
	return false
}

func hasOr(n ast.Node) bool {
	found := false
	ast.Walk(n, func(n ast.Node, _ ast.Slot) bool {
		if bin, ok := n.(*ast.BinaryOperation); ok && bin.Op == "or" {
			found = true
		}
		return !found
	})
	return found
}

func bareWhereColumn(id *ast.Identifier) error {
	return errorf("ambiguous column in join, specify its table: %s", id.Path())
}

func bareJoinColumn(id *ast.Identifier) error {
	return errorf("no source table in join condition for column: %s", id.Path())
}

// joinQuery is a SELECT over a join, with every clause in canonical form.
type joinQuery struct {
	sel   *ast.Select
	scope *joinScope
	// where is the filter left for after the join
	where ast.Node
	// pushed reports that ORDER BY and LIMIT moved into a table fetch
	pushed bool
}

// splitWhere attributes conditions to the sources they can be pushed to.
// Predictor equalities become prediction inputs and are not applied again;
// every other condition is also kept for the filter after the join. An OR
// anywhere in the predicate disables all of this.
func (q *joinQuery) splitWhere(where ast.Node) error {
	if where == nil {
		return nil
	}
	if hasOr(where) {
		q.where = where
		return nil
	}
	var residual []ast.Node
	for _, cond := range ast.Conjuncts(where) {
		idx, col, value, ok := q.scope.owner(cond)
		if !ok {
			residual = append(residual, cond)
			continue
		}
		item := q.scope.items[idx]
		if item.predictor != nil {
			if cond.(*ast.BinaryOperation).Op == "=" {
				item.conds = append(item.conds, &ast.BinaryOperation{Op: "=", Args: [2]ast.Node{col, value}})
				continue
			}
			residual = append(residual, cond)
			continue
		}
		item.conds = append(item.conds, cond)
		residual = append(residual, cond)
	}
	q.where = ast.And(residual...)
	return nil
}

// joinTables plans a SELECT whose FROM is a join of any shape the linearizer accepts.
func (b *builder) joinTables(sel *ast.Select) (plan.Result, error) {
	seq, err := b.linearize(sel.From)
	if err != nil {
		return plan.Result{}, err
	}
	return b.assembleJoin(sel, seq)
}

func (b *builder) assembleJoin(sel *ast.Select, seq []*joinItem) (plan.Result, error) {
	scope, err := newJoinScope(seq)
	if err != nil {
		return plan.Result{}, err
	}
	q, err := canonicalJoinQuery(sel, scope)
	if err != nil {
		return plan.Result{}, err
	}
	q.pushdown(seq)

	type operand struct {
		res   plan.Result
		alias string
	}
	var stack []operand
	for _, it := range seq {
		switch {
		case it.isMarker():
			if len(stack) < 2 {
				return plan.Result{}, errorf("join has no left side")
			}
			left, right := stack[len(stack)-2], stack[len(stack)-1]
			stack = stack[:len(stack)-2]
			cond, err := scope.canonical(it.join.Condition, bareJoinColumn)
			if err != nil {
				return plan.Result{}, err
			}
			if it.swap {
				left, right = right, left
			}
			res := b.plan.Add(&plan.JoinStep{
				Left:  left.res,
				Right: right.res,
				Query: &ast.Join{
					Left:      &ast.Identifier{Parts: []string{left.res.RefName()}, Alias: left.alias},
					Right:     &ast.Identifier{Parts: []string{right.res.RefName()}, Alias: right.alias},
					Type:      it.join.Type,
					Condition: cond,
					Implicit:  it.join.Implicit,
				},
			})
			stack = append(stack, operand{res: res})
		case it.predictor != nil:
			if len(stack) == 0 {
				return plan.Result{}, errorf("predictor %s can't be the first element of a join", it.predictor.name().Path())
			}
			if it.predictor.info.Timeseries {
				return plan.Result{}, unsupportedf("time series predictor %s is only supported in a join with a single table", it.predictor.name().Path())
			}
			if stack[len(stack)-1].alias != "" && isPredictorAlias(seq, stack[len(stack)-1].alias) {
				return plan.Result{}, errorf("can't join two predictors directly: %s", it.predictor.name().Path())
			}
			res, err := b.applyPredictor(sel, it, stack[len(stack)-1].res)
			if err != nil {
				return plan.Result{}, err
			}
			stack = append(stack, operand{res: res, alias: it.canon})
		default:
			res, err := b.joinSourceStep(it)
			if err != nil {
				return plan.Result{}, err
			}
			stack = append(stack, operand{res: res, alias: it.canon})
		}
	}
	if len(stack) != 1 {
		return plan.Result{}, errorf("join is incomplete")
	}
	return b.afterJoin(q, stack[0].res)
}

func isPredictorAlias(seq []*joinItem, alias string) bool {
	for _, it := range seq {
		if it.predictor != nil && it.canon == alias {
			return true
		}
	}
	return false
}

func canonicalJoinQuery(sel *ast.Select, scope *joinScope) (*joinQuery, error) {
	out := ast.Clone(sel)
	out.From = nil
	q := &joinQuery{sel: out, scope: scope}
	var err error
	for i, t := range sel.Targets {
		if out.Targets[i], err = scope.canonical(t, nil); err != nil {
			return nil, err
		}
	}
	if out.Where, err = scope.canonical(sel.Where, bareWhereColumn); err != nil {
		return nil, err
	}
	for i, g := range sel.GroupBy {
		if out.GroupBy[i], err = scope.canonical(g, nil); err != nil {
			return nil, err
		}
	}
	if out.Having, err = scope.canonical(sel.Having, nil); err != nil {
		return nil, err
	}
	for i, o := range sel.OrderBy {
		if out.OrderBy[i].Field, err = scope.canonical(o.Field, nil); err != nil {
			return nil, err
		}
	}
	if err := q.splitWhere(out.Where); err != nil {
		return nil, err
	}
	return q, nil
}

// pushdown moves ORDER BY, LIMIT and OFFSET into the fetch of a single table
// joined with a predictor, when nothing after the join can change row order
// or count.
func (q *joinQuery) pushdown(seq []*joinItem) {
	sel := q.sel
	if len(seq) != 3 || (sel.Limit == nil && sel.Offset == nil && len(sel.OrderBy) == 0) {
		return
	}
	if len(sel.GroupBy) > 0 || sel.Having != nil || sel.Distinct || seq[2].join.Condition != nil {
		return
	}
	var table *joinItem
	for _, it := range seq[:2] {
		if it.predictor == nil && it.cte == nil && it.integration != "" {
			table = it
		}
	}
	if table == nil || (seq[0].predictor == nil && seq[1].predictor == nil) {
		return
	}
	if q.where != nil {
		if hasOr(q.where) {
			return
		}
		for _, cond := range ast.Conjuncts(q.where) {
			idx, _, _, ok := q.scope.owner(cond)
			if !ok || q.scope.items[idx] != table {
				return
			}
		}
	}
	for _, o := range sel.OrderBy {
		id, ok := o.Field.(*ast.Identifier)
		if !ok || len(id.Parts) < 2 || !strings.EqualFold(id.Parts[0], table.canon) {
			return
		}
	}
	table.orderBy = sel.OrderBy
	table.limit = sel.Limit
	table.offset = sel.Offset
	q.pushed = true
}

// joinSourceStep plans the rows of one non-predictor join source with its
// pushed-down conditions.
func (b *builder) joinSourceStep(it *joinItem) (plan.Result, error) {
	where := ast.And(it.conds...)
	if it.cte != nil {
		return b.sourceFilter(*it.cte, it.canon, where), nil
	}
	switch src := it.source.(type) {
	case *ast.Identifier:
		fetch := &ast.Select{
			Targets: []ast.Node{&ast.Star{}},
			From:    ast.Clone(src),
			Where:   where,
			OrderBy: it.orderBy,
			Limit:   it.limit,
			Offset:  it.offset,
		}
		return b.integrationSelect(fetch)
	case *ast.NativeQuery:
		if !b.cat.HasIntegration(src.Integration) {
			return plan.Result{}, errorf("integration not found for: %s", src.Integration)
		}
		res := b.plan.Add(&plan.FetchDataframeStep{Integration: b.cat.CanonicalName(src.Integration), RawQuery: src.Query})
		return b.sourceFilter(res, it.canon, where), nil
	case *ast.Data:
		res := b.plan.Add(&plan.DataStep{Data: ast.WithAlias(src, "").(*ast.Data)})
		return b.sourceFilter(res, it.canon, where), nil
	}
	inner := ast.WithAlias(it.source, "")
	if s, ok := inner.(*ast.Select); ok {
		s.Parens = false
	}
	res, err := b.query(inner)
	if err != nil {
		return plan.Result{}, err
	}
	return b.sourceFilter(res, it.canon, where), nil
}

// sourceFilter names a planned source inside the join, applying its pushed-down conditions.
func (b *builder) sourceFilter(res plan.Result, name string, where ast.Node) plan.Result {
	return b.subSelectStep(&ast.Select{Targets: []ast.Node{&ast.Star{}}, Where: where}, res, name, false)
}

// afterJoin applies the clauses of the enclosing SELECT over the joined rows.
func (b *builder) afterJoin(q *joinQuery, last plan.Result) (plan.Result, error) {
	sel := q.sel
	if q.where != nil {
		last = b.plan.Add(&plan.FilterStep{Dataframe: last, Query: q.where})
	}
	if len(sel.GroupBy) > 0 {
		targets := make([]ast.Node, len(sel.Targets))
		for i, t := range sel.Targets {
			targets[i] = ast.WithAlias(t, "")
		}
		last = b.plan.Add(&plan.GroupByStep{Dataframe: last, Columns: sel.GroupBy, Targets: targets})
	}
	if sel.Having != nil {
		last = b.plan.Add(&plan.FilterStep{Dataframe: last, Query: sel.Having})
	}
	if !q.pushed {
		if len(sel.OrderBy) > 0 {
			last = b.plan.Add(&plan.OrderByStep{Dataframe: last, OrderBy: sel.OrderBy})
		}
		var err error
		if last, err = b.limitOffset(sel.Limit, sel.Offset, last); err != nil {
			return plan.Result{}, err
		}
	}
	return b.project(sel.Targets, last), nil
}

func (b *builder) limitOffset(limit, offset *ast.Constant, last plan.Result) (plan.Result, error) {
	if limit == nil && offset == nil {
		return last, nil
	}
	l, err := constInt("LIMIT", limit)
	if err != nil {
		return plan.Result{}, err
	}
	o, err := constInt("OFFSET", offset)
	if err != nil {
		return plan.Result{}, err
	}
	return b.plan.Add(&plan.LimitOffsetStep{Dataframe: last, Limit: l, Offset: o}), nil
}

func constInt(clause string, c *ast.Constant) (*int64, error) {
	if c == nil {
		return nil, nil
	}
	v, ok := c.Value.(int64)
	if !ok {
		return nil, errorf("%s must be an integer, found: %s", clause, ast.ExprString(c))
	}
	return &v, nil
}
