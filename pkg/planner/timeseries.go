package planner

import (
	"maps"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/plan"
)

var timeseriesOps = map[string]bool{
	"and": true, ">": true, ">=": true, "=": true, "<": true, "<=": true, "in": true,
}

// timeseriesJoin plans table JOIN predictor for a forecasting predictor. The
// table is fetched newest first with enough history for the predictor window,
// per partition when the predictor is grouped.
func (b *builder) timeseriesJoin(sel *ast.Select, j *ast.Join, table *ast.Identifier, pred predictorRef, predictorIsLeft bool) (plan.Result, error) {
	switch {
	case len(sel.OrderBy) > 0:
		return plan.Result{}, errorf("can't provide ORDER BY to time series predictor join")
	case len(sel.GroupBy) > 0:
		return plan.Result{}, errorf("can't provide GROUP BY to time series predictor join")
	case sel.Having != nil:
		return plan.Result{}, errorf("can't provide HAVING to time series predictor join")
	case sel.Offset != nil:
		return plan.Result{}, errorf("can't provide OFFSET to time series predictor join")
	}
	savedLimit, err := constInt("LIMIT", sel.Limit)
	if err != nil {
		return plan.Result{}, err
	}
	if _, _, err := b.resolveTable(table); err != nil {
		return plan.Result{}, err
	}

	info := pred.info
	allowed := map[string]bool{strings.ToLower(info.OrderBy): true}
	for _, g := range info.GroupBy {
		allowed[strings.ToLower(g)] = true
	}
	where, err := timeseriesWhere(sel.Where, allowed)
	if err != nil {
		return plan.Result{}, err
	}
	timeFilter, err := findTimeFilter(where, info.OrderBy)
	if err != nil {
		return plan.Result{}, err
	}
	b.log.Debug("time series prediction", "predictor", pred.name().Path(), "time_filter", ast.ExprString(timeFilter))

	ts := timeseriesFetch{table: table, orderBy: info.OrderBy, groupBy: info.GroupBy, window: int64(info.Window)}
	queries := ts.queries(where, timeFilter)

	var data plan.Result
	if len(info.GroupBy) > 0 {
		data, err = b.partitionedFetch(ts, queries, replaceNode(where, timeFilter, nil))
	} else {
		data, err = b.directFetch(queries)
	}
	if err != nil {
		return plan.Result{}, err
	}

	var outputFilter ast.Node
	if timeFilter != nil {
		outputFilter = ast.Clone(timeFilter)
	}
	predicted := b.plan.Add(&plan.ApplyTimeseriesPredictorStep{
		Namespace:        pred.namespace,
		Predictor:        pred.name(),
		Dataframe:        data,
		Params:           maps.Clone(sel.Using),
		OutputTimeFilter: outputFilter,
	})

	left := &ast.Identifier{Parts: []string{predicted.RefName()}, Alias: pred.alias()}
	right := &ast.Identifier{Parts: []string{data.RefName()}, Alias: tableName(table)}
	lres, rres := predicted, data
	if !predictorIsLeft {
		left, right = right, left
		lres, rres = rres, lres
	}
	last := b.plan.Add(&plan.JoinStep{
		Left:  lres,
		Right: rres,
		Query: &ast.Join{Left: left, Right: right, Type: j.Type},
	})
	if savedLimit != nil {
		last = b.plan.Add(&plan.LimitOffsetStep{Dataframe: last, Limit: savedLimit})
	}
	return b.project(sel.Targets, last), nil
}

// timeseriesWhere checks the WHERE clause of a time series join and returns a
// copy whose columns are unqualified.
func timeseriesWhere(where ast.Node, allowed map[string]bool) (ast.Node, error) {
	if where == nil {
		return nil, nil
	}
	return ast.Rewrite(where, func(n ast.Node, _ ast.Slot) (ast.Node, error) {
		switch n := n.(type) {
		case *ast.BinaryOperation:
			if !timeseriesOps[n.Op] {
				return nil, errorf("unsupported operation in WHERE of time series predictor join: %s", strings.ToUpper(n.Op))
			}
			return nil, nil
		case *ast.Identifier:
			col := n.Last()
			if !allowed[strings.ToLower(col)] {
				return nil, errorf("only the order by and group by columns of the predictor can be used in WHERE, found: %s", n.Path())
			}
			return &ast.Identifier{Parts: []string{col}}, nil
		case *ast.BetweenOperation, *ast.Constant, *ast.Latest, *ast.Parameter, *ast.Tuple:
			return nil, nil
		}
		return nil, errorf("unsupported expression in WHERE of time series predictor join: %s", ast.ExprString(n))
	})
}

// findTimeFilter returns the single condition of the AND tree where that
// compares the order by column.
func findTimeFilter(where ast.Node, orderBy string) (ast.Node, error) {
	var found []ast.Node
	var visit func(n ast.Node)
	visit = func(n ast.Node) {
		switch n := n.(type) {
		case *ast.BinaryOperation:
			if n.Op == "and" {
				visit(n.Args[0])
				visit(n.Args[1])
				return
			}
			if isColumn(n.Args[0], orderBy) {
				found = append(found, n)
			}
		case *ast.BetweenOperation:
			if isColumn(n.Args[0], orderBy) {
				found = append(found, n)
			}
		}
	}
	visit(where)
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	}
	return nil, errorf("only one filter by %s column allowed", orderBy)
}

func isColumn(n ast.Node, name string) bool {
	id, ok := n.(*ast.Identifier)
	return ok && strings.EqualFold(id.Last(), name)
}

// replaceNode returns a copy of the AND tree where with target, matched by
// identity, substituted by repl. A nil repl removes the condition.
func replaceNode(where, target, repl ast.Node) ast.Node {
	if where == nil || target == nil {
		return where
	}
	if where == target {
		return repl
	}
	bin, ok := where.(*ast.BinaryOperation)
	if !ok || bin.Op != "and" {
		return where
	}
	l := replaceNode(bin.Args[0], target, repl)
	r := replaceNode(bin.Args[1], target, repl)
	switch {
	case l == nil:
		return r
	case r == nil:
		return l
	}
	return &ast.BinaryOperation{Op: "and", Args: [2]ast.Node{l, r}, Parens: bin.Parens}
}

// timeseriesFetch builds the history queries for one time series join.
type timeseriesFetch struct {
	table   *ast.Identifier
	orderBy string
	groupBy []string
	window  int64
}

// queries maps the time filter onto the fetches feeding the predictor: a
// window of history before the requested range, then the range itself.
func (ts timeseriesFetch) queries(where, timeFilter ast.Node) []*ast.Select {
	col := func() *ast.Identifier { return ast.NewIdentifier(ts.orderBy) }
	history := func(op string, bound ast.Node) *ast.Select {
		cond := ast.Binary(op, col(), ast.Clone(bound))
		return ts.query(replaceNode(where, timeFilter, cond), true)
	}

	switch f := timeFilter.(type) {
	case *ast.BetweenOperation:
		return []*ast.Select{history("<", f.Args[1]), ts.query(where, false)}
	case *ast.BinaryOperation:
		if _, latest := f.Args[1].(*ast.Latest); latest && (f.Op == ">" || f.Op == "=") {
			return []*ast.Select{ts.query(replaceNode(where, timeFilter, nil), true)}
		}
		switch f.Op {
		case ">":
			return []*ast.Select{history("<=", f.Args[1]), ts.query(where, false)}
		case ">=":
			return []*ast.Select{history("<", f.Args[1]), ts.query(where, false)}
		}
	}
	return []*ast.Select{ts.query(where, false)}
}

func (ts timeseriesFetch) query(where ast.Node, windowed bool) *ast.Select {
	conds := []ast.Node{where, ast.Binary("is not", ast.NewIdentifier(ts.orderBy), ast.Null())}
	for _, g := range ts.groupBy {
		conds = append(conds, ast.Binary("=", ast.NewIdentifier(g), plan.VarPlaceholder(g)))
	}
	q := &ast.Select{
		Targets: []ast.Node{&ast.Star{}},
		From:    ast.Clone(ts.table),
		Where:   ast.And(conds...),
		OrderBy: []*ast.OrderBy{{Field: ast.NewIdentifier(ts.orderBy), Direction: "DESC"}},
	}
	if windowed {
		q.Limit = ast.NewConstant(ts.window)
	}
	return q
}

func (b *builder) directFetch(queries []*ast.Select) (plan.Result, error) {
	steps, err := b.fetchTemplates(queries)
	if err != nil {
		return plan.Result{}, err
	}
	if len(steps) == 1 {
		return b.plan.Add(steps[0]), nil
	}
	return b.plan.Add(&plan.MultipleSteps{Steps: steps, Reduce: plan.ReduceUnion}), nil
}

// partitionedFetch enumerates the partitions of the table and runs the
// history fetches once per partition.
func (b *builder) partitionedFetch(ts timeseriesFetch, queries []*ast.Select, where ast.Node) (plan.Result, error) {
	targets := make([]ast.Node, len(ts.groupBy))
	for i, g := range ts.groupBy {
		targets[i] = ast.NewIdentifier(g)
	}
	partitions, err := b.integrationSelect(&ast.Select{
		Targets:  targets,
		Distinct: true,
		From:     ast.Clone(ts.table),
		Where:    where,
	})
	if err != nil {
		return plan.Result{}, err
	}
	steps, err := b.fetchTemplates(queries)
	if err != nil {
		return plan.Result{}, err
	}
	var template plan.Step = steps[0]
	if len(steps) > 1 {
		template = &plan.MultipleSteps{Steps: steps, Reduce: plan.ReduceUnion}
	}
	return b.plan.Add(&plan.MapReduceStep{Values: partitions, Reduce: plan.ReduceUnion, Step: template}), nil
}

func (b *builder) fetchTemplates(queries []*ast.Select) ([]plan.Step, error) {
	steps := make([]plan.Step, len(queries))
	for i, q := range queries {
		s, err := b.integrationFetch(q)
		if err != nil {
			return nil, err
		}
		steps[i] = s
	}
	return steps, nil
}
