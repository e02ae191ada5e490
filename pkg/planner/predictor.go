package planner

import (
	"maps"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/plan"
)

// selectFromPredictor plans a point prediction: the WHERE clause supplies one
// row of predictor inputs as column = value pairs. WHERE 1 = 0 asks for the
// predictor columns only.
func (b *builder) selectFromPredictor(sel *ast.Select, pred predictorRef) (plan.Result, error) {
	flat, err := b.flattenSelect(sel, "", true)
	if err != nil {
		return plan.Result{}, err
	}

	if isColumnsProbe(flat.Where) {
		res := b.plan.Add(&plan.GetPredictorColumns{Namespace: pred.namespace, Predictor: pred.name()})
		return b.project(flat.Targets, res), nil
	}

	targets := make([]ast.Node, 0, len(flat.Targets))
	for _, t := range flat.Targets {
		switch t := t.(type) {
		case *ast.Identifier:
			targets = append(targets, pred.column(t))
		case *ast.Star, *ast.Constant:
			targets = append(targets, ast.Clone(t))
		default:
			return plan.Result{}, errorf("unknown select target %s when selecting from predictor", ast.String(t))
		}
	}

	if len(flat.GroupBy) > 0 || flat.Having != nil {
		return plan.Result{}, errorf("GROUP BY and HAVING are not allowed when selecting from a predictor")
	}
	if flat.Where == nil {
		return plan.Result{}, errorf("WHERE clause required when selecting from predictor %s", pred.name().Path())
	}

	rowDict := make(map[string]any)
	if err := extractColumnValues(flat.Where, pred, rowDict); err != nil {
		return plan.Result{}, err
	}
	b.log.Debug("point prediction", "predictor", pred.name().Path(), "columns", len(rowDict))
	res := b.plan.Add(&plan.ApplyPredictorRowStep{
		Namespace: pred.namespace,
		Predictor: pred.name(),
		RowDict:   rowDict,
		Params:    maps.Clone(sel.Using),
	})
	return b.project(targets, res), nil
}

// isColumnsProbe matches the literal condition 1 = 0.
func isColumnsProbe(where ast.Node) bool {
	bin, ok := where.(*ast.BinaryOperation)
	if !ok || bin.Op != "=" {
		return false
	}
	l, lok := bin.Args[0].(*ast.Constant)
	r, rok := bin.Args[1].(*ast.Constant)
	return lok && rok && l.Value == int64(1) && r.Value == int64(0)
}

func extractColumnValues(n ast.Node, pred predictorRef, row map[string]any) error {
	bin, ok := n.(*ast.BinaryOperation)
	if !ok {
		return errorf("only 'and' and '=' operations allowed in WHERE clause when selecting from a predictor, found: %s", ast.ExprString(n))
	}
	switch bin.Op {
	case "and":
		if err := extractColumnValues(bin.Args[0], pred, row); err != nil {
			return err
		}
		return extractColumnValues(bin.Args[1], pred, row)
	case "=":
		id, isIdent := bin.Args[0].(*ast.Identifier)
		if _, swapped := bin.Args[1].(*ast.Identifier); !isIdent && swapped && isValue(bin.Args[0]) {
			return errorf("WHERE clause when selecting from a predictor must name the column on the left of '=': write %s = %s",
				ast.ExprString(bin.Args[1]), ast.ExprString(bin.Args[0]))
		}
		if !isIdent || !isValue(bin.Args[1]) {
			return errorf("WHERE clause when selecting from a predictor must contain pairs 'column = value', found: %s", ast.ExprString(n))
		}
		key := pred.column(id).Path()
		if _, dup := row[key]; dup {
			return errorf("multiple values provided for %s", key)
		}
		row[key] = rowValue(bin.Args[1])
		return nil
	}
	return errorf("only 'and' and '=' operations allowed in WHERE clause when selecting from a predictor, found: %s", ast.ExprString(n))
}

// rowValue is the row dict entry for a constant or a parameter bound to a result.
func rowValue(n ast.Node) any {
	if c, ok := n.(*ast.Constant); ok {
		return c.Value
	}
	return ast.Clone(n)
}

// join plans SELECT ... FROM <join>. A join of one table with one predictor
// takes the batch or time series prediction path.
func (b *builder) join(sel *ast.Select, j *ast.Join) (plan.Result, error) {
	flat, err := b.flattenSelect(sel, "", true)
	if err != nil {
		return plan.Result{}, err
	}
	left, lok := j.Left.(*ast.Identifier)
	right, rok := j.Right.(*ast.Identifier)
	if lok && rok {
		lp, lpred := b.predictor(left)
		rp, rpred := b.predictor(right)
		switch {
		case lpred && rpred:
			return plan.Result{}, errorf("can't join two predictors %s and %s", left.Path(), right.Path())
		case lpred:
			return b.predictorJoin(flat, j, right, lp, true)
		case rpred:
			return b.predictorJoin(flat, j, left, rp, false)
		}
	}
	return b.joinTables(flat)
}

// predictorJoin plans table JOIN predictor, keeping the side order of the
// original join in the synthesized one.
func (b *builder) predictorJoin(sel *ast.Select, j *ast.Join, table *ast.Identifier, pred predictorRef, predictorIsLeft bool) (plan.Result, error) {
	if pred.info.Timeseries {
		return b.timeseriesJoin(sel, j, table, pred, predictorIsLeft)
	}
	tableItem, err := b.joinSource(table)
	if err != nil {
		return plan.Result{}, err
	}
	b.log.Debug("batch prediction", "predictor", pred.name().Path(), "table", table.Path())
	predItem := &joinItem{source: pred.ident, predictor: &pred, aliases: pred.prefixes(), canon: pred.alias()}
	seq := []*joinItem{tableItem, predItem, {join: j, swap: predictorIsLeft}}
	return b.assembleJoin(sel, seq)
}

// applyPredictor runs the predictor of it over df. Equalities pushed to the
// predictor become its row dict.
func (b *builder) applyPredictor(sel *ast.Select, it *joinItem, df plan.Result) (plan.Result, error) {
	var rowDict map[string]any
	for _, cond := range it.conds {
		bin := cond.(*ast.BinaryOperation)
		col := bin.Args[0].(*ast.Identifier)
		key := strings.Join(col.Parts[1:], ".")
		if rowDict == nil {
			rowDict = make(map[string]any)
		}
		if _, dup := rowDict[key]; dup {
			return plan.Result{}, errorf("multiple values provided for %s", key)
		}
		rowDict[key] = rowValue(bin.Args[1])
	}
	return b.plan.Add(&plan.ApplyPredictorStep{
		Namespace: it.predictor.namespace,
		Predictor: it.predictor.name(),
		Dataframe: df,
		Params:    maps.Clone(sel.Using),
		RowDict:   rowDict,
	}), nil
}
