package planner

import (
	"maps"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/leapstack-labs/fedplan/pkg/plan"
)

func (b *builder) selectQuery(sel *ast.Select) (plan.Result, error) {
	if len(sel.CTEs) > 0 {
		outer := b.ctes
		b.ctes = maps.Clone(outer)
		defer func() { b.ctes = outer }()
		if err := b.planCTEs(sel.CTEs); err != nil {
			return plan.Result{}, err
		}
		sel = ast.Clone(sel)
		sel.CTEs = nil
	}

	switch from := sel.From.(type) {
	case nil:
		flat, err := b.flattenSelect(sel, "", true)
		if err != nil {
			return plan.Result{}, err
		}
		return b.plan.Add(&plan.QueryStep{Query: flat}), nil
	case *ast.Identifier:
		return b.selectFromTable(sel, from)
	case *ast.Select, *ast.Union:
		return b.nestedSelect(sel)
	case *ast.Join:
		return b.join(sel, from)
	case *ast.NativeQuery:
		if !b.cat.HasIntegration(from.Integration) {
			return plan.Result{}, errorf("integration not found for: %s", from.Integration)
		}
		res := b.plan.Add(&plan.FetchDataframeStep{
			Integration: b.cat.CanonicalName(from.Integration),
			RawQuery:    from.Query,
		})
		return b.subSelect(sel, res, false)
	case *ast.Data:
		res := b.plan.Add(&plan.DataStep{Data: ast.Clone(from)})
		return b.subSelect(sel, res, true)
	}
	return plan.Result{}, errorf("unsupported FROM source %s", kindName(sel.From))
}

func (b *builder) planCTEs(ctes []*ast.CTE) error {
	for _, cte := range ctes {
		res, err := b.query(cte.Query)
		if err != nil {
			return err
		}
		b.ctes[strings.ToLower(cte.Name)] = res
	}
	return nil
}

// selectFromTable plans SELECT ... FROM <identifier>.
func (b *builder) selectFromTable(sel *ast.Select, from *ast.Identifier) (plan.Result, error) {
	if res, ok := b.cteRef(from); ok {
		flat, err := b.flattenSelect(sel, "", true)
		if err != nil {
			return plan.Result{}, err
		}
		return b.subSelectStep(flat, res, tableName(from), false), nil
	}
	if pred, ok := b.predictor(from); ok {
		return b.selectFromPredictor(sel, pred)
	}

	integration, _, err := b.resolveTable(from)
	if err != nil {
		return plan.Result{}, err
	}
	isAPI := b.cat.KindOf(integration) == catalog.KindAPI
	flat, err := b.flattenSelect(sel, integration, isAPI)
	if err != nil {
		return plan.Result{}, err
	}
	if isAPI {
		return b.apiSelect(flat)
	}
	b.log.Debug("sending select to integration", "integration", integration)
	return b.integrationSelect(flat)
}

// integrationFetch builds the fetch step for a select over one integration table.
func (b *builder) integrationFetch(sel *ast.Select) (*plan.FetchDataframeStep, error) {
	from, ok := sel.From.(*ast.Identifier)
	if !ok {
		return nil, errorf("expected a table in FROM, found %s", kindName(sel.From))
	}
	integration, _, err := b.resolveTable(from)
	if err != nil {
		return nil, err
	}
	q, err := prepareIntegrationSelect(integration, sel)
	if err != nil {
		return nil, err
	}
	return &plan.FetchDataframeStep{Integration: integration, Query: q}, nil
}

func (b *builder) integrationSelect(sel *ast.Select) (plan.Result, error) {
	step, err := b.integrationFetch(sel)
	if err != nil {
		return plan.Result{}, err
	}
	return b.plan.Add(step), nil
}

// apiSelect keeps only the filter, and the limit when nothing reorders or
// aggregates, in the fetch; everything else runs locally over its result.
func (b *builder) apiSelect(sel *ast.Select) (plan.Result, error) {
	fetch := &ast.Select{
		Targets: []ast.Node{&ast.Star{}},
		From:    sel.From,
		Where:   sel.Where,
	}
	outer := ast.Clone(sel)
	outer.Where = nil
	if len(sel.OrderBy) == 0 && len(sel.GroupBy) == 0 && sel.Having == nil && !sel.Distinct && sel.Offset == nil {
		fetch.Limit = sel.Limit
		outer.Limit = nil
	}
	res, err := b.integrationSelect(fetch)
	if err != nil {
		return plan.Result{}, err
	}
	return b.subSelect(outer, res, false)
}

// nestedSelect plans SELECT ... FROM (subquery). A subquery served by one
// data integration travels inside the outer query.
func (b *builder) nestedSelect(sel *ast.Select) (plan.Result, error) {
	info := b.queryInfo(sel)
	if info.mdbEntities == 0 && len(info.integrations) == 1 {
		var integration string
		for name := range info.integrations {
			integration = name
		}
		if b.cat.KindOf(integration) != catalog.KindAPI {
			q, err := prepareIntegrationSelect(integration, sel)
			if err != nil {
				return plan.Result{}, err
			}
			return b.plan.Add(&plan.FetchDataframeStep{Integration: integration, Query: q}), nil
		}
	}

	inner := ast.WithAlias(sel.From, "")
	if s, ok := inner.(*ast.Select); ok {
		s.Parens = false
	}
	res, err := b.query(inner)
	if err != nil {
		return plan.Result{}, err
	}
	return b.subSelect(sel, res, false)
}

// subSelect layers the clauses of sel over an already planned FROM result.
// A bare SELECT * adds nothing.
func (b *builder) subSelect(sel *ast.Select, prev plan.Result, addAbsentCols bool) (plan.Result, error) {
	if isPassthrough(sel) {
		return prev, nil
	}
	flat, err := b.flattenSelect(sel, "", true)
	if err != nil {
		return plan.Result{}, err
	}
	return b.subSelectStep(flat, prev, tableName(sel.From), addAbsentCols), nil
}

func (b *builder) subSelectStep(sel *ast.Select, prev plan.Result, table string, addAbsentCols bool) plan.Result {
	q := ast.Clone(sel)
	q.From = nil
	q.Using = nil
	q.CTEs = nil
	q.Alias = ""
	q.Parens = false
	return b.plan.Add(&plan.SubSelectStep{
		Query:         q,
		Dataframe:     prev,
		TableName:     table,
		AddAbsentCols: addAbsentCols,
	})
}

func isPassthrough(sel *ast.Select) bool {
	if len(sel.Targets) != 1 {
		return false
	}
	if _, ok := sel.Targets[0].(*ast.Star); !ok {
		return false
	}
	return sel.Where == nil && len(sel.GroupBy) == 0 && sel.Having == nil && len(sel.OrderBy) == 0 &&
		sel.Limit == nil && sel.Offset == nil && !sel.Distinct
}

// project maps the targets of sel onto output columns. Identifiers and stars
// pass through; any other expression becomes a column named by its SQL text.
func (b *builder) project(targets []ast.Node, df plan.Result) plan.Result {
	cols := make([]ast.Node, 0, len(targets))
	for _, t := range targets {
		switch t := t.(type) {
		case *ast.Identifier, *ast.Star:
			cols = append(cols, ast.Clone(t))
		default:
			cols = append(cols, &ast.Identifier{Parts: []string{ast.ExprString(t)}, Alias: ast.AliasOf(t)})
		}
	}
	return b.plan.Add(&plan.ProjectStep{Dataframe: df, Columns: cols})
}
