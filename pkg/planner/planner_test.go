package planner_test

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/leapstack-labs/fedplan/pkg/plan"
	"github.com/leapstack-labs/fedplan/pkg/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	for _, i := range []catalog.Integration{
		{Name: "int", Kind: catalog.KindData},
		{Name: "int2", Kind: catalog.KindData},
		{Name: "api", Kind: catalog.KindAPI},
	} {
		require.NoError(t, cat.AddIntegration(i))
	}
	for _, p := range []catalog.Predictor{
		{Namespace: "mindsdb", Name: "pred"},
		{Namespace: "mindsdb", Name: "tp", Timeseries: true, OrderBy: "time", Window: 5},
		{Namespace: "mindsdb", Name: "tpg", Timeseries: true, OrderBy: "time", GroupBy: []string{"loc"}, Window: 5},
	} {
		require.NoError(t, cat.AddPredictor(p))
	}
	return cat
}

func id(parts ...string) *ast.Identifier { return ast.NewIdentifier(parts...) }

func aliased(alias string, parts ...string) *ast.Identifier {
	out := ast.NewIdentifier(parts...)
	out.Alias = alias
	return out
}

func lit(v any) *ast.Constant { return ast.NewConstant(v) }

func eq(l, r ast.Node) *ast.BinaryOperation { return ast.Binary("=", l, r) }

func join(l, r ast.Node, cond ast.Node) *ast.Join {
	return &ast.Join{Left: l, Right: r, Type: ast.InnerJoin, Condition: cond}
}

func star() []ast.Node { return []ast.Node{&ast.Star{}} }

func mustPlan(t *testing.T, stmt ast.Node) *plan.Plan {
	t.Helper()
	p, err := planner.New(testCatalog(t)).Plan(stmt)
	require.NoError(t, err)
	return p
}

func planErr(t *testing.T, stmt ast.Node) *planner.PlanningError {
	t.Helper()
	_, err := planner.New(testCatalog(t)).Plan(stmt)
	require.Error(t, err)
	var perr *planner.PlanningError
	require.ErrorAs(t, err, &perr)
	return perr
}

func kinds(p *plan.Plan) []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Kind()
	}
	return out
}

func stepAt[T plan.Step](t *testing.T, p *plan.Plan, i int) T {
	t.Helper()
	require.Less(t, i, len(p.Steps))
	s, ok := p.Steps[i].(T)
	require.True(t, ok, "step %d is %s", i, p.Steps[i].Kind())
	return s
}

func fetchSQL(t *testing.T, p *plan.Plan, i int) string {
	t.Helper()
	return ast.String(stepAt[*plan.FetchDataframeStep](t, p, i).Query)
}

func TestSingleTableSelect(t *testing.T) {
	p := mustPlan(t, &ast.Select{Targets: []ast.Node{id("col")}, From: id("int", "tab")})

	require.Len(t, p.Steps, 1)
	fetch := stepAt[*plan.FetchDataframeStep](t, p, 0)
	assert.Equal(t, "int", fetch.Integration)
	assert.Equal(t, "SELECT tab.col AS col FROM tab", ast.String(fetch.Query))
}

func TestSingleTableDisambiguation(t *testing.T) {
	tests := []struct {
		name string
		sel  *ast.Select
		want string
	}{
		{
			name: "qualified by integration",
			sel:  &ast.Select{Targets: []ast.Node{id("int", "tab", "a")}, From: id("int", "tab")},
			want: "SELECT tab.a AS a FROM tab",
		},
		{
			name: "table alias",
			sel: &ast.Select{
				Targets: []ast.Node{id("a")},
				From:    aliased("t", "int", "tab"),
				Where:   ast.Binary(">", id("t", "b"), lit(1)),
			},
			want: "SELECT t.a AS a FROM tab AS t WHERE t.b > 1",
		},
		{
			name: "schema path suffix",
			sel:  &ast.Select{Targets: []ast.Node{id("tab", "a")}, From: id("int", "sch", "tab")},
			want: "SELECT sch.tab.a AS a FROM sch.tab",
		},
		{
			name: "explicit alias kept",
			sel:  &ast.Select{Targets: []ast.Node{aliased("x", "a")}, From: id("int", "tab")},
			want: "SELECT tab.a AS x FROM tab",
		},
		{
			name: "target alias in order by stays bare",
			sel: &ast.Select{
				Targets: []ast.Node{aliased("x", "a")},
				From:    id("int", "tab"),
				OrderBy: []*ast.OrderBy{{Field: id("x")}},
			},
			want: "SELECT tab.a AS x FROM tab ORDER BY x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPlan(t, tt.sel)
			require.Len(t, p.Steps, 1)
			assert.Equal(t, tt.want, fetchSQL(t, p, 0))
		})
	}
}

func TestUnknownTablePrefix(t *testing.T) {
	perr := planErr(t, &ast.Select{Targets: []ast.Node{id("other", "a")}, From: id("int", "tab")})
	assert.Contains(t, perr.Message, "table not found for identifier: other.a")
}

func TestIntegrationNotFound(t *testing.T) {
	perr := planErr(t, &ast.Select{Targets: star(), From: id("nope", "tab")})
	assert.Equal(t, "integration not found for: nope.tab", perr.Message)
}

func TestDefaultNamespace(t *testing.T) {
	cat := testCatalog(t)
	cat.DefaultNamespace = "int"
	p, err := planner.New(cat).Plan(&ast.Select{Targets: star(), From: id("tab")})
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	fetch := stepAt[*plan.FetchDataframeStep](t, p, 0)
	assert.Equal(t, "int", fetch.Integration)
	assert.Equal(t, "SELECT * FROM tab", ast.String(fetch.Query))
}

func TestTwoTableJoin(t *testing.T) {
	sel := &ast.Select{
		Targets: []ast.Node{id("t1", "a"), id("t2", "b")},
		From:    join(id("int", "t1"), id("int", "t2"), eq(id("int", "t1", "a"), id("int", "t2", "a"))),
	}
	p := mustPlan(t, sel)

	assert.Equal(t, []string{"FetchDataframeStep", "FetchDataframeStep", "JoinStep", "ProjectStep"}, kinds(p))
	assert.Equal(t, "SELECT * FROM t1", fetchSQL(t, p, 0))
	assert.Equal(t, "SELECT * FROM t2", fetchSQL(t, p, 1))

	j := stepAt[*plan.JoinStep](t, p, 2)
	assert.Equal(t, plan.Result{Step: 0}, j.Left)
	assert.Equal(t, plan.Result{Step: 1}, j.Right)
	assert.Equal(t, "result_0 AS t1 INNER JOIN result_1 AS t2 ON t1.a = t2.a", ast.String(j.Query))

	proj := stepAt[*plan.ProjectStep](t, p, 3)
	assert.Equal(t, plan.Result{Step: 2}, proj.Dataframe)
	assert.Equal(t, []ast.Node{id("t1", "a"), id("t2", "b")}, proj.Columns)
}

func TestJoinPushdown(t *testing.T) {
	on := eq(id("t1", "id"), id("t2", "id"))
	t.Run("and splits per table", func(t *testing.T) {
		where := ast.And(eq(id("t1", "a"), lit(1)), eq(id("t2", "b"), lit(2)))
		p := mustPlan(t, &ast.Select{Targets: star(), From: join(id("int", "t1"), id("int", "t2"), on), Where: where})

		assert.Equal(t, []string{"FetchDataframeStep", "FetchDataframeStep", "JoinStep", "FilterStep", "ProjectStep"}, kinds(p))
		assert.Equal(t, "SELECT * FROM t1 WHERE t1.a = 1", fetchSQL(t, p, 0))
		assert.Equal(t, "SELECT * FROM t2 WHERE t2.b = 2", fetchSQL(t, p, 1))
		assert.Equal(t, "t1.a = 1 AND t2.b = 2", ast.String(stepAt[*plan.FilterStep](t, p, 3).Query))
	})

	t.Run("or disables pushdown", func(t *testing.T) {
		where := ast.Binary("or", eq(id("t1", "a"), lit(1)), eq(id("t2", "b"), lit(2)))
		p := mustPlan(t, &ast.Select{Targets: star(), From: join(id("int", "t1"), id("int", "t2"), on), Where: where})

		assert.Equal(t, "SELECT * FROM t1", fetchSQL(t, p, 0))
		assert.Equal(t, "SELECT * FROM t2", fetchSQL(t, p, 1))
		assert.Equal(t, "t1.a = 1 OR t2.b = 2", ast.String(stepAt[*plan.FilterStep](t, p, 3).Query))
	})

	t.Run("column comparisons stay after the join", func(t *testing.T) {
		where := ast.Binary(">", id("t1", "a"), id("t2", "b"))
		p := mustPlan(t, &ast.Select{Targets: star(), From: join(id("int", "t1"), id("int", "t2"), on), Where: where})

		assert.Equal(t, "SELECT * FROM t1", fetchSQL(t, p, 0))
		assert.Equal(t, "t1.a > t2.b", ast.String(stepAt[*plan.FilterStep](t, p, 3).Query))
	})
}

func TestJoinPostClauses(t *testing.T) {
	sum := &ast.Function{Name: "sum", Args: []ast.Node{id("t2", "b")}, Alias: "total"}
	sel := &ast.Select{
		Targets: []ast.Node{id("t1", "a"), sum},
		From:    join(id("int", "t1"), aliased("t2", "int2", "other"), eq(id("t1", "id"), id("t2", "id"))),
		GroupBy: []ast.Node{id("t1", "a")},
		Having:  ast.Binary(">", &ast.Function{Name: "sum", Args: []ast.Node{id("t2", "b")}}, lit(10)),
		OrderBy: []*ast.OrderBy{{Field: id("t1", "a"), Direction: "DESC"}},
		Limit:   lit(5),
		Offset:  lit(2),
	}
	p := mustPlan(t, sel)

	assert.Equal(t, []string{
		"FetchDataframeStep", "FetchDataframeStep", "JoinStep",
		"GroupByStep", "FilterStep", "OrderByStep", "LimitOffsetStep", "ProjectStep",
	}, kinds(p))
	assert.Equal(t, "int2", stepAt[*plan.FetchDataframeStep](t, p, 1).Integration)
	assert.Equal(t, "SELECT * FROM other AS t2", fetchSQL(t, p, 1))

	group := stepAt[*plan.GroupByStep](t, p, 3)
	assert.Equal(t, "sum(t2.b)", ast.String(group.Targets[1]))

	lim := stepAt[*plan.LimitOffsetStep](t, p, 6)
	require.NotNil(t, lim.Limit)
	require.NotNil(t, lim.Offset)
	assert.Equal(t, int64(5), *lim.Limit)
	assert.Equal(t, int64(2), *lim.Offset)

	proj := stepAt[*plan.ProjectStep](t, p, 7)
	require.Len(t, proj.Columns, 2)
	assert.Equal(t, &ast.Identifier{Parts: []string{"sum(t2.b)"}, Alias: "total"}, proj.Columns[1])
}

func TestJoinProjectKeepsTargets(t *testing.T) {
	targets := []ast.Node{
		id("t1", "a"),
		aliased("bee", "t2", "b"),
		&ast.Star{},
		ast.Binary("+", id("t1", "a"), lit(1)),
	}
	p := mustPlan(t, &ast.Select{
		Targets: targets,
		From:    join(id("int", "t1"), id("int", "t2"), eq(id("t1", "id"), id("t2", "id"))),
	})
	last, ok := p.Last()
	require.True(t, ok)
	proj := stepAt[*plan.ProjectStep](t, p, last.Step)
	require.Len(t, proj.Columns, len(targets))
	assert.Equal(t, "bee", ast.AliasOf(proj.Columns[1]))
	assert.IsType(t, &ast.Star{}, proj.Columns[2])
	assert.Equal(t, "t1.a + 1", proj.Columns[3].(*ast.Identifier).Parts[0])
}

func TestThreeTableJoin(t *testing.T) {
	inner := join(id("int", "t1"), id("int", "t2"), eq(id("t1", "id"), id("t2", "id")))
	sel := &ast.Select{
		Targets: star(),
		From:    join(inner, id("int2", "t3"), eq(id("t2", "id"), id("t3", "id"))),
	}
	p := mustPlan(t, sel)

	assert.Equal(t, []string{
		"FetchDataframeStep", "FetchDataframeStep", "JoinStep",
		"FetchDataframeStep", "JoinStep", "ProjectStep",
	}, kinds(p))
	outer := stepAt[*plan.JoinStep](t, p, 4)
	assert.Equal(t, plan.Result{Step: 2}, outer.Left)
	assert.Equal(t, plan.Result{Step: 3}, outer.Right)
	assert.Equal(t, "result_2 INNER JOIN result_3 AS t3 ON t2.id = t3.id", ast.String(outer.Query))
}

func TestJoinErrors(t *testing.T) {
	t.Run("right nested", func(t *testing.T) {
		nested := join(id("int", "t2"), id("int", "t3"), nil)
		_, err := planner.New(testCatalog(t)).Plan(&ast.Select{Targets: star(), From: join(id("int", "t1"), nested, nil)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, planner.ErrUnsupported))
	})

	t.Run("bare column in condition", func(t *testing.T) {
		perr := planErr(t, &ast.Select{
			Targets: star(),
			From:    join(id("int", "t1"), id("int", "t2"), eq(id("a"), id("t2", "a"))),
		})
		assert.Equal(t, "no source table in join condition for column: a", perr.Message)
	})

	t.Run("bare column in where", func(t *testing.T) {
		perr := planErr(t, &ast.Select{
			Targets: star(),
			From:    join(id("int", "t1"), id("int", "t2"), nil),
			Where:   eq(id("a"), lit(1)),
		})
		assert.Contains(t, perr.Message, "ambiguous column")
	})

	t.Run("unaliased subquery", func(t *testing.T) {
		sub := &ast.Select{Targets: star(), From: id("int", "t2")}
		perr := planErr(t, &ast.Select{Targets: star(), From: join(id("int", "t1"), sub, nil)})
		assert.Contains(t, perr.Message, "must have an alias")
	})

	t.Run("predictor first in a sequence", func(t *testing.T) {
		inner := join(id("mindsdb", "pred"), id("int", "t1"), nil)
		perr := planErr(t, &ast.Select{Targets: star(), From: join(inner, id("int", "t2"), nil)})
		assert.Contains(t, perr.Message, "can't be the first element of a join")
	})

	t.Run("time series predictor in a longer join", func(t *testing.T) {
		inner := join(id("int", "t1"), id("int", "t2"), eq(id("t1", "id"), id("t2", "id")))
		_, err := planner.New(testCatalog(t)).Plan(&ast.Select{Targets: star(), From: join(inner, id("mindsdb", "tp"), nil)})
		require.Error(t, err)
		assert.ErrorIs(t, err, planner.ErrUnsupported)
	})
}

func TestJoinWithSubquery(t *testing.T) {
	sub := &ast.Select{Targets: []ast.Node{id("id"), id("b")}, From: id("int2", "t2"), Alias: "s"}
	sel := &ast.Select{
		Targets: star(),
		From:    join(id("int", "t1"), sub, eq(id("t1", "id"), id("s", "id"))),
		Where:   ast.Binary(">", id("s", "b"), lit(3)),
	}
	p := mustPlan(t, sel)

	assert.Equal(t, []string{
		"FetchDataframeStep", "FetchDataframeStep", "SubSelectStep", "JoinStep", "FilterStep", "ProjectStep",
	}, kinds(p))
	assert.Equal(t, "SELECT t2.id AS id, t2.b AS b FROM t2", fetchSQL(t, p, 1))
	sub2 := stepAt[*plan.SubSelectStep](t, p, 2)
	assert.Equal(t, "s", sub2.TableName)
	assert.Equal(t, "SELECT * WHERE s.b > 3", ast.String(sub2.Query))
	assert.Equal(t, "result_0 AS t1 INNER JOIN result_2 AS s ON t1.id = s.id", ast.String(stepAt[*plan.JoinStep](t, p, 3).Query))
}

func TestIdempotentPlanning(t *testing.T) {
	sel := &ast.Select{
		Targets: []ast.Node{id("t1", "a"), id("p", "y")},
		From:    join(aliased("t1", "int", "tab"), aliased("p", "mindsdb", "pred"), nil),
		Where:   ast.And(ast.Binary(">", id("t1", "a"), lit(1)), eq(id("p", "x"), lit("v"))),
	}
	before := ast.Clone(sel)
	pl := planner.New(testCatalog(t))

	first, err := pl.Plan(ast.Clone(sel))
	require.NoError(t, err)
	second, err := pl.Plan(ast.Clone(sel))
	require.NoError(t, err)
	again, err := pl.Plan(sel)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, again)
	assert.Equal(t, before, sel, "input must not be modified")
}

func TestSubqueryFlattening(t *testing.T) {
	t.Run("other integration", func(t *testing.T) {
		sub := &ast.Select{Targets: []ast.Node{id("x")}, From: id("int2", "t")}
		p := mustPlan(t, &ast.Select{Targets: star(), From: id("int", "tab"), Where: ast.Binary("in", id("a"), sub)})

		assert.Equal(t, []string{"FetchDataframeStep", "FetchDataframeStep"}, kinds(p))
		assert.Equal(t, "SELECT t.x AS x FROM t", fetchSQL(t, p, 0))
		assert.Equal(t, "SELECT * FROM tab WHERE tab.a IN Result(0)", fetchSQL(t, p, 1))
		assert.Equal(t, []int{1}, p.ResultRefs[0])
	})

	t.Run("same integration travels inside", func(t *testing.T) {
		sub := &ast.Select{Targets: []ast.Node{id("x")}, From: id("int", "t")}
		p := mustPlan(t, &ast.Select{Targets: star(), From: id("int", "tab"), Where: ast.Binary("in", id("a"), sub)})

		require.Len(t, p.Steps, 1)
		assert.Equal(t, "SELECT * FROM tab WHERE tab.a IN (SELECT t.x AS x FROM t)", fetchSQL(t, p, 0))
	})

	t.Run("predictor subquery", func(t *testing.T) {
		sub := &ast.Select{Targets: []ast.Node{id("y")}, From: id("mindsdb", "pred"), Where: eq(id("x"), lit(1))}
		p := mustPlan(t, &ast.Select{Targets: star(), From: id("int", "tab"), Where: eq(id("a"), sub)})

		assert.Equal(t, []string{"ApplyPredictorRowStep", "ProjectStep", "FetchDataframeStep"}, kinds(p))
		assert.Equal(t, "SELECT * FROM tab WHERE tab.a = Result(1)", fetchSQL(t, p, 2))
	})
}

func TestNestedSelect(t *testing.T) {
	t.Run("single integration", func(t *testing.T) {
		inner := &ast.Select{Targets: []ast.Node{id("a")}, From: id("int", "tab"), Alias: "sub"}
		p := mustPlan(t, &ast.Select{Targets: star(), From: inner})

		require.Len(t, p.Steps, 1)
		assert.Equal(t, "SELECT * FROM (SELECT tab.a AS a FROM tab) AS sub", fetchSQL(t, p, 0))
	})

	t.Run("predictor inside", func(t *testing.T) {
		inner := &ast.Select{Targets: star(), From: id("mindsdb", "pred"), Where: eq(id("x"), lit(1)), Alias: "sub"}
		p := mustPlan(t, &ast.Select{Targets: star(), From: inner, Where: ast.Binary(">", id("y"), lit(0))})

		assert.Equal(t, []string{"ApplyPredictorRowStep", "ProjectStep", "SubSelectStep"}, kinds(p))
		sub := stepAt[*plan.SubSelectStep](t, p, 2)
		assert.Equal(t, plan.Result{Step: 1}, sub.Dataframe)
		assert.Equal(t, "sub", sub.TableName)
		assert.Equal(t, "SELECT * WHERE y > 0", ast.String(sub.Query))
	})
}

func TestAPISelect(t *testing.T) {
	p := mustPlan(t, &ast.Select{
		Targets: []ast.Node{id("a")},
		From:    id("api", "tab"),
		Where:   eq(id("b"), lit(1)),
		Limit:   lit(3),
	})

	assert.Equal(t, []string{"FetchDataframeStep", "SubSelectStep"}, kinds(p))
	assert.Equal(t, "SELECT * FROM tab WHERE tab.b = 1 LIMIT 3", fetchSQL(t, p, 0))
	sub := stepAt[*plan.SubSelectStep](t, p, 1)
	assert.Equal(t, "SELECT a", ast.String(sub.Query))
	assert.Equal(t, "tab", sub.TableName)
}

func TestUnion(t *testing.T) {
	u := &ast.Union{
		Op:     ast.OpUnion,
		Unique: true,
		Left:   &ast.Select{Targets: []ast.Node{id("a")}, From: id("int", "t1")},
		Right:  &ast.Select{Targets: []ast.Node{id("a")}, From: id("int2", "t2")},
	}
	p := mustPlan(t, u)

	assert.Equal(t, []string{"FetchDataframeStep", "FetchDataframeStep", "UnionStep"}, kinds(p))
	step := stepAt[*plan.UnionStep](t, p, 2)
	assert.True(t, step.Unique)
	assert.Equal(t, ast.OpUnion, step.Operation)
}

func TestCTE(t *testing.T) {
	sel := &ast.Select{
		CTEs:    []*ast.CTE{{Name: "c", Query: &ast.Select{Targets: []ast.Node{id("a")}, From: id("int", "t")}}},
		Targets: star(),
		From:    id("c"),
		Where:   ast.Binary(">", id("a"), lit(1)),
	}
	p := mustPlan(t, sel)

	assert.Equal(t, []string{"FetchDataframeStep", "SubSelectStep"}, kinds(p))
	sub := stepAt[*plan.SubSelectStep](t, p, 1)
	assert.Equal(t, "c", sub.TableName)
	assert.Equal(t, "SELECT * WHERE a > 1", ast.String(sub.Query))
}

func TestCTEScope(t *testing.T) {
	withCTE := &ast.Select{
		CTEs:    []*ast.CTE{{Name: "c", Query: &ast.Select{Targets: []ast.Node{id("a")}, From: id("int", "t")}}},
		Targets: star(),
		From:    id("c"),
		Where:   ast.Binary(">", id("a"), lit(1)),
	}
	p := mustPlan(t, &ast.Union{
		Op:    ast.OpUnion,
		Left:  withCTE,
		Right: &ast.Select{Targets: star(), From: id("c")},
	})

	assert.Equal(t, []string{"FetchDataframeStep", "SubSelectStep", "FetchDataframeStep", "UnionStep"}, kinds(p))
	assert.Equal(t, "mindsdb", stepAt[*plan.FetchDataframeStep](t, p, 2).Integration,
		"c is not visible outside the branch defining it")
}

func TestSelectWithoutTable(t *testing.T) {
	p := mustPlan(t, &ast.Select{Targets: []ast.Node{lit(1)}})
	assert.Equal(t, []string{"QueryStep"}, kinds(p))
}

func TestNoStatement(t *testing.T) {
	perr := planErr(t, nil)
	assert.Equal(t, "no statement to plan", perr.Message)
}

func TestPlanValidates(t *testing.T) {
	sel := &ast.Select{
		Targets: star(),
		From:    join(id("int", "tab"), id("mindsdb", "pred"), nil),
		Where:   ast.Binary("in", id("tab", "a"), &ast.Select{Targets: []ast.Node{id("x")}, From: id("int2", "t")}),
	}
	p := mustPlan(t, sel)
	require.NoError(t, p.Validate())
	levels, err := p.ExecutionLevels()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, levels[0])
}
