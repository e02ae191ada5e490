package parser_test

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, sql string) ast.Node {
	t.Helper()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)
	require.NotNil(t, stmt)
	return stmt
}

func mustSelect(t *testing.T, sql string) *ast.Select {
	t.Helper()
	sel, ok := mustParse(t, sql).(*ast.Select)
	require.True(t, ok, "expected a SELECT")
	return sel
}

// ---------- Round Trip Tests ----------

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string // empty when the input is already canonical
	}{
		{name: "simple select", sql: "SELECT a, b AS bb FROM int.tab WHERE a > 1"},
		{
			name: "lower case with alias and quotes",
			sql:  "select * from int.tab t where x = 'it''s' limit 10 offset 2",
			want: "SELECT * FROM int.tab AS t WHERE x = 'it''s' LIMIT 10 OFFSET 2",
		},
		{
			name: "explicit joins",
			sql:  "SELECT * FROM t1 JOIN t2 ON t1.id = t2.id LEFT OUTER JOIN t3 ON t3.id = t1.id",
			want: "SELECT * FROM t1 INNER JOIN t2 ON t1.id = t2.id LEFT JOIN t3 ON t3.id = t1.id",
		},
		{name: "implicit join", sql: "SELECT * FROM a, b"},
		{name: "aggregates", sql: "SELECT count(*), max(DISTINCT x) FROM t GROUP BY y HAVING count(*) > 1 ORDER BY y DESC NULLS LAST"},
		{name: "predicates", sql: "SELECT * FROM t WHERE a IN (1, 2) AND b NOT LIKE 'x%' AND c IS NOT NULL"},
		{name: "grouping parens", sql: "SELECT * FROM t WHERE (a = 1 OR b = 2) AND c BETWEEN 1 AND 5"},
		{
			name: "not between",
			sql:  "SELECT * FROM t WHERE x NOT BETWEEN 1 AND 2",
			want: "SELECT * FROM t WHERE NOT x BETWEEN 1 AND 2",
		},
		{name: "union all", sql: "SELECT a FROM int.t1 UNION ALL SELECT a FROM int.t2"},
		{name: "intersect", sql: "SELECT a FROM int.t1 INTERSECT SELECT a FROM int.t2"},
		{name: "cte", sql: "WITH c AS (SELECT a FROM int.t) SELECT * FROM c"},
		{name: "subselect source", sql: "SELECT * FROM (SELECT a FROM int.t) AS sub"},
		{
			name: "native query",
			sql:  "SELECT * FROM int (select 1 from x where y = ')') native",
			want: "SELECT * FROM int (select 1 from x where y = ')') AS native",
		},
		{name: "values source", sql: "SELECT * FROM (VALUES (1, 'a'), (2, 'b')) AS v(id, name)"},
		{
			name: "versioned predictor",
			sql:  "SELECT * FROM mindsdb.pred.2 WHERE x = -1.5",
			want: "SELECT * FROM mindsdb.pred.`2` WHERE x = -1.5",
		},
		{
			name: "cast",
			sql:  "SELECT CAST(a AS varchar(10)) AS s FROM t",
			want: "SELECT CAST(a AS VARCHAR(10)) AS s FROM t",
		},
		{name: "latest and using", sql: "SELECT * FROM t WHERE x > LATEST USING horizon = 5, mode = 'fast'"},
		{
			name: "mysql limit",
			sql:  "SELECT a FROM t LIMIT 5, 10",
			want: "SELECT a FROM t LIMIT 10 OFFSET 5",
		},
		{
			name: "keyword identifier",
			sql:  `SELECT "from".a FROM t`,
			want: "SELECT `from`.a FROM t",
		},
		{name: "arithmetic", sql: "SELECT a + b * 2, -c, x || 'y' FROM t"},
		{name: "placeholder", sql: "SELECT * FROM t WHERE a = ?"},
		{name: "subqueries in expressions", sql: "SELECT * FROM t WHERE a IN (SELECT b FROM u) AND c = (SELECT max(d) FROM v)"},
		{
			name: "comments",
			sql:  "SELECT a -- trailing\nFROM /* block */ t",
			want: "SELECT a FROM t",
		},
		{name: "insert values", sql: "INSERT INTO int.tab (a, b) VALUES (1, 'x'), (2, 'y')"},
		{name: "insert select", sql: "INSERT INTO int.tab SELECT * FROM int2.src"},
		{name: "update", sql: "UPDATE int.tab SET a = 2, b = s.b FROM (SELECT * FROM int2.src) AS s WHERE tab.id = s.id"},
		{
			name: "delete",
			sql:  "DELETE FROM int.tab WHERE a = 1;",
			want: "DELETE FROM int.tab WHERE a = 1",
		},
		{
			name: "create table",
			sql:  "CREATE OR REPLACE TABLE int.copy AS (SELECT * FROM int2.src)",
			want: "CREATE OR REPLACE TABLE int.copy AS SELECT * FROM int2.src",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := tt.want
			if want == "" {
				want = tt.sql
			}
			got := ast.String(mustParse(t, tt.sql))
			assert.Equal(t, want, got)

			// The rendered form parses back to the same text.
			assert.Equal(t, got, ast.String(mustParse(t, got)))
		})
	}
}

// ---------- Tree Shape Tests ----------

func TestParseJoinIsLeftDeep(t *testing.T) {
	sel := mustSelect(t, "SELECT * FROM a JOIN b ON a.x = b.x, c")

	outer, ok := sel.From.(*ast.Join)
	require.True(t, ok)
	assert.True(t, outer.Implicit)
	assert.Equal(t, ast.NewIdentifier("c"), outer.Right)

	inner, ok := outer.Left.(*ast.Join)
	require.True(t, ok)
	assert.False(t, inner.Implicit)
	assert.Equal(t, ast.InnerJoin, inner.Type)
	assert.Equal(t, ast.Binary("=", ast.NewIdentifier("a", "x"), ast.NewIdentifier("b", "x")), inner.Condition)
}

func TestParseUsingValues(t *testing.T) {
	sel := mustSelect(t, "SELECT * FROM mindsdb.pred WHERE a = 1 USING horizon = 5, mode = 'fast', strict = true, engine = lightwood")
	assert.Equal(t, map[string]any{
		"horizon": int64(5),
		"mode":    "fast",
		"strict":  true,
		"engine":  "lightwood",
	}, sel.Using)
}

func TestParseCTEOnUnion(t *testing.T) {
	u, ok := mustParse(t, "WITH c AS (SELECT 1) SELECT * FROM c UNION SELECT * FROM c").(*ast.Union)
	require.True(t, ok)
	assert.True(t, u.Unique)

	left, ok := u.Left.(*ast.Select)
	require.True(t, ok)
	require.Len(t, left.CTEs, 1)
	assert.Equal(t, "c", left.CTEs[0].Name)
	assert.Empty(t, u.Right.(*ast.Select).CTEs)
}

func TestParseNativeQuery(t *testing.T) {
	sel := mustSelect(t, "SELECT * FROM int2 ( db.find({'a': '(x'}) ) AS n WHERE n.a = 1")

	native, ok := sel.From.(*ast.NativeQuery)
	require.True(t, ok)
	assert.Equal(t, "int2", native.Integration)
	assert.Equal(t, "db.find({'a': '(x'})", native.Query)
	assert.Equal(t, "n", native.Alias)
	assert.Equal(t, "n.a = 1", ast.String(sel.Where))
}

func TestParseLiterals(t *testing.T) {
	sel := mustSelect(t, "SELECT 1, 2.5, 1e3, 'x', TRUE, NULL, ?")
	require.Len(t, sel.Targets, 7)
	assert.Equal(t, &ast.Constant{Value: int64(1)}, sel.Targets[0])
	assert.Equal(t, &ast.Constant{Value: 2.5}, sel.Targets[1])
	assert.Equal(t, &ast.Constant{Value: 1000.0}, sel.Targets[2])
	assert.Equal(t, &ast.Constant{Value: "x"}, sel.Targets[3])
	assert.Equal(t, &ast.Constant{Value: true}, sel.Targets[4])
	assert.Equal(t, ast.Null(), sel.Targets[5])
	assert.Equal(t, &ast.Parameter{}, sel.Targets[6])
	assert.Nil(t, sel.From)
}

func TestParseStatements(t *testing.T) {
	ins, ok := mustParse(t, "INSERT INTO int.tab (a) VALUES (1)").(*ast.Insert)
	require.True(t, ok)
	assert.Equal(t, []*ast.Identifier{ast.NewIdentifier("a")}, ins.Columns)
	assert.Equal(t, [][]ast.Node{{&ast.Constant{Value: int64(1)}}}, ins.Values)

	up, ok := mustParse(t, "UPDATE int.tab SET tab.a = 1").(*ast.Update)
	require.True(t, ok)
	assert.Equal(t, "a", up.Set[0].Column)

	ct, ok := mustParse(t, "CREATE TABLE int.empty").(*ast.CreateTable)
	require.True(t, ok)
	assert.Nil(t, ct.From)
	assert.False(t, ct.Replace)
}

// ---------- Error Tests ----------

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{name: "missing target", sql: "SELECT FROM t", want: "expected an expression"},
		{name: "unterminated string", sql: "SELECT * FROM t WHERE x = 'abc", want: "unterminated string literal"},
		{name: "fractional limit", sql: "SELECT * FROM t LIMIT 1.5", want: "LIMIT must be an integer"},
		{name: "trailing tokens", sql: "SELECT * FROM t garbage extra", want: "after statement"},
		{name: "unterminated native query", sql: "SELECT * FROM int (select 1", want: "unterminated native query for int"},
		{name: "unknown statement", sql: "DROP TABLE t", want: "expected a statement"},
		{name: "bad nulls", sql: "SELECT * FROM t ORDER BY a NULLS MIDDLE", want: "expected FIRST or LAST"},
		{name: "dangling not", sql: "SELECT * FROM t WHERE a NOT = 1", want: "IN, LIKE or BETWEEN after NOT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.sql)
			require.Error(t, err)

			var errs parser.ParseErrors
			require.True(t, errors.As(err, &errs))
			require.NotEmpty(t, errs)
			assert.Contains(t, err.Error(), tt.want)

			var first *parser.ParseError
			assert.True(t, errors.As(err, &first))
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := parser.Parse("SELECT *\nFROM int (a\nb) n WHERE")
	require.Error(t, err)

	var errs parser.ParseErrors
	require.True(t, errors.As(err, &errs))
	assert.Equal(t, 3, errs[0].Pos.Line)
	assert.Contains(t, errs[0].Message, "expected an expression")
}
