package planner_test

import (
	"testing"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/plan"
	"github.com/leapstack-labs/fedplan/pkg/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertFromSelect(t *testing.T) {
	p := mustPlan(t, &ast.Insert{
		Table: id("int", "tab"),
		From:  &ast.Select{Targets: star(), From: id("int2", "src")},
	})

	assert.Equal(t, []string{"FetchDataframeStep", "InsertToTable"}, kinds(p))
	ins := stepAt[*plan.InsertToTable](t, p, 1)
	assert.Equal(t, "int.tab", ins.Table.Path())
	require.NotNil(t, ins.Dataframe)
	assert.Equal(t, plan.Result{Step: 0}, *ins.Dataframe)
	assert.Nil(t, ins.Query)
}

func TestInsertValues(t *testing.T) {
	stmt := &ast.Insert{
		Table:   id("int", "tab"),
		Columns: []*ast.Identifier{id("a"), id("b")},
		Values:  [][]ast.Node{{lit(1), lit("x")}},
	}
	p := mustPlan(t, stmt)

	ins := stepAt[*plan.InsertToTable](t, p, 0)
	assert.Nil(t, ins.Dataframe)
	assert.Equal(t, stmt, ins.Query)
	assert.NotSame(t, stmt, ins.Query)
}

func TestInsertWithoutRows(t *testing.T) {
	perr := planErr(t, &ast.Insert{Table: id("int", "tab")})
	assert.Contains(t, perr.Message, "neither VALUES nor SELECT")
}

func TestCreateTable(t *testing.T) {
	p := mustPlan(t, &ast.CreateTable{
		Name:    id("int", "copy"),
		From:    &ast.Select{Targets: star(), From: id("int2", "src")},
		Replace: true,
	})
	save := stepAt[*plan.SaveToTable](t, p, 1)
	assert.Equal(t, plan.Result{Step: 0}, save.Dataframe)
	assert.True(t, save.IsReplace)

	_, err := planner.New(testCatalog(t)).Plan(&ast.CreateTable{Name: id("int", "empty")})
	assert.ErrorIs(t, err, planner.ErrUnsupported)
}

func TestUpdate(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		p := mustPlan(t, &ast.Update{
			Table: id("int", "tab"),
			Set:   []*ast.Assignment{{Column: "a", Value: lit(2)}},
			Where: eq(id("b"), lit(1)),
		})
		up := stepAt[*plan.UpdateToTable](t, p, 0)
		assert.Nil(t, up.Dataframe)
		assert.Equal(t, "UPDATE int.tab SET a = 2 WHERE b = 1", ast.String(up.UpdateCommand))
	})

	t.Run("from query", func(t *testing.T) {
		p := mustPlan(t, &ast.Update{
			Table:     id("int", "tab"),
			Set:       []*ast.Assignment{{Column: "a", Value: id("s", "a")}},
			From:      &ast.Select{Targets: star(), From: id("int2", "src")},
			FromAlias: "s",
			Where:     eq(id("tab", "id"), id("s", "id")),
		})
		assert.Equal(t, []string{"FetchDataframeStep", "UpdateToTable"}, kinds(p))
		up := stepAt[*plan.UpdateToTable](t, p, 1)
		require.NotNil(t, up.Dataframe)
		assert.Equal(t, plan.Result{Step: 0}, *up.Dataframe)
		assert.Nil(t, up.UpdateCommand.From)
	})

	t.Run("strips integration", func(t *testing.T) {
		p := mustPlan(t, &ast.Update{
			Table: id("int", "tab"),
			Set:   []*ast.Assignment{{Column: "a", Value: id("int", "tab", "b")}},
			Where: eq(id("int", "tab", "b"), lit(1)),
		})
		up := stepAt[*plan.UpdateToTable](t, p, 0)
		assert.Equal(t, "int.tab", up.Table.Path())
		assert.Equal(t, "UPDATE int.tab SET a = tab.b WHERE tab.b = 1", ast.String(up.UpdateCommand))
	})

	t.Run("subquery from another integration", func(t *testing.T) {
		sub := &ast.Select{Targets: []ast.Node{id("c")}, From: id("int2", "o")}
		p := mustPlan(t, &ast.Update{
			Table: id("int", "tab"),
			Set:   []*ast.Assignment{{Column: "a", Value: lit(1)}},
			Where: ast.Binary("in", id("b"), sub),
		})
		assert.Equal(t, []string{"FetchDataframeStep", "UpdateToTable"}, kinds(p))
		fetch := stepAt[*plan.FetchDataframeStep](t, p, 0)
		assert.Equal(t, "int2", fetch.Integration)
		up := stepAt[*plan.UpdateToTable](t, p, 1)
		assert.Equal(t, "UPDATE int.tab SET a = 1 WHERE b IN Result(0)", ast.String(up.UpdateCommand))
	})
}

func TestDelete(t *testing.T) {
	t.Run("strips integration", func(t *testing.T) {
		p := mustPlan(t, &ast.Delete{Table: id("int", "tab"), Where: eq(id("int", "tab", "a"), lit(1))})
		del := stepAt[*plan.DeleteStep](t, p, 0)
		assert.Equal(t, "int.tab", del.Table.Path())
		assert.Equal(t, "tab.a = 1", ast.String(del.Where))
	})

	t.Run("subquery from another integration", func(t *testing.T) {
		sub := &ast.Select{Targets: []ast.Node{id("id")}, From: id("int2", "gone")}
		p := mustPlan(t, &ast.Delete{Table: id("int", "tab"), Where: ast.Binary("in", id("id"), sub)})
		assert.Equal(t, []string{"FetchDataframeStep", "DeleteStep"}, kinds(p))
		assert.Equal(t, "id IN Result(0)", ast.String(stepAt[*plan.DeleteStep](t, p, 1).Where))
	})

	t.Run("unknown integration", func(t *testing.T) {
		perr := planErr(t, &ast.Delete{Table: id("nope", "tab")})
		assert.Contains(t, perr.Message, "integration not found")
	})
}
