package planner

import (
	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/leapstack-labs/fedplan/pkg/plan"
)

// writeTarget resolves the table a statement writes to. The identifier keeps
// its integration prefix so the executor can route the write.
func (b *builder) writeTarget(id *ast.Identifier) (string, *ast.Identifier, error) {
	if id == nil {
		return "", nil, errorf("statement has no target table")
	}
	integration, _, err := b.resolveTable(id)
	if err != nil {
		return "", nil, err
	}
	return integration, ast.Clone(id), nil
}

func (b *builder) insert(ins *ast.Insert) error {
	_, table, err := b.writeTarget(ins.Table)
	if err != nil {
		return err
	}
	switch {
	case ins.From != nil:
		res, err := b.query(ins.From)
		if err != nil {
			return err
		}
		b.plan.Add(&plan.InsertToTable{Table: table, Dataframe: &res})
	case len(ins.Values) > 0:
		b.plan.Add(&plan.InsertToTable{Table: table, Query: ast.Clone(ins)})
	default:
		return errorf("INSERT into %s has neither VALUES nor SELECT", table.Path())
	}
	return nil
}

func (b *builder) createTable(ct *ast.CreateTable) error {
	_, table, err := b.writeTarget(ct.Name)
	if err != nil {
		return err
	}
	if ct.From == nil {
		return unsupportedf("CREATE TABLE %s without a query is not supported", table.Path())
	}
	res, err := b.query(ct.From)
	if err != nil {
		return err
	}
	b.plan.Add(&plan.SaveToTable{Table: table, Dataframe: res, IsReplace: ct.Replace})
	return nil
}

// update plans UPDATE, optionally driven by the rows of a FROM query.
func (b *builder) update(up *ast.Update) error {
	integration, table, err := b.writeTarget(up.Table)
	if err != nil {
		return err
	}
	step := &plan.UpdateToTable{Table: table}
	if up.From != nil {
		res, err := b.query(up.From)
		if err != nil {
			return err
		}
		step.Dataframe = &res
	}
	cmd := ast.Clone(up)
	cmd.From = nil

	isAPI := b.cat.KindOf(integration) == catalog.KindAPI
	if cmd.Where, err = b.flattenSubqueries(cmd.Where, ast.SlotExpr, integration, isAPI); err != nil {
		return err
	}
	if cmd.Where, err = stripIntegrationPrefix(integration, cmd.Where); err != nil {
		return err
	}
	for _, set := range cmd.Set {
		if set.Value, err = b.flattenSubqueries(set.Value, ast.SlotExpr, integration, isAPI); err != nil {
			return err
		}
		if set.Value, err = stripIntegrationPrefix(integration, set.Value); err != nil {
			return err
		}
	}
	step.UpdateCommand = cmd
	b.plan.Add(step)
	return nil
}

func (b *builder) delete(del *ast.Delete) error {
	integration, table, err := b.writeTarget(del.Table)
	if err != nil {
		return err
	}
	isAPI := b.cat.KindOf(integration) == catalog.KindAPI
	where, err := b.flattenSubqueries(del.Where, ast.SlotExpr, integration, isAPI)
	if err != nil {
		return err
	}
	if where, err = stripIntegrationPrefix(integration, where); err != nil {
		return err
	}
	b.plan.Add(&plan.DeleteStep{Table: table, Where: where})
	return nil
}
