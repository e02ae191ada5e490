package planner

import (
	"github.com/leapstack-labs/fedplan/pkg/parser"
	"github.com/leapstack-labs/fedplan/pkg/plan"
)

// PlanSQL parses one statement and plans it. Syntax errors are returned as
// parser.ParseErrors, planning failures as *PlanningError.
func (p *Planner) PlanSQL(sql string) (*plan.Plan, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("parsed statement", "kind", kindName(stmt))
	return p.Plan(stmt)
}
