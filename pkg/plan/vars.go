package plan

import (
	"fmt"
	"regexp"

	"github.com/leapstack-labs/fedplan/pkg/ast"
)

var varPattern = regexp.MustCompile(`^\$var\[(.+)\]$`)

// VarPlaceholder returns the constant a map-reduce template uses for column.
func VarPlaceholder(column string) *ast.Constant {
	return ast.NewConstant("$var[" + column + "]")
}

// SubstituteVars returns a copy of a map-reduce template step with every
// $var[column] placeholder replaced by values[column].
func SubstituteVars(s Step, values map[string]any) (Step, error) {
	switch s := s.(type) {
	case *FetchDataframeStep:
		out := *s
		if s.Query != nil {
			q, err := substitute(s.Query, values)
			if err != nil {
				return nil, err
			}
			out.Query = q.(*ast.Select)
		}
		return &out, nil
	case *MultipleSteps:
		out := &MultipleSteps{Reduce: s.Reduce, Steps: make([]Step, len(s.Steps))}
		for i, child := range s.Steps {
			c, err := SubstituteVars(child, values)
			if err != nil {
				return nil, err
			}
			out.Steps[i] = c
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s cannot be a map-reduce template", s.Kind())
}

func substitute(n ast.Node, values map[string]any) (ast.Node, error) {
	return ast.Rewrite(n, func(n ast.Node, _ ast.Slot) (ast.Node, error) {
		c, ok := n.(*ast.Constant)
		if !ok {
			return nil, nil
		}
		s, ok := c.Value.(string)
		if !ok {
			return nil, nil
		}
		m := varPattern.FindStringSubmatch(s)
		if m == nil {
			return nil, nil
		}
		v, ok := values[m[1]]
		if !ok {
			return nil, fmt.Errorf("no value for partition column %q", m[1])
		}
		return &ast.Constant{Value: v, Alias: c.Alias}, nil
	})
}
