package ast

import (
	"fmt"
	"maps"
	"slices"
)

// Slot tells a visitor where a node sits in its parent.
type Slot int

// Slots.
const (
	SlotExpr   Slot = iota // expression position: WHERE, ON, HAVING, arguments
	SlotTarget             // a SELECT target
	SlotTable              // a FROM source or a DML target table
)

// RewriteFunc is called for every node in pre-order. Returning a non-nil node
// replaces n in the output and its children are not visited.
type RewriteFunc func(n Node, slot Slot) (Node, error)

// Clone returns a deep copy of n.
func Clone[T Node](n T) T {
	t := &transformer{}
	out, _ := t.visit(n, SlotExpr).(T)
	return out
}

// Rewrite returns a deep copy of n with fn applied. The input tree is never modified.
func Rewrite(n Node, fn RewriteFunc) (Node, error) {
	t := &transformer{fn: fn}
	out := t.visit(n, SlotExpr)
	if t.err != nil {
		return nil, t.err
	}
	return out, nil
}

// RewriteSlot is Rewrite for a tree that sits in the given slot of its parent.
func RewriteSlot(n Node, slot Slot, fn RewriteFunc) (Node, error) {
	t := &transformer{fn: fn}
	out := t.visit(n, slot)
	if t.err != nil {
		return nil, t.err
	}
	return out, nil
}

type transformer struct {
	fn  RewriteFunc
	err error
}

func (t *transformer) visit(n Node, slot Slot) Node {
	if n == nil || t.err != nil {
		return n
	}
	if t.fn != nil {
		r, err := t.fn(n, slot)
		if err != nil {
			t.err = err
			return n
		}
		if r != nil {
			return r
		}
	}
	return t.copy(n, slot)
}

func (t *transformer) list(nodes []Node, slot Slot) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = t.visit(n, slot)
	}
	return out
}

func (t *transformer) ident(id *Identifier) *Identifier {
	if id == nil {
		return nil
	}
	out, ok := t.visit(id, SlotTable).(*Identifier)
	if !ok {
		t.fail(fmt.Errorf("ast: table identifier %s rewritten to a different node kind", id.Path()))
		return id
	}
	return out
}

func (t *transformer) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

//nolint:gocyclo // one case per node kind
func (t *transformer) copy(n Node, slot Slot) Node {
	switch n := n.(type) {
	case *Select:
		if n == nil {
			return n
		}
		c := *n
		if n.CTEs != nil {
			c.CTEs = make([]*CTE, len(n.CTEs))
			for i, cte := range n.CTEs {
				c.CTEs[i] = &CTE{
					Name:    cte.Name,
					Columns: slices.Clone(cte.Columns),
					Query:   t.visit(cte.Query, SlotTable),
				}
			}
		}
		c.Targets = t.list(n.Targets, SlotTarget)
		c.From = t.visit(n.From, SlotTable)
		c.Where = t.visit(n.Where, SlotExpr)
		c.GroupBy = t.list(n.GroupBy, SlotExpr)
		c.Having = t.visit(n.Having, SlotExpr)
		if n.OrderBy != nil {
			c.OrderBy = make([]*OrderBy, len(n.OrderBy))
			for i, o := range n.OrderBy {
				c.OrderBy[i] = &OrderBy{Field: t.visit(o.Field, SlotExpr), Direction: o.Direction, Nulls: o.Nulls}
			}
		}
		c.Limit = copyConstant(n.Limit)
		c.Offset = copyConstant(n.Offset)
		c.Using = maps.Clone(n.Using)
		return &c

	case *CTE:
		if n == nil {
			return n
		}
		return &CTE{Name: n.Name, Columns: slices.Clone(n.Columns), Query: t.visit(n.Query, SlotTable)}

	case *Union:
		if n == nil {
			return n
		}
		c := *n
		c.Left = t.visit(n.Left, slot)
		c.Right = t.visit(n.Right, slot)
		return &c

	case *Insert:
		if n == nil {
			return n
		}
		c := *n
		c.Table = t.ident(n.Table)
		if n.Columns != nil {
			c.Columns = make([]*Identifier, len(n.Columns))
			for i, col := range n.Columns {
				c.Columns[i] = copyIdentifier(col)
			}
		}
		if n.Values != nil {
			c.Values = make([][]Node, len(n.Values))
			for i, row := range n.Values {
				c.Values[i] = t.list(row, SlotExpr)
			}
		}
		c.From = t.visit(n.From, SlotTable)
		return &c

	case *Update:
		if n == nil {
			return n
		}
		c := *n
		c.Table = t.ident(n.Table)
		if n.Set != nil {
			c.Set = make([]*Assignment, len(n.Set))
			for i, a := range n.Set {
				c.Set[i] = &Assignment{Column: a.Column, Value: t.visit(a.Value, SlotExpr)}
			}
		}
		c.From = t.visit(n.From, SlotTable)
		c.Where = t.visit(n.Where, SlotExpr)
		return &c

	case *Delete:
		if n == nil {
			return n
		}
		return &Delete{Table: t.ident(n.Table), Where: t.visit(n.Where, SlotExpr)}

	case *CreateTable:
		if n == nil {
			return n
		}
		return &CreateTable{Name: t.ident(n.Name), From: t.visit(n.From, SlotTable), Replace: n.Replace}

	case *Join:
		if n == nil {
			return n
		}
		c := *n
		c.Left = t.visit(n.Left, SlotTable)
		c.Right = t.visit(n.Right, SlotTable)
		c.Condition = t.visit(n.Condition, SlotExpr)
		return &c

	case *NativeQuery:
		if n == nil {
			return n
		}
		c := *n
		return &c

	case *Data:
		if n == nil {
			return n
		}
		c := *n
		c.Columns = slices.Clone(n.Columns)
		if n.Rows != nil {
			c.Rows = make([][]Node, len(n.Rows))
			for i, row := range n.Rows {
				c.Rows[i] = t.list(row, SlotExpr)
			}
		}
		return &c

	case *Identifier:
		return copyIdentifier(n)

	case *Star:
		if n == nil {
			return n
		}
		return &Star{}

	case *Constant:
		return copyConstant(n)

	case *Latest:
		if n == nil {
			return n
		}
		return &Latest{}

	case *Parameter:
		if n == nil {
			return n
		}
		c := *n
		return &c

	case *BinaryOperation:
		if n == nil {
			return n
		}
		c := *n
		c.Args = [2]Node{t.visit(n.Args[0], SlotExpr), t.visit(n.Args[1], SlotExpr)}
		return &c

	case *UnaryOperation:
		if n == nil {
			return n
		}
		c := *n
		c.Arg = t.visit(n.Arg, SlotExpr)
		return &c

	case *BetweenOperation:
		if n == nil {
			return n
		}
		c := *n
		for i := range n.Args {
			c.Args[i] = t.visit(n.Args[i], SlotExpr)
		}
		return &c

	case *Function:
		if n == nil {
			return n
		}
		c := *n
		c.Args = t.list(n.Args, SlotExpr)
		return &c

	case *TypeCast:
		if n == nil {
			return n
		}
		c := *n
		c.Arg = t.visit(n.Arg, SlotExpr)
		return &c

	case *Tuple:
		if n == nil {
			return n
		}
		return &Tuple{Items: t.list(n.Items, SlotExpr)}

	case *OrderBy:
		if n == nil {
			return n
		}
		return &OrderBy{Field: t.visit(n.Field, SlotExpr), Direction: n.Direction, Nulls: n.Nulls}
	}
	t.fail(fmt.Errorf("ast: unknown node %T", n))
	return n
}

func copyIdentifier(id *Identifier) *Identifier {
	if id == nil {
		return nil
	}
	return &Identifier{Parts: slices.Clone(id.Parts), Alias: id.Alias}
}

func copyConstant(c *Constant) *Constant {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
