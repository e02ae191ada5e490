package ast

// Walk traverses a tree depth-first in pre-order and calls fn for each node.
// If fn returns false, the children of that node are skipped.
func Walk(n Node, fn func(n Node, slot Slot) bool) {
	walk(n, SlotExpr, fn)
}

// WalkSlot is Walk for a tree that sits in the given slot of its parent.
func WalkSlot(n Node, slot Slot, fn func(n Node, slot Slot) bool) {
	walk(n, slot, fn)
}

func walkList(nodes []Node, slot Slot, fn func(Node, Slot) bool) {
	for _, n := range nodes {
		walk(n, slot, fn)
	}
}

//nolint:gocyclo // one case per node kind
func walk(n Node, slot Slot, fn func(Node, Slot) bool) {
	if n == nil {
		return
	}
	if !fn(n, slot) {
		return
	}

	switch n := n.(type) {
	case *Select:
		if n == nil {
			return
		}
		for _, cte := range n.CTEs {
			walk(cte.Query, SlotTable, fn)
		}
		walkList(n.Targets, SlotTarget, fn)
		walk(n.From, SlotTable, fn)
		walk(n.Where, SlotExpr, fn)
		walkList(n.GroupBy, SlotExpr, fn)
		walk(n.Having, SlotExpr, fn)
		for _, o := range n.OrderBy {
			walk(o.Field, SlotExpr, fn)
		}

	case *CTE:
		if n == nil {
			return
		}
		walk(n.Query, SlotTable, fn)

	case *Union:
		if n == nil {
			return
		}
		walk(n.Left, slot, fn)
		walk(n.Right, slot, fn)

	case *Insert:
		if n == nil {
			return
		}
		if n.Table != nil {
			walk(n.Table, SlotTable, fn)
		}
		for _, row := range n.Values {
			walkList(row, SlotExpr, fn)
		}
		walk(n.From, SlotTable, fn)

	case *Update:
		if n == nil {
			return
		}
		if n.Table != nil {
			walk(n.Table, SlotTable, fn)
		}
		for _, a := range n.Set {
			walk(a.Value, SlotExpr, fn)
		}
		walk(n.From, SlotTable, fn)
		walk(n.Where, SlotExpr, fn)

	case *Delete:
		if n == nil {
			return
		}
		if n.Table != nil {
			walk(n.Table, SlotTable, fn)
		}
		walk(n.Where, SlotExpr, fn)

	case *CreateTable:
		if n == nil {
			return
		}
		if n.Name != nil {
			walk(n.Name, SlotTable, fn)
		}
		walk(n.From, SlotTable, fn)

	case *Join:
		if n == nil {
			return
		}
		walk(n.Left, SlotTable, fn)
		walk(n.Right, SlotTable, fn)
		walk(n.Condition, SlotExpr, fn)

	case *Data:
		if n == nil {
			return
		}
		for _, row := range n.Rows {
			walkList(row, SlotExpr, fn)
		}

	case *BinaryOperation:
		if n == nil {
			return
		}
		walk(n.Args[0], SlotExpr, fn)
		walk(n.Args[1], SlotExpr, fn)

	case *UnaryOperation:
		if n == nil {
			return
		}
		walk(n.Arg, SlotExpr, fn)

	case *BetweenOperation:
		if n == nil {
			return
		}
		for _, a := range n.Args {
			walk(a, SlotExpr, fn)
		}

	case *Function:
		if n == nil {
			return
		}
		walkList(n.Args, SlotExpr, fn)

	case *TypeCast:
		if n == nil {
			return
		}
		walk(n.Arg, SlotExpr, fn)

	case *Tuple:
		if n == nil {
			return
		}
		walkList(n.Items, SlotExpr, fn)

	case *OrderBy:
		if n == nil {
			return
		}
		walk(n.Field, SlotExpr, fn)

	case *Identifier, *Star, *Constant, *Latest, *Parameter, *NativeQuery:
		// Leaf nodes
	}
}
