package ast

import (
	"reflect"
	"slices"
	"strings"
)

// NewIdentifier builds an identifier from path segments.
func NewIdentifier(parts ...string) *Identifier {
	return &Identifier{Parts: slices.Clone(parts)}
}

// ParseIdentifier splits a dotted path into an identifier. No quoting is understood.
func ParseIdentifier(path string) *Identifier {
	return &Identifier{Parts: strings.Split(path, ".")}
}

// NewConstant wraps a literal value. Plain ints are widened to int64.
func NewConstant(v any) *Constant {
	if i, ok := v.(int); ok {
		v = int64(i)
	}
	return &Constant{Value: v}
}

// Null returns a NULL constant.
func Null() *Constant { return &Constant{} }

// Binary builds a binary operation.
func Binary(op string, left, right Node) *BinaryOperation {
	return &BinaryOperation{Op: op, Args: [2]Node{left, right}}
}

// Path returns the dotted path of the identifier without quoting.
func (id *Identifier) Path() string {
	return strings.Join(id.Parts, ".")
}

// Last returns the final path segment.
func (id *Identifier) Last() string {
	if len(id.Parts) == 0 {
		return ""
	}
	return id.Parts[len(id.Parts)-1]
}

// And joins conditions with "and", left to right. Nil conditions are skipped.
func And(conds ...Node) Node {
	var out Node
	for _, c := range conds {
		if c == nil {
			continue
		}
		if out == nil {
			out = c
			continue
		}
		out = Binary("and", out, c)
	}
	return out
}

// Conjuncts flattens a top-level AND chain into its operands, in order.
func Conjuncts(n Node) []Node {
	if n == nil {
		return nil
	}
	if b, ok := n.(*BinaryOperation); ok && b.Op == "and" {
		return append(Conjuncts(b.Args[0]), Conjuncts(b.Args[1])...)
	}
	return []Node{n}
}

// Equal reports whether two trees are structurally identical.
func Equal(a, b Node) bool {
	return reflect.DeepEqual(a, b)
}

// AliasOf returns the alias carried by n, if its kind can carry one.
func AliasOf(n Node) string {
	switch n := n.(type) {
	case *Identifier:
		return n.Alias
	case *Constant:
		return n.Alias
	case *BinaryOperation:
		return n.Alias
	case *UnaryOperation:
		return n.Alias
	case *BetweenOperation:
		return n.Alias
	case *Function:
		return n.Alias
	case *TypeCast:
		return n.Alias
	case *Select:
		return n.Alias
	case *Union:
		return n.Alias
	case *NativeQuery:
		return n.Alias
	case *Data:
		return n.Alias
	}
	return ""
}

// WithAlias returns a copy of n carrying alias. Kinds without an alias are returned as copies unchanged.
func WithAlias(n Node, alias string) Node {
	c := Clone(n)
	switch c := c.(type) {
	case *Identifier:
		c.Alias = alias
	case *Constant:
		c.Alias = alias
	case *BinaryOperation:
		c.Alias = alias
	case *UnaryOperation:
		c.Alias = alias
	case *BetweenOperation:
		c.Alias = alias
	case *Function:
		c.Alias = alias
	case *TypeCast:
		c.Alias = alias
	case *Select:
		c.Alias = alias
	case *Union:
		c.Alias = alias
	case *NativeQuery:
		c.Alias = alias
	case *Data:
		c.Alias = alias
	}
	return c
}

// IsQuery reports whether n is a query that yields rows.
func IsQuery(n Node) bool {
	switch n.(type) {
	case *Select, *Union:
		return true
	}
	return false
}
