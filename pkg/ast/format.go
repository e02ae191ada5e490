package ast

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/token"
)

// String renders n as single-line SQL, including the node's own alias.
func String(n Node) string {
	p := &printer{}
	p.node(n, true)
	return p.sb.String()
}

// ExprString renders n without its own alias. Nested aliases are kept.
func ExprString(n Node) string {
	p := &printer{}
	p.node(n, false)
	return p.sb.String()
}

func (id *Identifier) String() string { return String(id) }
func (s *Select) String() string     { return String(s) }

type printer struct {
	sb strings.Builder
}

func (p *printer) write(s string) {
	p.sb.WriteString(s)
}

func (p *printer) alias(a string) {
	if a == "" {
		return
	}
	p.write(" AS ")
	p.write(quotePart(a))
}

func (p *printer) list(nodes []Node, withAlias bool) {
	for i, n := range nodes {
		if i > 0 {
			p.write(", ")
		}
		p.node(n, withAlias)
	}
}

// precedence mirrors the parser's binding powers.
func precedence(op string) int {
	switch op {
	case "or":
		return 1
	case "and":
		return 2
	case "=", "!=", "<>", "<", ">", "<=", ">=", "like", "not like", "in", "not in", "is", "is not":
		return 4
	case "+", "-", "||":
		return 5
	case "*", "/", "%":
		return 6
	}
	return 7
}

//nolint:gocyclo // one case per node kind
func (p *printer) node(n Node, withAlias bool) {
	switch n := n.(type) {
	case nil:
		return
	case *Select:
		p.selectStmt(n, withAlias)
	case *Union:
		p.union(n, withAlias)
	case *Insert:
		p.insert(n)
	case *Update:
		p.update(n)
	case *Delete:
		p.write("DELETE FROM ")
		p.node(n.Table, true)
		if n.Where != nil {
			p.write(" WHERE ")
			p.node(n.Where, true)
		}
	case *CreateTable:
		p.write("CREATE ")
		if n.Replace {
			p.write("OR REPLACE ")
		}
		p.write("TABLE ")
		p.node(n.Name, true)
		if n.From != nil {
			p.write(" AS ")
			p.node(n.From, false)
		}
	case *Join:
		p.join(n)
	case *NativeQuery:
		p.write(quotePart(n.Integration))
		p.write(" (")
		p.write(n.Query)
		p.write(")")
		if withAlias {
			p.alias(n.Alias)
		}
	case *Data:
		p.write("(VALUES ")
		for i, row := range n.Rows {
			if i > 0 {
				p.write(", ")
			}
			p.write("(")
			p.list(row, false)
			p.write(")")
		}
		p.write(")")
		if withAlias && n.Alias != "" {
			p.alias(n.Alias)
			if len(n.Columns) > 0 {
				quoted := make([]string, len(n.Columns))
				for i, c := range n.Columns {
					quoted[i] = quotePart(c)
				}
				p.write("(" + strings.Join(quoted, ", ") + ")")
			}
		}
	case *Identifier:
		parts := make([]string, len(n.Parts))
		for i, part := range n.Parts {
			parts[i] = quotePart(part)
		}
		p.write(strings.Join(parts, "."))
		if withAlias {
			p.alias(n.Alias)
		}
	case *Star:
		p.write("*")
	case *Constant:
		p.write(formatValue(n.Value))
		if withAlias {
			p.alias(n.Alias)
		}
	case *Latest:
		p.write("LATEST")
	case *Parameter:
		if s, ok := n.Value.(fmt.Stringer); ok {
			p.write(s.String())
		} else {
			p.write("?")
		}
	case *BinaryOperation:
		p.binary(n)
		if withAlias {
			p.alias(n.Alias)
		}
	case *UnaryOperation:
		if n.Op == "not" {
			p.write("NOT ")
		} else {
			p.write(n.Op)
		}
		p.operand(n.Arg, 7)
		if withAlias {
			p.alias(n.Alias)
		}
	case *BetweenOperation:
		p.operand(n.Args[0], 5)
		p.write(" BETWEEN ")
		p.operand(n.Args[1], 5)
		p.write(" AND ")
		p.operand(n.Args[2], 5)
		if withAlias {
			p.alias(n.Alias)
		}
	case *Function:
		p.write(n.Name)
		p.write("(")
		if n.Distinct {
			p.write("DISTINCT ")
		}
		p.list(n.Args, false)
		p.write(")")
		if withAlias {
			p.alias(n.Alias)
		}
	case *TypeCast:
		p.write("CAST(")
		p.node(n.Arg, false)
		p.write(" AS ")
		p.write(n.Type)
		p.write(")")
		if withAlias {
			p.alias(n.Alias)
		}
	case *Tuple:
		p.write("(")
		p.list(n.Items, false)
		p.write(")")
	case *OrderBy:
		p.node(n.Field, false)
		if n.Direction != "" {
			p.write(" " + n.Direction)
		}
		if n.Nulls != "" {
			p.write(" " + n.Nulls)
		}
	case *CTE:
		p.write(quotePart(n.Name))
		p.write(" AS (")
		p.node(n.Query, false)
		p.write(")")
	default:
		p.write(fmt.Sprintf("<%T>", n))
	}
}

func (p *printer) operand(n Node, parent int) {
	if b, ok := n.(*BinaryOperation); ok && (b.Parens || precedence(b.Op) < parent) {
		p.write("(")
		p.binary(b)
		p.write(")")
		return
	}
	p.nested(n)
}

// nested renders n in expression position, parenthesizing subqueries.
func (p *printer) nested(n Node) {
	if IsQuery(n) {
		p.write("(")
		p.node(n, false)
		p.write(")")
		return
	}
	p.node(n, false)
}

func (p *printer) binary(n *BinaryOperation) {
	prec := precedence(n.Op)
	p.operand(n.Args[0], prec)
	switch n.Op {
	case "and", "or", "like", "not like", "in", "not in", "is", "is not":
		p.write(" " + strings.ToUpper(n.Op) + " ")
	default:
		p.write(" " + n.Op + " ")
	}
	// Right operand binds tighter to keep left associativity visible.
	p.operand(n.Args[1], prec+1)
}

func (p *printer) selectStmt(s *Select, withAlias bool) {
	nested := withAlias && (s.Alias != "" || s.Parens)
	if nested {
		p.write("(")
	}
	if len(s.CTEs) > 0 {
		p.write("WITH ")
		for i, cte := range s.CTEs {
			if i > 0 {
				p.write(", ")
			}
			p.node(cte, false)
		}
		p.write(" ")
	}
	p.write("SELECT ")
	if s.Distinct {
		p.write("DISTINCT ")
	}
	for i, t := range s.Targets {
		if i > 0 {
			p.write(", ")
		}
		if IsQuery(t) {
			p.write("(")
			p.node(t, false)
			p.write(")")
			p.alias(AliasOf(t))
			continue
		}
		p.node(t, true)
	}
	if s.From != nil {
		p.write(" FROM ")
		p.source(s.From)
	}
	if s.Where != nil {
		p.write(" WHERE ")
		p.node(s.Where, false)
	}
	if len(s.GroupBy) > 0 {
		p.write(" GROUP BY ")
		p.list(s.GroupBy, false)
	}
	if s.Having != nil {
		p.write(" HAVING ")
		p.node(s.Having, false)
	}
	if len(s.OrderBy) > 0 {
		p.write(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				p.write(", ")
			}
			p.node(o, false)
		}
	}
	if s.Limit != nil {
		p.write(" LIMIT " + formatValue(s.Limit.Value))
	}
	if s.Offset != nil {
		p.write(" OFFSET " + formatValue(s.Offset.Value))
	}
	if len(s.Using) > 0 {
		p.write(" USING ")
		keys := make([]string, 0, len(s.Using))
		for k := range s.Using {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				p.write(", ")
			}
			p.write(quotePart(k) + " = " + formatValue(s.Using[k]))
		}
	}
	if nested {
		p.write(")")
		p.alias(s.Alias)
	}
}

// source renders a FROM item. Subqueries are always parenthesized.
func (p *printer) source(n Node) {
	switch n := n.(type) {
	case *Select:
		p.write("(")
		p.selectStmt(n, false)
		p.write(")")
		p.alias(n.Alias)
	case *Union:
		p.write("(")
		p.union(n, false)
		p.write(")")
		p.alias(n.Alias)
	default:
		p.node(n, true)
	}
}

func (p *printer) union(u *Union, withAlias bool) {
	p.node(u.Left, false)
	p.write(" " + strings.ToUpper(string(u.Op)))
	if !u.Unique {
		p.write(" ALL")
	}
	p.write(" ")
	p.node(u.Right, false)
	if withAlias {
		p.alias(u.Alias)
	}
}

func (p *printer) join(j *Join) {
	p.source(j.Left)
	if j.Implicit {
		p.write(", ")
	} else {
		p.write(" " + string(j.Type) + " ")
	}
	p.source(j.Right)
	if j.Condition != nil {
		p.write(" ON ")
		p.node(j.Condition, false)
	}
}

func (p *printer) insert(n *Insert) {
	p.write("INSERT INTO ")
	p.node(n.Table, true)
	if len(n.Columns) > 0 {
		p.write(" (")
		for i, c := range n.Columns {
			if i > 0 {
				p.write(", ")
			}
			p.node(c, false)
		}
		p.write(")")
	}
	if n.From != nil {
		p.write(" ")
		p.node(n.From, false)
		return
	}
	p.write(" VALUES ")
	for i, row := range n.Values {
		if i > 0 {
			p.write(", ")
		}
		p.write("(")
		p.list(row, false)
		p.write(")")
	}
}

func (p *printer) update(n *Update) {
	p.write("UPDATE ")
	p.node(n.Table, true)
	p.write(" SET ")
	for i, a := range n.Set {
		if i > 0 {
			p.write(", ")
		}
		p.write(quotePart(a.Column) + " = ")
		p.nested(a.Value)
	}
	if n.From != nil {
		p.write(" FROM (")
		p.node(n.From, false)
		p.write(")")
		p.alias(n.FromAlias)
	}
	if n.Where != nil {
		p.write(" WHERE ")
		p.node(n.Where, false)
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eIN") {
			s += ".0"
		}
		return s
	}
	return fmt.Sprintf("%v", v)
}

// quotePart backquotes a path segment unless it is a plain identifier that
// is not a keyword.
func quotePart(s string) string {
	if s == "*" || (isPlain(s) && !token.IsKeyword(token.LookupIdent(strings.ToLower(s)))) {
		return s
	}
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func isPlain(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r >= '0' && r <= '9' || r == '$'):
		default:
			return false
		}
	}
	return true
}
