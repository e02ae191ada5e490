// Package ast defines the closed set of SQL syntax nodes consumed by the planner.
//
// Nodes are plain values linked by pointers. Code outside the parser treats a tree
// as read-only: any rewrite goes through Clone or Rewrite, which return fresh trees.
package ast

// Node is implemented by every syntax node. The unexported marker closes the set
// so that type switches over Node can be kept exhaustive.
type Node interface {
	node()
}

// JoinType is the SQL join keyword sequence.
type JoinType string

// Join types.
const (
	InnerJoin JoinType = "INNER JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
	RightJoin JoinType = "RIGHT JOIN"
	FullJoin  JoinType = "FULL JOIN"
	CrossJoin JoinType = "CROSS JOIN"
)

// SetOp distinguishes the members of the union family.
type SetOp string

// Set operations.
const (
	OpUnion     SetOp = "union"
	OpIntersect SetOp = "intersect"
	OpExcept    SetOp = "except"
)

// ---------- Statements ----------

// Select is a SELECT query. It also appears as a table source and as a scalar subquery.
type Select struct {
	CTEs     []*CTE
	Targets  []Node
	Distinct bool
	From     Node // *Identifier, *Select, *Join, *NativeQuery, *Data or nil
	Where    Node
	GroupBy  []Node
	Having   Node
	OrderBy  []*OrderBy
	Limit    *Constant
	Offset   *Constant
	Using    map[string]any
	Alias    string
	Parens   bool
}

// CTE is one entry of a WITH clause.
type CTE struct {
	Name    string
	Columns []string
	Query   Node
}

// Union combines two queries with UNION, INTERSECT or EXCEPT.
type Union struct {
	Op     SetOp
	Left   Node
	Right  Node
	Unique bool // false for the ALL variant
	Alias  string
}

// Insert is INSERT INTO ... VALUES or INSERT INTO ... SELECT.
type Insert struct {
	Table   *Identifier
	Columns []*Identifier
	Values  [][]Node
	From    Node
}

// Assignment is a single SET column = value pair of an UPDATE.
type Assignment struct {
	Column string
	Value  Node
}

// Update is UPDATE ... SET ... [FROM (select) AS alias] [WHERE ...].
type Update struct {
	Table     *Identifier
	Set       []*Assignment
	From      Node
	FromAlias string
	Where     Node
}

// Delete is DELETE FROM ... [WHERE ...].
type Delete struct {
	Table *Identifier
	Where Node
}

// CreateTable is CREATE [OR REPLACE] TABLE name AS SELECT ...
type CreateTable struct {
	Name    *Identifier
	From    Node
	Replace bool
}

// ---------- Table sources ----------

// Join is a binary join. Join trees are left-deep: Right is never a *Join.
type Join struct {
	Left      Node
	Right     Node
	Type      JoinType
	Condition Node
	Implicit  bool // comma join
}

// NativeQuery is raw backend text sent verbatim: integration (text).
type NativeQuery struct {
	Integration string
	Query       string
	Alias       string
}

// Data is a literal row set: (VALUES (...), (...)) AS alias(columns).
type Data struct {
	Columns []string
	Rows    [][]Node
	Alias   string
}

// ---------- Expressions ----------

// Identifier is a dotted path such as integration.table.column.
type Identifier struct {
	Parts []string
	Alias string
}

// Star is the bare * target.
type Star struct{}

// Constant is a typed literal. Value is int64, float64, string, bool or nil for NULL.
type Constant struct {
	Value any
	Alias string
}

// Latest is the LATEST keyword used in time-series filters.
type Latest struct{}

// Parameter is a value bound outside the SQL text: a ? placeholder or a step result.
type Parameter struct {
	Value any
}

// BinaryOperation is an infix operation. Op is lower case, e.g. "=", "and", "not in", "is not".
type BinaryOperation struct {
	Op     string
	Args   [2]Node
	Alias  string
	Parens bool
}

// UnaryOperation is a prefix operation such as "not" or "-".
type UnaryOperation struct {
	Op    string
	Arg   Node
	Alias string
}

// BetweenOperation is Args[0] BETWEEN Args[1] AND Args[2].
type BetweenOperation struct {
	Args  [3]Node
	Alias string
}

// Function is a function call. COUNT(*) carries a single *Star argument.
type Function struct {
	Name     string
	Args     []Node
	Distinct bool
	Alias    string
}

// TypeCast is CAST(arg AS type).
type TypeCast struct {
	Arg   Node
	Type  string
	Alias string
}

// Tuple is a parenthesized value list, the right side of IN.
type Tuple struct {
	Items []Node
}

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Field     Node
	Direction string // "ASC", "DESC" or ""
	Nulls     string // "NULLS FIRST", "NULLS LAST" or ""
}

func (*Select) node()           {}
func (*CTE) node()              {}
func (*Union) node()            {}
func (*Insert) node()           {}
func (*Update) node()           {}
func (*Delete) node()           {}
func (*CreateTable) node()      {}
func (*Join) node()             {}
func (*NativeQuery) node()      {}
func (*Data) node()             {}
func (*Identifier) node()       {}
func (*Star) node()             {}
func (*Constant) node()         {}
func (*Latest) node()           {}
func (*Parameter) node()        {}
func (*BinaryOperation) node()  {}
func (*UnaryOperation) node()   {}
func (*BetweenOperation) node() {}
func (*Function) node()         {}
func (*TypeCast) node()         {}
func (*Tuple) node()            {}
func (*OrderBy) node()          {}
