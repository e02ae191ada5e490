// Package plan defines the compiled query plan: an ordered list of typed steps
// whose inputs are Result handles to the outputs of earlier steps.
package plan

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/leapstack-labs/fedplan/pkg/ast"
)

// Reduce policies for fan-out steps.
const (
	ReduceUnion = "union"
)

// Result is a handle to the output of the step at index Step.
type Result struct {
	Step int
}

// RefName is the local table name under which the result is addressed in synthesized queries.
func (r Result) RefName() string {
	return fmt.Sprintf("result_%d", r.Step)
}

// String implements fmt.Stringer.
func (r Result) String() string {
	return fmt.Sprintf("Result(%d)", r.Step)
}

// Step is one primitive operation of a plan.
type Step interface {
	// Kind returns the step type name.
	Kind() string
	// Inputs returns every result the step consumes, including results bound
	// into its queries as parameters. Each result appears once.
	Inputs() []Result
}

// FetchDataframeStep sends a query, or raw backend text, to one integration.
type FetchDataframeStep struct {
	Integration string
	Query       *ast.Select
	RawQuery    string
}

// ProjectStep maps a dataframe onto output columns. A *ast.Star keeps all columns.
type ProjectStep struct {
	Dataframe     Result
	Columns       []ast.Node
	IgnoreDoubles bool
}

// FilterStep keeps the rows matching Query.
type FilterStep struct {
	Dataframe Result
	Query     ast.Node
}

// GroupByStep aggregates a dataframe.
type GroupByStep struct {
	Dataframe Result
	Columns   []ast.Node
	Targets   []ast.Node
}

// JoinStep joins two results. Query refers to them as result_N identifiers.
type JoinStep struct {
	Left  Result
	Right Result
	Query *ast.Join
}

// OrderByStep sorts a dataframe.
type OrderByStep struct {
	Dataframe Result
	OrderBy   []*ast.OrderBy
}

// LimitOffsetStep slices a dataframe.
type LimitOffsetStep struct {
	Dataframe Result
	Limit     *int64
	Offset    *int64
}

// UnionStep combines two results with a set operation.
type UnionStep struct {
	Left      Result
	Right     Result
	Unique    bool
	Operation ast.SetOp
}

// ApplyPredictorStep runs a predictor over every row of a dataframe.
type ApplyPredictorStep struct {
	Namespace string
	Predictor *ast.Identifier
	Dataframe Result
	Params    map[string]any
	RowDict   map[string]any
}

// ApplyPredictorRowStep runs a predictor for a single row of constant inputs.
type ApplyPredictorRowStep struct {
	Namespace string
	Predictor *ast.Identifier
	RowDict   map[string]any
	Params    map[string]any
}

// ApplyTimeseriesPredictorStep runs a forecasting predictor over ordered history.
// OutputTimeFilter is the user's time filter, reapplied to the forecast.
type ApplyTimeseriesPredictorStep struct {
	Namespace        string
	Predictor        *ast.Identifier
	Dataframe        Result
	Params           map[string]any
	OutputTimeFilter ast.Node
}

// GetPredictorColumns returns the column set of a predictor without predicting.
type GetPredictorColumns struct {
	Namespace string
	Predictor *ast.Identifier
}

// MapReduceStep runs Step once per row of Values, substituting the row into
// $var[column] placeholders, and reduces the outputs.
type MapReduceStep struct {
	Values Result
	Reduce string
	Step   Step
}

// MultipleSteps runs independent steps and reduces their outputs in order.
type MultipleSteps struct {
	Steps  []Step
	Reduce string
}

// SubSelectStep evaluates Query locally with Dataframe as its FROM table.
type SubSelectStep struct {
	Query         *ast.Select
	Dataframe     Result
	TableName     string
	AddAbsentCols bool
}

// DataStep materializes literal rows.
type DataStep struct {
	Data *ast.Data
}

// QueryStep evaluates a query that reads no table, such as SELECT 1.
type QueryStep struct {
	Query *ast.Select
}

// SaveToTable writes a dataframe into a new table.
type SaveToTable struct {
	Table     *ast.Identifier
	Dataframe Result
	IsReplace bool
}

// InsertToTable appends a dataframe, or the literal rows of Query, to a table.
type InsertToTable struct {
	Table     *ast.Identifier
	Dataframe *Result
	Query     *ast.Insert
}

// UpdateToTable runs an update, optionally driven by the rows of a dataframe.
type UpdateToTable struct {
	Table         *ast.Identifier
	Dataframe     *Result
	UpdateCommand *ast.Update
}

// DeleteStep deletes the rows of a table matching Where.
type DeleteStep struct {
	Table *ast.Identifier
	Where ast.Node
}

func (*FetchDataframeStep) Kind() string           { return "FetchDataframeStep" }
func (*ProjectStep) Kind() string                  { return "ProjectStep" }
func (*FilterStep) Kind() string                   { return "FilterStep" }
func (*GroupByStep) Kind() string                  { return "GroupByStep" }
func (*JoinStep) Kind() string                     { return "JoinStep" }
func (*OrderByStep) Kind() string                  { return "OrderByStep" }
func (*LimitOffsetStep) Kind() string              { return "LimitOffsetStep" }
func (*UnionStep) Kind() string                    { return "UnionStep" }
func (*ApplyPredictorStep) Kind() string           { return "ApplyPredictorStep" }
func (*ApplyPredictorRowStep) Kind() string        { return "ApplyPredictorRowStep" }
func (*ApplyTimeseriesPredictorStep) Kind() string { return "ApplyTimeseriesPredictorStep" }
func (*GetPredictorColumns) Kind() string          { return "GetPredictorColumns" }
func (*MapReduceStep) Kind() string                { return "MapReduceStep" }
func (*MultipleSteps) Kind() string                { return "MultipleSteps" }
func (*SubSelectStep) Kind() string                { return "SubSelectStep" }
func (*DataStep) Kind() string                     { return "DataStep" }
func (*QueryStep) Kind() string                    { return "QueryStep" }
func (*SaveToTable) Kind() string                  { return "SaveToTable" }
func (*InsertToTable) Kind() string                { return "InsertToTable" }
func (*UpdateToTable) Kind() string                { return "UpdateToTable" }
func (*DeleteStep) Kind() string                   { return "DeleteStep" }

// Inputs implements Step.
func (s *FetchDataframeStep) Inputs() []Result { return collect(nil, nodes(s.Query)) }

// Inputs implements Step.
func (s *ProjectStep) Inputs() []Result { return collect([]Result{s.Dataframe}, s.Columns) }

// Inputs implements Step.
func (s *FilterStep) Inputs() []Result { return collect([]Result{s.Dataframe}, nodes(s.Query)) }

// Inputs implements Step.
func (s *GroupByStep) Inputs() []Result {
	return collect([]Result{s.Dataframe}, append(append([]ast.Node(nil), s.Columns...), s.Targets...))
}

// Inputs implements Step.
func (s *JoinStep) Inputs() []Result { return collect([]Result{s.Left, s.Right}, nodes(s.Query)) }

// Inputs implements Step.
func (s *OrderByStep) Inputs() []Result {
	ns := make([]ast.Node, len(s.OrderBy))
	for i, o := range s.OrderBy {
		ns[i] = o
	}
	return collect([]Result{s.Dataframe}, ns)
}

// Inputs implements Step.
func (s *LimitOffsetStep) Inputs() []Result { return []Result{s.Dataframe} }

// Inputs implements Step.
func (s *UnionStep) Inputs() []Result { return collect([]Result{s.Left, s.Right}, nil) }

// Inputs implements Step.
func (s *ApplyPredictorStep) Inputs() []Result {
	return collect(append([]Result{s.Dataframe}, rowDictInputs(s.RowDict)...), nil)
}

// Inputs implements Step.
func (s *ApplyPredictorRowStep) Inputs() []Result { return rowDictInputs(s.RowDict) }

// Inputs implements Step.
func (s *ApplyTimeseriesPredictorStep) Inputs() []Result {
	return collect([]Result{s.Dataframe}, nodes(s.OutputTimeFilter))
}

// Inputs implements Step.
func (s *GetPredictorColumns) Inputs() []Result { return nil }

// Inputs implements Step.
func (s *MapReduceStep) Inputs() []Result {
	in := []Result{s.Values}
	if s.Step != nil {
		in = append(in, s.Step.Inputs()...)
	}
	return collect(in, nil)
}

// Inputs implements Step.
func (s *MultipleSteps) Inputs() []Result {
	var in []Result
	for _, child := range s.Steps {
		in = append(in, child.Inputs()...)
	}
	return collect(in, nil)
}

// Inputs implements Step.
func (s *SubSelectStep) Inputs() []Result { return collect([]Result{s.Dataframe}, nodes(s.Query)) }

// Inputs implements Step.
func (s *DataStep) Inputs() []Result { return collect(nil, nodes(s.Data)) }

// Inputs implements Step.
func (s *QueryStep) Inputs() []Result { return collect(nil, nodes(s.Query)) }

// Inputs implements Step.
func (s *SaveToTable) Inputs() []Result { return []Result{s.Dataframe} }

// Inputs implements Step.
func (s *InsertToTable) Inputs() []Result {
	var in []Result
	if s.Dataframe != nil {
		in = append(in, *s.Dataframe)
	}
	return collect(in, nodes(s.Query))
}

// Inputs implements Step.
func (s *UpdateToTable) Inputs() []Result {
	var in []Result
	if s.Dataframe != nil {
		in = append(in, *s.Dataframe)
	}
	return collect(in, nodes(s.UpdateCommand))
}

// Inputs implements Step.
func (s *DeleteStep) Inputs() []Result { return collect(nil, nodes(s.Where)) }

// nodes turns a possibly typed-nil node into a list.
func nodes[T ast.Node](n T) []ast.Node {
	var zero T
	if any(n) == any(zero) {
		return nil
	}
	return []ast.Node{n}
}

// collect appends the results found in parameters of trees to direct and drops duplicates.
func collect(direct []Result, trees []ast.Node) []Result {
	seen := make(map[int]bool, len(direct))
	var out []Result
	add := func(r Result) {
		if !seen[r.Step] {
			seen[r.Step] = true
			out = append(out, r)
		}
	}
	for _, r := range direct {
		add(r)
	}
	for _, tree := range trees {
		ast.Walk(tree, func(n ast.Node, _ ast.Slot) bool {
			if p, ok := n.(*ast.Parameter); ok {
				if r, ok := p.Value.(Result); ok {
					add(r)
				}
			}
			return true
		})
	}
	return out
}

func rowDictInputs(row map[string]any) []Result {
	var in []Result
	for _, v := range row {
		switch v := v.(type) {
		case Result:
			in = append(in, v)
		case *ast.Parameter:
			if r, ok := v.Value.(Result); ok {
				in = append(in, r)
			}
		}
	}
	slices.SortFunc(in, func(a, b Result) int { return cmp.Compare(a.Step, b.Step) })
	return collect(in, nil)
}
