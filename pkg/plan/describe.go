package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"gopkg.in/yaml.v3"
)

// Field is one named attribute of a described step.
type Field struct {
	Name  string
	Value string
}

// StepDescription is a serializable rendering of a step. Fields keep the
// order in which the step declares them; Inputs holds the sub-plan of fan-out steps.
type StepDescription struct {
	Index  int
	Type   string
	Fields []Field
	Inputs []StepDescription
}

// Description is a serializable rendering of a plan.
type Description struct {
	Steps      []StepDescription
	ResultRefs map[int][]int
}

// Describe renders every step of the plan.
func (p *Plan) Describe() Description {
	d := Description{ResultRefs: p.ResultRefs}
	for i, s := range p.Steps {
		sd := DescribeStep(s)
		sd.Index = i
		d.Steps = append(d.Steps, sd)
	}
	return d
}

// DescribeStep renders one step. Nested steps get Index -1.
//
//nolint:gocyclo // one case per step kind
func DescribeStep(s Step) StepDescription {
	d := StepDescription{Index: -1, Type: s.Kind()}
	add := func(name, value string) {
		if value != "" {
			d.Fields = append(d.Fields, Field{Name: name, Value: value})
		}
	}

	switch s := s.(type) {
	case *FetchDataframeStep:
		add("integration", s.Integration)
		if s.Query != nil {
			add("query", ast.String(s.Query))
		}
		add("raw_query", s.RawQuery)
	case *ProjectStep:
		add("dataframe", s.Dataframe.String())
		add("columns", nodeList(s.Columns))
		if s.IgnoreDoubles {
			add("ignore_doubles", "true")
		}
	case *FilterStep:
		add("dataframe", s.Dataframe.String())
		add("query", nodeString(s.Query))
	case *GroupByStep:
		add("dataframe", s.Dataframe.String())
		add("columns", nodeList(s.Columns))
		add("targets", nodeList(s.Targets))
	case *JoinStep:
		add("left", s.Left.String())
		add("right", s.Right.String())
		if s.Query != nil {
			add("query", ast.String(s.Query))
		}
	case *OrderByStep:
		add("dataframe", s.Dataframe.String())
		terms := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			terms[i] = ast.String(o)
		}
		add("order_by", strings.Join(terms, ", "))
	case *LimitOffsetStep:
		add("dataframe", s.Dataframe.String())
		add("limit", intString(s.Limit))
		add("offset", intString(s.Offset))
	case *UnionStep:
		add("left", s.Left.String())
		add("right", s.Right.String())
		add("operation", string(s.Operation))
		add("unique", strconv.FormatBool(s.Unique))
	case *ApplyPredictorStep:
		add("namespace", s.Namespace)
		add("predictor", nodeString(s.Predictor))
		add("dataframe", s.Dataframe.String())
		add("params", mapString(s.Params))
		add("row_dict", mapString(s.RowDict))
	case *ApplyPredictorRowStep:
		add("namespace", s.Namespace)
		add("predictor", nodeString(s.Predictor))
		add("row_dict", mapString(s.RowDict))
		add("params", mapString(s.Params))
	case *ApplyTimeseriesPredictorStep:
		add("namespace", s.Namespace)
		add("predictor", nodeString(s.Predictor))
		add("dataframe", s.Dataframe.String())
		add("params", mapString(s.Params))
		add("output_time_filter", nodeString(s.OutputTimeFilter))
	case *GetPredictorColumns:
		add("namespace", s.Namespace)
		add("predictor", nodeString(s.Predictor))
	case *MapReduceStep:
		add("values", s.Values.String())
		add("reduce", s.Reduce)
		if s.Step != nil {
			d.Inputs = []StepDescription{DescribeStep(s.Step)}
		}
	case *MultipleSteps:
		add("reduce", s.Reduce)
		for _, child := range s.Steps {
			d.Inputs = append(d.Inputs, DescribeStep(child))
		}
	case *SubSelectStep:
		add("dataframe", s.Dataframe.String())
		add("table_name", s.TableName)
		if s.Query != nil {
			add("query", ast.String(s.Query))
		}
		if s.AddAbsentCols {
			add("add_absent_cols", "true")
		}
	case *DataStep:
		add("data", nodeString(s.Data))
	case *QueryStep:
		if s.Query != nil {
			add("query", ast.String(s.Query))
		}
	case *SaveToTable:
		add("table", nodeString(s.Table))
		add("dataframe", s.Dataframe.String())
		add("is_replace", strconv.FormatBool(s.IsReplace))
	case *InsertToTable:
		add("table", nodeString(s.Table))
		if s.Dataframe != nil {
			add("dataframe", s.Dataframe.String())
		}
		if s.Query != nil {
			add("query", ast.String(s.Query))
		}
	case *UpdateToTable:
		add("table", nodeString(s.Table))
		if s.Dataframe != nil {
			add("dataframe", s.Dataframe.String())
		}
		if s.UpdateCommand != nil {
			add("update_command", ast.String(s.UpdateCommand))
		}
	case *DeleteStep:
		add("table", nodeString(s.Table))
		add("where", nodeString(s.Where))
	}
	return d
}

// Summary renders the fields of a step on one line.
func (d StepDescription) Summary() string {
	parts := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		parts[i] = f.Name + "=" + f.Value
	}
	return strings.Join(parts, " ")
}

// MarshalJSON writes the step as a flat object with fields in declared order.
func (d StepDescription) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"step":`)
	buf.WriteString(strconv.Itoa(d.Index))
	buf.WriteString(`,"type":`)
	writeJSONString(&buf, d.Type)
	for _, f := range d.Fields {
		buf.WriteByte(',')
		writeJSONString(&buf, f.Name)
		buf.WriteByte(':')
		writeJSONString(&buf, f.Value)
	}
	if len(d.Inputs) > 0 {
		buf.WriteString(`,"steps":`)
		inner, err := json.Marshal(d.Inputs)
		if err != nil {
			return nil, err
		}
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON writes the plan as {"steps": [...], "result_refs": {...}}.
func (d Description) MarshalJSON() ([]byte, error) {
	steps := d.Steps
	if steps == nil {
		steps = []StepDescription{}
	}
	refs := make(map[string][]int, len(d.ResultRefs))
	for k, v := range d.ResultRefs {
		refs[strconv.Itoa(k)] = v
	}
	return json.Marshal(struct {
		Steps      []StepDescription `json:"steps"`
		ResultRefs map[string][]int  `json:"result_refs"`
	}{steps, refs})
}

// MarshalYAML renders the step as a mapping with fields in declared order.
func (d StepDescription) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	pair := func(k, v string, tag string) {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Value: v, Tag: tag})
	}
	if d.Index >= 0 {
		pair("step", strconv.Itoa(d.Index), "!!int")
	}
	pair("type", d.Type, "!!str")
	for _, f := range d.Fields {
		pair(f.Name, f.Value, "!!str")
	}
	if len(d.Inputs) > 0 {
		var inner yaml.Node
		if err := inner.Encode(d.Inputs); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "steps"}, &inner)
	}
	return n, nil
}

// MarshalYAML renders the plan as a mapping of steps and result refs.
func (d Description) MarshalYAML() (any, error) {
	return struct {
		Steps      []StepDescription `yaml:"steps"`
		ResultRefs map[int][]int     `yaml:"result_refs,omitempty"`
	}{d.Steps, d.ResultRefs}, nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func nodeString(n ast.Node) string {
	if n == nil {
		return ""
	}
	switch v := n.(type) {
	case *ast.Identifier:
		if v == nil {
			return ""
		}
	case *ast.Data:
		if v == nil {
			return ""
		}
	}
	return ast.String(n)
}

func nodeList(ns []ast.Node) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = ast.String(n)
	}
	return strings.Join(parts, ", ")
}

func intString(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func mapString(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + valueString(m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func valueString(v any) string {
	switch v := v.(type) {
	case ast.Node:
		return ast.String(v)
	case string:
		return strconv.Quote(v)
	case nil:
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
