package commands

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/fedplan/internal/cli/output"
	"github.com/leapstack-labs/fedplan/internal/state"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/leapstack-labs/fedplan/pkg/plan"
)

// explainOutput is the structured form of `fedplan explain`.
type explainOutput struct {
	Plan   plan.Description `json:"plan" yaml:"plan"`
	Levels [][]int          `json:"levels" yaml:"levels"`
}

func renderPlan(r *output.Renderer, p *plan.Plan) error {
	desc := p.Describe()
	if handled, err := r.Structured(desc); handled {
		return err
	}
	if r.EffectiveMode() == output.ModeTable {
		r.Table([]string{"step", "type", "details"}, stepRows(desc.Steps, ""))
		return nil
	}

	r.Header(1, fmt.Sprintf("Plan (%d steps)", len(desc.Steps)))
	writeSteps(r, desc.Steps, "")
	return nil
}

func renderExplain(r *output.Renderer, p *plan.Plan) error {
	levels, err := p.ExecutionLevels()
	if err != nil {
		return err
	}
	desc := p.Describe()
	if handled, err := r.Structured(explainOutput{Plan: desc, Levels: levels}); handled {
		return err
	}

	if r.EffectiveMode() == output.ModeTable {
		level := make(map[int]int, len(desc.Steps))
		for i, l := range levels {
			for _, idx := range l {
				level[idx] = i
			}
		}
		rows := make([][]string, 0, len(desc.Steps))
		for _, s := range desc.Steps {
			rows = append(rows, []string{
				strconv.Itoa(s.Index),
				strconv.Itoa(level[s.Index]),
				s.Type,
				intList(desc.ResultRefs[s.Index]),
			})
		}
		r.Table([]string{"step", "level", "type", "used by"}, rows)
		return nil
	}

	r.Header(1, fmt.Sprintf("Plan (%d steps)", len(desc.Steps)))
	writeSteps(r, desc.Steps, "")
	r.Println()

	r.Header(2, "Execution levels")
	for i, l := range levels {
		r.Printf("  level %d: %s\n", i, intList(l))
	}
	r.Println()

	r.Header(2, "Result references")
	producers := make([]int, 0, len(desc.ResultRefs))
	for k := range desc.ResultRefs {
		producers = append(producers, k)
	}
	slices.Sort(producers)
	if len(producers) == 0 {
		r.Println(r.Muted("  (none)"))
	}
	for _, k := range producers {
		r.Printf("  %d -> %s\n", k, intList(desc.ResultRefs[k]))
	}
	return nil
}

func writeSteps(r *output.Renderer, steps []plan.StepDescription, indent string) {
	for _, s := range steps {
		label := "-"
		if s.Index >= 0 {
			label = "[" + strconv.Itoa(s.Index) + "]"
		}
		line := indent + r.ID(label) + " " + r.Kind(s.Type)
		if sum := s.Summary(); sum != "" {
			line += " " + sum
		}
		r.Println(line)
		writeSteps(r, s.Inputs, indent+"    ")
	}
}

func stepRows(steps []plan.StepDescription, indent string) [][]string {
	var rows [][]string
	for _, s := range steps {
		idx := ""
		if s.Index >= 0 {
			idx = strconv.Itoa(s.Index)
		}
		rows = append(rows, []string{idx, indent + s.Type, s.Summary()})
		rows = append(rows, stepRows(s.Inputs, indent+"  ")...)
	}
	return rows
}

func intList(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}

func renderCatalog(r *output.Renderer, c *catalog.Catalog) error {
	if handled, err := r.Structured(c.ToSpec()); handled {
		return err
	}

	integrations := c.Integrations()
	predictors := c.Predictors()

	if r.EffectiveMode() == output.ModeTable {
		rows := make([][]string, 0, len(integrations))
		for _, in := range integrations {
			rows = append(rows, []string{in.Name, string(in.Kind)})
		}
		r.Table([]string{"integration", "kind"}, rows)

		if len(predictors) > 0 {
			prow := make([][]string, 0, len(predictors))
			for _, p := range predictors {
				prow = append(prow, []string{
					p.FullName(),
					strconv.FormatBool(p.Timeseries),
					p.OrderBy,
					strings.Join(p.GroupBy, ", "),
					windowString(p.Window),
				})
			}
			r.Table([]string{"predictor", "timeseries", "order by", "group by", "window"}, prow)
		}
		return nil
	}

	r.Header(1, "Integrations")
	for _, in := range integrations {
		r.Printf("  %s %s\n", in.Name, r.Muted("("+string(in.Kind)+")"))
	}
	r.Println()
	r.Header(1, "Predictors")
	if len(predictors) == 0 {
		r.Println(r.Muted("  (none)"))
	}
	for _, p := range predictors {
		line := "  " + p.FullName()
		if p.Timeseries {
			line += " " + r.Kind("timeseries")
			line += r.Muted(fmt.Sprintf(" order_by=%s", p.OrderBy))
			if len(p.GroupBy) > 0 {
				line += r.Muted(" group_by=" + strings.Join(p.GroupBy, ","))
			}
			if p.Window > 0 {
				line += r.Muted(" window=" + strconv.Itoa(p.Window))
			}
		}
		r.Println(line)
	}
	r.Println()
	r.Println(r.Muted("default namespace: " + c.DefaultNamespace))
	return nil
}

func windowString(w int) string {
	if w <= 0 {
		return ""
	}
	return strconv.Itoa(w)
}

func renderHistory(r *output.Renderer, entries []state.HistoryEntry) error {
	if entries == nil {
		entries = []state.HistoryEntry{}
	}
	if handled, err := r.Structured(entries); handled {
		return err
	}

	if len(entries) == 0 {
		r.Println(r.Muted("No planned statements recorded"))
		return nil
	}

	if r.EffectiveMode() == output.ModeTable {
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			status := "ok"
			if e.Failed() {
				status = e.Error
			}
			rows = append(rows, []string{
				shortID(e.ID),
				e.PlannedAt.Local().Format(time.DateTime),
				strconv.Itoa(e.Steps),
				status,
				oneLine(e.Statement),
			})
		}
		r.Table([]string{"id", "planned at", "steps", "status", "statement"}, rows)
		return nil
	}

	for _, e := range entries {
		head := r.ID(shortID(e.ID)) + " " + r.Muted(e.PlannedAt.Local().Format(time.DateTime))
		if e.Failed() {
			r.Println(head + " failed")
		} else {
			r.Println(head + fmt.Sprintf(" %d steps", e.Steps))
		}
		r.Println("  " + oneLine(e.Statement))
		if e.Failed() {
			r.Println("  " + r.Muted(e.Error))
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
