package executor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/executor"
	"github.com/leapstack-labs/fedplan/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetch(integration, sql string) *plan.FetchDataframeStep {
	return &plan.FetchDataframeStep{
		Integration: integration,
		Query:       &ast.Select{Targets: []ast.Node{&ast.Star{}}, From: ast.NewIdentifier(sql)},
	}
}

// recorder answers fetches with a single row holding the rendered query and
// passes the first input through for every other step.
type recorder struct {
	mu     sync.Mutex
	inputs map[string][]int
}

func (r *recorder) Dispatch(_ context.Context, step plan.Step, inputs map[int]*executor.Frame) (*executor.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inputs == nil {
		r.inputs = make(map[string][]int)
	}
	for k := range inputs {
		r.inputs[step.Kind()] = append(r.inputs[step.Kind()], k)
	}

	if f, ok := step.(*plan.FetchDataframeStep); ok {
		return &executor.Frame{Columns: []string{"query"}, Rows: [][]any{{ast.String(f.Query)}}}, nil
	}
	if in := step.Inputs(); len(in) > 0 {
		return inputs[in[0].Step], nil
	}
	return &executor.Frame{}, nil
}

func TestRunJoinPlan(t *testing.T) {
	p := plan.New()
	left := p.Add(fetch("int", "a"))
	right := p.Add(fetch("int", "b"))
	j := p.Add(&plan.JoinStep{Left: left, Right: right, Query: &ast.Join{Type: ast.InnerJoin}})
	p.Add(&plan.ProjectStep{Dataframe: j, Columns: []ast.Node{&ast.Star{}}})

	rec := &recorder{}
	out, err := executor.NewRunner(rec).Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, [][]any{{"SELECT * FROM a"}}, out.Rows)
	assert.ElementsMatch(t, []int{0, 1}, rec.inputs["JoinStep"])
	assert.Equal(t, []int{2}, rec.inputs["ProjectStep"])
}

func TestRunMapReduce(t *testing.T) {
	tmpl := fetch("int", "t")
	tmpl.Query.Where = ast.Binary("=", ast.NewIdentifier("loc"), plan.VarPlaceholder("loc"))

	p := plan.New()
	values := p.Add(&plan.DataStep{})
	p.Add(&plan.MapReduceStep{Values: values, Reduce: plan.ReduceUnion, Step: tmpl})

	d := executor.DispatcherFunc(func(ctx context.Context, step plan.Step, inputs map[int]*executor.Frame) (*executor.Frame, error) {
		switch s := step.(type) {
		case *plan.DataStep:
			return &executor.Frame{Columns: []string{"loc"}, Rows: [][]any{{"paris"}, {"rome"}, {"oslo"}}}, nil
		case *plan.FetchDataframeStep:
			return &executor.Frame{Columns: []string{"q"}, Rows: [][]any{{ast.String(s.Query.Where)}}}, nil
		}
		return nil, errors.New("unexpected step")
	})

	out, err := executor.NewRunner(d, executor.WithConcurrency(2)).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, out.Columns)
	assert.Equal(t, [][]any{{"loc = 'paris'"}, {"loc = 'rome'"}, {"loc = 'oslo'"}}, out.Rows, "partitions are reduced in row order")
}

func TestRunMapReduceNoPartitions(t *testing.T) {
	p := plan.New()
	values := p.Add(&plan.DataStep{})
	p.Add(&plan.MapReduceStep{Values: values, Reduce: plan.ReduceUnion, Step: fetch("int", "t")})

	d := executor.DispatcherFunc(func(context.Context, plan.Step, map[int]*executor.Frame) (*executor.Frame, error) {
		return &executor.Frame{Columns: []string{"loc"}}, nil
	})
	out, err := executor.NewRunner(d).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestRunMultipleStepsLimit(t *testing.T) {
	children := make([]plan.Step, 8)
	for i := range children {
		children[i] = fetch("int", "t")
	}
	p := plan.New()
	p.Add(&plan.MultipleSteps{Reduce: plan.ReduceUnion, Steps: children})

	var inFlight, peak atomic.Int32
	d := executor.DispatcherFunc(func(context.Context, plan.Step, map[int]*executor.Frame) (*executor.Frame, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return &executor.Frame{Columns: []string{"x"}, Rows: [][]any{{1}}}, nil
	})

	out, err := executor.NewRunner(d, executor.WithConcurrency(3)).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 8, out.Len())
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunErrors(t *testing.T) {
	boom := errors.New("integration down")
	failing := executor.DispatcherFunc(func(context.Context, plan.Step, map[int]*executor.Frame) (*executor.Frame, error) {
		return nil, boom
	})

	t.Run("dispatch error is wrapped", func(t *testing.T) {
		p := plan.New()
		p.Add(fetch("int", "a"))
		_, err := executor.NewRunner(failing).Run(context.Background(), p)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "step 0 (FetchDataframeStep)")
	})

	t.Run("child error", func(t *testing.T) {
		p := plan.New()
		p.Add(&plan.MultipleSteps{Reduce: plan.ReduceUnion, Steps: []plan.Step{fetch("int", "a"), fetch("int", "b")}})
		_, err := executor.NewRunner(failing).Run(context.Background(), p)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unknown reduce", func(t *testing.T) {
		p := plan.New()
		p.Add(&plan.MultipleSteps{Reduce: "intersect", Steps: []plan.Step{fetch("int", "a")}})
		_, err := executor.NewRunner(&recorder{}).Run(context.Background(), p)
		assert.ErrorContains(t, err, `unsupported reduce "intersect"`)
	})

	t.Run("empty plan", func(t *testing.T) {
		_, err := executor.NewRunner(&recorder{}).Run(context.Background(), plan.New())
		assert.ErrorContains(t, err, "empty plan")
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := plan.New()
		p.Add(fetch("int", "a"))
		_, err := executor.NewRunner(&recorder{}).Run(ctx, p)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestUnion(t *testing.T) {
	a := &executor.Frame{Columns: []string{"x"}, Rows: [][]any{{1}}}
	b := &executor.Frame{Columns: []string{"x"}, Rows: [][]any{{2}}}

	out, err := executor.Union(nil, a, b)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{1}, {2}}, out.Rows)

	_, err = executor.Union(a, &executor.Frame{Columns: []string{"y"}})
	assert.ErrorContains(t, err, "cannot union frames")
}
