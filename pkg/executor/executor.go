// Package executor runs plans. Leaf work (fetching from integrations, applying
// predictors, local relational steps) is delegated to a Dispatcher; the Runner
// owns ordering, result caching and fan-out.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/fedplan/pkg/plan"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the fan-out of MultipleSteps and MapReduceStep.
const DefaultConcurrency = 4

// Frame is a materialized table.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Dispatcher executes a single leaf step. inputs holds the frames of every
// result the step consumes, keyed by producing step index.
type Dispatcher interface {
	Dispatch(ctx context.Context, step plan.Step, inputs map[int]*Frame) (*Frame, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, step plan.Step, inputs map[int]*Frame) (*Frame, error)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, step plan.Step, inputs map[int]*Frame) (*Frame, error) {
	return f(ctx, step, inputs)
}

// Runner executes plans step by step.
type Runner struct {
	dispatcher  Dispatcher
	concurrency int
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets the maximum number of fan-out children run at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger used for step tracing.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner over d.
func NewRunner(d Dispatcher, opts ...Option) *Runner {
	r := &Runner{
		dispatcher:  d,
		concurrency: DefaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes p in step order and returns the output of its last step.
// A cached result is released once every consumer listed in the plan's
// result refs has run.
func (r *Runner) Run(ctx context.Context, p *plan.Plan) (*Frame, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if p.Len() == 0 {
		return nil, fmt.Errorf("empty plan")
	}

	last := p.Len() - 1
	cache := make(map[int]*Frame)
	pending := make(map[int]int, len(p.ResultRefs))
	for producer, consumers := range p.ResultRefs {
		pending[producer] = len(consumers)
	}

	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		inputs := make(map[int]*Frame)
		for _, in := range step.Inputs() {
			f, ok := cache[in.Step]
			if !ok {
				return nil, fmt.Errorf("step %d (%s): result of step %d is not available", i, step.Kind(), in.Step)
			}
			inputs[in.Step] = f
		}

		r.logger.Debug("running step", "step", i, "kind", step.Kind(), "inputs", len(inputs))
		out, err := r.runStep(ctx, step, inputs)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Kind(), err)
		}
		cache[i] = out

		for in := range inputs {
			pending[in]--
			if pending[in] <= 0 && in != last {
				delete(cache, in)
			}
		}
	}
	return cache[last], nil
}

func (r *Runner) runStep(ctx context.Context, step plan.Step, inputs map[int]*Frame) (*Frame, error) {
	switch s := step.(type) {
	case *plan.MultipleSteps:
		return r.fanOut(ctx, s.Reduce, s.Steps, inputs)
	case *plan.MapReduceStep:
		return r.mapReduce(ctx, s, inputs)
	}
	return r.dispatcher.Dispatch(ctx, step, inputs)
}

// mapReduce instantiates the template once per row of the values frame.
func (r *Runner) mapReduce(ctx context.Context, s *plan.MapReduceStep, inputs map[int]*Frame) (*Frame, error) {
	values, ok := inputs[s.Values.Step]
	if !ok {
		return nil, fmt.Errorf("values %s are not available", s.Values)
	}
	if s.Step == nil {
		return nil, fmt.Errorf("map-reduce step has no template")
	}

	steps := make([]plan.Step, len(values.Rows))
	for i, row := range values.Rows {
		if len(row) != len(values.Columns) {
			return nil, fmt.Errorf("partition row %d has %d values for %d columns", i, len(row), len(values.Columns))
		}
		vars := make(map[string]any, len(row))
		for j, col := range values.Columns {
			vars[col] = row[j]
		}
		step, err := plan.SubstituteVars(s.Step, vars)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", i, err)
		}
		steps[i] = step
	}
	r.logger.Debug("map-reduce", "partitions", len(steps))
	return r.fanOut(ctx, s.Reduce, steps, inputs)
}

// fanOut runs independent steps concurrently and reduces their outputs in order.
func (r *Runner) fanOut(ctx context.Context, reduce string, steps []plan.Step, inputs map[int]*Frame) (*Frame, error) {
	if reduce != plan.ReduceUnion {
		return nil, fmt.Errorf("unsupported reduce %q", reduce)
	}

	outs := make([]*Frame, len(steps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, step := range steps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := r.runStep(gctx, step, inputs)
			if err != nil {
				return fmt.Errorf("child %d (%s): %w", i, step.Kind(), err)
			}
			outs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Union(outs...)
}

// Union concatenates frames with identical columns. Nil frames are skipped.
func Union(frames ...*Frame) (*Frame, error) {
	out := &Frame{}
	var seen bool
	for _, f := range frames {
		if f == nil {
			continue
		}
		if !seen {
			out.Columns = slices.Clone(f.Columns)
			seen = true
		} else if !slices.Equal(out.Columns, f.Columns) {
			return nil, fmt.Errorf("cannot union frames with columns %v and %v", out.Columns, f.Columns)
		}
		out.Rows = append(out.Rows, f.Rows...)
	}
	return out, nil
}
