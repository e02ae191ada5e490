// Package planner compiles a parsed statement into a plan of steps that can be
// dispatched against integrations and predictors.
//
// Planning is a pure transformation of (statement, catalog): it performs no I/O,
// never modifies its input tree and shares no mutable state between calls, so a
// single Planner can serve concurrent callers.
package planner

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/ast"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/leapstack-labs/fedplan/pkg/plan"
)

// Planner turns statements into plans against one catalog.
type Planner struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger used for debug tracing of planning decisions.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a planner over cat. A nil catalog is treated as empty.
func New(cat *catalog.Catalog, opts ...Option) *Planner {
	if cat == nil {
		cat = catalog.New()
	}
	p := &Planner{
		catalog: cat,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog returns the catalog the planner resolves names against.
func (p *Planner) Catalog() *catalog.Catalog {
	return p.catalog
}

// Plan compiles one statement. The returned error, if any, is a *PlanningError.
func (p *Planner) Plan(stmt ast.Node) (*plan.Plan, error) {
	b := &builder{
		cat:  p.catalog,
		log:  p.logger,
		plan: plan.New(),
		ctes: make(map[string]plan.Result),
	}
	if err := b.statement(stmt); err != nil {
		return nil, err
	}
	if err := b.plan.Validate(); err != nil {
		return nil, errorf("invalid plan: %v", err)
	}
	return b.plan, nil
}

// builder holds the state of a single planning call. The plan is the only
// accumulator; everything else is read-only context.
type builder struct {
	cat  *catalog.Catalog
	log  *slog.Logger
	plan *plan.Plan
	ctes map[string]plan.Result
}

func (b *builder) statement(stmt ast.Node) error {
	switch s := stmt.(type) {
	case *ast.Select, *ast.Union:
		_, err := b.query(s)
		return err
	case *ast.Insert:
		return b.insert(s)
	case *ast.Update:
		return b.update(s)
	case *ast.Delete:
		return b.delete(s)
	case *ast.CreateTable:
		return b.createTable(s)
	case nil:
		return errorf("no statement to plan")
	}
	return unsupportedf("unsupported statement %s", kindName(stmt))
}

// query plans a row-producing query and returns the result holding its rows.
func (b *builder) query(n ast.Node) (plan.Result, error) {
	switch q := n.(type) {
	case *ast.Select:
		return b.selectQuery(q)
	case *ast.Union:
		return b.union(q)
	}
	return plan.Result{}, errorf("expected a query, found %s", kindName(n))
}

func (b *builder) union(u *ast.Union) (plan.Result, error) {
	left, err := b.query(u.Left)
	if err != nil {
		return plan.Result{}, err
	}
	right, err := b.query(u.Right)
	if err != nil {
		return plan.Result{}, err
	}
	op := u.Op
	if op == "" {
		op = ast.OpUnion
	}
	return b.plan.Add(&plan.UnionStep{Left: left, Right: right, Unique: u.Unique, Operation: op}), nil
}

func kindName(n ast.Node) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
}
