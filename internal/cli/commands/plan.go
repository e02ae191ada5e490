package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/fedplan/internal/cli/output"
	"github.com/leapstack-labs/fedplan/pkg/plan"
	"github.com/leapstack-labs/fedplan/pkg/planner"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// PlanOptions holds options for the plan and explain commands.
type PlanOptions struct {
	File    string
	Catalog string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	opts := &PlanOptions{}

	cmd := &cobra.Command{
		Use:   "plan [SQL]",
		Short: "Plan a SQL statement",
		Long: `Parse a SQL statement and print the execution plan.

The statement is planned against the effective catalog: the catalog section
of the config file, the --catalog file and the entries added with
'fedplan catalog'. Without an argument the statement is read from --file
or from standard input.`,
		Example: `  # Plan a statement
  fedplan plan "SELECT * FROM int1.orders JOIN mindsdb.pred"

  # Read the statement from a file and print JSON
  fedplan plan -f query.sql -o json

  # Use an extra catalog file
  echo "SELECT * FROM crm.users" | fedplan plan --catalog catalog.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args, opts, renderPlan)
		},
	}
	addPlanFlags(cmd, opts)
	return cmd
}

// NewExplainCommand creates the explain command.
func NewExplainCommand() *cobra.Command {
	opts := &PlanOptions{}

	cmd := &cobra.Command{
		Use:   "explain [SQL]",
		Short: "Plan a SQL statement and show its execution levels",
		Long: `Plan a SQL statement and show the plan together with the execution
levels (steps that may run concurrently) and the result references
(which steps consume the output of each step).`,
		Example: `  fedplan explain "SELECT * FROM int1.a JOIN int2.b ON a.id = b.id"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args, opts, renderExplain)
		},
	}
	addPlanFlags(cmd, opts)
	return cmd
}

func addPlanFlags(cmd *cobra.Command, opts *PlanOptions) {
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read the statement from a file")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "Additional catalog file (YAML)")
}

func runPlan(cmd *cobra.Command, args []string, opts *PlanOptions, render func(*output.Renderer, *plan.Plan) error) error {
	ctx := cmd.Context()
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	sql, err := readStatement(cmd, args, opts.File)
	if err != nil {
		return err
	}

	cat, err := cmdCtx.Catalog(ctx, opts.Catalog)
	if err != nil {
		return err
	}

	p, err := planner.New(cat, planner.WithLogger(cmdCtx.Logger)).PlanSQL(sql)
	cmdCtx.RecordPlan(ctx, sql, p, err)
	if err != nil {
		return err
	}
	return render(cmdCtx.Renderer, p)
}

// readStatement takes the statement from the arguments, a file or piped stdin.
func readStatement(cmd *cobra.Command, args []string, file string) (string, error) {
	var sql string
	switch {
	case len(args) > 0:
		sql = strings.Join(args, " ")
	case file != "":
		content, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		sql = string(content)
	default:
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return "", errors.New("no statement given (pass it as an argument, with --file or on stdin)")
		}
		content, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		sql = string(content)
	}

	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", errors.New("empty statement")
	}
	return sql, nil
}
