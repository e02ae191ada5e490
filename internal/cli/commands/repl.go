package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/fedplan/internal/cli/output"
	"github.com/leapstack-labs/fedplan/internal/watch"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/leapstack-labs/fedplan/pkg/planner"
	"github.com/spf13/cobra"
)

const (
	replPrompt         = "fedplan> "
	replContinuePrompt = "    ...> "
)

// lineReader is the part of *readline.Instance the REPL loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// NewReplCommand creates the repl command.
func NewReplCommand() *cobra.Command {
	opts := &PlanOptions{}

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Plan statements interactively",
		Long: `Start an interactive session that plans each statement entered.

Statements end with a semicolon and may span several lines. The catalog is
reloaded when the config file (or the --catalog file) changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepl(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "Additional catalog file (YAML)")
	return cmd
}

func runRepl(cmd *cobra.Command, opts *PlanOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cat, err := cmdCtx.Catalog(ctx, opts.Catalog)
	if err != nil {
		return err
	}
	session := newReplSession(cmdCtx, cat)

	reload, watchPath := cmdCtx.catalogReloader(cmd, opts.Catalog)
	if watchPath != "" {
		go func() {
			err := watch.File(ctx, watchPath, cmdCtx.Logger, func() {
				next, err := reload()
				if err != nil {
					cmdCtx.Renderer.Warning(fmt.Sprintf("catalog reload failed, keeping previous catalog: %v", err))
					return
				}
				session.setCatalog(next)
				cmdCtx.Logger.Info("catalog reloaded", "path", watchPath)
			})
			if err != nil {
				cmdCtx.Logger.Warn("catalog watching disabled", "error", err)
			}
		}()
	}

	// Setup history file (next to the state database)
	historyFile := filepath.Join(filepath.Dir(cmdCtx.Cfg.StatePath), "repl_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newCatalogCompleter(cat),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r := cmdCtx.Renderer
	r.Printf("fedplan REPL (state: %s)\n", cmdCtx.Cfg.StatePath)
	r.Println("Type .help for commands, .quit to exit")
	r.Println()

	return session.loop(ctx, rl)
}

// replSession plans statements read by a lineReader.
type replSession struct {
	cmdCtx *CommandContext

	mu      sync.RWMutex
	catalog *catalog.Catalog
	explain bool
}

func newReplSession(cmdCtx *CommandContext, cat *catalog.Catalog) *replSession {
	return &replSession{cmdCtx: cmdCtx, catalog: cat}
}

func (s *replSession) currentCatalog() *catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

func (s *replSession) setCatalog(c *catalog.Catalog) {
	s.mu.Lock()
	s.catalog = c
	s.mu.Unlock()
}

func (s *replSession) loop(ctx context.Context, rl lineReader) error {
	var buf strings.Builder
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Dot-commands only at the start of a statement
		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := s.handleDotCommand(line); quit {
				return nil
			}
			continue
		}

		// Accumulate multi-line SQL until semicolon
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString(" ")
			rl.SetPrompt(replContinuePrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		sql := buf.String()
		buf.Reset()
		s.plan(ctx, sql)
	}
}

func (s *replSession) plan(ctx context.Context, sql string) {
	r := s.cmdCtx.Renderer
	p, err := planner.New(s.currentCatalog(), planner.WithLogger(s.cmdCtx.Logger)).PlanSQL(sql)
	s.cmdCtx.RecordPlan(ctx, sql, p, err)
	if err != nil {
		r.Error(err.Error())
		return
	}

	render := renderPlan
	s.mu.RLock()
	if s.explain {
		render = renderExplain
	}
	s.mu.RUnlock()
	if err := render(r, p); err != nil {
		r.Error(err.Error())
	}
	r.Println()
}

// handleDotCommand runs a meta command and reports whether the session should end.
func (s *replSession) handleDotCommand(line string) bool {
	r := s.cmdCtx.Renderer
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printReplHelp(r)

	case ".catalog":
		if err := renderCatalog(r, s.currentCatalog()); err != nil {
			r.Error(err.Error())
		}

	case ".explain":
		s.mu.Lock()
		s.explain = !s.explain
		on := s.explain
		s.mu.Unlock()
		if on {
			r.Success("explain on")
		} else {
			r.Success("explain off")
		}

	case ".clear":
		r.Printf("\033[H\033[2J")

	default:
		r.Error(fmt.Sprintf("unknown command: %s (type .help for commands)", command))
	}
	return false
}

func printReplHelp(r *output.Renderer) {
	r.Println(`
Commands:
  .help           Show this help message
  .catalog        Show integrations and predictors
  .explain        Toggle execution levels in plan output
  .clear          Clear the screen
  .quit / .exit   Exit the REPL

Tips:
  - Statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for integration and predictor names`)
}

// newCatalogCompleter creates a readline completer for catalog names.
func newCatalogCompleter(cat *catalog.Catalog) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range cat.IntegrationNames() {
		items = append(items, readline.PcItem(name))
	}
	for _, p := range cat.Predictors() {
		items = append(items, readline.PcItem(p.FullName()))
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".catalog"),
		readline.PcItem(".explain"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}
