package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/fedplan/internal/cli/config"
	"github.com/leapstack-labs/fedplan/internal/cli/output"
	"github.com/leapstack-labs/fedplan/internal/state"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/leapstack-labs/fedplan/pkg/plan"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    *state.SQLiteStore
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an open state store.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutStore(cmd)

	store, err := state.Open(cmd.Context(), cmdCtx.Cfg.StatePath)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Store = store
	cmdCtx.Logger.Debug("opened state store", "path", store.Path())

	cleanup := func() {
		_ = store.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext without a state store.
// Useful for commands that don't need persisted state.
func NewCommandContextWithoutStore(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or defaults when none was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// Catalog builds the effective catalog: the config catalog, then the
// entries of catalogFile if given, then the persisted entries. Later
// sources win on name collisions.
func (c *CommandContext) Catalog(ctx context.Context, catalogFile string) (*catalog.Catalog, error) {
	cat, err := c.Cfg.BaseCatalog()
	if err != nil {
		return nil, fmt.Errorf("invalid catalog in config: %w", err)
	}

	if catalogFile != "" {
		fileCat, err := catalog.LoadFile(catalogFile)
		if err != nil {
			return nil, err
		}
		if cat, err = cat.Merge(fileCat); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", catalogFile, err)
		}
	}

	if c.Store != nil {
		persisted, err := c.Store.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		if cat, err = cat.Merge(persisted); err != nil {
			return nil, fmt.Errorf("failed to merge persisted catalog: %w", err)
		}
	}
	return cat, nil
}

// RecordPlan stores a planned statement in the history when enabled.
// Failures are logged, never returned: history is best effort.
func (c *CommandContext) RecordPlan(ctx context.Context, sql string, p *plan.Plan, planErr error) {
	if c.Store == nil || !c.Cfg.History {
		return
	}
	entry := state.HistoryEntry{Statement: sql}
	if p != nil {
		entry.Steps = p.Len()
	}
	if planErr != nil {
		entry.Error = planErr.Error()
	}
	if _, err := c.Store.RecordPlan(ctx, entry); err != nil {
		c.Logger.Warn("failed to record plan history", "error", err)
	}
}
