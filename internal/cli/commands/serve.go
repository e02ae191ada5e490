package commands

import (
	"context"

	"github.com/leapstack-labs/fedplan/internal/server"
	"github.com/leapstack-labs/fedplan/pkg/plan"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr    string
	Catalog string
	NoWatch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the planning API over HTTP",
		Long: `Start an HTTP server planning statements against the effective catalog.

Endpoints:
  POST /v1/plan      {"sql": "..."} returns the plan as JSON
  GET  /v1/catalog   returns the effective catalog
  GET  /healthz      liveness check

The catalog is reloaded when the config file (or the --catalog file) changes.`,
		Example: `  fedplan serve --addr 127.0.0.1:8420
  curl -s localhost:8420/v1/plan -d '{"sql": "SELECT * FROM int1.orders"}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Address to listen on (default from config)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "Additional catalog file (YAML)")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "Do not reload the catalog on file changes")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx := cmd.Context()
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cat, err := cmdCtx.Catalog(ctx, opts.Catalog)
	if err != nil {
		return err
	}

	// --addr reaches the config through the flag layer
	addr := cmdCtx.Cfg.Server.Addr

	cfg := server.Config{
		Addr:    addr,
		Catalog: cat,
		Logger:  cmdCtx.Logger,
		Recorder: func(ctx context.Context, sql string, p *plan.Plan, err error) {
			cmdCtx.RecordPlan(ctx, sql, p, err)
		},
	}
	if !opts.NoWatch {
		cfg.Reload, cfg.WatchPath = cmdCtx.catalogReloader(cmd, opts.Catalog)
		if cfg.WatchPath == "" {
			cfg.Reload = nil
		}
	}

	cmdCtx.Renderer.Success("Planning API listening on http://" + addr)
	return server.New(cfg).Serve(ctx)
}
