package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/spf13/cobra"
)

// NewCatalogCommand creates the catalog command and its subcommands.
func NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the integrations and predictors statements are planned against",
		Long: `Manage catalog entries persisted in the state database.

Persisted entries are merged over the catalog section of the config file
and win on name collisions.`,
	}

	cmd.AddCommand(newCatalogListCommand())
	cmd.AddCommand(newCatalogAddIntegrationCommand())
	cmd.AddCommand(newCatalogAddPredictorCommand())
	cmd.AddCommand(newCatalogRemoveCommand())
	cmd.AddCommand(newCatalogImportCommand())
	return cmd
}

func newCatalogListCommand() *cobra.Command {
	var catalogFile string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the effective catalog",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			cat, err := cmdCtx.Catalog(cmd.Context(), catalogFile)
			if err != nil {
				return err
			}
			return renderCatalog(cmdCtx.Renderer, cat)
		},
	}
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "Additional catalog file (YAML)")
	return cmd
}

func newCatalogAddIntegrationCommand() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "add-integration <name>",
		Short: "Register an integration",
		Example: `  fedplan catalog add-integration warehouse
  fedplan catalog add-integration crm --kind api`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := catalog.ParseKind(kind)
			if err != nil {
				return err
			}
			in := catalog.Integration{Name: args[0], Kind: k}
			// Validate with the same rules the catalog applies
			if err := catalog.New().AddIntegration(in); err != nil {
				return err
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Store.SaveIntegration(cmd.Context(), in); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Added %s integration %s", in.Kind, in.Name))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(catalog.KindData), "Integration kind (data|api|project)")
	_ = cmd.RegisterFlagCompletionFunc("kind", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(catalog.KindData), string(catalog.KindAPI), string(catalog.KindProject)}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func newCatalogAddPredictorCommand() *cobra.Command {
	spec := catalog.PredictorSpec{}
	cmd := &cobra.Command{
		Use:   "add-predictor <[namespace.]name>",
		Short: "Register a predictor",
		Example: `  fedplan catalog add-predictor churn
  fedplan catalog add-predictor ml.sales --timeseries --order-by day --group-by store --window 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Name = args[0]
			cfg := getConfig()
			p, err := spec.Predictor(cfg.PredictorNamespace)
			if err != nil {
				return err
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			// The namespace must not collide with a data or api integration
			cat, err := cmdCtx.Catalog(cmd.Context(), "")
			if err != nil {
				return err
			}
			if err := cat.AddPredictor(p); err != nil {
				return err
			}

			if err := cmdCtx.Store.SavePredictor(cmd.Context(), p); err != nil {
				return err
			}
			msg := "Added predictor " + p.FullName()
			if p.Timeseries {
				msg += " (timeseries, order by " + p.OrderBy + ")"
			}
			cmdCtx.Renderer.Success(msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.Integration, "integration", "", "Namespace (project) holding the predictor")
	cmd.Flags().BoolVar(&spec.Timeseries, "timeseries", false, "Predictor forecasts over ordered history")
	cmd.Flags().StringVar(&spec.OrderBy, "order-by", "", "Time column of a timeseries predictor")
	cmd.Flags().StringSliceVar(&spec.GroupBy, "group-by", nil, "Partition columns of a timeseries predictor")
	cmd.Flags().IntVar(&spec.Window, "window", 0, "History rows per prediction")
	return cmd
}

func newCatalogRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <integration|namespace.predictor>",
		Aliases: []string{"rm"},
		Short:   "Remove a persisted integration or predictor",
		Long: `Remove a persisted entry. Removing an integration also removes the
predictors in it. Entries declared in the config file are not affected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			removed, err := cmdCtx.Store.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no persisted integration or predictor named %s", args[0])
			}
			cmdCtx.Renderer.Success("Removed " + args[0])
			return nil
		},
	}
}

func newCatalogImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Persist every entry of a catalog file",
		Example: `  fedplan catalog import catalog.yaml`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := cmdCtx.Store.ImportCatalog(cmd.Context(), cat)
			if err != nil {
				return err
			}
			noun := "entries"
			if n == 1 {
				noun = "entry"
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Imported %d %s from %s", n, noun, strings.TrimSpace(args[0])))
			return nil
		},
	}
}
