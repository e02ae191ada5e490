package commands

import (
	"context"

	"github.com/leapstack-labs/fedplan/internal/cli/config"
	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/spf13/cobra"
)

// catalogReloader returns a function rebuilding the effective catalog from a
// fresh read of the config file, together with the file that should be
// watched to trigger it. The watched file is empty when nothing can change.
func (c *CommandContext) catalogReloader(cmd *cobra.Command, catalogFile string) (reload func() (*catalog.Catalog, error), watchPath string) {
	cfgFile := config.GetConfigFileUsed()
	flags := cmd.Flags()

	reload = func() (*catalog.Catalog, error) {
		cfg, err := config.LoadConfig(cfgFile, flags)
		if err != nil {
			return nil, err
		}
		next := *c
		next.Cfg = cfg
		return next.Catalog(context.Background(), catalogFile)
	}

	watchPath = cfgFile
	if catalogFile != "" {
		watchPath = catalogFile
	}
	return reload, watchPath
}
