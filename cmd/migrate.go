package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/server"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates the entity, seed and run tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			stores, err := server.OpenStores(cmd.Context(), rt.cfg.Database, rt.logger.Named("store"))
			if err != nil {
				return err
			}
			defer stores.Close()
			if err := stores.Migrate(cmd.Context()); err != nil {
				return err
			}
			rt.logger.Info("schema up to date", zap.String("driver", rt.cfg.Database.Driver))
			return nil
		},
	}
}
