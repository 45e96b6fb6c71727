package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/network"
)

func newNetworkCmd() *cobra.Command {
	var roots network.Roots
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Prints the stored co-membership view around a user as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if roots.GitHub == "" && roots.LinkedIn == "" {
				return errors.New("at least one of --github or --linkedin is required")
			}
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), rt.cfg, Version, rt.logger)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if cerr := app.Close(closeCtx); cerr != nil {
					rt.logger.Warn("application close failed", zap.Error(cerr))
				}
			}()
			view, err := app.Network(cmd.Context(), roots)
			if err != nil {
				return fmt.Errorf("build network: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&roots.GitHub, "github", "", "GitHub login to start from")
	cmd.Flags().StringVar(&roots.LinkedIn, "linkedin", "", "LinkedIn public id to start from")
	return cmd
}
