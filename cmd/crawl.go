package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

type crawlFlags struct {
	account  string
	maxDepth int
}

// newCrawlCmd runs one crawl in the foreground and prints its outcome.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs a single crawl without the queue",
	}
	cmd.AddCommand(newCrawlGitHubCmd())
	cmd.AddCommand(newCrawlLinkedInCmd())
	return cmd
}

func newCrawlGitHubCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "github <login>",
		Short: "Crawls the contribution graph around a GitHub login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account := flags.account
			if account == "" {
				account = args[0]
			}
			return runCrawl(cmd, crawler.PlatformGitHub, args[0], account, flags.maxDepth)
		},
	}
	cmd.Flags().StringVar(&flags.account, "account", "", "vault account whose token to use (defaults to the login)")
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "override crawler.max_depth")
	return cmd
}

func newCrawlLinkedInCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "linkedin [public-id]",
		Short: "Crawls the LinkedIn graph around a member, or the signed-in member when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := ""
			if len(args) == 1 {
				seed = args[0]
			}
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			account := flags.account
			if account == "" {
				account = rt.cfg.LinkedIn.Username
			}
			return runCrawl(cmd, crawler.PlatformLinkedIn, seed, account, flags.maxDepth)
		},
	}
	cmd.Flags().StringVar(&flags.account, "account", "", "vault account to sign in with (defaults to linkedin.username)")
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "override crawler.max_depth")
	return cmd
}

func runCrawl(cmd *cobra.Command, platform crawler.Platform, seed, account string, maxDepth int) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := buildApp(ctx, rt.cfg, Version, rt.logger)
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

	start := time.Now()
	outcome, err := app.CrawlOnce(ctx, platform, seed, account, maxDepth)
	if err != nil {
		return fmt.Errorf("crawl %s %q: %w", platform, seed, err)
	}
	rt.logger.Info("crawl finished",
		zap.String("platform", string(platform)),
		zap.String("seed", outcome.SeedKey),
		zap.Duration("elapsed", time.Since(start)),
	)
	return printJSON(cmd.OutOrStdout(), outcome)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
