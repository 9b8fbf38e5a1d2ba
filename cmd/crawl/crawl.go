// Package crawl implements the crawl command, one complete crawl of the
// listing site.
package crawl

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/nmls-crawler/cmd/common"
	crawlercfg "github.com/jonesrussell/nmls-crawler/internal/config/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// Options are the crawl command flags.
type Options struct {
	Region   string
	MaxItems int
	Migrate  bool
}

// Apply overrides the crawler configuration with the flags that were set.
func (o Options) Apply(cfg *crawlercfg.Config, maxItemsSet bool) error {
	if region := strings.ToLower(strings.TrimSpace(o.Region)); region != "" {
		cfg.SpecificRegion = true
		cfg.RegionSubdomain = region
	}
	if maxItemsSet {
		cfg.MaxItems = o.MaxItems
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid crawl options: %w", err)
	}
	return nil
}

// Command returns the crawl command for use in the root command.
func Command() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl nmls.ru advertisements into the database",
		Long: `Crawl every region of the site, or one region with --region, and store
advertisements, images and phone numbers in the configured database.

The run stops issuing new requests once --max-items advertisements have been
extracted (0 means unlimited).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := cmdcommon.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Logger.Sync() }()

			if err = opts.Apply(deps.Config.Crawler, cmd.Flags().Changed("max-items")); err != nil {
				return err
			}
			return run(cmd.Context(), deps, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Region, "region", "", "crawl only this region subdomain (e.g. nn)")
	cmd.Flags().IntVar(&opts.MaxItems, "max-items", crawlercfg.DefaultMaxItems, "stop after this many advertisements (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "create the schema and tables before crawling")

	return cmd
}

func run(ctx context.Context, deps *cmdcommon.CommandDeps, opts Options) error {
	runner, err := cmdcommon.NewRunner(ctx, deps)
	if err != nil {
		return fmt.Errorf("failed to set up crawl: %w", err)
	}
	defer func() { _ = runner.Close() }()

	if opts.Migrate {
		if err = runner.Migrate(ctx); err != nil {
			return err
		}
	}

	if deps.Config.Server.Enabled {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if srvErr := runner.StatusServer().Run(srvCtx); srvErr != nil {
				deps.Logger.Error("Status server stopped", logger.Err(srvErr))
			}
		}()
	}

	stats, err := runner.Run(ctx)
	cmdcommon.RenderSummary(os.Stdout, stats)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}
