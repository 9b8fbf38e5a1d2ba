package schedule

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/nmls-crawler/cmd/common"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// Command returns the schedule command for use in the root command.
func Command() *cobra.Command {
	var (
		spec    string
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the crawl repeatedly on a cron schedule",
		Long: `Run a full crawl each time the cron schedule fires (schedule.cron,
default @daily) until interrupted. A tick that fires while the previous crawl
is still running is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := cmdcommon.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Logger.Sync() }()

			if spec == "" {
				spec = deps.Config.Schedule.Cron
			}
			return run(cmd.Context(), deps, spec, migrate)
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "cron spec overriding schedule.cron")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "create the schema and tables before the first crawl")

	return cmd
}

func run(ctx context.Context, deps *cmdcommon.CommandDeps, spec string, migrate bool) error {
	runner, err := cmdcommon.NewRunner(ctx, deps)
	if err != nil {
		return fmt.Errorf("failed to set up crawl: %w", err)
	}
	defer func() { _ = runner.Close() }()

	if migrate {
		if err = runner.Migrate(ctx); err != nil {
			return err
		}
	}

	if deps.Config.Server.Enabled {
		go func() {
			if srvErr := runner.StatusServer().Run(ctx); srvErr != nil {
				deps.Logger.Error("Status server stopped", logger.Err(srvErr))
			}
		}()
	}

	s, err := New(spec, func(runCtx context.Context) error {
		stats, runErr := runner.Run(runCtx)
		cmdcommon.RenderSummary(os.Stdout, stats)
		return runErr
	}, deps.Logger)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
