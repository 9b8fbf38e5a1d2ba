// Package cmd implements the nmls-crawler command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcommon "github.com/jonesrussell/nmls-crawler/cmd/common"
	"github.com/jonesrussell/nmls-crawler/cmd/crawl"
	"github.com/jonesrussell/nmls-crawler/cmd/schedule"
	"github.com/jonesrussell/nmls-crawler/cmd/sections"
	"github.com/jonesrussell/nmls-crawler/internal/config"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:   "nmls-crawler",
		Short: "Crawl nmls.ru real-estate advertisements",
		Long: `nmls-crawler walks the regions, sections and listing pages of nmls.ru and
stores each advertisement with its images and phone numbers in PostgreSQL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	// Environment from .env is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return executeContext(ctx, os.Args[1:])
}

func executeContext(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nmls-crawler version %s\n", Version)
		},
	})

	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(schedule.Command())
	rootCmd.AddCommand(sections.Command())
}

// initConfig reads the config file and binds flags and environment
// variables into the global viper instance.
func initConfig(cmd *cobra.Command) error {
	v := viper.GetViper()
	config.SetupViper(v, cfgFile)

	if err := v.BindPFlag(cmdcommon.DebugKey, cmd.Root().PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	if err := v.BindEnv(cmdcommon.DebugKey, "APP_DEBUG"); err != nil {
		return fmt.Errorf("failed to bind APP_DEBUG: %w", err)
	}
	if err := v.BindEnv("logger.encoding", "LOG_FORMAT"); err != nil {
		return fmt.Errorf("failed to bind LOG_FORMAT: %w", err)
	}
	return config.ReadFile(v)
}
