// Package cli implements the foresightctl operator commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/di"
	"github.com/aristath/foresight/pkg/logger"
)

var (
	logLevel  string
	container *di.Container
)

var rootCmd = &cobra.Command{
	Use:           "foresightctl",
	Short:         "Run Foresight jobs and predictions from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if container != nil {
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: os.Stderr})
		c, err := di.Wire(cfg, log)
		if err != nil {
			return err
		}
		container = c
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return nil
		}
		err := container.Close()
		container = nil
		return err
	},
}

// Execute runs the root command. SIGINT or SIGTERM cancels the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		if container != nil {
			_ = container.Close()
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(jobCommand("train", "Train every instrument, refresh the cache and clean up", jobTraining))
	rootCmd.AddCommand(jobCommand("refresh", "Publish models, recompute predictions and persist bars", jobRefresh))
	rootCmd.AddCommand(jobCommand("scrape", "Fetch fresh daily bars into the working copies", jobScrape))
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(predictCmd)
}

func getContainer() *di.Container {
	if container == nil {
		panic("container not initialized; PersistentPreRunE not executed")
	}
	return container
}
