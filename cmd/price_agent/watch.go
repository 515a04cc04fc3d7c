package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/price-publisher/internal/pipeline"
)

var watchCommand = &cobra.Command{
	Use:   "watch",
	Short: "Run the pipeline on a fixed schedule until interrupted",
	Long: `Starts the agent as a long-running process that executes a full pipeline run
every schedule interval (default 24h, configurable via schedule_interval in
config.json). Scheduled runs never crash the process: failures are logged,
and a transient failure is retried once after a short delay.`,
	RunE: watchCmd,
}

var (
	watchConfigPath string
	watchVerbose    bool
)

func init() {
	watchCommand.Flags().StringVar(&watchConfigPath, "config", "config.json", "Path to config.json file")
	watchCommand.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(watchCommand)
}

func watchCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadAgentConfig(watchConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = watchVerbose
	}

	interval, err := cfg.Interval()
	if err != nil {
		return fmt.Errorf("invalid schedule_interval: %w", err)
	}

	ag, err := buildAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer ag.close()

	scheduler := pipeline.NewScheduler(ag.runner, interval)
	if err := scheduler.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
