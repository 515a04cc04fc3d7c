package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one full pipeline pass: collect -> dedup -> gate -> generate -> publish",
	Long: `Executes a single synchronous pipeline run and prints the result.

The run collects listings from every configured source, deduplicates them into
the store, evaluates the change gate over the cheapest listings, and when the
selection changed, generates a deal round-up and enqueues it. The publish
queue is drained at the end of every run, including entries left over from
earlier runs.`,
	RunE: runOnceCmd,
}

var (
	runConfigPath string
	runVerbose    bool
)

func init() {
	runCommand.Flags().StringVar(&runConfigPath, "config", "config.json", "Path to config.json file")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(runCommand)
}

func runOnceCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadAgentConfig(runConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}

	ag, err := buildAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer ag.close()

	result := ag.runner.Run(ctx)

	printer := newStdoutPrinter()
	printer.PrintRunResult(result)

	if !result.Success {
		os.Exit(1)
	}
	return nil
}
