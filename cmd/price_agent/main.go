// Package main provides the entry point for the price publisher agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "price_agent",
	Short: "Unattended price-watch publisher",
	Long:  "Price agent collects listings from configured sources, deduplicates them, and publishes deal round-ups to a CMS when the cheapest listings change.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
