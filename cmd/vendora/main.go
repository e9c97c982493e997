// Package main implements the vendora CLI: one-shot analytical queries
// against a dealership warehouse through the insight pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vendora/internal/logging"
)

var (
	flagConfig string
	flagTenant string
)

var rootCmd = &cobra.Command{
	Use:   "vendora",
	Short: "vendora routes dealership questions through a validated insight pipeline",
	Long: `vendora answers natural-language analytical questions about dealership
data. Each question is classified, drafted by a specialist analyst, and
scored by a validator before anything reaches the caller.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config YAML")
	rootCmd.PersistentFlags().StringVar(&flagTenant, "tenant", "", "dealership tenant id")
	rootCmd.AddCommand(queryCmd)
}

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
