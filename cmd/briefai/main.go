package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "briefai",
		Short: "Consolidate weekly content collection runs into a ranked briefing",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(ingestCmd())
	root.AddCommand(consolidateCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(serveCmd())

	return root
}

func ingestCmd() *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run collectors and append the batch to the period checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(period)
		},
	}

	cmd.Flags().StringVar(&period, "period", "", "period ID (default: current ISO week)")
	return cmd
}

func consolidateCmd() *cobra.Command {
	var (
		period     string
		strategy   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Seal the period, dedupe, rank, deep-evaluate and finalize",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsolidate(period, strategy, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&period, "period", "", "period ID (default: current ISO week)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "dedup strategy override (combined, combined_strict)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the result as JSON")
	return cmd
}

func statusCmd() *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a period's checkpoint state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(period)
		},
	}

	cmd.Flags().StringVar(&period, "period", "", "period ID (default: current ISO week)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
