package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	pipelinePath string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Prometheus v2 - daily regime, universe and portfolio pipeline",
	Long: `Prometheus v2 Unified CLI

Daily decision pipeline per region:
  regime → universe → portfolio → risk

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant run --date 2024-03-15
  go run ./cmd/quant regime classify --region US
  go run ./cmd/quant universe show --region US --included-only
  go run ./cmd/quant scheduler start
  go run ./cmd/quant serve`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pipelinePath, "pipeline", "", "pipeline YAML (default $PIPELINE_CONFIG or config/pipeline.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
