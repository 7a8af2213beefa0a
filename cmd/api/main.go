// Command api runs the recruiting CRM HTTP API and its maintenance tasks.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recruitcrm/api/internal/config"
	"recruitcrm/api/internal/logger"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Recruit CRM API server",
	Long: `api serves the recruiting CRM HTTP API.

Running it without a subcommand is the same as "api serve".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "api %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup() (config.Config, *zap.Logger, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	if err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
