package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "toolflow",
	Short: "Dependency-aware tool workflow orchestrator",
	Long: `toolflow runs workflows of tools declared in YAML or JSON. Tools are
ordered by their dependencies, run in parallel batches, retried on transient
failures and, when enabled, have their inputs and outputs refined by the
optimizer.

Use 'toolflow run' for a single workflow or 'toolflow serve' for the HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .toolflow.yaml or ~/.config/toolflow/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
}
