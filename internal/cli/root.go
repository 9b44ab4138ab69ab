package cli

import (
	"fmt"
	"os"

	"github.com/fatali-fataliyev/budget_watch/internal/config"
	"github.com/fatali-fataliyev/budget_watch/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "budget_watch",
	Short: "Personal budget tracking with alerts and monthly reports",
	Long: `budget_watch tracks income and expenses per user, emails warning and
critical alerts when monthly spending crosses the configured thresholds, and
sends a monthly financial report to users who opted in.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.App.LogLevel = logLevel
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	if err := logging.Init(loaded.App.LogLevel, loaded.App.Env, loaded.App.LogDir); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg = loaded
	return nil
}
