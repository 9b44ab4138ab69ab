package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatali-fataliyev/budget_watch/internal/contextutil"
	"github.com/fatali-fataliyev/budget_watch/internal/services"
	"github.com/fatali-fataliyev/budget_watch/logging"
	"github.com/spf13/cobra"
)

var checkBudgetsCmd = &cobra.Command{
	Use:   "check-budgets",
	Short: "Check every user's budget once and send due alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, func(ctx context.Context, app *App) (services.BatchSummary, error) {
			return app.Alerts.CheckAllUserBudgets(ctx)
		})
	},
}

var sendReportsCmd = &cobra.Command{
	Use:   "send-reports",
	Short: "Send last month's report to every opted-in user once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, func(ctx context.Context, app *App) (services.BatchSummary, error) {
			return app.Reports.GenerateMonthlyReports(ctx)
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		logging.Logger.Infof("Database schema is up to date, driver=%s", cfg.Database.Driver)
		return app.Close()
	},
}

func init() {
	rootCmd.AddCommand(checkBudgetsCmd, sendReportsCmd, migrateCmd)
}

func runBatch(cmd *cobra.Command, job func(ctx context.Context, app *App) (services.BatchSummary, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = contextutil.NewTraceContext(ctx)

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := job(ctx, app)
	if printErr := printSummary(cmd.OutOrStdout(), summary); printErr != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to print summary | Error: %v", contextutil.TraceIDFromContext(ctx), printErr)
	}
	if err != nil {
		return fmt.Errorf("%s run failed: %w", summary.Job, err)
	}
	return nil
}

func printSummary(w io.Writer, summary services.BatchSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
