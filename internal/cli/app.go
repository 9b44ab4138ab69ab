package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatali-fataliyev/budget_watch/api"
	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/fatali-fataliyev/budget_watch/internal/config"
	"github.com/fatali-fataliyev/budget_watch/internal/metrics"
	"github.com/fatali-fataliyev/budget_watch/internal/notify"
	"github.com/fatali-fataliyev/budget_watch/internal/report"
	"github.com/fatali-fataliyev/budget_watch/internal/scheduler"
	"github.com/fatali-fataliyev/budget_watch/internal/services"
	"github.com/fatali-fataliyev/budget_watch/internal/storage"
	"github.com/fatali-fataliyev/budget_watch/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App holds every wired component for one process.
type App struct {
	Config    *config.Config
	Tracker   *budget.BudgetTracker
	Alerts    *services.AlertService
	Reports   *services.ReportService
	Metrics   *metrics.Metrics
	Scheduler *scheduler.Scheduler
	Api       *api.Api

	closers []func() error
}

func buildApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	store, err := openStorage(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	mailer, err := openMailer(cfg, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	loc := cfg.Location()
	app.Tracker = budget.NewBudgetTracker(store, budget.WithLocation(loc))
	reporter := report.NewReporter(store, loc, nil)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(registry)

	app.Alerts = services.NewAlertService(app.Tracker, mailer, app.Metrics, cfg.AlertThrottle())
	app.Reports = services.NewReportService(reporter, app.Tracker, mailer, app.Metrics, cfg.ReportThrottle())

	app.Scheduler = scheduler.New(app.Alerts, app.Reports, scheduler.Options{
		AlertsEnabled:  cfg.Alerts.Enabled,
		CheckInterval:  cfg.AlertCheckInterval(),
		ReportsEnabled: cfg.Reports.Enabled,
		ReportDay:      cfg.Reports.Day,
		ReportHour:     cfg.Reports.Hour,
		Location:       loc,
	})
	app.Api = api.NewApi(app.Tracker, app.Alerts, app.Reports)
	return app, nil
}

func openStorage(ctx context.Context, cfg *config.Config, app *App) (budget.Storage, error) {
	if cfg.Database.Driver == config.DRIVER_INMEMORY {
		logging.Logger.Warn("Using in-memory storage, data is lost on exit")
		return storage.NewInMemoryStorage(), nil
	}

	sqlStore, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.closers = append(app.closers, sqlStore.Close)
	logging.Logger.Infof("Storage ready, type=%s", sqlStore.GetStorageType())
	return sqlStore, nil
}

func openMailer(cfg *config.Config, app *App) (notify.Mailer, error) {
	switch cfg.Mail.Backend {
	case config.MAIL_BACKEND_AMQP:
		mailer, err := notify.NewAMQPMailer(cfg.Mail.AMQPURL, cfg.Mail.Exchange, cfg.Mail.Queue, cfg.Mail.From)
		if err != nil {
			return nil, fmt.Errorf("failed to connect mail queue: %w", err)
		}
		app.closers = append(app.closers, mailer.Close)
		logging.Logger.Infof("Emails are published to exchange '%s', queue '%s'", cfg.Mail.Exchange, cfg.Mail.Queue)
		return mailer, nil
	default:
		logging.Logger.Warn("Mail backend is 'log', emails are written to the log only")
		return notify.NewLogMailer(logging.Logger, cfg.Mail.From), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
