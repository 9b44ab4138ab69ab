package scheduler

import (
	"context"
	"time"

	"github.com/fatali-fataliyev/budget_watch/internal/contextutil"
	"github.com/fatali-fataliyev/budget_watch/internal/services"
	"github.com/fatali-fataliyev/budget_watch/logging"
	"golang.org/x/sync/errgroup"
)

type BudgetJob interface {
	CheckAllUserBudgets(ctx context.Context) (services.BatchSummary, error)
}

type ReportJob interface {
	GenerateMonthlyReports(ctx context.Context) (services.BatchSummary, error)
}

type Options struct {
	AlertsEnabled  bool
	CheckInterval  time.Duration
	ReportsEnabled bool
	ReportDay      int
	ReportHour     int
	Location       *time.Location
}

type Scheduler struct {
	budgets BudgetJob
	reports ReportJob
	opts    Options
	now     func() time.Time
	after   func(d time.Duration) <-chan time.Time
}

func New(budgets BudgetJob, reports ReportJob, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		budgets: budgets,
		reports: reports,
		opts:    opts,
		now:     time.Now,
		after:   time.After,
	}
}

// NextMonthlyRun returns the first moment strictly after now that falls on
// day at hour:00 in loc. day must be between 1 and 28.
func NextMonthlyRun(now time.Time, day int, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), day, hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month()+1, day, hour, 0, 0, 0, loc)
	}
	return next
}

// Run blocks until ctx is cancelled. Job failures are logged and never stop the loops.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.opts.AlertsEnabled && s.budgets != nil {
		g.Go(func() error { return s.alertLoop(ctx) })
	}
	if s.opts.ReportsEnabled && s.reports != nil {
		g.Go(func() error { return s.reportLoop(ctx) })
	}

	logging.Logger.Infof("Scheduler started, alerts=%t (every %s), reports=%t (day %d at %02d:00 %s)",
		s.opts.AlertsEnabled, s.opts.CheckInterval, s.opts.ReportsEnabled, s.opts.ReportDay, s.opts.ReportHour, s.opts.Location)

	<-ctx.Done()
	err := g.Wait()
	logging.Logger.Info("Scheduler stopped")
	return err
}

func (s *Scheduler) alertLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runBudgetCheck(ctx)
		}
	}
}

func (s *Scheduler) reportLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		now := s.now()
		next := NextMonthlyRun(now, s.opts.ReportDay, s.opts.ReportHour, s.opts.Location)
		logging.Logger.Infof("Next monthly report run at %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(now)):
			s.runMonthlyReports(ctx)
		}
	}
	return nil
}

func (s *Scheduler) runBudgetCheck(ctx context.Context) {
	jobCtx := contextutil.NewTraceContext(ctx)
	summary, err := s.budgets.CheckAllUserBudgets(jobCtx)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | scheduled budget check failed | Error: %v", contextutil.TraceIDFromContext(jobCtx), err)
		return
	}
	logging.Logger.Infof("[TraceID=%s] | scheduled budget check done in %s: sent=%d errors=%d",
		contextutil.TraceIDFromContext(jobCtx), summary.Duration, summary.Sent, summary.Errors)
}

func (s *Scheduler) runMonthlyReports(ctx context.Context) {
	jobCtx := contextutil.NewTraceContext(ctx)
	summary, err := s.reports.GenerateMonthlyReports(jobCtx)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | scheduled monthly reports failed | Error: %v", contextutil.TraceIDFromContext(jobCtx), err)
		return
	}
	logging.Logger.Infof("[TraceID=%s] | scheduled monthly reports done in %s: sent=%d fallbacks=%d errors=%d",
		contextutil.TraceIDFromContext(jobCtx), summary.Duration, summary.Sent, summary.Fallbacks, summary.Errors)
}
