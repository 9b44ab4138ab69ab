package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/fatali-fataliyev/budget_watch/internal/auth"
	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/fatali-fataliyev/budget_watch/internal/metrics"
	"github.com/fatali-fataliyev/budget_watch/internal/notify"
	"github.com/fatali-fataliyev/budget_watch/internal/report"
	"github.com/fatali-fataliyev/budget_watch/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)

type recordingMailer struct {
	mu            sync.Mutex
	emails        []notify.Email
	failFor       map[string]bool
	failTemplates map[string]bool
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{failFor: map[string]bool{}, failTemplates: map[string]bool{}}
}

func (m *recordingMailer) Send(ctx context.Context, email notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[email.To] || m.failTemplates[email.Template] {
		return errors.New("smtp relay unavailable")
	}
	m.emails = append(m.emails, email)
	return nil
}

type fixture struct {
	store    *storage.InMemoryStorage
	tracker  *budget.BudgetTracker
	reporter *report.Reporter
	mailer   *recordingMailer
	metrics  *metrics.Metrics
	sleeps   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	store := storage.NewInMemoryStorage()
	return &fixture{
		store:    store,
		tracker:  budget.NewBudgetTracker(store, budget.WithClock(clock)),
		reporter: report.NewReporter(store, time.UTC, clock),
		mailer:   newRecordingMailer(),
		metrics:  metrics.New(nil),
	}
}

func (f *fixture) sleeper(ctx context.Context, d time.Duration) error {
	f.sleeps++
	return nil
}

func (f *fixture) alertService() *AlertService {
	s := NewAlertService(f.tracker, f.mailer, f.metrics, time.Second)
	s.sleep = f.sleeper
	s.now = func() time.Time { return testNow }
	return s
}

func (f *fixture) reportService() *ReportService {
	s := NewReportService(f.reporter, f.tracker, f.mailer, f.metrics, time.Second)
	s.sleep = f.sleeper
	s.now = func() time.Time { return testNow }
	return s
}

func (f *fixture) addUser(t *testing.T, id string, username string, monthlyBudget string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SaveUser(ctx, auth.User{
		ID:        id,
		UserName:  username,
		FullName:  "Test " + username,
		Email:     username + "@example.com",
		CreatedAt: testNow.Add(-time.Duration(len(username)) * time.Hour),
	}))
	if monthlyBudget != "" {
		require.NoError(t, f.tracker.UpdateBudgetSettings(ctx, id, budget.UpdateBudgetRequest{MonthlyAmount: decimal.RequireFromString(monthlyBudget)}))
	}
}

func (f *fixture) spend(t *testing.T, userId string, value string, occurredAt time.Time, kind budget.TransactionKind) {
	t.Helper()
	_, err := f.tracker.SaveTransaction(context.Background(), userId, budget.TransactionRequest{
		Amount:     decimal.RequireFromString(value),
		Kind:       kind,
		OccurredAt: occurredAt,
	})
	require.NoError(t, err)
}

var october5 = time.Date(2026, time.October, 5, 12, 0, 0, 0, time.UTC)

func TestCheckAllUserBudgetsWarningThenCritical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "u-1", "john", "1000")
	f.addUser(t, "u-2", "no_budget", "")
	f.spend(t, "u-1", "850", october5, budget.KindExpense)
	svc := f.alertService()

	summary, err := svc.CheckAllUserBudgets(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Checked)
	require.Equal(t, 1, summary.Sent)
	require.Equal(t, 1, summary.Warnings)
	require.Zero(t, summary.Errors)
	require.Equal(t, RESULT_SENT, summary.Details[0].Result)
	require.Equal(t, budget.AlertWarning, summary.Details[0].AlertType)
	require.Equal(t, 1, f.sleeps)

	require.Len(t, f.mailer.emails, 1)
	email := f.mailer.emails[0]
	require.Equal(t, "john@example.com", email.To)
	require.Equal(t, notify.TEMPLATE_BUDGET_ALERT, email.Template)
	require.Equal(t, 85.0, email.Data["percentage_used"])
	require.Equal(t, "150.00", email.Data["remaining"])

	profile, err := f.tracker.GetUserProfile(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, profile.Budget.LastWarningSentAt)
	require.True(t, testNow.Equal(*profile.Budget.LastWarningSentAt))

	notifications, err := f.tracker.GetNotifications(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Equal(t, budget.SEVERITY_WARNING, notifications[0].Severity)
	require.Equal(t, "Budget Warning", notifications[0].Title)

	summary, err = svc.CheckAllUserBudgets(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Sent)
	require.Equal(t, RESULT_NO_ALERT, summary.Details[0].Result)
	require.Len(t, f.mailer.emails, 1)

	f.spend(t, "u-1", "110", october5, budget.KindExpense)
	summary, err = svc.CheckAllUserBudgets(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Criticals)
	require.Len(t, f.mailer.emails, 2)

	notifications, err = f.tracker.GetNotifications(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	require.Equal(t, budget.SEVERITY_CRITICAL, notifications[0].Severity)

	require.Equal(t, 3.0, testutil.ToFloat64(f.metrics.AlertChecks))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AlertsSent.WithLabelValues("critical")))
}

func TestCheckAllUserBudgetsEmailFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "u-1", "john", "1000")
	f.addUser(t, "u-2", "jane", "100")
	f.spend(t, "u-1", "900", october5, budget.KindExpense)
	f.spend(t, "u-2", "99", october5, budget.KindExpense)
	f.mailer.failFor["john@example.com"] = true

	summary, err := f.alertService().CheckAllUserBudgets(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Checked)
	require.Equal(t, 1, summary.Errors)
	require.Equal(t, 1, summary.Sent)
	require.Equal(t, 1, summary.Criticals)

	var john, jane UserResult
	for _, d := range summary.Details {
		switch d.UserID {
		case "u-1":
			john = d
		case "u-2":
			jane = d
		}
	}
	require.Equal(t, RESULT_ERROR, john.Result)
	require.Contains(t, john.Error, "smtp relay unavailable")
	require.Equal(t, RESULT_SENT, jane.Result)

	profile, err := f.tracker.GetUserProfile(ctx, "u-1")
	require.NoError(t, err)
	require.Nil(t, profile.Budget.LastWarningSentAt)

	notifications, err := f.tracker.GetNotifications(ctx, "u-1")
	require.NoError(t, err)
	require.Empty(t, notifications)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchErrors.WithLabelValues(metrics.JOB_BUDGET_ALERTS)))
}

func TestCheckAllUserBudgetsCancelled(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u-1", "john", "1000")
	f.addUser(t, "u-2", "jane", "1000")
	f.spend(t, "u-1", "900", october5, budget.KindExpense)
	f.spend(t, "u-2", "900", october5, budget.KindExpense)

	svc := NewAlertService(f.tracker, f.mailer, f.metrics, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := svc.CheckAllUserBudgets(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, summary.Sent)
	require.Len(t, f.mailer.emails, 1)
}

func TestCheckAndNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "u-1", "john", "1000")
	f.spend(t, "u-1", "100", october5, budget.KindExpense)
	svc := f.alertService()

	result, err := svc.CheckAndNotify(ctx, "u-1")
	require.NoError(t, err)
	require.False(t, result.Sent)
	require.Equal(t, budget.LevelSafe, result.Status.AlertLevel)
	require.Empty(t, f.mailer.emails)

	_, err = svc.CheckAndNotify(ctx, "missing")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))
}

type countingStore struct {
	*storage.InMemoryStorage
	mu           sync.Mutex
	profileReads int
}

func (c *countingStore) GetUserProfile(ctx context.Context, userId string) (budget.UserProfile, error) {
	c.mu.Lock()
	c.profileReads++
	c.mu.Unlock()
	return c.InMemoryStorage.GetUserProfile(ctx, userId)
}

func TestAlertFlowReadsProfileOnce(t *testing.T) {
	tests := []struct {
		name      string
		run       func(ctx context.Context, svc *AlertService) error
		wantReads int
	}{
		{
			name: "single user check",
			run: func(ctx context.Context, svc *AlertService) error {
				_, err := svc.CheckAndNotify(ctx, "u-1")
				return err
			},
			wantReads: 1,
		},
		{
			name: "batch uses listed profiles",
			run: func(ctx context.Context, svc *AlertService) error {
				_, err := svc.CheckAllUserBudgets(ctx)
				return err
			},
			wantReads: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addUser(t, "u-1", "john", "1000")
			f.spend(t, "u-1", "850", october5, budget.KindExpense)

			counting := &countingStore{InMemoryStorage: f.store}
			f.tracker = budget.NewBudgetTracker(counting, budget.WithClock(func() time.Time { return testNow }))
			svc := f.alertService()

			require.NoError(t, tt.run(context.Background(), svc))
			require.Equal(t, tt.wantReads, counting.profileReads)
			require.Len(t, f.mailer.emails, 1)
		})
	}
}

var september = func(day int) time.Time {
	return time.Date(2026, time.September, day, 12, 0, 0, 0, time.UTC)
}

func TestGenerateMonthlyReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addUser(t, "u-1", "john", "1000")
	f.spend(t, "u-1", "350", september(3), budget.KindExpense)
	f.spend(t, "u-1", "500", september(1), budget.KindIncome)

	f.addUser(t, "u-2", "opted_out", "")
	f.spend(t, "u-2", "10", september(3), budget.KindExpense)
	require.NoError(t, f.store.UpdateReportPreferences(ctx, "u-2", budget.ReportPreferences{MonthlyReports: false}))

	f.addUser(t, "u-3", "empty", "")
	f.spend(t, "u-3", "10", october5, budget.KindExpense)

	f.addUser(t, "u-4", "broken", "")
	f.spend(t, "u-4", "10", september(4), budget.KindExpense)
	require.NoError(t, f.store.UpdateReportPreferences(ctx, "u-4", budget.ReportPreferences{MonthlyReports: true, ReportFormat: "pdf"}))

	summary, err := f.reportService().GenerateMonthlyReports(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Checked)
	require.Equal(t, 1, summary.Sent)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 1, summary.Fallbacks)
	require.Zero(t, summary.Errors)
	require.Equal(t, 2, f.sleeps)

	require.Len(t, f.mailer.emails, 2)
	byRecipient := map[string]notify.Email{}
	for _, e := range f.mailer.emails {
		byRecipient[e.To] = e
	}

	full := byRecipient["john@example.com"]
	require.Equal(t, notify.TEMPLATE_MONTHLY_REPORT, full.Template)
	require.Equal(t, "Your financial report for September 2026", full.Subject)
	require.NotNil(t, full.Attachment)
	require.Equal(t, "budget-report-2026-09.csv", full.Attachment.FileName)
	require.Equal(t, "150.00", full.Data["net_savings"])
	require.Equal(t, "USD", full.Data["currency"])

	fallback := byRecipient["broken@example.com"]
	require.Equal(t, notify.TEMPLATE_MONTHLY_REPORT_FALLBACK, fallback.Template)
	require.Nil(t, fallback.Attachment)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReportsSent.WithLabelValues(OUTCOME_FALLBACK)))
}

func TestGenerateMonthlyReportsDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "u-1", "john", "")
	f.spend(t, "u-1", "20", september(3), budget.KindExpense)
	f.addUser(t, "u-2", "jane", "")
	f.spend(t, "u-2", "30", september(3), budget.KindExpense)
	f.mailer.failFor["john@example.com"] = true

	summary, err := f.reportService().GenerateMonthlyReports(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Checked)
	require.Equal(t, 1, summary.Errors)
	require.Equal(t, 1, summary.Sent)
	require.Len(t, f.mailer.emails, 1)
	require.Equal(t, "jane@example.com", f.mailer.emails[0].To)
}

func TestSendUserReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "u-1", "john", "")
	f.spend(t, "u-1", "42.50", september(10), budget.KindExpense)
	require.NoError(t, f.tracker.UpdateReportPreferences(ctx, "u-1", budget.ReportPreferences{MonthlyReports: true, ReportFormat: "json"}))
	svc := f.reportService()

	data, err := svc.SendUserReport(ctx, "u-1", time.Time{})
	require.NoError(t, err)
	require.True(t, data.HasData)
	require.Len(t, f.mailer.emails, 1)
	require.Equal(t, "application/json", f.mailer.emails[0].Attachment.ContentType)

	data, err = svc.SendUserReport(ctx, "u-1", october5)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))
	require.False(t, data.HasData)
	require.Len(t, f.mailer.emails, 1)

	f.mailer.failTemplates[notify.TEMPLATE_MONTHLY_REPORT] = true
	_, err = svc.SendUserReport(ctx, "u-1", september(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "smtp relay unavailable")
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 0))
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
