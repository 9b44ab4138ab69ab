package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/fatali-fataliyev/budget_watch/internal/contextutil"
	"github.com/fatali-fataliyev/budget_watch/internal/metrics"
	"github.com/fatali-fataliyev/budget_watch/internal/notify"
	"github.com/fatali-fataliyev/budget_watch/logging"
)

// BudgetChecker is the part of budget.BudgetTracker the alert flow needs.
type BudgetChecker interface {
	StatusForProfile(ctx context.Context, profile budget.UserProfile) (budget.BudgetStatus, error)
	GetUserProfile(ctx context.Context, userId string) (budget.UserProfile, error)
	ListUserProfiles(ctx context.Context) ([]budget.UserProfile, error)
	UpdateLastAlertSent(ctx context.Context, userId string, alertType budget.AlertType) error
	SaveNotification(ctx context.Context, userId string, title string, message string, severity string) (budget.Notification, error)
}

type AlertService struct {
	tracker  BudgetChecker
	mailer   notify.Mailer
	metrics  *metrics.Metrics
	throttle time.Duration
	sleep    Sleeper
	now      func() time.Time
}

func NewAlertService(tracker BudgetChecker, mailer notify.Mailer, m *metrics.Metrics, throttle time.Duration) *AlertService {
	if m == nil {
		m = metrics.New(nil)
	}
	return &AlertService{
		tracker:  tracker,
		mailer:   mailer,
		metrics:  m,
		throttle: throttle,
		sleep:    Sleep,
		now:      time.Now,
	}
}

// CheckAndNotify evaluates one user's budget and emails an alert when one is due.
// The alert timestamp is written only after the mailer accepted the email.
func (s *AlertService) CheckAndNotify(ctx context.Context, userId string) (AlertResult, error) {
	profile, err := s.tracker.GetUserProfile(ctx, userId)
	if err != nil {
		return AlertResult{}, fmt.Errorf("failed to get user profile: %w", err)
	}
	return s.checkAndNotify(ctx, profile)
}

func (s *AlertService) checkAndNotify(ctx context.Context, profile budget.UserProfile) (AlertResult, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	status, err := s.tracker.StatusForProfile(ctx, profile)
	if err != nil {
		return AlertResult{}, fmt.Errorf("failed to check budget status: %w", err)
	}
	s.metrics.AlertChecks.Inc()

	result := AlertResult{Status: status}
	if !status.ShouldSendAlert {
		return result, nil
	}

	if err := s.mailer.Send(ctx, alertEmail(profile, status)); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to send %s budget alert to user %s | Error: %v", traceID, status.AlertType, profile.ID, err)
		return result, fmt.Errorf("failed to send budget alert: %w", err)
	}

	if err := s.tracker.UpdateLastAlertSent(ctx, profile.ID, status.AlertType); err != nil {
		return result, err
	}

	title, message, severity := alertNotification(status)
	if _, err := s.tracker.SaveNotification(ctx, profile.ID, title, message, severity); err != nil {
		logging.Logger.Warnf("[TraceID=%s] | alert sent but notification record failed for user %s | Error: %v", traceID, profile.ID, err)
	}

	s.metrics.AlertsSent.WithLabelValues(string(status.AlertType)).Inc()
	logging.Logger.Infof("[TraceID=%s] | %s budget alert sent to user %s at %.2f%%", traceID, status.AlertType, profile.ID, status.PercentageUsed)

	result.Sent = true
	result.AlertType = status.AlertType
	return result, nil
}

// CheckAllUserBudgets runs CheckAndNotify for every user with a budget set.
// A failing user is recorded and the run continues with the next one.
func (s *AlertService) CheckAllUserBudgets(ctx context.Context) (summary BatchSummary, err error) {
	summary = BatchSummary{
		Job:       metrics.JOB_BUDGET_ALERTS,
		StartedAt: s.now().UTC(),
		Details:   []UserResult{},
	}
	defer func() {
		summary.Duration = s.now().Sub(summary.StartedAt)
		s.metrics.BatchDuration.WithLabelValues(metrics.JOB_BUDGET_ALERTS).Observe(summary.Duration.Seconds())
	}()

	traceID := contextutil.TraceIDFromContext(ctx)

	profiles, err := s.tracker.ListUserProfiles(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list users for budget check: %w", err)
	}

	for _, profile := range profiles {
		if !profile.Budget.IsSet() {
			continue
		}
		summary.Checked++
		detail := UserResult{UserID: profile.ID, UserName: profile.UserName}

		result, err := s.checkAndNotify(ctx, profile)
		switch {
		case err != nil:
			summary.Errors++
			s.metrics.BatchErrors.WithLabelValues(metrics.JOB_BUDGET_ALERTS).Inc()
			detail.Result = RESULT_ERROR
			detail.AlertType = result.Status.AlertType
			detail.Error = err.Error()
			logging.Logger.Errorf("[TraceID=%s] | budget check failed for user %s | Error: %v", traceID, profile.ID, err)
		case result.Sent:
			summary.Sent++
			if result.AlertType == budget.AlertCritical {
				summary.Criticals++
			} else {
				summary.Warnings++
			}
			detail.Result = RESULT_SENT
			detail.AlertType = result.AlertType
		default:
			detail.Result = RESULT_NO_ALERT
		}
		summary.Details = append(summary.Details, detail)

		if result.Sent {
			if err := s.sleep(ctx, s.throttle); err != nil {
				return summary, err
			}
		}
	}

	logging.Logger.Infof("[TraceID=%s] | budget check finished: checked=%d sent=%d warnings=%d criticals=%d errors=%d",
		traceID, summary.Checked, summary.Sent, summary.Warnings, summary.Criticals, summary.Errors)
	return summary, nil
}

func alertEmail(profile budget.UserProfile, status budget.BudgetStatus) notify.Email {
	label := alertLabel(status.AlertType)
	return notify.Email{
		To:       profile.Email,
		Subject:  fmt.Sprintf("Budget %s: %.2f%% of your monthly budget used", label, status.PercentageUsed),
		Template: notify.TEMPLATE_BUDGET_ALERT,
		Data: map[string]any{
			"name":            displayName(profile),
			"alert_type":      string(status.AlertType),
			"percentage_used": status.PercentageUsed,
			"budget":          status.Budget.StringFixed(2),
			"spent":           status.Spent.StringFixed(2),
			"remaining":       status.Remaining.StringFixed(2),
			"currency":        status.Currency,
			"month":           status.MonthlyExpenses.Period.Label(),
			"threshold":       thresholdFor(status),
		},
	}
}

func alertNotification(status budget.BudgetStatus) (string, string, string) {
	title := "Budget " + alertLabel(status.AlertType)
	message := fmt.Sprintf("You have used %.2f%% of your %s %s monthly budget (%s %s spent).",
		status.PercentageUsed, status.Budget.StringFixed(2), status.Currency, status.Spent.StringFixed(2), status.Currency)

	severity := budget.SEVERITY_WARNING
	if status.AlertType == budget.AlertCritical {
		severity = budget.SEVERITY_CRITICAL
	}
	return title, message, severity
}

func alertLabel(alertType budget.AlertType) string {
	if alertType == budget.AlertCritical {
		return "Critical"
	}
	return "Warning"
}

func thresholdFor(status budget.BudgetStatus) float64 {
	if status.AlertType == budget.AlertCritical {
		return status.Thresholds.Critical
	}
	return status.Thresholds.Warning
}

func displayName(profile budget.UserProfile) string {
	if strings.TrimSpace(profile.FullName) != "" {
		return profile.FullName
	}
	return profile.UserName
}
