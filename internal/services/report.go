package services

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/fatali-fataliyev/budget_watch/internal/contextutil"
	"github.com/fatali-fataliyev/budget_watch/internal/metrics"
	"github.com/fatali-fataliyev/budget_watch/internal/notify"
	"github.com/fatali-fataliyev/budget_watch/internal/render"
	"github.com/fatali-fataliyev/budget_watch/internal/report"
	"github.com/fatali-fataliyev/budget_watch/logging"
)

const (
	OUTCOME_FULL     = "full"
	OUTCOME_FALLBACK = "fallback"
)

type ReportSource interface {
	GetUserReportData(ctx context.Context, userId string, target time.Time) (report.ReportData, error)
}

type ProfileSource interface {
	GetUserProfile(ctx context.Context, userId string) (budget.UserProfile, error)
	ListUserProfiles(ctx context.Context) ([]budget.UserProfile, error)
}

type ReportService struct {
	reporter  ReportSource
	profiles  ProfileSource
	mailer    notify.Mailer
	metrics   *metrics.Metrics
	throttle  time.Duration
	sleep     Sleeper
	now       func() time.Time
	renderFor func(format string) (render.Renderer, error)
}

func NewReportService(reporter ReportSource, profiles ProfileSource, mailer notify.Mailer, m *metrics.Metrics, throttle time.Duration) *ReportService {
	if m == nil {
		m = metrics.New(nil)
	}
	return &ReportService{
		reporter:  reporter,
		profiles:  profiles,
		mailer:    mailer,
		metrics:   m,
		throttle:  throttle,
		sleep:     Sleep,
		now:       time.Now,
		renderFor: render.ForFormat,
	}
}

// UserReport builds the report for one user in their budget currency. A zero
// target means the previous month.
func (s *ReportService) UserReport(ctx context.Context, userId string, target time.Time) (report.ReportData, error) {
	profile, err := s.profiles.GetUserProfile(ctx, userId)
	if err != nil {
		return report.ReportData{}, fmt.Errorf("failed to get user profile: %w", err)
	}
	return s.userReport(ctx, profile, target)
}

func (s *ReportService) userReport(ctx context.Context, profile budget.UserProfile, target time.Time) (report.ReportData, error) {
	data, err := s.reporter.GetUserReportData(ctx, profile.ID, target)
	if err != nil {
		return report.ReportData{}, err
	}
	data.Currency = profile.Budget.Currency
	return data, nil
}

// SendUserReport renders the user's report in their preferred format and emails it.
// A month without transactions is reported as NOT FOUND and nothing is sent.
func (s *ReportService) SendUserReport(ctx context.Context, userId string, target time.Time) (report.ReportData, error) {
	profile, err := s.profiles.GetUserProfile(ctx, userId)
	if err != nil {
		return report.ReportData{}, fmt.Errorf("failed to get user profile: %w", err)
	}

	data, err := s.userReport(ctx, profile, target)
	if err != nil {
		return report.ReportData{}, err
	}
	if !data.HasData {
		return data, appErrors.New(appErrors.ErrNotFound, "No transactions found for %s, report not sent.", data.Month)
	}

	if err := s.deliver(ctx, profile, data); err != nil {
		return data, err
	}
	s.metrics.ReportsSent.WithLabelValues(OUTCOME_FULL).Inc()
	return data, nil
}

func (s *ReportService) deliver(ctx context.Context, profile budget.UserProfile, data report.ReportData) error {
	renderer, err := s.renderFor(profile.Preferences.ReportFormat)
	if err != nil {
		return fmt.Errorf("failed to select report renderer: %w", err)
	}

	artifact, err := renderer.Render(data)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	email := reportEmail(profile, data, notify.TEMPLATE_MONTHLY_REPORT)
	email.Attachment = &notify.Attachment{
		FileName:    artifact.FileName,
		ContentType: artifact.ContentType,
		Content:     artifact.Content,
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		return fmt.Errorf("failed to send report email: %w", err)
	}
	return nil
}

// GenerateMonthlyReports sends the previous month's report to every user who
// opted in. When rendering or delivery fails, a summary email without the
// attachment is attempted and the run moves on.
func (s *ReportService) GenerateMonthlyReports(ctx context.Context) (summary BatchSummary, err error) {
	summary = BatchSummary{
		Job:       metrics.JOB_MONTHLY_REPORTS,
		StartedAt: s.now().UTC(),
		Details:   []UserResult{},
	}
	defer func() {
		summary.Duration = s.now().Sub(summary.StartedAt)
		s.metrics.BatchDuration.WithLabelValues(metrics.JOB_MONTHLY_REPORTS).Observe(summary.Duration.Seconds())
	}()

	traceID := contextutil.TraceIDFromContext(ctx)

	profiles, err := s.profiles.ListUserProfiles(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list users for monthly reports: %w", err)
	}

	for _, profile := range profiles {
		if !profile.Preferences.MonthlyReports {
			continue
		}
		summary.Checked++
		detail := UserResult{UserID: profile.ID, UserName: profile.UserName}

		data, err := s.userReport(ctx, profile, time.Time{})
		if err != nil {
			summary.Errors++
			s.metrics.BatchErrors.WithLabelValues(metrics.JOB_MONTHLY_REPORTS).Inc()
			detail.Result = RESULT_ERROR
			detail.Error = err.Error()
			summary.Details = append(summary.Details, detail)
			logging.Logger.Errorf("[TraceID=%s] | failed to build monthly report for user %s | Error: %v", traceID, profile.ID, err)
			continue
		}

		if !data.HasData {
			summary.Skipped++
			detail.Result = RESULT_NO_DATA
			summary.Details = append(summary.Details, detail)
			continue
		}

		deliverErr := s.deliver(ctx, profile, data)
		switch {
		case deliverErr == nil:
			summary.Sent++
			detail.Result = RESULT_SENT
			s.metrics.ReportsSent.WithLabelValues(OUTCOME_FULL).Inc()
		default:
			s.metrics.BatchErrors.WithLabelValues(metrics.JOB_MONTHLY_REPORTS).Inc()
			logging.Logger.Errorf("[TraceID=%s] | failed to deliver monthly report to user %s, trying fallback | Error: %v", traceID, profile.ID, deliverErr)

			detail.Error = deliverErr.Error()
			if fallbackErr := s.mailer.Send(ctx, reportEmail(profile, data, notify.TEMPLATE_MONTHLY_REPORT_FALLBACK)); fallbackErr != nil {
				summary.Errors++
				detail.Result = RESULT_ERROR
				detail.Error = fmt.Sprintf("%s; fallback: %v", deliverErr.Error(), fallbackErr)
				logging.Logger.Errorf("[TraceID=%s] | fallback report email failed for user %s | Error: %v", traceID, profile.ID, fallbackErr)
			} else {
				summary.Fallbacks++
				detail.Result = RESULT_FALLBACK
				s.metrics.ReportsSent.WithLabelValues(OUTCOME_FALLBACK).Inc()
			}
		}
		summary.Details = append(summary.Details, detail)

		if err := s.sleep(ctx, s.throttle); err != nil {
			return summary, err
		}
	}

	logging.Logger.Infof("[TraceID=%s] | monthly reports finished: checked=%d sent=%d fallbacks=%d skipped=%d errors=%d",
		traceID, summary.Checked, summary.Sent, summary.Fallbacks, summary.Skipped, summary.Errors)
	return summary, nil
}

func reportEmail(profile budget.UserProfile, data report.ReportData, template string) notify.Email {
	topCategories := make([]map[string]string, 0, len(data.TopCategories))
	for _, c := range data.TopCategories {
		topCategories = append(topCategories, map[string]string{
			"name":   c.Name,
			"amount": c.Amount.StringFixed(2),
		})
	}

	return notify.Email{
		To:       profile.Email,
		Subject:  fmt.Sprintf("Your financial report for %s", data.Month),
		Template: template,
		Data: map[string]any{
			"name":              displayName(profile),
			"month":             data.Month,
			"currency":          data.Currency,
			"total_income":      data.TotalIncome.StringFixed(2),
			"total_expenses":    data.TotalExpenses.StringFixed(2),
			"net_savings":       data.NetSavings.StringFixed(2),
			"savings_rate":      data.SavingsRate,
			"transaction_count": data.TransactionCount,
			"top_categories":    topCategories,
		},
	}
}
