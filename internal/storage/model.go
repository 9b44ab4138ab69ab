package storage

import (
	"database/sql"
	"time"

	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/shopspring/decimal"
)

type dbUserProfile struct {
	ID                 string
	UserName           string
	FullName           string
	Email              string
	BudgetAmount       decimal.Decimal
	BudgetCurrency     string
	WarningThreshold   float64
	CriticalThreshold  float64
	LastWarningSentAt  sql.NullTime
	LastCriticalSentAt sql.NullTime
	MonthlyReports     bool
	ReportFormat       string
}

func (u dbUserProfile) toProfile() budget.UserProfile {
	return budget.UserProfile{
		ID:       u.ID,
		UserName: u.UserName,
		FullName: u.FullName,
		Email:    u.Email,
		Budget: budget.BudgetSettings{
			MonthlyAmount: u.BudgetAmount,
			Currency:      u.BudgetCurrency,
			Thresholds: budget.AlertThresholds{
				Warning:  u.WarningThreshold,
				Critical: u.CriticalThreshold,
			},
			LastWarningSentAt:  NullTimeToPtr(u.LastWarningSentAt),
			LastCriticalSentAt: NullTimeToPtr(u.LastCriticalSentAt),
		},
		Preferences: budget.ReportPreferences{
			MonthlyReports: u.MonthlyReports,
			ReportFormat:   u.ReportFormat,
		},
	}
}

type dbTransaction struct {
	ID          string
	UserID      string
	Amount      decimal.Decimal
	Kind        string
	CategoryID  sql.NullString
	OccurredAt  time.Time
	Description string
	CreatedAt   time.Time
}

func (t dbTransaction) toTransaction() budget.Transaction {
	return budget.Transaction{
		ID:          t.ID,
		UserID:      t.UserID,
		Amount:      t.Amount,
		Kind:        budget.TransactionKind(t.Kind),
		CategoryID:  t.CategoryID.String,
		OccurredAt:  t.OccurredAt.UTC(),
		Description: t.Description,
		CreatedAt:   t.CreatedAt.UTC(),
	}
}

func NullTimeToPtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func EmptyToNullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{Valid: true, String: v}
}
