package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindIncome  TransactionKind = "income"
	KindExpense TransactionKind = "expense"
)

func (k TransactionKind) IsValid() bool {
	return k == KindIncome || k == KindExpense
}

// AlertType names the threshold that triggered a notification.
type AlertType string

const (
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

func (a AlertType) IsValid() bool {
	return a == AlertWarning || a == AlertCritical
}

type AlertLevel string

const (
	LevelSafe     AlertLevel = "safe"
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

const (
	REPORT_FORMAT_CSV  = "csv"
	REPORT_FORMAT_JSON = "json"
)

const (
	SEVERITY_INFO     = "info"
	SEVERITY_WARNING  = "warning"
	SEVERITY_CRITICAL = "critical"
)

// REQUESTS START:
type TransactionRequest struct {
	Amount      decimal.Decimal
	Kind        TransactionKind
	CategoryID  string
	OccurredAt  time.Time
	Description string
}

type CategoryRequest struct {
	Name string
	Kind TransactionKind
}

type UpdateBudgetRequest struct {
	MonthlyAmount     decimal.Decimal
	Currency          string
	WarningThreshold  float64
	CriticalThreshold float64
}

type TransactionFilter struct {
	Kind TransactionKind // empty means both kinds
	From time.Time
	To   time.Time
}

// REQUESTS END:

// MODELS:

type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	CategoryID  string          `json:"category_id,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Category struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Kind      TransactionKind `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

type AlertThresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

type BudgetSettings struct {
	MonthlyAmount      decimal.Decimal
	Currency           string
	Thresholds         AlertThresholds
	LastWarningSentAt  *time.Time
	LastCriticalSentAt *time.Time
}

// IsSet is false for a zero monthly amount, which means no budget is configured.
func (s BudgetSettings) IsSet() bool {
	return s.MonthlyAmount.IsPositive()
}

func (s BudgetSettings) LastAlertSent(alertType AlertType) *time.Time {
	switch alertType {
	case AlertWarning:
		return s.LastWarningSentAt
	case AlertCritical:
		return s.LastCriticalSentAt
	default:
		return nil
	}
}

type ReportPreferences struct {
	MonthlyReports bool
	ReportFormat   string
}

// UserProfile is the budget and notification view of a user row.
type UserProfile struct {
	ID          string
	UserName    string
	FullName    string
	Email       string
	Budget      BudgetSettings
	Preferences ReportPreferences
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// RESPONSES:

type MonthlyExpenses struct {
	Period       Period          `json:"period"`
	Total        decimal.Decimal `json:"total"`
	Count        int             `json:"count"`
	Transactions []Transaction   `json:"transactions"`
}

type BudgetStatus struct {
	BudgetSet       bool            `json:"budget_set"`
	Budget          decimal.Decimal `json:"budget"`
	Currency        string          `json:"currency"`
	Spent           decimal.Decimal `json:"spent"`
	Remaining       decimal.Decimal `json:"remaining"`
	PercentageUsed  float64         `json:"percentage_used"`
	AlertLevel      AlertLevel      `json:"alert_level"`
	ShouldSendAlert bool            `json:"should_send_alert"`
	AlertType       AlertType       `json:"alert_type,omitempty"`
	Thresholds      AlertThresholds `json:"thresholds"`
	MonthlyExpenses MonthlyExpenses `json:"monthly_expenses"`
}

type CategorySpend struct {
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

type BudgetOverview struct {
	BudgetStatus
	Categories []CategorySpend `json:"categories"`
}
