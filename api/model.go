package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/fatali-fataliyev/budget_watch/internal/services"
	"github.com/shopspring/decimal"
)

const (
	DATE_LAYOUT  = "2006-01-02"
	MONTH_LAYOUT = "2006-01"
)

// REQUESTS START:
type SaveUserRequest struct {
	UserName string `json:"username"`
	FullName string `json:"fullname"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type UserLoginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

type CreateTransactionRequest struct {
	Amount      string `json:"amount"` // string keeps "12.50" exact
	Kind        string `json:"kind"`
	CategoryID  string `json:"category_id"`
	OccurredAt  string `json:"occurred_at"`
	Description string `json:"description"`
}

type CategoryRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type UpdateBudgetRequest struct {
	MonthlyAmount     string  `json:"monthly_amount"`
	Currency          string  `json:"currency"`
	WarningThreshold  float64 `json:"warning_threshold"`
	CriticalThreshold float64 `json:"critical_threshold"`
}

type UpdatePreferencesRequest struct {
	MonthlyReports bool   `json:"monthly_reports"`
	ReportFormat   string `json:"report_format"`
}

//REQUESTS END:

//RESPONSES:

type UserCreatedResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type TransactionItem struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	CategoryID  string `json:"category_id,omitempty"`
	OccurredAt  string `json:"occurred_at"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

type ListTransactionResponse struct {
	Transactions []TransactionItem `json:"transactions"`
}

type CategoryItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

type ListCategoryResponse struct {
	Categories []CategoryItem `json:"categories"`
}

type AccountResponse struct {
	ID                string  `json:"id"`
	UserName          string  `json:"username"`
	FullName          string  `json:"fullname"`
	Email             string  `json:"email"`
	MonthlyBudget     string  `json:"monthly_budget"`
	Currency          string  `json:"currency"`
	WarningThreshold  float64 `json:"warning_threshold"`
	CriticalThreshold float64 `json:"critical_threshold"`
	MonthlyReports    bool    `json:"monthly_reports"`
	ReportFormat      string  `json:"report_format"`
}

type AlertCheckResponse struct {
	Sent      bool                `json:"sent"`
	AlertType string              `json:"alert_type,omitempty"`
	Status    budget.BudgetStatus `json:"status"`
}

type ListNotificationResponse struct {
	Notifications []budget.Notification `json:"notifications"`
}

type BatchResponse struct {
	Summary services.BatchSummary `json:"summary"`
}

func httpStatusFromError(err error) int {
	switch appErrors.CodeOf(err) {
	case appErrors.ErrNotFound:
		return http.StatusNotFound
	case appErrors.ErrInvalidInput:
		return http.StatusBadRequest
	case appErrors.ErrAuth:
		return http.StatusUnauthorized
	case appErrors.ErrAccessDenied:
		return http.StatusForbidden
	case appErrors.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody hides internal failures behind a generic message.
func errorBody(err error) appErrors.ErrorResponse {
	code := appErrors.CodeOf(err)
	if code == appErrors.ErrInternal {
		return appErrors.New(appErrors.ErrInternal, "Something went wrong, please try again later.")
	}
	return appErrors.ErrorResponse{Code: code, Message: appErrors.MessageOf(err)}
}

// bearerToken accepts both "Bearer <token>" and a bare token.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func TransactionToHttp(t budget.Transaction) TransactionItem {
	return TransactionItem{
		ID:          t.ID,
		Amount:      t.Amount.StringFixed(2),
		Kind:        string(t.Kind),
		CategoryID:  t.CategoryID,
		OccurredAt:  t.OccurredAt.Format(time.RFC3339),
		Description: t.Description,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

func CategoryToHttp(c budget.Category) CategoryItem {
	return CategoryItem{
		ID:        c.ID,
		Name:      c.Name,
		Kind:      string(c.Kind),
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func ProfileToHttp(p budget.UserProfile) AccountResponse {
	return AccountResponse{
		ID:                p.ID,
		UserName:          p.UserName,
		FullName:          p.FullName,
		Email:             p.Email,
		MonthlyBudget:     p.Budget.MonthlyAmount.StringFixed(2),
		Currency:          p.Budget.Currency,
		WarningThreshold:  p.Budget.Thresholds.Warning,
		CriticalThreshold: p.Budget.Thresholds.Critical,
		MonthlyReports:    p.Preferences.MonthlyReports,
		ReportFormat:      p.Preferences.ReportFormat,
	}
}

func parseAmount(value string, field string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, appErrors.New(appErrors.ErrInvalidInput, "%s is required.", field)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, appErrors.New(appErrors.ErrInvalidInput, "Invalid %s '%s', example: 12.50", field, value)
	}
	return amount, nil
}

// ToTransactionRequest converts the body; a missing occurred_at means now.
func (req CreateTransactionRequest) ToTransactionRequest() (budget.TransactionRequest, error) {
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		return budget.TransactionRequest{}, err
	}

	var occurredAt time.Time
	if req.OccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			return budget.TransactionRequest{}, appErrors.New(appErrors.ErrInvalidInput, "Invalid occurred_at '%s', expected RFC3339", req.OccurredAt)
		}
	}

	return budget.TransactionRequest{
		Amount:      amount,
		Kind:        budget.TransactionKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		CategoryID:  strings.TrimSpace(req.CategoryID),
		OccurredAt:  occurredAt,
		Description: req.Description,
	}, nil
}

// TransactionListParams reads from, to (YYYY-MM-DD, inclusive, in loc) and kind.
func TransactionListParams(params url.Values, loc *time.Location) (budget.TransactionFilter, error) {
	var filter budget.TransactionFilter

	if kind := strings.ToLower(params.Get("kind")); kind != "" {
		filter.Kind = budget.TransactionKind(kind)
	}
	if from := params.Get("from"); from != "" {
		date, err := time.ParseInLocation(DATE_LAYOUT, from, loc)
		if err != nil {
			return filter, appErrors.New(appErrors.ErrInvalidInput, "Invalid from date '%s', example: 2026-01-31", from)
		}
		filter.From = date
	}
	if to := params.Get("to"); to != "" {
		date, err := time.ParseInLocation(DATE_LAYOUT, to, loc)
		if err != nil {
			return filter, appErrors.New(appErrors.ErrInvalidInput, "Invalid to date '%s', example: 2026-01-31", to)
		}
		filter.To = date.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return filter, nil
}

// ParseMonth reads a YYYY-MM value in loc. Empty yields the zero time, which
// the report flow treats as the previous month.
func ParseMonth(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	month, err := time.ParseInLocation(MONTH_LAYOUT, value, loc)
	if err != nil {
		return time.Time{}, appErrors.New(appErrors.ErrInvalidInput, "Invalid month '%s', example: 2026-01", value)
	}
	return month, nil
}
