package report

import (
	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/shopspring/decimal"
)

const (
	TOP_CATEGORIES_LIMIT = 3
	OTHER_CATEGORY       = "Other"
)

type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// ReportData is the monthly summary handed to renderers. HasData is false
// when the period holds no transactions; only the month fields are set then.
type ReportData struct {
	HasData           bool             `json:"has_data"`
	UserID            string           `json:"user_id"`
	Month             string           `json:"month"`
	Period            budget.Period    `json:"period"`
	Currency          string           `json:"currency"`
	TotalIncome       decimal.Decimal  `json:"total_income"`
	TotalExpenses     decimal.Decimal  `json:"total_expenses"`
	NetSavings        decimal.Decimal  `json:"net_savings"`
	SavingsRate       float64          `json:"savings_rate"`
	TransactionCount  int              `json:"transaction_count"`
	TopCategories     []CategoryAmount `json:"top_categories"`
	ExpenseCategories []CategoryAmount `json:"expense_categories"`
}
