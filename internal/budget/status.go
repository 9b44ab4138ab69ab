package budget

import (
	"context"
	"fmt"
	"sort"
	"time"

	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/shopspring/decimal"
)

const UNCATEGORIZED = "Uncategorized"

var hundred = decimal.NewFromInt(100)

// ComputeMonthlyExpenses sums the user's expenses for the given month.
// A zero year or month falls back to the current one.
func (bt *BudgetTracker) ComputeMonthlyExpenses(ctx context.Context, userId string, year int, month time.Month) (MonthlyExpenses, error) {
	now := bt.now().In(bt.location)
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = now.Month()
	}
	if month < time.January || month > time.December {
		return MonthlyExpenses{}, appErrors.New(appErrors.ErrInvalidInput, "Invalid month: %d", month)
	}

	period := MonthPeriod(year, month, bt.location)
	filter := TransactionFilter{
		Kind: KindExpense,
		From: period.Start,
		To:   period.End,
	}

	ts, err := bt.storage.GetTransactions(ctx, userId, filter)
	if err != nil {
		return MonthlyExpenses{}, fmt.Errorf("failed to get monthly expenses: %w", err)
	}

	expenses := MonthlyExpenses{
		Period:       period,
		Total:        decimal.Zero,
		Transactions: make([]Transaction, 0, len(ts)),
	}
	for _, t := range ts {
		if t.Kind != KindExpense || !period.Contains(t.OccurredAt) {
			continue
		}
		expenses.Total = expenses.Total.Add(t.Amount)
		expenses.Transactions = append(expenses.Transactions, t)
	}
	expenses.Count = len(expenses.Transactions)

	return expenses, nil
}

// CheckBudgetStatus reports how much of this month's budget is used and whether
// an alert is due. It has no side effects.
func (bt *BudgetTracker) CheckBudgetStatus(ctx context.Context, userId string) (BudgetStatus, error) {
	profile, err := bt.GetUserProfile(ctx, userId)
	if err != nil {
		return BudgetStatus{}, err
	}
	return bt.StatusForProfile(ctx, profile)
}

// StatusForProfile evaluates an already loaded profile against the current
// month's expenses without reading the profile again.
func (bt *BudgetTracker) StatusForProfile(ctx context.Context, profile UserProfile) (BudgetStatus, error) {
	settings := profile.Budget
	if !settings.IsSet() {
		return BudgetStatus{
			BudgetSet:  false,
			Budget:     decimal.Zero,
			Currency:   settings.Currency,
			Spent:      decimal.Zero,
			Remaining:  decimal.Zero,
			AlertLevel: LevelSafe,
			Thresholds: settings.Thresholds,
		}, nil
	}

	expenses, err := bt.ComputeMonthlyExpenses(ctx, profile.ID, 0, 0)
	if err != nil {
		return BudgetStatus{}, err
	}

	return EvaluateBudget(settings, expenses, bt.now(), bt.location), nil
}

// EvaluateBudget derives the budget status from a configured budget and the
// month's expenses. Only the highest exceeded threshold is considered, and it
// fires at most once per calendar day in loc.
func EvaluateBudget(settings BudgetSettings, expenses MonthlyExpenses, now time.Time, loc *time.Location) BudgetStatus {
	budget := settings.MonthlyAmount
	spent := expenses.Total

	remaining := budget.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	// Levels are judged on the same rounded value that is reported.
	percentage := spent.Div(budget).Mul(hundred).Round(2)

	level := LevelSafe
	switch {
	case percentage.GreaterThanOrEqual(decimal.NewFromFloat(settings.Thresholds.Critical)):
		level = LevelCritical
	case percentage.GreaterThanOrEqual(decimal.NewFromFloat(settings.Thresholds.Warning)):
		level = LevelWarning
	}

	status := BudgetStatus{
		BudgetSet:       true,
		Budget:          budget,
		Currency:        settings.Currency,
		Spent:           spent,
		Remaining:       remaining,
		PercentageUsed:  percentage.InexactFloat64(),
		AlertLevel:      level,
		Thresholds:      settings.Thresholds,
		MonthlyExpenses: expenses,
	}

	if level == LevelSafe {
		return status
	}

	alertType := AlertType(level)
	lastSent := settings.LastAlertSent(alertType)
	if lastSent == nil || !SameDay(*lastSent, now, loc) {
		status.ShouldSendAlert = true
		status.AlertType = alertType
	}

	return status
}

// GetBudgetOverview extends the budget status with a per-category breakdown
// of this month's expenses.
func (bt *BudgetTracker) GetBudgetOverview(ctx context.Context, userId string) (BudgetOverview, error) {
	status, err := bt.CheckBudgetStatus(ctx, userId)
	if err != nil {
		return BudgetOverview{}, err
	}

	overview := BudgetOverview{
		BudgetStatus: status,
		Categories:   []CategorySpend{},
	}
	if !status.BudgetSet {
		return overview, nil
	}

	categories, err := bt.GetCategories(ctx, userId)
	if err != nil {
		return BudgetOverview{}, err
	}

	overview.Categories = BreakdownByCategory(status.MonthlyExpenses, CategoryNames(categories))
	return overview, nil
}

// CategoryNames indexes category names by id.
func CategoryNames(categories []Category) map[string]string {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names
}

// BreakdownByCategory groups expenses by resolved category name, sorted by
// amount descending. Ties keep first-seen order.
func BreakdownByCategory(expenses MonthlyExpenses, names map[string]string) []CategorySpend {
	index := make(map[string]int)
	breakdown := []CategorySpend{}

	for _, t := range expenses.Transactions {
		name := names[t.CategoryID]
		if name == "" {
			name = UNCATEGORIZED
		}

		i, ok := index[name]
		if !ok {
			i = len(breakdown)
			index[name] = i
			breakdown = append(breakdown, CategorySpend{Name: name, Amount: decimal.Zero})
		}
		breakdown[i].Amount = breakdown[i].Amount.Add(t.Amount)
		breakdown[i].Count++
	}

	sort.SliceStable(breakdown, func(a, b int) bool {
		return breakdown[a].Amount.GreaterThan(breakdown[b].Amount)
	})

	if expenses.Total.IsPositive() {
		for i := range breakdown {
			breakdown[i].Percentage = breakdown[i].Amount.Div(expenses.Total).Mul(hundred).Round(2).InexactFloat64()
		}
	}

	return breakdown
}

// UpdateLastAlertSent records that an alert of the given type went out now.
// Callers invoke it only after the alert email was dispatched successfully.
func (bt *BudgetTracker) UpdateLastAlertSent(ctx context.Context, userId string, alertType AlertType) error {
	if !alertType.IsValid() {
		return appErrors.New(appErrors.ErrInvalidInput, "Invalid alert type '%s', allowed: warning, critical", alertType)
	}

	if err := bt.storage.UpdateLastAlertSent(ctx, userId, alertType, bt.now().UTC()); err != nil {
		return fmt.Errorf("failed to update last %s alert timestamp: %w", alertType, err)
	}
	return nil
}
