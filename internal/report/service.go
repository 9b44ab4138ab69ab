package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/shopspring/decimal"
)

type Storage interface {
	GetTransactions(ctx context.Context, userId string, filter budget.TransactionFilter) ([]budget.Transaction, error)
	GetCategories(ctx context.Context, userId string) ([]budget.Category, error)
}

type Reporter struct {
	storage  Storage
	location *time.Location
	now      func() time.Time
}

func NewReporter(s Storage, loc *time.Location, now func() time.Time) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Reporter{
		storage:  s,
		location: loc,
		now:      now,
	}
}

// ReportPeriod resolves the month a report covers. A zero target means the
// previous calendar month, since reports go out after a month has closed.
func (r *Reporter) ReportPeriod(target time.Time) budget.Period {
	if target.IsZero() {
		return budget.PreviousMonthPeriod(r.now(), r.location)
	}
	target = target.In(r.location)
	return budget.MonthPeriod(target.Year(), target.Month(), r.location)
}

func (r *Reporter) GetUserReportData(ctx context.Context, userId string, target time.Time) (ReportData, error) {
	period := r.ReportPeriod(target)

	filter := budget.TransactionFilter{
		From: period.Start,
		To:   period.End,
	}
	ts, err := r.storage.GetTransactions(ctx, userId, filter)
	if err != nil {
		return ReportData{}, fmt.Errorf("failed to get transactions for report: %w", err)
	}

	inPeriod := make([]budget.Transaction, 0, len(ts))
	for _, t := range ts {
		if period.Contains(t.OccurredAt) {
			inPeriod = append(inPeriod, t)
		}
	}

	if len(inPeriod) == 0 {
		return ReportData{
			HasData: false,
			UserID:  userId,
			Month:   period.Label(),
			Period:  period,
		}, nil
	}

	categories, err := r.storage.GetCategories(ctx, userId)
	if err != nil {
		return ReportData{}, fmt.Errorf("failed to get categories for report: %w", err)
	}

	data := Aggregate(inPeriod, budget.CategoryNames(categories))
	data.UserID = userId
	data.Month = period.Label()
	data.Period = period
	return data, nil
}

// Aggregate totals the transactions of one period. Expense categories that do
// not resolve to a name are reported as "Other".
func Aggregate(ts []budget.Transaction, names map[string]string) ReportData {
	data := ReportData{
		HasData:           len(ts) > 0,
		TotalIncome:       decimal.Zero,
		TotalExpenses:     decimal.Zero,
		TransactionCount:  len(ts),
		TopCategories:     []CategoryAmount{},
		ExpenseCategories: []CategoryAmount{},
	}

	index := make(map[string]int)
	for _, t := range ts {
		switch t.Kind {
		case budget.KindIncome:
			data.TotalIncome = data.TotalIncome.Add(t.Amount)
		case budget.KindExpense:
			data.TotalExpenses = data.TotalExpenses.Add(t.Amount)

			name := names[t.CategoryID]
			if name == "" {
				name = OTHER_CATEGORY
			}
			i, ok := index[name]
			if !ok {
				i = len(data.ExpenseCategories)
				index[name] = i
				data.ExpenseCategories = append(data.ExpenseCategories, CategoryAmount{Name: name, Amount: decimal.Zero})
			}
			data.ExpenseCategories[i].Amount = data.ExpenseCategories[i].Amount.Add(t.Amount)
		}
	}

	data.NetSavings = data.TotalIncome.Sub(data.TotalExpenses)
	if data.TotalIncome.IsPositive() {
		data.SavingsRate = data.NetSavings.Div(data.TotalIncome).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	sort.SliceStable(data.ExpenseCategories, func(a, b int) bool {
		return data.ExpenseCategories[a].Amount.GreaterThan(data.ExpenseCategories[b].Amount)
	})

	top := len(data.ExpenseCategories)
	if top > TOP_CATEGORIES_LIMIT {
		top = TOP_CATEGORIES_LIMIT
	}
	data.TopCategories = append(data.TopCategories, data.ExpenseCategories[:top]...)

	return data
}
