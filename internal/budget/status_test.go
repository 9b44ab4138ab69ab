package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, amount(want).Equal(got), "amount mismatch: want %s, got %s", want, got.String())
}

func newTrackerWithBudget(budgetAmount string, txns ...Transaction) (*BudgetTracker, *MockStorage) {
	store := newMockStorage()
	store.profiles["john-1234"] = UserProfile{
		ID:    "john-1234",
		Email: "john@example.com",
		Budget: BudgetSettings{
			MonthlyAmount: amount(budgetAmount),
			Currency:      "USD",
			Thresholds:    AlertThresholds{Warning: 80, Critical: 95},
		},
	}
	store.transactions = txns
	return NewBudgetTracker(store, WithClock(fixedClock(testNow))), store
}

func octoberDay(day int) time.Time {
	return time.Date(2026, time.October, day, 12, 0, 0, 0, time.UTC)
}

func TestCheckBudgetStatusWarning(t *testing.T) {
	bt, _ := newTrackerWithBudget("1000",
		expense("t-1", "500", "", octoberDay(2)),
		expense("t-2", "350", "", octoberDay(10)),
		expense("t-old", "999", "", time.Date(2026, time.September, 30, 23, 0, 0, 0, time.UTC)),
		Transaction{ID: "t-in", Amount: amount("5000"), Kind: KindIncome, OccurredAt: octoberDay(1)},
	)

	status, err := bt.CheckBudgetStatus(context.Background(), "john-1234")
	require.NoError(t, err)

	require.True(t, status.BudgetSet)
	requireAmount(t, "1000", status.Budget)
	requireAmount(t, "850", status.Spent)
	requireAmount(t, "150", status.Remaining)
	require.Equal(t, 85.0, status.PercentageUsed)
	require.Equal(t, LevelWarning, status.AlertLevel)
	require.True(t, status.ShouldSendAlert)
	require.Equal(t, AlertWarning, status.AlertType)
	require.Equal(t, 2, status.MonthlyExpenses.Count)
}

func TestCheckBudgetStatusCriticalAfterWarningSentToday(t *testing.T) {
	bt, store := newTrackerWithBudget("1000",
		expense("t-1", "850", "", octoberDay(2)),
		expense("t-2", "110", "", octoberDay(16)),
	)
	warningSent := time.Date(2026, time.October, 16, 8, 0, 0, 0, time.UTC)
	profile := store.profiles["john-1234"]
	profile.Budget.LastWarningSentAt = &warningSent
	store.profiles["john-1234"] = profile

	status, err := bt.CheckBudgetStatus(context.Background(), "john-1234")
	require.NoError(t, err)

	require.Equal(t, 96.0, status.PercentageUsed)
	require.Equal(t, LevelCritical, status.AlertLevel)
	require.True(t, status.ShouldSendAlert)
	require.Equal(t, AlertCritical, status.AlertType)
}

func TestCheckBudgetStatusCriticalAlreadySentToday(t *testing.T) {
	bt, store := newTrackerWithBudget("1000", expense("t-1", "1200", "", octoberDay(3)))
	criticalSent := time.Date(2026, time.October, 16, 0, 30, 0, 0, time.UTC)
	profile := store.profiles["john-1234"]
	profile.Budget.LastCriticalSentAt = &criticalSent
	store.profiles["john-1234"] = profile

	status, err := bt.CheckBudgetStatus(context.Background(), "john-1234")
	require.NoError(t, err)

	require.Equal(t, LevelCritical, status.AlertLevel)
	require.False(t, status.ShouldSendAlert)
	require.Empty(t, status.AlertType)
	requireAmount(t, "0", status.Remaining)
	require.Equal(t, 120.0, status.PercentageUsed)
}

func TestCheckBudgetStatusUnsetBudget(t *testing.T) {
	bt, store := newTrackerWithBudget("0", expense("t-1", "100", "", octoberDay(2)))

	status, err := bt.CheckBudgetStatus(context.Background(), "john-1234")
	require.NoError(t, err)

	require.False(t, status.BudgetSet)
	require.False(t, status.ShouldSendAlert)
	require.Equal(t, LevelSafe, status.AlertLevel)
	require.Equal(t, 0, store.getTransactionsCalls)
}

func TestCheckBudgetStatusUnknownUser(t *testing.T) {
	bt, _ := newTrackerWithBudget("1000")

	_, err := bt.CheckBudgetStatus(context.Background(), "nobody")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrorResponse{Code: appErrors.ErrNotFound}))
}

func TestCheckBudgetStatusStorageFailure(t *testing.T) {
	bt, store := newTrackerWithBudget("1000")
	store.transactionsErr = errors.New("connection refused")

	_, err := bt.CheckBudgetStatus(context.Background(), "john-1234")
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
}

func TestEvaluateBudget(t *testing.T) {
	thresholds := AlertThresholds{Warning: 80, Critical: 95}
	lateNight := time.Date(2026, time.October, 16, 23, 59, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, time.October, 16, 0, 0, 10, 0, time.UTC)
	plusFour := time.FixedZone("UTC+4", 4*60*60)
	eveningUTC := time.Date(2026, time.October, 16, 21, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		budget         string
		spent          string
		lastCritical   *time.Time
		now            time.Time
		loc            *time.Location
		wantLevel      AlertLevel
		wantSend       bool
		wantPercentage float64
	}{
		{
			name:           "safe below warning",
			budget:         "3",
			spent:          "1",
			now:            testNow,
			loc:            time.UTC,
			wantLevel:      LevelSafe,
			wantPercentage: 33.33,
		},
		{
			name:           "exactly on warning threshold",
			budget:         "1000",
			spent:          "800",
			now:            testNow,
			loc:            time.UTC,
			wantLevel:      LevelWarning,
			wantSend:       true,
			wantPercentage: 80,
		},
		{
			name:           "rounds up onto warning threshold",
			budget:         "3000",
			spent:          "2399.99",
			now:            testNow,
			loc:            time.UTC,
			wantLevel:      LevelWarning,
			wantSend:       true,
			wantPercentage: 80,
		},
		{
			name:           "rounds up onto critical threshold",
			budget:         "3000",
			spent:          "2849.99",
			now:            testNow,
			loc:            time.UTC,
			wantLevel:      LevelCritical,
			wantSend:       true,
			wantPercentage: 95,
		},
		{
			name:           "next calendar day sends again",
			budget:         "1000",
			spent:          "990",
			lastCritical:   &lateNight,
			now:            time.Date(2026, time.October, 17, 0, 1, 0, 0, time.UTC),
			loc:            time.UTC,
			wantLevel:      LevelCritical,
			wantSend:       true,
			wantPercentage: 99,
		},
		{
			name:           "same calendar day after 23 hours stays silent",
			budget:         "1000",
			spent:          "990",
			lastCritical:   &earlyMorning,
			now:            time.Date(2026, time.October, 16, 23, 59, 30, 0, time.UTC),
			loc:            time.UTC,
			wantLevel:      LevelCritical,
			wantSend:       false,
			wantPercentage: 99,
		},
		{
			name:           "same day is judged in the configured zone",
			budget:         "1000",
			spent:          "990",
			lastCritical:   &eveningUTC,
			now:            time.Date(2026, time.October, 17, 8, 0, 0, 0, time.UTC),
			loc:            plusFour,
			wantLevel:      LevelCritical,
			wantSend:       false,
			wantPercentage: 99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := BudgetSettings{
				MonthlyAmount:      amount(tt.budget),
				Thresholds:         thresholds,
				LastCriticalSentAt: tt.lastCritical,
			}
			expenses := MonthlyExpenses{Total: amount(tt.spent)}

			status := EvaluateBudget(settings, expenses, tt.now, tt.loc)

			require.Equal(t, tt.wantLevel, status.AlertLevel)
			require.Equal(t, tt.wantSend, status.ShouldSendAlert)
			require.Equal(t, tt.wantPercentage, status.PercentageUsed)
			if tt.wantSend {
				require.Equal(t, AlertType(tt.wantLevel), status.AlertType)
			} else {
				require.Empty(t, status.AlertType)
			}
		})
	}
}

func TestComputeMonthlyExpensesExplicitMonth(t *testing.T) {
	september := time.Date(2026, time.September, 15, 9, 0, 0, 0, time.UTC)
	bt, store := newTrackerWithBudget("1000",
		expense("t-sep", "40", "", september),
		expense("t-oct", "60", "", octoberDay(1)),
	)

	expenses, err := bt.ComputeMonthlyExpenses(context.Background(), "john-1234", 2026, time.September)
	require.NoError(t, err)

	requireAmount(t, "40", expenses.Total)
	require.Equal(t, 1, expenses.Count)
	require.Equal(t, "t-sep", expenses.Transactions[0].ID)
	require.Equal(t, KindExpense, store.lastFilter.Kind)
	require.Equal(t, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), store.lastFilter.From)
	require.Equal(t, "September 2026", expenses.Period.Label())
}

func TestComputeMonthlyExpensesInvalidMonth(t *testing.T) {
	bt, _ := newTrackerWithBudget("1000")

	_, err := bt.ComputeMonthlyExpenses(context.Background(), "john-1234", 2026, 13)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidInput, appErrors.CodeOf(err))
}

func TestGetBudgetOverview(t *testing.T) {
	bt, store := newTrackerWithBudget("1000",
		expense("t-1", "100", "c-food", octoberDay(1)),
		expense("t-2", "50", "c-food", octoberDay(2)),
		expense("t-3", "200", "c-rent", octoberDay(3)),
		expense("t-4", "30", "", octoberDay(4)),
		expense("t-5", "20", "c-deleted", octoberDay(5)),
	)
	store.categories = []Category{
		{ID: "c-food", Name: "Food", Kind: KindExpense},
		{ID: "c-rent", Name: "Rent", Kind: KindExpense},
	}

	overview, err := bt.GetBudgetOverview(context.Background(), "john-1234")
	require.NoError(t, err)

	require.Equal(t, 40.0, overview.PercentageUsed)
	require.Len(t, overview.Categories, 3)

	require.Equal(t, "Rent", overview.Categories[0].Name)
	requireAmount(t, "200", overview.Categories[0].Amount)
	require.Equal(t, 50.0, overview.Categories[0].Percentage)
	require.Equal(t, 1, overview.Categories[0].Count)

	require.Equal(t, "Food", overview.Categories[1].Name)
	requireAmount(t, "150", overview.Categories[1].Amount)
	require.Equal(t, 37.5, overview.Categories[1].Percentage)
	require.Equal(t, 2, overview.Categories[1].Count)

	require.Equal(t, UNCATEGORIZED, overview.Categories[2].Name)
	requireAmount(t, "50", overview.Categories[2].Amount)
	require.Equal(t, 12.5, overview.Categories[2].Percentage)
	require.Equal(t, 2, overview.Categories[2].Count)
}

func TestGetBudgetOverviewUnsetBudget(t *testing.T) {
	bt, _ := newTrackerWithBudget("0", expense("t-1", "100", "", octoberDay(1)))

	overview, err := bt.GetBudgetOverview(context.Background(), "john-1234")
	require.NoError(t, err)
	require.False(t, overview.BudgetSet)
	require.Empty(t, overview.Categories)
}

func TestBreakdownByCategoryKeepsFirstSeenOrderOnTies(t *testing.T) {
	expenses := MonthlyExpenses{
		Total: amount("200"),
		Transactions: []Transaction{
			expense("t-1", "100", "c-b", octoberDay(1)),
			expense("t-2", "100", "c-a", octoberDay(2)),
		},
	}

	breakdown := BreakdownByCategory(expenses, map[string]string{"c-a": "Alpha", "c-b": "Beta"})

	require.Len(t, breakdown, 2)
	require.Equal(t, "Beta", breakdown[0].Name)
	require.Equal(t, "Alpha", breakdown[1].Name)
}

func TestUpdateLastAlertSent(t *testing.T) {
	bt, store := newTrackerWithBudget("1000")
	ctx := context.Background()

	err := bt.UpdateLastAlertSent(ctx, "john-1234", AlertType("info"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidInput, appErrors.CodeOf(err))
	require.Empty(t, store.alertUpdates)

	require.NoError(t, bt.UpdateLastAlertSent(ctx, "john-1234", AlertCritical))
	require.Len(t, store.alertUpdates, 1)
	require.Equal(t, AlertCritical, store.alertUpdates[0].alertType)
	require.Equal(t, testNow, store.alertUpdates[0].sentAt)
}
