package budget

import (
	"context"
	"time"

	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/fatali-fataliyev/budget_watch/internal/auth"
	"github.com/shopspring/decimal"
)

// Mocks
type MockStorage struct {
	profiles      map[string]UserProfile
	transactions  []Transaction
	categories    []Category
	sessions      map[string]auth.Session
	notifications []Notification

	transactionsErr      error
	getTransactionsCalls int
	updatedSessions      int
	lastFilter           TransactionFilter
	alertUpdates         []alertUpdate
	budgetUpdates        []UpdateBudgetRequest
}

type alertUpdate struct {
	userId    string
	alertType AlertType
	sentAt    time.Time
}

func newMockStorage() *MockStorage {
	return &MockStorage{
		profiles: map[string]UserProfile{},
		sessions: map[string]auth.Session{},
	}
}

func (m *MockStorage) SaveUser(ctx context.Context, user auth.User) error {
	m.profiles[user.ID] = UserProfile{ID: user.ID, UserName: user.UserName, Email: user.Email}
	return nil
}

func (m *MockStorage) ValidateUser(ctx context.Context, creds auth.UserCredentialsPure) (auth.User, error) {
	if creds.UserName == "john" {
		return auth.User{ID: "john-1234", UserName: "john"}, nil
	}
	return auth.User{}, appErrors.New(appErrors.ErrAuth, "Username or password is wrong.")
}

func (m *MockStorage) IsUserExists(ctx context.Context, username string) (bool, error) {
	return username == "taken", nil
}

func (m *MockStorage) SaveSession(ctx context.Context, session auth.Session) error {
	m.sessions[session.Token] = session
	return nil
}

func (m *MockStorage) GetSessionByToken(ctx context.Context, token string) (auth.Session, error) {
	session, ok := m.sessions[token]
	if !ok {
		return auth.Session{}, appErrors.New(appErrors.ErrAuth, "Session does not exist, please login.")
	}
	return session, nil
}

func (m *MockStorage) UpdateSession(ctx context.Context, token string, expireAt time.Time) error {
	m.updatedSessions++
	return nil
}

func (m *MockStorage) LogoutUser(ctx context.Context, userId string, token string) error {
	delete(m.sessions, token)
	return nil
}

func (m *MockStorage) GetUserProfile(ctx context.Context, userId string) (UserProfile, error) {
	profile, ok := m.profiles[userId]
	if !ok {
		return UserProfile{}, appErrors.New(appErrors.ErrNotFound, "User does not exist.")
	}
	return profile, nil
}

func (m *MockStorage) ListUserProfiles(ctx context.Context) ([]UserProfile, error) {
	var profiles []UserProfile
	for _, p := range m.profiles {
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (m *MockStorage) UpdateBudgetSettings(ctx context.Context, userId string, fields UpdateBudgetRequest) error {
	m.budgetUpdates = append(m.budgetUpdates, fields)
	return nil
}

func (m *MockStorage) UpdateReportPreferences(ctx context.Context, userId string, prefs ReportPreferences) error {
	return nil
}

func (m *MockStorage) UpdateLastAlertSent(ctx context.Context, userId string, alertType AlertType, sentAt time.Time) error {
	m.alertUpdates = append(m.alertUpdates, alertUpdate{userId: userId, alertType: alertType, sentAt: sentAt})
	return nil
}

func (m *MockStorage) SaveTransaction(ctx context.Context, t Transaction) error {
	m.transactions = append(m.transactions, t)
	return nil
}

// GetTransactions ignores the filter on purpose so tests see the tracker's own filtering.
func (m *MockStorage) GetTransactions(ctx context.Context, userId string, filter TransactionFilter) ([]Transaction, error) {
	m.getTransactionsCalls++
	m.lastFilter = filter
	if m.transactionsErr != nil {
		return nil, m.transactionsErr
	}
	return m.transactions, nil
}

func (m *MockStorage) SaveCategory(ctx context.Context, category Category) error {
	m.categories = append(m.categories, category)
	return nil
}

func (m *MockStorage) GetCategories(ctx context.Context, userId string) ([]Category, error) {
	return m.categories, nil
}

func (m *MockStorage) SaveNotification(ctx context.Context, notification Notification) error {
	m.notifications = append(m.notifications, notification)
	return nil
}

func (m *MockStorage) GetNotifications(ctx context.Context, userId string) ([]Notification, error) {
	return m.notifications, nil
}

func (m *MockStorage) GetStorageType() string {
	return "mock"
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func expense(id string, value string, categoryId string, at time.Time) Transaction {
	return Transaction{
		ID:         id,
		UserID:     "john-1234",
		Amount:     amount(value),
		Kind:       KindExpense,
		CategoryID: categoryId,
		OccurredAt: at,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
