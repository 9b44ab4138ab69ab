package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/fatali-fataliyev/budget_watch/internal/auth"
	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/shopspring/decimal"
)

type memUser struct {
	user    auth.User
	profile budget.UserProfile
}

// InMemoryStorage keeps everything in process memory. It is safe for concurrent use
// and loses its data on restart.
type InMemoryStorage struct {
	mu            sync.RWMutex
	users         map[string]*memUser
	sessions      map[string]auth.Session
	categories    []budget.Category
	transactions  []budget.Transaction
	notifications []budget.Notification
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		users:    map[string]*memUser{},
		sessions: map[string]auth.Session{},
	}
}

func (inMem *InMemoryStorage) GetStorageType() string {
	return DRIVER_INMEMORY
}

func (inMem *InMemoryStorage) findByUserName(username string) *memUser {
	for _, u := range inMem.users {
		if u.user.UserName == username {
			return u
		}
	}
	return nil
}

func (inMem *InMemoryStorage) SaveUser(ctx context.Context, newUser auth.User) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	if inMem.findByUserName(newUser.UserName) != nil {
		return appErrors.New(appErrors.ErrConflict, "This '%s' username already taken.", newUser.UserName)
	}

	inMem.users[newUser.ID] = &memUser{
		user: newUser,
		profile: budget.UserProfile{
			ID:       newUser.ID,
			UserName: newUser.UserName,
			FullName: newUser.FullName,
			Email:    newUser.Email,
			Budget: budget.BudgetSettings{
				MonthlyAmount: decimal.Zero,
				Currency:      budget.DEFAULT_CURRENCY,
				Thresholds: budget.AlertThresholds{
					Warning:  budget.DEFAULT_WARNING_THRESHOLD,
					Critical: budget.DEFAULT_CRITICAL_THRESHOLD,
				},
			},
			Preferences: budget.ReportPreferences{
				MonthlyReports: true,
				ReportFormat:   budget.REPORT_FORMAT_CSV,
			},
		},
	}
	return nil
}

func (inMem *InMemoryStorage) IsUserExists(ctx context.Context, username string) (bool, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()
	return inMem.findByUserName(username) != nil, nil
}

func (inMem *InMemoryStorage) ValidateUser(ctx context.Context, credentials auth.UserCredentialsPure) (auth.User, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	u := inMem.findByUserName(strings.ToLower(credentials.UserName))
	if u == nil || !auth.ComparePasswords(u.user.PasswordHashed, credentials.PasswordPlain) {
		return auth.User{}, appErrors.New(appErrors.ErrAuth, "Username or password is wrong.")
	}
	return u.user, nil
}

func (inMem *InMemoryStorage) GetUserProfile(ctx context.Context, userId string) (budget.UserProfile, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	u, ok := inMem.users[userId]
	if !ok {
		return budget.UserProfile{}, appErrors.New(appErrors.ErrNotFound, "User not found.")
	}
	return copyProfile(u.profile), nil
}

func (inMem *InMemoryStorage) ListUserProfiles(ctx context.Context) ([]budget.UserProfile, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	users := make([]*memUser, 0, len(inMem.users))
	for _, u := range inMem.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].user.CreatedAt.Equal(users[j].user.CreatedAt) {
			return users[i].user.ID < users[j].user.ID
		}
		return users[i].user.CreatedAt.Before(users[j].user.CreatedAt)
	})

	profiles := make([]budget.UserProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, copyProfile(u.profile))
	}
	return profiles, nil
}

// copyProfile detaches the alert timestamps so callers cannot mutate stored state.
func copyProfile(p budget.UserProfile) budget.UserProfile {
	if p.Budget.LastWarningSentAt != nil {
		t := *p.Budget.LastWarningSentAt
		p.Budget.LastWarningSentAt = &t
	}
	if p.Budget.LastCriticalSentAt != nil {
		t := *p.Budget.LastCriticalSentAt
		p.Budget.LastCriticalSentAt = &t
	}
	return p
}

func (inMem *InMemoryStorage) UpdateBudgetSettings(ctx context.Context, userId string, fields budget.UpdateBudgetRequest) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	u, ok := inMem.users[userId]
	if !ok {
		return appErrors.New(appErrors.ErrNotFound, "User not found.")
	}
	u.profile.Budget.MonthlyAmount = fields.MonthlyAmount
	u.profile.Budget.Currency = fields.Currency
	u.profile.Budget.Thresholds = budget.AlertThresholds{
		Warning:  fields.WarningThreshold,
		Critical: fields.CriticalThreshold,
	}
	return nil
}

func (inMem *InMemoryStorage) UpdateReportPreferences(ctx context.Context, userId string, prefs budget.ReportPreferences) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	u, ok := inMem.users[userId]
	if !ok {
		return appErrors.New(appErrors.ErrNotFound, "User not found.")
	}
	u.profile.Preferences = prefs
	return nil
}

func (inMem *InMemoryStorage) UpdateLastAlertSent(ctx context.Context, userId string, alertType budget.AlertType, sentAt time.Time) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	u, ok := inMem.users[userId]
	if !ok {
		return appErrors.New(appErrors.ErrNotFound, "User not found.")
	}

	t := sentAt.UTC()
	switch alertType {
	case budget.AlertWarning:
		u.profile.Budget.LastWarningSentAt = &t
	case budget.AlertCritical:
		u.profile.Budget.LastCriticalSentAt = &t
	default:
		return appErrors.New(appErrors.ErrInvalidInput, "Invalid alert type '%s'", alertType)
	}
	return nil
}

func (inMem *InMemoryStorage) SaveSession(ctx context.Context, session auth.Session) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	inMem.sessions[session.Token] = session
	return nil
}

func (inMem *InMemoryStorage) GetSessionByToken(ctx context.Context, token string) (auth.Session, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	session, ok := inMem.sessions[strings.TrimSpace(token)]
	if !ok {
		return auth.Session{}, appErrors.New(appErrors.ErrAuth, "Session does not exist, please login.")
	}
	return session, nil
}

func (inMem *InMemoryStorage) UpdateSession(ctx context.Context, token string, expireAt time.Time) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	session, ok := inMem.sessions[token]
	if !ok {
		return appErrors.New(appErrors.ErrAuth, "Session does not exist, please login.")
	}
	session.ExpireAt = expireAt.UTC()
	inMem.sessions[token] = session
	return nil
}

func (inMem *InMemoryStorage) LogoutUser(ctx context.Context, userId string, token string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	session, ok := inMem.sessions[token]
	if !ok || session.UserID != userId {
		return appErrors.New(appErrors.ErrAuth, "Session does not exist, please login.")
	}
	delete(inMem.sessions, token)
	return nil
}

func (inMem *InMemoryStorage) SaveCategory(ctx context.Context, category budget.Category) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, c := range inMem.categories {
		if c.UserID == category.UserID && c.Kind == category.Kind && c.Name == category.Name {
			return appErrors.New(appErrors.ErrConflict, "The category already exists.")
		}
	}
	inMem.categories = append(inMem.categories, category)
	return nil
}

func (inMem *InMemoryStorage) GetCategories(ctx context.Context, userId string) ([]budget.Category, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	result := []budget.Category{}
	for _, c := range inMem.categories {
		if c.UserID == userId {
			result = append(result, c)
		}
	}
	return result, nil
}

func (inMem *InMemoryStorage) SaveTransaction(ctx context.Context, t budget.Transaction) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	if t.CategoryID != "" {
		found := false
		for _, c := range inMem.categories {
			if c.ID == t.CategoryID && c.UserID == t.UserID {
				found = true
				break
			}
		}
		if !found {
			return appErrors.New(appErrors.ErrInvalidInput, "The category does not exist, please create the category")
		}
	}

	inMem.transactions = append(inMem.transactions, t)
	return nil
}

func (inMem *InMemoryStorage) GetTransactions(ctx context.Context, userId string, filter budget.TransactionFilter) ([]budget.Transaction, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	result := []budget.Transaction{}
	for _, t := range inMem.transactions {
		if t.UserID != userId {
			continue
		}
		if filter.Kind != "" && t.Kind != filter.Kind {
			continue
		}
		if !filter.From.IsZero() && t.OccurredAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && t.OccurredAt.After(filter.To) {
			continue
		}
		result = append(result, t)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})
	return result, nil
}

func (inMem *InMemoryStorage) SaveNotification(ctx context.Context, notification budget.Notification) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	inMem.notifications = append(inMem.notifications, notification)
	return nil
}

func (inMem *InMemoryStorage) GetNotifications(ctx context.Context, userId string) ([]budget.Notification, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	result := []budget.Notification{}
	for i := len(inMem.notifications) - 1; i >= 0; i-- {
		if inMem.notifications[i].UserID == userId {
			result = append(result, inMem.notifications[i])
		}
	}
	return result, nil
}
