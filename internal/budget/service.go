package budget

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/fatali-fataliyev/budget_watch/internal/auth"
	"github.com/fatali-fataliyev/budget_watch/internal/contextutil"
	"github.com/fatali-fataliyev/budget_watch/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MAX_TRANSACTION_DESCRIPTION_LENGTH = 1000
	MAX_CATEGORY_NAME_LENGTH           = 255
	MAX_NOTIFICATION_TITLE_LENGTH      = 255
	DEFAULT_CURRENCY                   = "USD"
	DEFAULT_WARNING_THRESHOLD          = 80
	DEFAULT_CRITICAL_THRESHOLD         = 95
	SESSION_RENEW_WINDOW_DAYS          = 5
)

var (
	MAX_AMOUNT_LIMIT = decimal.RequireFromString("999999999999999999.99")
	currencyRegex    = regexp.MustCompile(`^[A-Z]{3}$`)
)

type Storage interface {
	SaveUser(ctx context.Context, user auth.User) error
	ValidateUser(ctx context.Context, credentials auth.UserCredentialsPure) (auth.User, error)
	IsUserExists(ctx context.Context, username string) (bool, error)
	SaveSession(ctx context.Context, session auth.Session) error
	GetSessionByToken(ctx context.Context, token string) (auth.Session, error)
	UpdateSession(ctx context.Context, token string, expireAt time.Time) error
	LogoutUser(ctx context.Context, userId string, token string) error
	GetUserProfile(ctx context.Context, userId string) (UserProfile, error)
	ListUserProfiles(ctx context.Context) ([]UserProfile, error)
	UpdateBudgetSettings(ctx context.Context, userId string, fields UpdateBudgetRequest) error
	UpdateReportPreferences(ctx context.Context, userId string, prefs ReportPreferences) error
	UpdateLastAlertSent(ctx context.Context, userId string, alertType AlertType, sentAt time.Time) error
	SaveTransaction(ctx context.Context, t Transaction) error
	GetTransactions(ctx context.Context, userId string, filter TransactionFilter) ([]Transaction, error)
	SaveCategory(ctx context.Context, category Category) error
	GetCategories(ctx context.Context, userId string) ([]Category, error)
	SaveNotification(ctx context.Context, notification Notification) error
	GetNotifications(ctx context.Context, userId string) ([]Notification, error)
	GetStorageType() string
}

type BudgetTracker struct {
	storage     Storage
	StorageType string
	location    *time.Location
	now         func() time.Time
}

type Option func(*BudgetTracker)

// WithLocation sets the time zone used for month boundaries and "same day" checks.
func WithLocation(loc *time.Location) Option {
	return func(bt *BudgetTracker) {
		if loc != nil {
			bt.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(bt *BudgetTracker) {
		if now != nil {
			bt.now = now
		}
	}
}

func NewBudgetTracker(s Storage, opts ...Option) *BudgetTracker {
	bt := &BudgetTracker{
		storage:     s,
		StorageType: s.GetStorageType(),
		location:    time.UTC,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(bt)
	}
	return bt
}

func (bt *BudgetTracker) Location() *time.Location {
	return bt.location
}

// --- USERS & SESSIONS --- //

func (bt *BudgetTracker) ValidateUser(ctx context.Context, credentials auth.UserCredentialsPure) (auth.User, error) {
	if err := credentials.Validate(); err != nil {
		return auth.User{}, err
	}
	user, err := bt.storage.ValidateUser(ctx, credentials)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to validate user: %w", err)
	}
	return user, nil
}

func (bt *BudgetTracker) GenerateSession(ctx context.Context, credentials auth.UserCredentialsPure) (string, error) {
	user, err := bt.ValidateUser(ctx, credentials)
	if err != nil {
		return "", err
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate new session: %w", err)
	}

	now := bt.now().UTC()
	session := auth.Session{
		ID:        uuid.New().String(),
		Token:     token,
		CreatedAt: now,
		ExpireAt:  now.Add(auth.SESSION_LIFETIME),
		UserID:    user.ID,
	}

	if err := bt.storage.SaveSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return token, nil
}

func (bt *BudgetTracker) CheckSession(ctx context.Context, token string) (string, error) {
	session, err := bt.storage.GetSessionByToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to get session by token: %w", err)
	}

	now := bt.now().UTC()
	if !session.ExpireAt.After(now) {
		return "", appErrors.New(appErrors.ErrAuth, "Session expired, please login again.")
	}

	daysUntilExpiry := int(session.ExpireAt.Sub(now).Hours() / 24)
	if daysUntilExpiry <= SESSION_RENEW_WINDOW_DAYS {
		if err := bt.storage.UpdateSession(ctx, token, now.AddDate(0, 1, 0)); err != nil {
			return "", fmt.Errorf("failed to update session: %w", err)
		}
	}

	return session.UserID, nil
}

func (bt *BudgetTracker) SaveUser(ctx context.Context, newUser auth.NewUser) (string, error) {
	if err := newUser.ValidateUserFields(); err != nil {
		return "", err
	}

	isUserExists, err := bt.storage.IsUserExists(ctx, strings.ToLower(newUser.UserName))
	if err != nil {
		return "", fmt.Errorf("failed to check username availability: %w", err)
	}
	if isUserExists {
		return "", appErrors.New(appErrors.ErrConflict, "This '%s' username already taken.", newUser.UserName)
	}

	hashedPassword, err := auth.HashPassword(newUser.PasswordPlain)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := auth.User{
		ID:             uuid.New().String(),
		UserName:       strings.ToLower(newUser.UserName),
		FullName:       CapitalizeFullName(newUser.FullName),
		Email:          strings.ToLower(newUser.Email),
		PasswordHashed: hashedPassword,
		CreatedAt:      bt.now().UTC(),
	}

	if err := bt.storage.SaveUser(ctx, user); err != nil {
		return "", fmt.Errorf("failed to registration: %w", err)
	}

	credentials := auth.UserCredentialsPure{
		UserName:      user.UserName,
		PasswordPlain: newUser.PasswordPlain,
	}

	token, err := bt.GenerateSession(ctx, credentials)
	if err != nil {
		return "", fmt.Errorf("registration successfully but failed to generate session: %w | try login", err)
	}
	return token, nil
}

func CapitalizeFullName(name string) string {
	words := strings.Fields(name)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func (bt *BudgetTracker) LogoutUser(ctx context.Context, userId string, token string) error {
	return bt.storage.LogoutUser(ctx, userId, token)
}

func (bt *BudgetTracker) GetUserProfile(ctx context.Context, userId string) (UserProfile, error) {
	profile, err := bt.storage.GetUserProfile(ctx, userId)
	if err != nil {
		return UserProfile{}, fmt.Errorf("failed to get user profile: %w", err)
	}
	return profile, nil
}

func (bt *BudgetTracker) ListUserProfiles(ctx context.Context) ([]UserProfile, error) {
	profiles, err := bt.storage.ListUserProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list user profiles: %w", err)
	}
	return profiles, nil
}

// --- SETTINGS --- //

func (bt *BudgetTracker) UpdateBudgetSettings(ctx context.Context, userId string, fields UpdateBudgetRequest) error {
	if fields.MonthlyAmount.IsNegative() {
		return appErrors.New(appErrors.ErrInvalidInput, "Budget amount cannot be negative.")
	}
	if fields.MonthlyAmount.GreaterThan(MAX_AMOUNT_LIMIT) {
		return appErrors.New(appErrors.ErrInvalidInput, "Budget amount is too large, the limit is: %s", MAX_AMOUNT_LIMIT.String())
	}

	fields.Currency = strings.ToUpper(strings.TrimSpace(fields.Currency))
	if fields.Currency == "" {
		fields.Currency = DEFAULT_CURRENCY
	}
	if !currencyRegex.MatchString(fields.Currency) {
		return appErrors.New(appErrors.ErrInvalidInput, "Invalid currency code '%s', example: USD", fields.Currency)
	}

	if fields.WarningThreshold == 0 && fields.CriticalThreshold == 0 {
		fields.WarningThreshold = DEFAULT_WARNING_THRESHOLD
		fields.CriticalThreshold = DEFAULT_CRITICAL_THRESHOLD
	}
	if err := validateThresholds(fields.WarningThreshold, fields.CriticalThreshold); err != nil {
		return err
	}

	if err := bt.storage.UpdateBudgetSettings(ctx, userId, fields); err != nil {
		return fmt.Errorf("failed to update budget settings: %w", err)
	}
	return nil
}

func validateThresholds(warning, critical float64) error {
	if warning < 0 || warning > 100 || critical < 0 || critical > 100 {
		return appErrors.New(appErrors.ErrInvalidInput, "Alert thresholds must be between 0 and 100.")
	}
	if warning >= critical {
		return appErrors.New(appErrors.ErrInvalidInput, "Warning threshold must be lower than critical threshold.")
	}
	return nil
}

func (bt *BudgetTracker) UpdateReportPreferences(ctx context.Context, userId string, prefs ReportPreferences) error {
	prefs.ReportFormat = strings.ToLower(strings.TrimSpace(prefs.ReportFormat))
	if prefs.ReportFormat == "" {
		prefs.ReportFormat = REPORT_FORMAT_CSV
	}
	if prefs.ReportFormat != REPORT_FORMAT_CSV && prefs.ReportFormat != REPORT_FORMAT_JSON {
		return appErrors.New(appErrors.ErrInvalidInput, "Unsupported report format '%s', allowed: csv, json", prefs.ReportFormat)
	}

	if err := bt.storage.UpdateReportPreferences(ctx, userId, prefs); err != nil {
		return fmt.Errorf("failed to update report preferences: %w", err)
	}
	return nil
}

// --- TRANSACTIONS & CATEGORIES --- //

func (bt *BudgetTracker) SaveTransaction(ctx context.Context, userId string, request TransactionRequest) (Transaction, error) {
	if !request.Amount.IsPositive() {
		return Transaction{}, appErrors.New(appErrors.ErrInvalidInput, "Transaction amount must be greater than zero.")
	}
	if request.Amount.GreaterThan(MAX_AMOUNT_LIMIT) {
		return Transaction{}, appErrors.New(appErrors.ErrInvalidInput, "Maximum allowed amount per transaction is: %s", MAX_AMOUNT_LIMIT.String())
	}
	if !request.Kind.IsValid() {
		return Transaction{}, appErrors.New(appErrors.ErrInvalidInput, "Invalid transaction kind '%s', allowed: income, expense", request.Kind)
	}
	if len(request.Description) > MAX_TRANSACTION_DESCRIPTION_LENGTH {
		return Transaction{}, appErrors.New(appErrors.ErrInvalidInput, "Description so long, maximum allowed length is: %d", MAX_TRANSACTION_DESCRIPTION_LENGTH)
	}

	now := bt.now().UTC()
	occurredAt := request.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	txn := Transaction{
		ID:          uuid.New().String(),
		UserID:      userId,
		Amount:      request.Amount,
		Kind:        request.Kind,
		CategoryID:  request.CategoryID,
		OccurredAt:  occurredAt.UTC(),
		Description: request.Description,
		CreatedAt:   now,
	}

	if err := bt.storage.SaveTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("failed to save transaction to db: %w", err)
	}
	return txn, nil
}

func (bt *BudgetTracker) GetTransactions(ctx context.Context, userId string, filter TransactionFilter) ([]Transaction, error) {
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, appErrors.New(appErrors.ErrInvalidInput, "Invalid transaction kind '%s', allowed: income, expense", filter.Kind)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, appErrors.New(appErrors.ErrInvalidInput, "Start date must be before end date.")
	}

	ts, err := bt.storage.GetTransactions(ctx, userId, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return ts, nil
}

func (bt *BudgetTracker) SaveCategory(ctx context.Context, userId string, request CategoryRequest) (Category, error) {
	request.Name = strings.TrimSpace(request.Name)
	if request.Name == "" {
		return Category{}, appErrors.New(appErrors.ErrInvalidInput, "Category name cannot be empty!")
	}
	if len(request.Name) > MAX_CATEGORY_NAME_LENGTH {
		return Category{}, appErrors.New(appErrors.ErrInvalidInput, "Category name so long, maximum allowed length is: %d", MAX_CATEGORY_NAME_LENGTH)
	}
	if !request.Kind.IsValid() {
		return Category{}, appErrors.New(appErrors.ErrInvalidInput, "Invalid category kind '%s', allowed: income, expense", request.Kind)
	}

	category := Category{
		ID:        uuid.New().String(),
		UserID:    userId,
		Name:      request.Name,
		Kind:      request.Kind,
		CreatedAt: bt.now().UTC(),
	}

	if err := bt.storage.SaveCategory(ctx, category); err != nil {
		return Category{}, err
	}
	return category, nil
}

func (bt *BudgetTracker) GetCategories(ctx context.Context, userId string) ([]Category, error) {
	categories, err := bt.storage.GetCategories(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return categories, nil
}

// --- NOTIFICATIONS --- //

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (bt *BudgetTracker) SaveNotification(ctx context.Context, userId string, title string, message string, severity string) (Notification, error) {
	title = truncateUTF8(title, MAX_NOTIFICATION_TITLE_LENGTH)

	notification := Notification{
		ID:        uuid.New().String(),
		UserID:    userId,
		Title:     title,
		Message:   message,
		Severity:  severity,
		CreatedAt: bt.now().UTC(),
	}

	if err := bt.storage.SaveNotification(ctx, notification); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to save notification for user %s | Error: %v", contextutil.TraceIDFromContext(ctx), userId, err)
		return Notification{}, fmt.Errorf("failed to save notification: %w", err)
	}
	return notification, nil
}

func (bt *BudgetTracker) GetNotifications(ctx context.Context, userId string) ([]Notification, error) {
	notifications, err := bt.storage.GetNotifications(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	return notifications, nil
}
