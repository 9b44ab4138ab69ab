package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/fatali-fataliyev/budget_watch/internal/auth"
	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/fatali-fataliyev/budget_watch/internal/contextutil"
	"github.com/fatali-fataliyev/budget_watch/logging"
	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const userProfileColumns = `id, username, fullname, email, budget_amount, budget_currency, warning_threshold, critical_threshold,
	last_warning_sent_at, last_critical_sent_at, monthly_reports, report_format`

// SQLStorage serves both MySQL and SQLite; every query sticks to the syntax the two share.
type SQLStorage struct {
	db     *sql.DB
	driver string
}

func NewSQLStorage(db *sql.DB, driver string) *SQLStorage {
	return &SQLStorage{db: db, driver: driver}
}

func (s *SQLStorage) GetStorageType() string {
	return s.driver
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func isDuplicateError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}

// --- USERS --- //

func (s *SQLStorage) SaveUser(ctx context.Context, user auth.User) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := `INSERT INTO users (id, username, fullname, hashed_password, email, budget_amount, budget_currency,
		warning_threshold, critical_threshold, monthly_reports, report_format, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.UserName, user.FullName, user.PasswordHashed, user.Email,
		"0", budget.DEFAULT_CURRENCY, float64(budget.DEFAULT_WARNING_THRESHOLD), float64(budget.DEFAULT_CRITICAL_THRESHOLD),
		true, budget.REPORT_FORMAT_CSV, user.CreatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateError(err) {
			return appErrors.New(appErrors.ErrConflict, "This '%s' username already taken.", user.UserName)
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to save user in Storage.SaveUser() function | Error: %v", traceID, err)
		return appErrors.New(appErrors.ErrInternal, "Registration failed, try again later.")
	}
	return nil
}

func (s *SQLStorage) IsUserExists(ctx context.Context, username string) (bool, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?;", username).Scan(&count)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to check user existence in Storage.IsUserExists() function | Error: %v", traceID, err)
		return false, appErrors.New(appErrors.ErrInternal, "Failed to check username, try again later.")
	}
	return count > 0, nil
}

func (s *SQLStorage) ValidateUser(ctx context.Context, credentials auth.UserCredentialsPure) (auth.User, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT id, username, fullname, hashed_password, email, created_at FROM users WHERE username = ?;"
	var user auth.User
	err := s.db.QueryRowContext(ctx, query, strings.ToLower(credentials.UserName)).Scan(
		&user.ID, &user.UserName, &user.FullName, &user.PasswordHashed, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, appErrors.New(appErrors.ErrAuth, "Username or password is wrong.")
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to get user in Storage.ValidateUser() function | Error: %v", traceID, err)
		return auth.User{}, appErrors.New(appErrors.ErrInternal, "Failed to login, try again later.")
	}

	if !auth.ComparePasswords(user.PasswordHashed, credentials.PasswordPlain) {
		return auth.User{}, appErrors.New(appErrors.ErrAuth, "Username or password is wrong.")
	}
	return user, nil
}

func (s *SQLStorage) GetUserProfile(ctx context.Context, userId string) (budget.UserProfile, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT " + userProfileColumns + " FROM users WHERE id = ?;"
	profile, err := scanUserProfile(s.db.QueryRowContext(ctx, query, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return budget.UserProfile{}, appErrors.New(appErrors.ErrNotFound, "User not found.")
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to get user profile in Storage.GetUserProfile() function | Error: %v", traceID, err)
		return budget.UserProfile{}, appErrors.New(appErrors.ErrInternal, "Failed to get user, try again later.")
	}
	return profile, nil
}

func (s *SQLStorage) ListUserProfiles(ctx context.Context) ([]budget.UserProfile, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT " + userProfileColumns + " FROM users ORDER BY created_at ASC, id ASC;"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to list users in Storage.ListUserProfiles() function | Error: %v", traceID, err)
		return nil, appErrors.New(appErrors.ErrInternal, "Failed to get users, try again later.")
	}
	defer rows.Close()

	profiles := []budget.UserProfile{}
	for rows.Next() {
		profile, err := scanUserProfile(rows)
		if err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to scan row in Storage.ListUserProfiles() function | Error: %v", traceID, err)
			return nil, appErrors.New(appErrors.ErrInternal, "Failed to get users, try again later.")
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to iterate rows in Storage.ListUserProfiles() function | Error: %v", traceID, err)
		return nil, appErrors.New(appErrors.ErrInternal, "Failed to get users, try again later.")
	}
	return profiles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserProfile(row rowScanner) (budget.UserProfile, error) {
	var u dbUserProfile
	err := row.Scan(
		&u.ID, &u.UserName, &u.FullName, &u.Email,
		&u.BudgetAmount, &u.BudgetCurrency, &u.WarningThreshold, &u.CriticalThreshold,
		&u.LastWarningSentAt, &u.LastCriticalSentAt, &u.MonthlyReports, &u.ReportFormat,
	)
	if err != nil {
		return budget.UserProfile{}, err
	}
	return u.toProfile(), nil
}

func (s *SQLStorage) UpdateBudgetSettings(ctx context.Context, userId string, fields budget.UpdateBudgetRequest) error {
	query := `UPDATE users SET budget_amount = ?, budget_currency = ?, warning_threshold = ?, critical_threshold = ? WHERE id = ?;`
	return s.updateUser(ctx, "UpdateBudgetSettings", query,
		fields.MonthlyAmount.StringFixed(2), fields.Currency, fields.WarningThreshold, fields.CriticalThreshold, userId)
}

func (s *SQLStorage) UpdateReportPreferences(ctx context.Context, userId string, prefs budget.ReportPreferences) error {
	query := `UPDATE users SET monthly_reports = ?, report_format = ? WHERE id = ?;`
	return s.updateUser(ctx, "UpdateReportPreferences", query, prefs.MonthlyReports, prefs.ReportFormat, userId)
}

func (s *SQLStorage) UpdateLastAlertSent(ctx context.Context, userId string, alertType budget.AlertType, sentAt time.Time) error {
	var query string
	switch alertType {
	case budget.AlertWarning:
		query = "UPDATE users SET last_warning_sent_at = ? WHERE id = ?;"
	case budget.AlertCritical:
		query = "UPDATE users SET last_critical_sent_at = ? WHERE id = ?;"
	default:
		return appErrors.New(appErrors.ErrInvalidInput, "Invalid alert type '%s'", alertType)
	}
	return s.updateUser(ctx, "UpdateLastAlertSent", query, sentAt.UTC(), userId)
}

func (s *SQLStorage) updateUser(ctx context.Context, caller string, query string, args ...any) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to update user in Storage.%s() function | Error: %v", traceID, caller, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to update user, try again later.")
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to check affected rows in Storage.%s() function | Error: %v", traceID, caller, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to update user, try again later.")
	}
	if rowsAffected == 0 {
		return appErrors.New(appErrors.ErrNotFound, "User not found.")
	}
	return nil
}

// --- SESSIONS --- //

func (s *SQLStorage) SaveSession(ctx context.Context, session auth.Session) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "INSERT INTO sessions (id, token, created_at, expire_at, user_id) VALUES (?, ?, ?, ?, ?);"
	_, err := s.db.ExecContext(ctx, query, session.ID, session.Token, session.CreatedAt.UTC(), session.ExpireAt.UTC(), session.UserID)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to save session in Storage.SaveSession() function | Error: %v", traceID, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to create session, try again later.")
	}
	return nil
}

func (s *SQLStorage) GetSessionByToken(ctx context.Context, token string) (auth.Session, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT id, token, created_at, expire_at, user_id FROM sessions WHERE token = ?;"
	var session auth.Session
	err := s.db.QueryRowContext(ctx, query, strings.TrimSpace(token)).Scan(
		&session.ID, &session.Token, &session.CreatedAt, &session.ExpireAt, &session.UserID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Session{}, appErrors.New(appErrors.ErrAuth, "Session does not exist, please login.")
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to get session in Storage.GetSessionByToken() function | Error: %v", traceID, err)
		return auth.Session{}, appErrors.New(appErrors.ErrInternal, "Failed to check session, please try again later.")
	}

	session.CreatedAt = session.CreatedAt.UTC()
	session.ExpireAt = session.ExpireAt.UTC()
	return session, nil
}

func (s *SQLStorage) UpdateSession(ctx context.Context, token string, expireAt time.Time) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	res, err := s.db.ExecContext(ctx, "UPDATE sessions SET expire_at = ? WHERE token = ?;", expireAt.UTC(), token)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to update session in Storage.UpdateSession() function | Error: %v", traceID, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to check session, please try again later.")
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to check affected rows in Storage.UpdateSession() function | Error: %v", traceID, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to check session, please try again later.")
	}
	if rowsAffected == 0 {
		return appErrors.New(appErrors.ErrAuth, "Session does not exist, please login.")
	}
	return nil
}

func (s *SQLStorage) LogoutUser(ctx context.Context, userId string, token string) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ? AND token = ?;", userId, token)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to delete session in Storage.LogoutUser() function | Error: %v", traceID, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to logout, try again later.")
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to check affected rows in Storage.LogoutUser() function | Error: %v", traceID, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to logout, try again later.")
	}
	if rowsAffected == 0 {
		return appErrors.New(appErrors.ErrAuth, "Session does not exist, please login.")
	}
	return nil
}

// --- CATEGORIES --- //

func (s *SQLStorage) SaveCategory(ctx context.Context, category budget.Category) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "INSERT INTO categories (id, user_id, name, kind, created_at) VALUES (?, ?, ?, ?, ?);"
	_, err := s.db.ExecContext(ctx, query, category.ID, category.UserID, category.Name, string(category.Kind), category.CreatedAt.UTC())
	if err != nil {
		if isDuplicateError(err) {
			return appErrors.New(appErrors.ErrConflict, "The category already exists.")
		}
		logging.Logger.Errorf("[TraceID=%s] | failed to save category in Storage.SaveCategory() function | Error: %v", traceID, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to save the category, try again later.")
	}
	return nil
}

func (s *SQLStorage) GetCategories(ctx context.Context, userId string) ([]budget.Category, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT id, user_id, name, kind, created_at FROM categories WHERE user_id = ? ORDER BY created_at ASC, name ASC;"
	rows, err := s.db.QueryContext(ctx, query, userId)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get categories in Storage.GetCategories() function | Error: %v", traceID, err)
		return nil, appErrors.New(appErrors.ErrInternal, "Failed to get categories, try again later.")
	}
	defer rows.Close()

	categories := []budget.Category{}
	for rows.Next() {
		var c budget.Category
		var kind string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &kind, &c.CreatedAt); err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to scan row in Storage.GetCategories() function | Error: %v", traceID, err)
			return nil, appErrors.New(appErrors.ErrInternal, "Failed to get categories, try again later.")
		}
		c.Kind = budget.TransactionKind(kind)
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to iterate rows in Storage.GetCategories() function | Error: %v", traceID, err)
		return nil, appErrors.New(appErrors.ErrInternal, "Failed to get categories, try again later.")
	}
	return categories, nil
}

func (s *SQLStorage) isCategoryExists(ctx context.Context, traceID string, userId string, categoryId string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories WHERE id = ? AND user_id = ?;", categoryId, userId).Scan(&count)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to check category existence in Storage.isCategoryExists() function | Error: %v", traceID, err)
		return false, appErrors.New(appErrors.ErrInternal, "Failed to check category existance")
	}
	return count > 0, nil
}

// --- TRANSACTIONS --- //

func (s *SQLStorage) SaveTransaction(ctx context.Context, t budget.Transaction) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	if t.CategoryID != "" {
		isExist, err := s.isCategoryExists(ctx, traceID, t.UserID, t.CategoryID)
		if err != nil {
			return err
		}
		if !isExist {
			return appErrors.New(appErrors.ErrInvalidInput, "The category does not exist, please create the category")
		}
	}

	query := `INSERT INTO transactions (id, user_id, amount, kind, category_id, occurred_at, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.Amount.StringFixed(2), string(t.Kind), EmptyToNullString(t.CategoryID),
		t.OccurredAt.UTC(), t.Description, t.CreatedAt.UTC(),
	)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to save transaction in Storage.SaveTransaction() function | Error: %v", traceID, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to save transaction, try again later.")
	}
	return nil
}

func (s *SQLStorage) GetTransactions(ctx context.Context, userId string, filter budget.TransactionFilter) ([]budget.Transaction, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT id, user_id, amount, kind, category_id, occurred_at, description, created_at FROM transactions WHERE user_id = ?"
	args := []any{userId}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if !filter.From.IsZero() {
		query += " AND occurred_at >= ?"
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query += " AND occurred_at <= ?"
		args = append(args, filter.To.UTC())
	}
	query += " ORDER BY occurred_at ASC, created_at ASC;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get transactions in Storage.GetTransactions() function | Error: %v", traceID, err)
		return nil, appErrors.New(appErrors.ErrInternal, "Failed to get transactions, try again later.")
	}
	defer rows.Close()

	transactions := []budget.Transaction{}
	for rows.Next() {
		var t dbTransaction
		err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.CategoryID, &t.OccurredAt, &t.Description, &t.CreatedAt)
		if err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to scan row in Storage.GetTransactions() function | Error: %v", traceID, err)
			return nil, appErrors.New(appErrors.ErrInternal, "Failed to get transactions, try again later.")
		}
		transactions = append(transactions, t.toTransaction())
	}
	if err := rows.Err(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to iterate rows in Storage.GetTransactions() function | Error: %v", traceID, err)
		return nil, appErrors.New(appErrors.ErrInternal, "Failed to get transactions, try again later.")
	}
	return transactions, nil
}

// --- NOTIFICATIONS --- //

func (s *SQLStorage) SaveNotification(ctx context.Context, n budget.Notification) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "INSERT INTO notifications (id, user_id, title, message, severity, is_read, created_at) VALUES (?, ?, ?, ?, ?, ?, ?);"
	_, err := s.db.ExecContext(ctx, query, n.ID, n.UserID, n.Title, n.Message, n.Severity, n.IsRead, n.CreatedAt.UTC())
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to save notification in Storage.SaveNotification() function | Error: %v", traceID, err)
		return appErrors.New(appErrors.ErrInternal, "Failed to save notification, try again later.")
	}
	return nil
}

func (s *SQLStorage) GetNotifications(ctx context.Context, userId string) ([]budget.Notification, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT id, user_id, title, message, severity, is_read, created_at FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id ASC;"
	rows, err := s.db.QueryContext(ctx, query, userId)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get notifications in Storage.GetNotifications() function | Error: %v", traceID, err)
		return nil, appErrors.New(appErrors.ErrInternal, "Failed to get notifications, try again later.")
	}
	defer rows.Close()

	notifications := []budget.Notification{}
	for rows.Next() {
		var n budget.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Severity, &n.IsRead, &n.CreatedAt); err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to scan row in Storage.GetNotifications() function | Error: %v", traceID, err)
			return nil, appErrors.New(appErrors.ErrInternal, "Failed to get notifications, try again later.")
		}
		n.CreatedAt = n.CreatedAt.UTC()
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to iterate rows in Storage.GetNotifications() function | Error: %v", traceID, err)
		return nil, appErrors.New(appErrors.ErrInternal, "Failed to get notifications, try again later.")
	}
	return notifications, nil
}
