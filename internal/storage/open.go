package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/fatali-fataliyev/budget_watch/internal/config"
	"github.com/fatali-fataliyev/budget_watch/logging"
	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

const (
	DRIVER_MYSQL    = config.DRIVER_MYSQL
	DRIVER_SQLITE   = config.DRIVER_SQLITE
	DRIVER_INMEMORY = config.DRIVER_INMEMORY

	PING_ATTEMPTS      = 15
	PING_RETRY_DELAY   = 3 * time.Second
	DEFAULT_DATABASE   = "budget_watch"
	SQLITE_DSN_OPTIONS = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
)

// Open connects to the configured backend and brings its schema up to date.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*SQLStorage, error) {
	switch cfg.Driver {
	case DRIVER_MYSQL:
		db, err := OpenMySQL(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLStorage(db, DRIVER_MYSQL), nil
	case DRIVER_SQLITE:
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLStorage(db, DRIVER_SQLITE), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver '%s'", cfg.Driver)
	}
}

func mysqlConfig(cfg config.DatabaseConfig) (*mysql.Config, error) {
	var c *mysql.Config
	if cfg.FullDSN != "" {
		parsed, err := mysql.ParseDSN(cfg.FullDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse FULL_DSN: %w", err)
		}
		c = parsed
	} else {
		if cfg.User == "" || cfg.Host == "" || cfg.Port == "" {
			return nil, fmt.Errorf("missing required DB environment variables")
		}
		c = mysql.NewConfig()
		c.User = cfg.User
		c.Passwd = cfg.Password
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
		c.DBName = cfg.Name
	}

	if c.DBName == "" {
		c.DBName = DEFAULT_DATABASE
	}
	c.ParseTime = true
	c.Loc = time.UTC
	// UPDATE reports matched rows, not changed rows, so an idempotent update is not mistaken for a missing user.
	c.ClientFoundRows = true
	// DATETIME(6) keeps microseconds. Without truncation the server rounds
	// a bound like 23:59:59.999999999 up into the next day.
	if err := c.Apply(mysql.TimeTruncate(time.Microsecond)); err != nil {
		return nil, fmt.Errorf("failed to apply MySQL options: %w", err)
	}
	return c, nil
}

// OpenMySQL waits for the server, creates the database when missing and runs migrations.
func OpenMySQL(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	c, err := mysqlConfig(cfg)
	if err != nil {
		return nil, err
	}

	admin := c.Clone()
	admin.DBName = ""

	logging.Logger.Info("Connecting to MySQL server for initialization...")
	adminDb, err := sql.Open("mysql", admin.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open admin mysql handle: %w", err)
	}
	defer adminDb.Close()

	if err := pingWithRetry(ctx, adminDb); err != nil {
		return nil, err
	}

	var dbnameExistence string
	checkDbnameExistQuery := "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?"
	err = adminDb.QueryRowContext(ctx, checkDbnameExistQuery, c.DBName).Scan(&dbnameExistence)
	if errors.Is(err, sql.ErrNoRows) {
		logging.Logger.Infof("Database '%s' does not exist, creating...", c.DBName)
		createDbSql := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci;", c.DBName)
		if _, err := adminDb.ExecContext(ctx, createDbSql); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	logging.Logger.Info("Running migrations...")
	migrationConfig := c.Clone()
	migrationConfig.MultiStatements = true
	if err := RunMigrations(DRIVER_MYSQL, migrationConfig.FormatDSN()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Logger.Info("Connecting to database...")
	db, err := sql.Open("mysql", c.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Logger.Info("Connected to database successfully")
	return db, nil
}

// OpenSQLite opens the database file at path, creating its directory, and runs migrations.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := path + "?" + SQLITE_DSN_OPTIONS
	if err := RunMigrations(DRIVER_SQLITE, dsn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under the scheduler and API together.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.Logger.Infof("Connected to sqlite database at %s", path)
	return db, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB) error {
	for i := 0; i < PING_ATTEMPTS; i++ {
		if err := db.PingContext(ctx); err == nil {
			return nil
		}
		logging.Logger.Warnf("Database not ready, retrying... (%d/%d)", i+1, PING_ATTEMPTS)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PING_RETRY_DELAY):
		}
	}
	return fmt.Errorf("database unreachable after multiple attempts")
}
