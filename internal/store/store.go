package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Options selects the backing database. An empty Driver means SQLite; an
// empty DSN with an empty DataDir gives a private in-memory database.
type Options struct {
	Driver  string
	DSN     string
	DataDir string
}

// Store persists pipeline runs, API keys and audit records.
type Store struct {
	db      *sqlx.DB
	dialect string
}

// New opens the database described by opts and applies migrations.
func New(opts Options) (*Store, error) {
	driver := strings.ToLower(opts.Driver)
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		sqlDriver string
		dsn       = opts.DSN
	)
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
		if dsn == "" {
			if opts.DataDir == "" {
				dsn = ":memory:?_journal_mode=WAL"
			} else {
				if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
					return nil, fmt.Errorf("create data dir: %w", err)
				}
				dsn = filepath.Join(opts.DataDir, "yaa.db") + "?_journal_mode=WAL&_busy_timeout=5000"
			}
		}
	case DriverPostgres:
		sqlDriver = "pgx"
	case DriverMySQL:
		sqlDriver = "mysql"
		if dsn != "" {
			cfg, err := mysql.ParseDSN(dsn)
			if err != nil {
				return nil, fmt.Errorf("parse mysql dsn: %w", err)
			}
			// Timestamps are scanned into time.Time and stored as UTC.
			cfg.ParseTime = true
			cfg.Loc = time.UTC
			dsn = cfg.FormatDSN()
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required for driver %q", driver)
	}

	db, err := sqlx.Connect(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	}

	s := &Store{db: db, dialect: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the normalized driver name.
func (s *Store) Dialect() string {
	return s.dialect
}

// q rebinds a query written with '?' placeholders for the active driver.
func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

// isUniqueViolation reports whether err is a duplicate-key error from any of
// the supported drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
