package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// timestampLayout is fixed width so that stored timestamps sort chronologically as text
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// DB wraps the database connection
type DB struct {
	*sql.DB
	Driver string
}

// NewDB creates a new database connection.
// For postgres, dsn is a lib/pq connection string such as
// "host=localhost port=5432 user=postgres password=postgres dbname=pricesnap sslmode=disable".
// For sqlite, dsn is a file path or ":memory:".
func NewDB(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if driver == DriverSQLite {
		// One writer at a time, and a single connection keeps ":memory:" databases alive
		db.SetMaxOpenConns(1)
		pragmas := []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"}
		if !strings.Contains(dsn, ":memory:") {
			pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, Driver: driver}, nil
}

// Dialect returns the goose dialect name of the driver
func (db *DB) Dialect() string {
	if db.Driver == DriverSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// rowID returns the stored primary key of an entity, minting one when id is unset
func rowID(id uuid.UUID) string {
	if id == uuid.Nil {
		return uuid.New().String()
	}
	return id.String()
}
