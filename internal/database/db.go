package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"civicease/civicfeed/internal/database/migrations"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// DB represents the database connection
type DB struct {
	*sqlx.DB
}

// NewDB opens the store, applies pragmas for SQLite and runs pending migrations.
func NewDB(cfg *Config) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite3"
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}

	dsn := cfg.DSN
	if cfg.isSQLite() {
		dir := filepath.Dir(sqlitePath(cfg.DSN))
		if dir != "." && !cfg.ReadOnly {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory for database: %w", err)
			}
		}

		dsn = sqliteDSN(cfg)
	}

	log.Info().
		Str("driver", cfg.Driver).
		Str("mode", modeStr(cfg.ReadOnly)).
		Msg("Opening database")

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.isSQLite() {
		pragmas := []string{
			fmt.Sprintf("PRAGMA cache_size = %d;", cfg.CacheSizeKB),
			"PRAGMA temp_store = MEMORY;",
		}
		if cfg.ReadOnly {
			pragmas = append(pragmas, "PRAGMA query_only = ON;")
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				log.Warn().Err(err).Str("pragma", pragma).Msg("Failed to set PRAGMA")
			}
		}
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db (%s): %w", modeStr(cfg.ReadOnly), err)
	}

	if !cfg.ReadOnly && !cfg.SkipMigrations {
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	log.Info().Str("mode", modeStr(cfg.ReadOnly)).Msg("Database connection successful")
	return &DB{db}, nil
}

// Migrate applies every pending embedded migration for the connection's driver.
func Migrate(db *sqlx.DB) error {
	all, err := migrations.ForDriver(db.DriverName())
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := migrations.Run(db, all); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Debug().Int("available", len(all)).Msg("Database migrations up to date")
	return nil
}

// Rollback reverts the newest n migrations.
func (db *DB) Rollback(n int) error {
	all, err := migrations.ForDriver(db.DriverName())
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	return migrations.Rollback(db.DB, all, n)
}

// sqlitePath strips the URI scheme and query from a SQLite DSN.
func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(dsn, "?")
	return strings.TrimPrefix(path, "file:")
}

// sqliteDSN appends the connection options to cfg.DSN, keeping any query it already has.
func sqliteDSN(cfg *Config) string {
	// WAL lets the API server read while the loops write.
	opts := fmt.Sprintf("_journal=WAL&_synchronous=NORMAL&_busy_timeout=%d", cfg.BusyTimeoutMS)
	if cfg.ReadOnly {
		opts += "&mode=ro"
	}

	sep := "?"
	if strings.Contains(cfg.DSN, "?") {
		sep = "&"
		if strings.HasSuffix(cfg.DSN, "?") || strings.HasSuffix(cfg.DSN, "&") {
			sep = ""
		}
	}
	return cfg.DSN + sep + opts
}

func modeStr(readOnly bool) string {
	if readOnly {
		return "read-only"
	}
	return "read-write"
}
