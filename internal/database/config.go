package database

import "time"

const (
	defaultMaxIdleConns    = 4
	defaultMaxOpenConns    = 4
	defaultConnMaxLifetime = time.Hour
)

// Config holds database configuration settings
type Config struct {
	// Required settings
	Driver string // "sqlite3" or "postgres"
	DSN    string // file path for sqlite3, connection URL for postgres

	// Optional settings (will use defaults if not set)
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	CacheSizeKB     int
	BusyTimeoutMS   int
	ReadOnly        bool
	SkipMigrations  bool
}

// NewConfig creates a new database configuration with default values
func NewConfig(driver, dsn string) *Config {
	return &Config{
		Driver:          driver,
		DSN:             dsn,
		ConnMaxLifetime: defaultConnMaxLifetime,
		CacheSizeKB:     -16000, // 16MB
		BusyTimeoutMS:   5000,
	}
}

func (c *Config) isSQLite() bool {
	return c.Driver == "" || c.Driver == "sqlite3"
}
