package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// Storage
	DBDriver string
	DBDSN    string

	// Feed ingestion
	FeedURLTemplate string
	UserAgent       string
	FetchTimeout    time.Duration
	CategoryFirst   int
	CategoryLast    int
	SnapshotDir     string

	// Loop cadence
	IngestInterval   time.Duration
	ReminderInterval time.Duration

	// Reminders
	ReminderMaxFailures int
	SMTP                SMTPConfig

	// Server settings
	ServerHost string
	ServerPort int
	APIKey     string

	// Log settings
	LogLevel zerolog.Level
}

// SMTPConfig holds the outbound mail transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// Configured reports whether credentials for the transport are present.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Username != "" && s.Password != ""
}

// Sender returns the From address, falling back to the login name.
func (s SMTPConfig) Sender() string {
	if s.From != "" {
		return s.From
	}
	return s.Username
}

// DefaultConfig returns an initial configuration with hardcoded defaults.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)
	fetchTimeout, _ := time.ParseDuration(DefaultFetchTimeout)
	ingestInterval, _ := time.ParseDuration(DefaultIngestInterval)
	reminderInterval, _ := time.ParseDuration(DefaultReminderInterval)

	return &Config{
		DBDriver:            DefaultDBDriver,
		DBDSN:               DefaultDBDSN,
		FeedURLTemplate:     DefaultFeedURLTemplate,
		UserAgent:           DefaultUserAgent,
		FetchTimeout:        fetchTimeout,
		CategoryFirst:       DefaultCategoryFirst,
		CategoryLast:        DefaultCategoryLast,
		SnapshotDir:         DefaultSnapshotDir,
		IngestInterval:      ingestInterval,
		ReminderInterval:    reminderInterval,
		ReminderMaxFailures: DefaultReminderMaxFailures,
		SMTP: SMTPConfig{
			Host:   DefaultSMTPHost,
			Port:   DefaultSMTPPort,
			UseTLS: DefaultSMTPUseTLS,
		},
		ServerHost: DefaultServerHost,
		ServerPort: DefaultServerPort,
		LogLevel:   logLevel,
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment,
// in that order of increasing precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	c.DBDriver = GetEnvString("CIVICFEED_DB_DRIVER", c.DBDriver)
	c.DBDSN = GetEnvString("CIVICFEED_DB_DSN", c.DBDSN)

	c.FeedURLTemplate = GetEnvString("CIVICFEED_FEED_URL", c.FeedURLTemplate)
	c.UserAgent = GetEnvString("CIVICFEED_USER_AGENT", c.UserAgent)
	c.FetchTimeout = GetEnvDuration("CIVICFEED_FETCH_TIMEOUT", c.FetchTimeout)
	c.CategoryFirst = GetEnvInt("CIVICFEED_CATEGORY_FIRST", c.CategoryFirst)
	c.CategoryLast = GetEnvInt("CIVICFEED_CATEGORY_LAST", c.CategoryLast)
	c.SnapshotDir = GetEnvString("CIVICFEED_SNAPSHOT_DIR", c.SnapshotDir)

	c.IngestInterval = GetEnvDuration("CIVICFEED_INGEST_INTERVAL", c.IngestInterval)
	c.ReminderInterval = GetEnvDuration("CIVICFEED_REMINDER_INTERVAL", c.ReminderInterval)
	c.ReminderMaxFailures = GetEnvInt("CIVICFEED_REMINDER_MAX_FAILURES", c.ReminderMaxFailures)

	// SMTP variable names are shared with the web application.
	c.SMTP.Host = GetEnvString("SMTP_SERVER", c.SMTP.Host)
	c.SMTP.Port = GetEnvInt("SMTP_PORT", c.SMTP.Port)
	c.SMTP.Username = GetEnvString("SMTP_USER", c.SMTP.Username)
	c.SMTP.Password = GetEnvString("SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = GetEnvString("FROM_EMAIL", c.SMTP.From)
	c.SMTP.UseTLS = GetEnvBool("SMTP_USE_TLS", c.SMTP.UseTLS)

	c.ServerHost = GetEnvString("CIVICFEED_HOST", c.ServerHost)
	c.ServerPort = GetEnvInt("CIVICFEED_PORT", c.ServerPort)
	c.APIKey = GetEnvString("CIVICFEED_API_KEY", c.APIKey)

	c.LogLevel = GetEnvLogLevel("CIVICFEED_LOG_LEVEL", c.LogLevel)
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}
	if c.CategoryFirst <= 0 || c.CategoryLast < c.CategoryFirst {
		return fmt.Errorf("invalid category range %d..%d", c.CategoryFirst, c.CategoryLast)
	}
	if c.IngestInterval < 0 || c.ReminderInterval < 0 {
		return fmt.Errorf("loop intervals must not be negative")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	return nil
}

// Categories returns the category ids to ingest, in order.
func (c *Config) Categories() []int {
	ids := make([]int, 0, c.CategoryLast-c.CategoryFirst+1)
	for id := c.CategoryFirst; id <= c.CategoryLast; id++ {
		ids = append(ids, id)
	}
	return ids
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
