package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, time.Hour, cfg.IngestInterval)
	assert.Equal(t, 20*time.Second, cfg.ReminderInterval)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.UseTLS)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}, cfg.Categories())
	assert.False(t, cfg.SMTP.Configured())
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CIVICFEED_DB_DRIVER", "postgres")
	t.Setenv("CIVICFEED_DB_DSN", "postgres://localhost/civic?sslmode=disable")
	t.Setenv("CIVICFEED_REMINDER_INTERVAL", "5")
	t.Setenv("CIVICFEED_INGEST_INTERVAL", "30m")
	t.Setenv("SMTP_SERVER", "mail.example.org")
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("SMTP_USER", "bot@example.org")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("SMTP_USE_TLS", "false")
	t.Setenv("CIVICFEED_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://localhost/civic?sslmode=disable", cfg.DBDSN)
	assert.Equal(t, 5*time.Second, cfg.ReminderInterval)
	assert.Equal(t, 30*time.Minute, cfg.IngestInterval)
	assert.Equal(t, "mail.example.org", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port, "invalid port keeps the default")
	assert.False(t, cfg.SMTP.UseTLS)
	assert.True(t, cfg.SMTP.Configured())
	assert.Equal(t, "bot@example.org", cfg.SMTP.Sender())
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "civicfeed.yaml")
	content := `
database:
  dsn: /var/lib/civicfeed/store.db
feed:
  category_last: 5
  timeout: 10s
schedule:
  reminder: 1m
reminders:
  max_failures: 3
smtp:
  from: noreply@example.org
  use_tls: false
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CIVICFEED_CATEGORY_LAST", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/civicfeed/store.db", cfg.DBDSN)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, time.Minute, cfg.ReminderInterval)
	assert.Equal(t, 3, cfg.ReminderMaxFailures)
	assert.Equal(t, "noreply@example.org", cfg.SMTP.Sender())
	assert.False(t, cfg.SMTP.UseTLS)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 7, cfg.CategoryLast, "environment wins over the file")
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schedule:\n  ingest: soon\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "schedule.ingest")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBDriver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "unsupported database driver")

	cfg = DefaultConfig()
	cfg.CategoryFirst, cfg.CategoryLast = 5, 2
	assert.ErrorContains(t, cfg.Validate(), "invalid category range")
}
