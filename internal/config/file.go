package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML input. Zero values leave the current setting untouched.
type fileConfig struct {
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Feed struct {
		URLTemplate   string `yaml:"url_template"`
		UserAgent     string `yaml:"user_agent"`
		Timeout       string `yaml:"timeout"`
		CategoryFirst int    `yaml:"category_first"`
		CategoryLast  int    `yaml:"category_last"`
		SnapshotDir   string `yaml:"snapshot_dir"`
	} `yaml:"feed"`

	Schedule struct {
		Ingest   string `yaml:"ingest"`
		Reminder string `yaml:"reminder"`
	} `yaml:"schedule"`

	Reminders struct {
		MaxFailures *int `yaml:"max_failures"`
	} `yaml:"reminders"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		UseTLS   *bool  `yaml:"use_tls"`
	} `yaml:"smtp"`

	Server struct {
		Host   string `yaml:"host"`
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`

	LogLevel string `yaml:"log_level"`
}

// ApplyFile overlays settings from a YAML file onto c.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.DBDriver, fc.Database.Driver)
	setString(&c.DBDSN, fc.Database.DSN)

	setString(&c.FeedURLTemplate, fc.Feed.URLTemplate)
	setString(&c.UserAgent, fc.Feed.UserAgent)
	setInt(&c.CategoryFirst, fc.Feed.CategoryFirst)
	setInt(&c.CategoryLast, fc.Feed.CategoryLast)
	setString(&c.SnapshotDir, fc.Feed.SnapshotDir)
	if err := setDuration(&c.FetchTimeout, fc.Feed.Timeout); err != nil {
		return fmt.Errorf("feed.timeout: %w", err)
	}

	if err := setDuration(&c.IngestInterval, fc.Schedule.Ingest); err != nil {
		return fmt.Errorf("schedule.ingest: %w", err)
	}
	if err := setDuration(&c.ReminderInterval, fc.Schedule.Reminder); err != nil {
		return fmt.Errorf("schedule.reminder: %w", err)
	}
	if fc.Reminders.MaxFailures != nil {
		c.ReminderMaxFailures = *fc.Reminders.MaxFailures
	}

	setString(&c.SMTP.Host, fc.SMTP.Host)
	setInt(&c.SMTP.Port, fc.SMTP.Port)
	setString(&c.SMTP.Username, fc.SMTP.Username)
	setString(&c.SMTP.Password, fc.SMTP.Password)
	setString(&c.SMTP.From, fc.SMTP.From)
	if fc.SMTP.UseTLS != nil {
		c.SMTP.UseTLS = *fc.SMTP.UseTLS
	}

	setString(&c.ServerHost, fc.Server.Host)
	setInt(&c.ServerPort, fc.Server.Port)
	setString(&c.APIKey, fc.Server.APIKey)

	if fc.LogLevel != "" {
		level, err := zerolog.ParseLevel(fc.LogLevel)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		c.LogLevel = level
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
