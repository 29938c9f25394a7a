package config

// Constants defining default values for application configuration
const (
	DefaultDBDriver = "sqlite3"
	DefaultDBDSN    = "./civicfeed.db"

	DefaultFeedURLTemplate = "https://services.india.gov.in/feed/rss?cat_id=%d&ln=en"
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultFetchTimeout    = "30s"
	DefaultCategoryFirst   = 1
	DefaultCategoryLast    = 13
	DefaultSnapshotDir     = "./rss_data"

	DefaultIngestInterval      = "1h"
	DefaultReminderInterval    = "20s"
	DefaultReminderMaxFailures = 0 // 0 means retry forever

	DefaultSMTPHost   = "smtp.gmail.com"
	DefaultSMTPPort   = 587
	DefaultSMTPUseTLS = true

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultLogLevel = "info"
)
