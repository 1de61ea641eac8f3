package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/hydro-ingest/internal/adapter/hydroquebec"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	FeedURL     string
	FeedTimeout time.Duration

	DatabasePath  string
	MetadataPath  string
	ArchiveDir    string
	ArchivePrefix string
	BoundaryPath  string

	RetryMaxAttempts int
	RetryInterval    time.Duration
	ScheduleAt       string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// SMTP alerting on escalation.
	AlertEnabled    bool
	SMTPAddr        string
	SMTPUsername    string
	SMTPPassword    string
	AlertFrom       string
	AlertRecipients []string

	// Optional downstream publication; disabled when no broker is set.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is read first when
// present; variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	feedTimeout, err := parsePositiveDuration("FEED_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	retryInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("RETRY_INTERVAL", "5m"))
	if err != nil || retryInterval < 0 {
		return nil, errors.New("invalid RETRY_INTERVAL")
	}

	maxAttempts, err := strconv.Atoi(sharedcfg.EnvOrDefault("RETRY_MAX_ATTEMPTS", "300"))
	if err != nil || maxAttempts < 1 {
		return nil, errors.New("invalid RETRY_MAX_ATTEMPTS: must be at least 1")
	}

	cfg := &Config{
		FeedURL:     sharedcfg.EnvOrDefault("FEED_URL", hydroquebec.DefaultFeedURL),
		FeedTimeout: feedTimeout,

		DatabasePath:  sharedcfg.EnvOrDefault("DATABASE_PATH", "hq_open_data.db"),
		MetadataPath:  sharedcfg.EnvOrDefault("METADATA_PATH", "station_metadata.yaml"),
		ArchiveDir:    sharedcfg.EnvOrDefault("ARCHIVE_DIR", "archive"),
		ArchivePrefix: sharedcfg.EnvOrDefault("ARCHIVE_PREFIX", "hq_open_data"),
		BoundaryPath:  os.Getenv("BOUNDARY_PATH"),

		RetryMaxAttempts: maxAttempts,
		RetryInterval:    retryInterval,
		ScheduleAt:       sharedcfg.EnvOrDefault("SCHEDULE_AT", "12:40"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		AlertEnabled:    os.Getenv("ALERT_ENABLED") == "true",
		SMTPAddr:        sharedcfg.EnvOrDefault("SMTP_ADDR", "smtp.gmail.com:587"),
		SMTPUsername:    os.Getenv("SMTP_USERNAME"),
		SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
		AlertFrom:       sharedcfg.EnvOrDefault("ALERT_FROM", os.Getenv("SMTP_USERNAME")),
		AlertRecipients: sharedcfg.ParseBrokers(os.Getenv("ALERT_RECIPIENTS")),

		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "hq-measurements"),
	}

	if _, err := cfg.DailyAt(); err != nil {
		return nil, err
	}
	if cfg.DatabasePath == "" {
		return nil, errors.New("DATABASE_PATH is required")
	}
	if cfg.AlertEnabled && len(cfg.AlertRecipients) == 0 {
		return nil, errors.New("ALERT_ENABLED is true but ALERT_RECIPIENTS is not set")
	}
	if cfg.AlertEnabled && cfg.AlertFrom == "" {
		return nil, errors.New("ALERT_ENABLED is true but neither ALERT_FROM nor SMTP_USERNAME is set")
	}

	return cfg, nil
}

// DailyAt returns the scheduled run time as an offset from local midnight.
func (c *Config) DailyAt() (time.Duration, error) {
	t, err := time.Parse("15:04", c.ScheduleAt)
	if err != nil {
		return 0, fmt.Errorf("invalid SCHEDULE_AT %q: want HH:MM", c.ScheduleAt)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// KafkaEnabled reports whether measurements are forwarded to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}
