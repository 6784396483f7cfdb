package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"spendwise/internal/ai"
)

type Config struct {
	// HTTP Server
	Port      string
	LogLevel  string
	LogFormat string

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// AMQP
	AMQPURL              string
	AMQPExchange         string
	AMQPAlertQueue       string
	AMQPReportQueue      string
	AMQPReportReadyQueue string

	// AI completion endpoint
	AIAPIKey  string
	AIAPIURL  string
	AIModel   string
	AITimeout time.Duration

	ClassifierRulesFile string

	// Optional report export
	GoogleSpreadsheetID string

	// Report worker
	ReportCheckInterval time.Duration
	ReportSchedule      string
	ReportConcurrency   int

	// Insight snapshot cache
	SnapshotCacheSize int
	SnapshotCacheTTL  time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:      getEnv("PORT", "8081"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/spendwise.db"),

		AMQPURL:              getEnv("AMQP_URL", ""),
		AMQPExchange:         getEnv("AMQP_EXCHANGE", "spendwise"),
		AMQPAlertQueue:       getEnv("AMQP_ALERT_QUEUE", "budget_alerts"),
		AMQPReportQueue:      getEnv("AMQP_REPORT_QUEUE", "report_requests"),
		AMQPReportReadyQueue: getEnv("AMQP_REPORT_READY_QUEUE", "report_ready"),

		AIAPIKey:  getEnv("AI_API_KEY", ""),
		AIAPIURL:  getEnv("AI_API_URL", ai.DefaultURL),
		AIModel:   getEnv("AI_MODEL", ai.DefaultModel),
		AITimeout: getEnvDuration("AI_TIMEOUT", 30*time.Second),

		ClassifierRulesFile: getEnv("CLASSIFIER_RULES_FILE", ""),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),

		ReportCheckInterval: getEnvDuration("REPORT_CHECK_INTERVAL", time.Hour),
		ReportSchedule:      getEnv("REPORT_SCHEDULE", "monthly"),
		ReportConcurrency:   getEnvInt("REPORT_CONCURRENCY", 4),

		SnapshotCacheSize: getEnvInt("SNAPSHOT_CACHE_SIZE", 500),
		SnapshotCacheTTL:  getEnvDuration("SNAPSHOT_CACHE_TTL", 24*time.Hour),
	}

	return cfg
}

// AI returns the completion client settings.
func (c *Config) AI() ai.Config {
	return ai.Config{
		APIKey:  c.AIAPIKey,
		URL:     c.AIAPIURL,
		Model:   c.AIModel,
		Timeout: c.AITimeout,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	if !contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPAlertQueue == "" || c.AMQPReportQueue == "" || c.AMQPReportReadyQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		}
	}

	if c.AIAPIURL != "" {
		if parsedURL, err := url.Parse(c.AIAPIURL); err != nil || parsedURL.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid AI API URL '%s'", c.AIAPIURL))
		}
	}
	if c.AITimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid AI timeout %v: must be at least 1 second", c.AITimeout))
	}

	if c.ClassifierRulesFile != "" {
		if _, err := os.Stat(c.ClassifierRulesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("classifier rules file does not exist: %s", c.ClassifierRulesFile))
		}
	}

	if c.ReportCheckInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid report check interval %v: must be at least 1 second", c.ReportCheckInterval))
	} else if c.ReportCheckInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid report check interval %v: must be at most 24 hours", c.ReportCheckInterval))
	}

	validSchedules := []string{"monthly", "weekly"}
	if !contains(validSchedules, c.ReportSchedule) {
		errors = append(errors, fmt.Sprintf("invalid report schedule '%s': must be one of %v", c.ReportSchedule, validSchedules))
	}

	if c.ReportConcurrency < 1 || c.ReportConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid report concurrency %d: must be between 1 and 64", c.ReportConcurrency))
	}

	if c.SnapshotCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid snapshot cache size %d: must be at least 1", c.SnapshotCacheSize))
	}
	if c.SnapshotCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid snapshot cache ttl %v: must be positive", c.SnapshotCacheTTL))
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}
	validFormats := []string{"text", "json"}
	if !contains(validFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
