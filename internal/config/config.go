package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"billingsync/internal/classify"
	"billingsync/internal/log"
)

// Backends and converters accepted by Validate.
var (
	ValidBackends   = []string{"memory", "google"}
	ValidConverters = []string{"drive", "xlsx"}
)

type Config struct {
	// HTTP Server
	Port               string `mapstructure:"port"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`

	// Database
	SQLiteDBPath string `mapstructure:"sqlite_db_path"`

	// AMQP; an empty URL disables events
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	AMQPQueue    string `mapstructure:"amqp_queue"`

	// Google
	GoogleSpreadsheetID      string `mapstructure:"google_spreadsheet_id"`
	GoogleServiceAccountJSON string `mapstructure:"google_service_account_json"`
	GoogleServiceAccountFile string `mapstructure:"google_service_account_file"`
	GoogleOAuthClientFile    string `mapstructure:"google_oauth_client_file"`
	GoogleOAuthTokenFile     string `mapstructure:"google_oauth_token_file"`

	// Workbook layout
	TrackingSheetName    string `mapstructure:"tracking_sheet_name"`
	ReferenceSheetName   string `mapstructure:"reference_sheet_name"`
	LookupSheetName      string `mapstructure:"lookup_sheet_name"`
	ClassificationHeader string `mapstructure:"classification_header"`
	TimeZone             string `mapstructure:"time_zone"`

	// Pipeline
	Converter       string        `mapstructure:"converter"`
	TieBreak        string        `mapstructure:"tie_break"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	LookupCacheTTL  time.Duration `mapstructure:"lookup_cache_ttl"`
	LookupCacheSize int           `mapstructure:"lookup_cache_size"`

	// Worker
	AutoProcess         bool          `mapstructure:"auto_process"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`

	// Backend selection
	DataBackend    string `mapstructure:"data_backend"`
	MemorySeedFile string `mapstructure:"memory_seed_file"`
	MemoryFilesDir string `mapstructure:"memory_files_dir"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"port":                        "8081",
	"rate_limit_per_minute":       60,
	"sqlite_db_path":              "./data/billingsync.db",
	"amqp_url":                    "",
	"amqp_exchange":               "billingsync",
	"amqp_queue":                  "period_events",
	"google_spreadsheet_id":       "",
	"google_service_account_json": "",
	"google_service_account_file": "",
	"google_oauth_client_file":    "",
	"google_oauth_token_file":     "",
	"tracking_sheet_name":         "Tracker",
	"reference_sheet_name":        "Reference",
	"lookup_sheet_name":           "Lookup",
	"classification_header":       "Entity Type",
	"time_zone":                   "UTC",
	"converter":                   "drive",
	"tie_break":                   "first-key",
	"session_ttl":                 30 * time.Minute,
	"lock_ttl":                    15 * time.Minute,
	"lookup_cache_ttl":            10 * time.Minute,
	"lookup_cache_size":           1000,
	"auto_process":                false,
	"maintenance_interval":        10 * time.Minute,
	"data_backend":                "memory",
	"memory_seed_file":            "",
	"memory_files_dir":            "./data/files",
	"log_level":                   "info",
	"log_format":                  "text",
}

// Load reads configuration from environment variables and, when present,
// a YAML file. An empty path looks for billingsync.yaml in the working
// directory; a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("billingsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var problems []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(ValidBackends, c.DataBackend) {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, ValidBackends))
	}
	if !slices.Contains(ValidConverters, c.Converter) {
		problems = append(problems, fmt.Sprintf("invalid converter '%s': must be one of %v", c.Converter, ValidConverters))
	}
	if _, err := classify.ParseTieBreak(c.TieBreak); err != nil {
		problems = append(problems, err.Error())
	}
	if !slices.Contains(log.Levels, strings.ToLower(c.LogLevel)) {
		problems = append(problems, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, log.Levels))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("invalid time zone '%s': %v", c.TimeZone, err))
	}

	if c.SQLiteDBPath == "" {
		problems = append(problems, "SQLite database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	for name, v := range map[string]string{
		"tracking sheet name":   c.TrackingSheetName,
		"reference sheet name":  c.ReferenceSheetName,
		"lookup sheet name":     c.LookupSheetName,
		"classification header": c.ClassificationHeader,
	} {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, name+" cannot be empty")
		}
	}

	if c.DataBackend == "google" {
		if c.GoogleSpreadsheetID == "" {
			problems = append(problems, "Google Spreadsheet ID is required when using google backend")
		}

		hasServiceAccount := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != "" ||
			os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""
		hasOAuth := c.GoogleOAuthClientFile != "" && c.GoogleOAuthTokenFile != ""
		if !hasServiceAccount && !hasOAuth {
			problems = append(problems, "google backend needs GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or both GOOGLE_OAUTH_CLIENT_FILE and GOOGLE_OAUTH_TOKEN_FILE")
		}

		for name, path := range map[string]string{
			"Google service account file": c.GoogleServiceAccountFile,
			"Google OAuth client file":    c.GoogleOAuthClientFile,
			"Google OAuth token file":     c.GoogleOAuthTokenFile,
		} {
			if path == "" {
				continue
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				problems = append(problems, fmt.Sprintf("%s does not exist: %s", name, path))
			}
		}
	}

	if c.DataBackend == "memory" && c.MemorySeedFile != "" {
		if _, err := os.Stat(c.MemorySeedFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("memory seed file does not exist: %s", c.MemorySeedFile))
		}
	}

	if c.SessionTTL < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.LockTTL < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid lock TTL %v: must be at least 1 minute", c.LockTTL))
	}
	if c.LookupCacheSize < 0 {
		problems = append(problems, fmt.Sprintf("invalid lookup cache size %d: must not be negative", c.LookupCacheSize))
	}
	if c.LookupCacheTTL < 0 {
		problems = append(problems, fmt.Sprintf("invalid lookup cache TTL %v: must not be negative", c.LookupCacheTTL))
	}
	if c.RateLimitPerMinute < 0 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}
	if c.MaintenanceInterval < time.Second {
		problems = append(problems, fmt.Sprintf("invalid maintenance interval %v: must be at least 1 second", c.MaintenanceInterval))
	} else if c.MaintenanceInterval > 24*time.Hour {
		problems = append(problems, fmt.Sprintf("invalid maintenance interval %v: must be at most 24 hours", c.MaintenanceInterval))
	}

	// Map iteration order is random; keep messages stable.
	slices.Sort(problems)
	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}

	return nil
}
