package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/logger"
)

const (
	// DefaultBaseURL is the upstream API root.
	DefaultBaseURL = "https://services.leadconnectorhq.com"
	// DefaultAPIVersion is sent in the Version header of every call.
	DefaultAPIVersion = "2021-07-28"
)

// Config is the complete ghlexport configuration. It is organized into
// sections the same way for the CLI, tests and embedding programs.
type Config struct {
	// API holds the upstream endpoint and credentials
	API APIConfig `yaml:"api" json:"api"`

	// Reliability controls the per-call retry loop
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Governor controls the quota thresholds
	Governor GovernorConfig `yaml:"governor" json:"governor"`

	// Pagination controls page size and the page safety cap
	Pagination PaginationConfig `yaml:"pagination" json:"pagination"`

	// Export selects domains and the local export directory
	Export ExportConfig `yaml:"export" json:"export"`

	// Store selects the persistence backend
	Store StoreConfig `yaml:"store" json:"store"`

	// Notify configures run event publishing
	Notify NotifyConfig `yaml:"notify" json:"notify"`

	// Observability settings for metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Log configures the global logger
	Log logger.Config `yaml:"log" json:"log"`
}

// APIConfig contains upstream endpoint settings.
type APIConfig struct {
	BaseURL    string `yaml:"base_url" json:"base_url"`
	Token      string `yaml:"token" json:"-"`
	LocationID string `yaml:"location_id" json:"location_id"`
	Version    string `yaml:"version" json:"version"`
	// RequestsPerSecond paces calls client-side (0 = unlimited)
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// ReliabilityConfig contains the retry settings of a single logical call.
type ReliabilityConfig struct {
	// RetryAttempts is the total number of attempts, first one included
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the fixed backoff after a transient network failure
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// DefaultRetryAfter is used when a 429 carries no retry-after header
	DefaultRetryAfter time.Duration `yaml:"default_retry_after" json:"default_retry_after"`
}

// GovernorConfig contains the quota thresholds.
type GovernorConfig struct {
	DailyFloor   int           `yaml:"daily_floor" json:"daily_floor"`
	BurstFloor   int           `yaml:"burst_floor" json:"burst_floor"`
	BurstPadding time.Duration `yaml:"burst_padding" json:"burst_padding"`
}

// PaginationConfig contains the paginator defaults.
type PaginationConfig struct {
	PageSize int `yaml:"page_size" json:"page_size"`
	MaxPages int `yaml:"max_pages" json:"max_pages"`
}

// ExportConfig contains run-level selection.
type ExportConfig struct {
	Dir         string              `yaml:"dir" json:"dir"`
	Domains     []string            `yaml:"domains" json:"domains"`
	Filters     map[string][]string `yaml:"filters" json:"filters"`
	Compression string              `yaml:"compression" json:"compression"`
}

// StoreConfig selects and configures the persistence backend. Mirrors
// receive best-effort copies of every save.
type StoreConfig struct {
	// Type is one of file, sqlite, postgres, mongo, s3, gcs
	Type            string        `yaml:"type" json:"type"`
	DSN             string        `yaml:"dsn" json:"-"`
	Database        string        `yaml:"database" json:"database"`
	Table           string        `yaml:"table" json:"table"`
	Bucket          string        `yaml:"bucket" json:"bucket"`
	Prefix          string        `yaml:"prefix" json:"prefix"`
	Region          string        `yaml:"region" json:"region"`
	CredentialsFile string        `yaml:"credentials_file" json:"credentials_file"`
	Mirrors         []StoreConfig `yaml:"mirrors" json:"mirrors"`
}

// NotifyConfig configures the Kafka notifier. Empty brokers disable it.
type NotifyConfig struct {
	Brokers  []string `yaml:"brokers" json:"brokers"`
	Topic    string   `yaml:"topic" json:"topic"`
	ClientID string   `yaml:"client_id" json:"client_id"`
}

// ObservabilityConfig contains metrics and tracing settings.
type ObservabilityConfig struct {
	// MetricsFile, when set, receives a Prometheus text dump at run end
	MetricsFile       string  `yaml:"metrics_file" json:"metrics_file"`
	EnableTracing     bool    `yaml:"enable_tracing" json:"enable_tracing"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// StoreTypes lists the supported persistence backends.
var StoreTypes = []string{"file", "sqlite", "postgres", "mongo", "s3", "gcs"}

// NewDefault returns a Config populated with the upstream's documented
// limits and conservative retry constants.
func NewDefault() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Version: DefaultAPIVersion,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:     3,
			RetryDelay:        5 * time.Second,
			DefaultRetryAfter: 10 * time.Second,
		},
		Governor: GovernorConfig{
			DailyFloor:   100,
			BurstFloor:   5,
			BurstPadding: 500 * time.Millisecond,
		},
		Pagination: PaginationConfig{
			PageSize: 100,
			MaxPages: 100,
		},
		Export: ExportConfig{
			Dir:         "exports",
			Compression: "none",
			Filters:     map[string][]string{},
		},
		Store: StoreConfig{
			Type:  "file",
			Table: "ghl_exports",
		},
		Notify: NotifyConfig{
			Topic:    "ghl-exports",
			ClientID: "ghlexport",
		},
		Observability: ObservabilityConfig{
			TracingSampleRate: 1.0,
		},
		Log: logger.Config{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Validate checks required credentials and value ranges. Missing
// credentials are reported together by their environment variable names.
func (c *Config) Validate() error {
	var missing []string
	if c.API.Token == "" {
		missing = append(missing, EnvAPIToken)
	}
	if c.API.LocationID == "" {
		missing = append(missing, EnvLocationID)
	}
	if len(missing) > 0 {
		return errors.Newf(errors.ErrorTypeConfig, "missing required settings: %s", strings.Join(missing, ", ")).
			WithDetail("missing", missing)
	}

	if c.API.BaseURL == "" {
		return errors.New(errors.ErrorTypeValidation, "api base_url is required")
	}
	if c.Reliability.RetryAttempts < 1 {
		return errors.New(errors.ErrorTypeValidation, "retry_attempts must be at least 1")
	}
	if c.Reliability.RetryDelay < 0 || c.Reliability.DefaultRetryAfter < 0 {
		return errors.New(errors.ErrorTypeValidation, "retry delays cannot be negative")
	}
	if c.Pagination.PageSize < 1 {
		return errors.New(errors.ErrorTypeValidation, "page_size must be positive")
	}
	if c.Pagination.MaxPages < 1 {
		return errors.New(errors.ErrorTypeValidation, "max_pages must be positive")
	}
	if c.API.RequestsPerSecond < 0 {
		return errors.New(errors.ErrorTypeValidation, "requests_per_second cannot be negative")
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Type {
	case "file", "sqlite":
	case "postgres", "mongo":
		if s.DSN == "" {
			return errors.Newf(errors.ErrorTypeValidation, "store %s requires dsn", s.Type)
		}
	case "s3", "gcs":
		if s.Bucket == "" {
			return errors.Newf(errors.ErrorTypeValidation, "store %s requires bucket", s.Type)
		}
	default:
		return errors.Newf(errors.ErrorTypeValidation, "unknown store type %q (supported: %s)", s.Type, strings.Join(StoreTypes, ", "))
	}
	for i := range s.Mirrors {
		if err := s.Mirrors[i].validate(); err != nil {
			return fmt.Errorf("mirror %d: %w", i, err)
		}
	}
	return nil
}
