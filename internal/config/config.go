package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Bidding        BiddingConfig        `yaml:"bidding"`
	Dispatch       DispatchConfig       `yaml:"dispatch"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "postgres" or "memory"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// BiddingConfig holds the timing and retry policy for bid settlement.
type BiddingConfig struct {
	// LastPhaseWindow is the sealed-bidding window before an auction ends.
	LastPhaseWindow time.Duration `yaml:"last_phase_window"`
	// MaxSealedBids caps the candidate amounts in one sealed submission.
	MaxSealedBids int `yaml:"max_sealed_bids"`
	// SettleRetries bounds internal retries on transaction conflicts.
	SettleRetries int `yaml:"settle_retries"`
}

// DispatchConfig holds outbox dispatcher settings.
type DispatchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	WebhookURL string        `yaml:"webhook_url"`
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
}

// LeaderElectionConfig holds Kubernetes leader election settings for the
// outbox dispatcher.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "postgres",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "settlementd",
			ServiceVersion: "0.1.0",
		},
		Bidding: BiddingConfig{
			LastPhaseWindow: 10 * time.Minute,
			MaxSealedBids:   3,
			SettleRetries:   3,
		},
		Dispatch: DispatchConfig{
			Enabled:   false,
			Interval:  5 * time.Second,
			BatchSize: 100,
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "settlementd-dispatcher",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\" or \"memory\"", c.Database.Driver)
	}
	if c.Bidding.LastPhaseWindow <= 0 {
		return fmt.Errorf("bidding.last_phase_window must be positive, got %s", c.Bidding.LastPhaseWindow)
	}
	if c.Bidding.MaxSealedBids < 1 {
		return fmt.Errorf("bidding.max_sealed_bids must be at least 1, got %d", c.Bidding.MaxSealedBids)
	}
	if c.Bidding.SettleRetries < 0 {
		return fmt.Errorf("bidding.settle_retries must not be negative, got %d", c.Bidding.SettleRetries)
	}
	if c.Dispatch.Enabled && c.Dispatch.WebhookURL == "" {
		return fmt.Errorf("dispatch.webhook_url is required when dispatch is enabled")
	}
	return nil
}
