// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// AllowDefaultCredentials lets the client fall back to Application Default
	// Credentials (metadata server) when no credentials file is configured.
	AllowDefaultCredentials bool   `env:"ALLOW_DEFAULT_CREDENTIALS" envDefault:"false"`
	ProjectID               string `env:"GCP_PROJECT_ID"`

	Port            string        `env:"PORT" envDefault:"8080"`
	APIKey          string        `env:"API_KEY"`
	GinMode         string        `env:"GIN_MODE"`
	RunMode         string        `env:"RUN_MODE"`
	ExportDriver    string        `env:"EXPORT_DRIVER" envDefault:"GCS"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// LocalOutputDir is the only directory HTTP export requests may write
	// local files into. Empty means HTTP requests can only target gs://.
	LocalOutputDir string `env:"LOCAL_OUTPUT_DIR"`

	PollInterval    time.Duration `env:"BQ_POLL_INTERVAL" envDefault:"1s"`
	MaxPollInterval time.Duration `env:"BQ_MAX_POLL_INTERVAL" envDefault:"10s"`

	Job       JobConfig       `envPrefix:"JOB_"`
	StarRocks StarRocksConfig `envPrefix:"STARROCKS_"`
}

// JobConfig describes the single export executed when RUN_MODE=job.
type JobConfig struct {
	Query         string `env:"QUERY"`
	QueryLocation string `env:"QUERY_LOCATION"`
	Table         string `env:"TABLE"`
	Database      string `env:"DATABASE"`
	Output        string `env:"OUTPUT"`
	Filename      string `env:"FILENAME"`
	Format        string `env:"FORMAT"`
	CreateDDL     string `env:"CREATE_DDL"`
	// Kept as text so "yes" and "1" work alongside "true".
	UseTimestampRaw string `env:"USE_TIMESTAMP"`
}

// UseTimestamp reports whether JOB_USE_TIMESTAMP holds a truthy value.
func (j JobConfig) UseTimestamp() bool {
	ut := strings.ToLower(strings.TrimSpace(j.UseTimestampRaw))
	return ut == "true" || ut == "1" || ut == "yes"
}

// StarRocksConfig holds the connection settings of the StarRocks sink.
type StarRocksConfig struct {
	Host      string `env:"HOST"`
	Port      string `env:"PORT"`
	User      string `env:"USER"`
	Password  string `env:"PASSWORD"`
	DB        string `env:"DB"`
	BatchSize int    `env:"BATCH_SIZE" envDefault:"1000"`
}

// Validate checks that every required StarRocks setting is present.
func (s StarRocksConfig) Validate() error {
	if s.Host == "" || s.Port == "" || s.User == "" || s.DB == "" {
		return fmt.Errorf("missing StarRocks env: require STARROCKS_HOST, STARROCKS_PORT, STARROCKS_USER, STARROCKS_DB")
	}
	return nil
}

// IsJobMode reports whether the process should run one export and exit.
func (c Config) IsJobMode() bool { return strings.EqualFold(c.RunMode, "job") }

// Load reads an optional .env file and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using system environment variables")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.StarRocks.BatchSize <= 0 {
		cfg.StarRocks.BatchSize = 1000
	}
	return cfg, nil
}
