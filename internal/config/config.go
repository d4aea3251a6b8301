package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendSQS    = "sqs"

	CatalogNone     = "none"
	CatalogSQLite   = "sqlite"
	CatalogPostgres = "postgres"
)

// QueueConfig is a queue created at startup when it does not already exist.
type QueueConfig struct {
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes"`
}

// Config holds all environment configuration
type Config struct {
	Port                int           `yaml:"port"`
	StoreBackend        string        `yaml:"store_backend"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	LogLevel            string        `yaml:"log_level"`
	CatalogDriver       string        `yaml:"catalog_driver"`
	CatalogPath         string        `yaml:"catalog_path"`
	DatabaseURL         string        `yaml:"database_url"`
	DBConnectionTimeout time.Duration `yaml:"db_connection_timeout"`
	AWSRegion           string        `yaml:"aws_region"`
	SQSEndpoint         string        `yaml:"sqs_endpoint"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	Queues              []QueueConfig `yaml:"queues"`
}

func defaults() *Config {
	return &Config{
		Port:                8080,
		StoreBackend:        BackendMemory,
		SweepInterval:       100 * time.Millisecond,
		LogLevel:            "info",
		CatalogDriver:       CatalogNone,
		CatalogPath:         "sqs-lite.db",
		DBConnectionTimeout: 5 * time.Second,
		RequestTimeout:      5 * time.Second,
	}
}

// helper: read env var as int seconds or a Go duration string ("250ms")
func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(name); exists {
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	if value, exists := os.LookupEnv(name); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultVal
}

func getEnv(name, defaultVal string) string {
	if value, exists := os.LookupEnv(name); exists {
		return value
	}
	return defaultVal
}

// LoadConfig loads the file named by CONFIG_FILE, if any, then applies the environment.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load reads defaults, then the YAML file at path (skipped when empty), then
// environment variables. Later sources win.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnvAsInt("PORT", cfg.Port)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.CatalogDriver = getEnv("CATALOG_DRIVER", cfg.CatalogDriver)
	cfg.CatalogPath = getEnv("CATALOG_PATH", cfg.CatalogPath)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBConnectionTimeout = getEnvAsDuration("DB_CONNECTION_TIMEOUT", cfg.DBConnectionTimeout)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.SQSEndpoint = getEnv("SQS_ENDPOINT", cfg.SQSEndpoint)
	cfg.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	switch c.StoreBackend {
	case BackendMemory, BackendSQS:
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q", c.StoreBackend)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("invalid SWEEP_INTERVAL: %s", c.SweepInterval)
	}
	switch c.CatalogDriver {
	case CatalogNone:
	case CatalogSQLite:
		if c.CatalogPath == "" {
			return errors.New("CATALOG_PATH is required for the sqlite catalog")
		}
	case CatalogPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres catalog")
		}
	default:
		return fmt.Errorf("invalid CATALOG_DRIVER: %q", c.CatalogDriver)
	}
	if c.StoreBackend == BackendSQS && c.CatalogDriver != CatalogNone {
		return errors.New("the sqs backend keeps no catalog; set CATALOG_DRIVER=none")
	}
	for i, q := range c.Queues {
		if q.Name == "" {
			return fmt.Errorf("queues[%d]: name is required", i)
		}
	}
	return nil
}
