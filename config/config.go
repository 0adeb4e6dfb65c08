package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig         `yaml:"app"`
	Logging   LoggingConfig     `yaml:"logging"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Source    SourceConfig      `yaml:"source"`
	Klines    KlinesConfig      `yaml:"klines"`
	Filters   map[string]string `yaml:"filters"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	Analysis  AnalysisConfig    `yaml:"analysis"`
	Storage   StorageConfig     `yaml:"storage"`
	Archive   ArchiveConfig     `yaml:"archive"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	UsedWeight bool             `yaml:"used_weight"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
}

type BinanceSourceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	LocalIP        string               `yaml:"local_ip"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	Retry          RetryConfig          `yaml:"retry"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// RetryConfig governs retries of the exchange metadata request. Candle
// requests are never retried within a run.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// RateLimitConfig optionally smooths request dispatch. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type KlinesConfig struct {
	Limit    int    `yaml:"limit"`
	Interval string `yaml:"interval"`
}

type SchedulerConfig struct {
	Window time.Duration `yaml:"window"`
	Pause  time.Duration `yaml:"pause"`
}

type AnalysisConfig struct {
	RSIPeriod int `yaml:"rsi_period"`
}

type StorageConfig struct {
	Backend  string         `yaml:"backend"`
	File     FileConfig     `yaml:"file"`
	S3       S3Config       `yaml:"s3"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type FileConfig struct {
	Dir string `yaml:"dir"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	Table    string `yaml:"table"`
	MaxConns int    `yaml:"max_conns"`
}

type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

const (
	StorageBackendFile     = "file"
	StorageBackendS3       = "s3"
	StorageBackendPostgres = "postgres"
)

// Default returns the configuration used for any key the YAML file omits.
func Default() Config {
	return Config{
		App: AppConfig{Name: "moverscan", Version: "dev"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			UsedWeight: true,
			CloudWatch: CloudWatchConfig{Namespace: "MoverScan"},
		},
		Source: SourceConfig{
			Binance: BinanceSourceConfig{
				BaseURL: "https://fapi.binance.com",
				Timeout: 30 * time.Second,
				ConnectionPool: ConnectionPoolConfig{
					MaxIdleConns:    50,
					IdleConnTimeout: 90 * time.Second,
				},
				Retry: RetryConfig{
					MaxAttempts: 3,
					BaseDelay:   500 * time.Millisecond,
					MaxDelay:    10 * time.Second,
				},
			},
		},
		Klines: KlinesConfig{Limit: 500, Interval: "1h"},
		Scheduler: SchedulerConfig{
			Window: 60 * time.Second,
			Pause:  62 * time.Second,
		},
		Analysis: AnalysisConfig{RSIPeriod: 14},
		Storage: StorageConfig{
			Backend: StorageBackendFile,
			File:    FileConfig{Dir: "storage"},
			Postgres: PostgresConfig{
				Table:    "moverscan_records",
				MaxConns: 4,
			},
		},
		Archive: ArchiveConfig{Compression: "snappy"},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	config.Storage.Backend = strings.ToLower(strings.TrimSpace(config.Storage.Backend))
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	switch strings.ToLower(config.Storage.Backend) {
	case StorageBackendS3:
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	case StorageBackendPostgres:
		if v := os.Getenv("DATABASE_URL"); v != "" {
			config.Storage.Postgres.URL = strings.TrimSpace(v)
		}
	}
	if config.Metrics.CloudWatch.Enabled && config.Metrics.CloudWatch.Region == "" {
		config.Metrics.CloudWatch.Region = os.Getenv("AWS_REGION")
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Source.Binance.BaseURL == "" {
		return fmt.Errorf("source.binance.base_url is required")
	}
	if cfg.Source.Binance.Timeout < 0 {
		return fmt.Errorf("source.binance.timeout must not be negative")
	}
	if cfg.Source.Binance.Retry.MaxAttempts < 1 {
		return fmt.Errorf("source.binance.retry.max_attempts must be at least 1")
	}
	if cfg.Source.Binance.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("source.binance.rate_limit.requests_per_second must not be negative")
	}

	if cfg.Klines.Limit <= 0 {
		return fmt.Errorf("klines.limit must be greater than 0")
	}
	if cfg.Klines.Interval == "" {
		return fmt.Errorf("klines.interval is required")
	}

	if cfg.Scheduler.Window < 0 || cfg.Scheduler.Pause < 0 {
		return fmt.Errorf("scheduler.window and scheduler.pause must not be negative")
	}

	if cfg.Analysis.RSIPeriod < 0 {
		return fmt.Errorf("analysis.rsi_period must not be negative")
	}

	switch cfg.Storage.Backend {
	case StorageBackendFile:
		if cfg.Storage.File.Dir == "" {
			return fmt.Errorf("storage.file.dir is required for the file backend")
		}
	case StorageBackendS3:
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required for the s3 backend")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	case StorageBackendPostgres:
		if cfg.Storage.Postgres.URL == "" {
			return fmt.Errorf("storage.postgres.url is required for the postgres backend")
		}
		if !isValidTableName(cfg.Storage.Postgres.Table) {
			return fmt.Errorf("storage.postgres.table '%s' is invalid", cfg.Storage.Postgres.Table)
		}
	default:
		return fmt.Errorf("unknown storage.backend '%s'", cfg.Storage.Backend)
	}

	switch cfg.Archive.Compression {
	case "", "snappy", "gzip", "uncompressed":
	default:
		return fmt.Errorf("archive.compression '%s' is not supported", cfg.Archive.Compression)
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

var tableNameRegexp = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

func isValidTableName(name string) bool {
	return tableNameRegexp.MatchString(name)
}
