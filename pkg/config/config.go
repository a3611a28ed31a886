// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Crawl, Query, Redis, Kafka, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Index   IndexConfig   `yaml:"index"`
	Crawl   CrawlConfig   `yaml:"crawl"`
	Query   QueryConfig   `yaml:"query"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the search front end.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RatePerSecond   float64       `yaml:"ratePerSecond"`
	RateBurst       int           `yaml:"rateBurst"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// IndexConfig controls how text sources are discovered and indexed.
type IndexConfig struct {
	Workers       int      `yaml:"workers"`
	Extensions    []string `yaml:"extensions"`
	StemCacheSize int      `yaml:"stemCacheSize"`
}

// CrawlConfig controls the web crawler's link budget and fetch behaviour.
type CrawlConfig struct {
	Limit         int           `yaml:"limit"`
	FetchAttempts int           `yaml:"fetchAttempts"`
	FetchTimeout  time.Duration `yaml:"fetchTimeout"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	MaxBodyBytes  int64         `yaml:"maxBodyBytes"`
	UserAgent     string        `yaml:"userAgent"`
}

// QueryConfig controls query evaluation.
type QueryConfig struct {
	DefaultExact bool `yaml:"defaultExact"`
	MaxResults   int  `yaml:"maxResults"`
}

// RedisConfig holds Redis connection parameters for the result mirror.
// An empty Addr disables the mirror.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings for engine events.
// No brokers disables event publishing.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"eventsTopic"`
	BufferSize  int      `yaml:"bufferSize"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with env overrides applied.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// Validate rejects values that would make the engine misbehave.
func (c *Config) Validate() error {
	if c.Index.Workers < 1 {
		return fmt.Errorf("index.workers must be positive, got %d", c.Index.Workers)
	}
	if c.Crawl.Limit < 1 {
		return fmt.Errorf("crawl.limit must be positive, got %d", c.Crawl.Limit)
	}
	if c.Crawl.FetchAttempts < 1 {
		return fmt.Errorf("crawl.fetchAttempts must be positive, got %d", c.Crawl.FetchAttempts)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RatePerSecond:   20,
			RateBurst:       40,
		},
		Index: IndexConfig{
			Workers:       5,
			Extensions:    []string{".txt", ".text"},
			StemCacheSize: 50000,
		},
		Crawl: CrawlConfig{
			Limit:         50,
			FetchAttempts: 3,
			FetchTimeout:  10 * time.Second,
			RetryDelay:    200 * time.Millisecond,
			MaxBodyBytes:  8 << 20,
			UserAgent:     "searchengine-crawler/1.0",
		},
		Query: QueryConfig{
			MaxResults: 100,
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			EventsTopic: "search-engine-events",
			BufferSize:  10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Workers = n
		}
	}
	if v := os.Getenv("SP_CRAWL_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crawl.Limit = n
		}
	}
	if v := os.Getenv("SP_CRAWL_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawl.FetchTimeout = d
		}
	}
	if v := os.Getenv("SP_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_KAFKA_EVENTS_TOPIC"); v != "" {
		cfg.Kafka.EventsTopic = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("SP_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
