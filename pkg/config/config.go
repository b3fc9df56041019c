// Package config loads and validates application configuration from YAML files
// with .env and environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Kafka, Redis, Search, Ingestion, etc.).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Sort orders accepted by SearchConfig.SortOrder.
const (
	SortAscending  = "ascending"
	SortDescending = "descending"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Search    SearchConfig    `yaml:"search"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	ConnectAttempts int           `yaml:"connectAttempts"`
	SearchPath      string        `yaml:"searchPath"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
	if p.SearchPath != "" {
		dsn += " search_path=" + p.SearchPath
	}
	return dsn
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	PageIngest      string `yaml:"pageIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SearchConfig controls ranking order and result caching.
type SearchConfig struct {
	SortOrder          string        `yaml:"sortOrder"`
	CacheEnabled       bool          `yaml:"cacheEnabled"`
	BreakerThreshold   int           `yaml:"breakerThreshold"`
	BreakerResetPeriod time.Duration `yaml:"breakerResetPeriod"`
}

// IngestionConfig bounds the size of pages accepted for indexing.
type IngestionConfig struct {
	MaxTitleLength       int `yaml:"maxTitleLength"`
	MaxDescriptionLength int `yaml:"maxDescriptionLength"`
	MaxBodyLength        int `yaml:"maxBodyLength"`
}

// AnalyticsConfig controls event batching in the searcher and snapshot
// persistence in the analytics service.
type AnalyticsConfig struct {
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// GatewayConfig locates the backend services and sets per-client limits
// for the public gateway.
type GatewayConfig struct {
	SearcherURL  string        `yaml:"searcherURL"`
	IngestionURL string        `yaml:"ingestionURL"`
	AnalyticsURL string        `yaml:"analyticsURL"`
	RateLimit    int           `yaml:"rateLimit"`
	RateWindow   time.Duration `yaml:"rateWindow"`
	AllowOrigins []string      `yaml:"allowOrigins"`
	ProxyTimeout time.Duration `yaml:"proxyTimeout"`
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

// Load reads a .env file from the working directory (if present), a YAML
// config file (if provided) and applies environment-variable overrides. It
// returns a Config populated with defaults for any missing values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Search.SortOrder {
	case SortAscending, SortDescending:
	default:
		return fmt.Errorf("search.sortOrder must be %q or %q, got %q", SortAscending, SortDescending, c.Search.SortOrder)
	}
	if c.Analytics.BatchSize <= 0 {
		return fmt.Errorf("analytics.batchSize must be positive, got %d", c.Analytics.BatchSize)
	}
	if c.Analytics.FlushInterval <= 0 || c.Analytics.SnapshotInterval <= 0 {
		return errors.New("analytics.flushInterval and analytics.snapshotInterval must be positive")
	}
	if c.Gateway.RateLimit <= 0 || c.Gateway.RateWindow <= 0 {
		return errors.New("gateway.rateLimit and gateway.rateWindow must be positive")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3001,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "search",
			User:            "search",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectAttempts: 5,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "keyword-search-group",
			Topics: KafkaTopics{
				PageIngest:      "page-ingest",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Search: SearchConfig{
			SortOrder:          SortAscending,
			CacheEnabled:       false,
			BreakerThreshold:   5,
			BreakerResetPeriod: 30 * time.Second,
		},
		Ingestion: IngestionConfig{
			MaxTitleLength:       1024,
			MaxDescriptionLength: 4096,
			MaxBodyLength:        1 << 20,
		},
		Analytics: AnalyticsConfig{
			BatchSize:        100,
			FlushInterval:    time.Second,
			SnapshotInterval: time.Minute,
		},
		Gateway: GatewayConfig{
			SearcherURL:  "http://localhost:3001",
			IngestionURL: "http://localhost:3002",
			AnalyticsURL: "http://localhost:3004",
			RateLimit:    120,
			RateWindow:   time.Minute,
			AllowOrigins: []string{"*"},
			ProxyTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables (and the legacy DB_*
// variables) and overrides the corresponding config fields. SP_* wins when
// both are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := firstEnv("SP_POSTGRES_HOST", "DB_HOST"); v != "" {
		host, port, found := strings.Cut(v, ":")
		cfg.Postgres.Host = host
		if found {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Postgres.Port = p
			}
		}
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := firstEnv("SP_POSTGRES_DATABASE", "DB_NAME"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := firstEnv("SP_POSTGRES_USER", "DB_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := firstEnv("SP_POSTGRES_PASSWORD", "DB_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_SEARCH_SORT_ORDER"); v != "" {
		cfg.Search.SortOrder = strings.ToLower(v)
	}
	if v := os.Getenv("SP_SEARCH_CACHE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Search.CacheEnabled = enabled
		}
	}
	if v := os.Getenv("SP_GATEWAY_SEARCHER_URL"); v != "" {
		cfg.Gateway.SearcherURL = v
	}
	if v := os.Getenv("SP_GATEWAY_INGESTION_URL"); v != "" {
		cfg.Gateway.IngestionURL = v
	}
	if v := os.Getenv("SP_GATEWAY_ANALYTICS_URL"); v != "" {
		cfg.Gateway.AnalyticsURL = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
