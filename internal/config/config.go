package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the revlift service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Analysis   AnalysisConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// ClickHouseConfig configures the columnar event store used for very
// large event logs.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	User     string
	Password string
	MaxConns int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// AnalysisConfig holds the tunables of the analysis pipeline.
type AnalysisConfig struct {
	// Horizons is the ascending list of cumulative-revenue windows, in days.
	Horizons []int
	// CorrelationThreshold is the minimum Spearman correlation with the
	// longest horizon for an earlier horizon to count as predictive.
	CorrelationThreshold float64
	// BaselineFactor is the flat uplift factor applied to every estimate.
	BaselineFactor float64
	// CacheTTL bounds how long computed aggregate tables stay in Redis.
	CacheTTL time.Duration
}

// MaxHorizon returns the longest configured horizon in days.
func (a AnalysisConfig) MaxHorizon() int {
	return a.Horizons[len(a.Horizons)-1]
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("REVLIFT_HTTP_ADDR", ":8080"),
			Env:             getEnv("REVLIFT_ENV", "development"),
			ShutdownTimeout: getDurationEnv("REVLIFT_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxUploadBytes:  int64(getIntEnv("REVLIFT_MAX_UPLOAD_BYTES", 256<<20)),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("REVLIFT_DB_ENABLED", true),
			Host:     getEnv("REVLIFT_DB_HOST", "localhost"),
			Port:     getIntEnv("REVLIFT_DB_PORT", 5432),
			User:     getEnv("REVLIFT_DB_USER", "revlift"),
			Password: getEnv("REVLIFT_DB_PASSWORD", "revlift_secret"),
			DBName:   getEnv("REVLIFT_DB_NAME", "revlift"),
			SSLMode:  getEnv("REVLIFT_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("REVLIFT_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("REVLIFT_DB_MIN_CONNS", 5),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("REVLIFT_CH_ENABLED", false),
			Addr:     getEnv("REVLIFT_CH_ADDR", "localhost:9000"),
			Database: getEnv("REVLIFT_CH_DATABASE", "revlift"),
			User:     getEnv("REVLIFT_CH_USER", "default"),
			Password: getEnv("REVLIFT_CH_PASSWORD", ""),
			MaxConns: getIntEnv("REVLIFT_CH_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REVLIFT_REDIS_ENABLED", true),
			Addr:     getEnv("REVLIFT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REVLIFT_REDIS_PASSWORD", ""),
			DB:       getIntEnv("REVLIFT_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("REVLIFT_AUTH_ENABLED", false),
			MasterKey: getEnv("REVLIFT_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("REVLIFT_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("REVLIFT_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("REVLIFT_RATE_LIMIT_RPS", 50),
			Burst:   getIntEnv("REVLIFT_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("REVLIFT_LOG_LEVEL", "info"),
			Format: getEnv("REVLIFT_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("REVLIFT_METRICS_ENABLED", true),
			Path:    getEnv("REVLIFT_METRICS_PATH", "/metrics"),
		},
		Analysis: AnalysisConfig{
			Horizons:             getIntSliceEnv("REVLIFT_ANALYSIS_HORIZONS", []int{1, 3, 7, 14, 30, 60, 90, 180}),
			CorrelationThreshold: getFloatEnv("REVLIFT_ANALYSIS_CORRELATION_THRESHOLD", 0.85),
			BaselineFactor:       getFloatEnv("REVLIFT_ANALYSIS_BASELINE_FACTOR", 0.10),
			CacheTTL:             getDurationEnv("REVLIFT_ANALYSIS_CACHE_TTL", 24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("REVLIFT_API_KEY_MASTER is required when auth is enabled")
	}
	if len(c.Analysis.Horizons) < 2 {
		return fmt.Errorf("REVLIFT_ANALYSIS_HORIZONS needs at least two horizons, got %d", len(c.Analysis.Horizons))
	}
	if !sort.IntsAreSorted(c.Analysis.Horizons) {
		return fmt.Errorf("REVLIFT_ANALYSIS_HORIZONS must be ascending: %v", c.Analysis.Horizons)
	}
	for i := 1; i < len(c.Analysis.Horizons); i++ {
		if c.Analysis.Horizons[i] == c.Analysis.Horizons[i-1] {
			return fmt.Errorf("REVLIFT_ANALYSIS_HORIZONS contains duplicate horizon %d", c.Analysis.Horizons[i])
		}
	}
	if c.Analysis.Horizons[0] <= 0 {
		return fmt.Errorf("REVLIFT_ANALYSIS_HORIZONS must be positive: %v", c.Analysis.Horizons)
	}
	if c.Analysis.CorrelationThreshold <= 0 || c.Analysis.CorrelationThreshold >= 1 {
		return fmt.Errorf("REVLIFT_ANALYSIS_CORRELATION_THRESHOLD must be in (0, 1), got %g", c.Analysis.CorrelationThreshold)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}

func getIntSliceEnv(key string, def []int) []int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]int, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			i, err := strconv.Atoi(p)
			if err != nil {
				return def
			}
			result = append(result, i)
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
