package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Collector CollectorConfig
	Analytics AnalyticsConfig
	Export    ExportConfig
	Taxonomy  TaxonomyConfig
	Logger    LoggerConfig
	Security  SecurityConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Path string
}

type CollectorConfig struct {
	BaseURL        string
	UserAgent      string
	RequestTimeout time.Duration
	MaxPages       int
	PageSize       int
	PageDelay      time.Duration
	RateLimit      float64
	RateBurst      int
	MaxRetries     int
	Workers        int
	ProgressFile   string
}

type AnalyticsConfig struct {
	CacheDir        string
	TopRecipients   int
	MinTrendPoints  int
	TrendThreshold  float64
	SeasonalMinimum int
}

type ExportConfig struct {
	Dir string
}

type TaxonomyConfig struct {
	File string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8090),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Path: getEnvString("STORE_PATH", "awards.db"),
		},
		Collector: CollectorConfig{
			BaseURL:        getEnvString("COLLECTOR_BASE_URL", "https://api.usaspending.gov/api/v2"),
			UserAgent:      getEnvString("COLLECTOR_USER_AGENT", "CleanSpend/1.0"),
			RequestTimeout: getEnvDuration("COLLECTOR_REQUEST_TIMEOUT", 30*time.Second),
			MaxPages:       getEnvInt("COLLECTOR_MAX_PAGES", 10),
			PageSize:       getEnvInt("COLLECTOR_PAGE_SIZE", 100),
			PageDelay:      getEnvDuration("COLLECTOR_PAGE_DELAY", 500*time.Millisecond),
			RateLimit:      getEnvFloat("COLLECTOR_RATE_LIMIT", 10),
			RateBurst:      getEnvInt("COLLECTOR_RATE_BURST", 1),
			MaxRetries:     getEnvInt("COLLECTOR_MAX_RETRIES", 3),
			Workers:        getEnvInt("COLLECTOR_WORKERS", 4),
			ProgressFile:   getEnvString("COLLECTOR_PROGRESS_FILE", "collection_progress.json"),
		},
		Analytics: AnalyticsConfig{
			CacheDir:        getEnvString("ANALYTICS_CACHE_DIR", ".cache"),
			TopRecipients:   getEnvInt("ANALYTICS_TOP_RECIPIENTS", 50),
			MinTrendPoints:  getEnvInt("ANALYTICS_MIN_TREND_POINTS", 3),
			TrendThreshold:  getEnvFloat("ANALYTICS_TREND_THRESHOLD", 0.01),
			SeasonalMinimum: getEnvInt("ANALYTICS_SEASONAL_MINIMUM", 12),
		},
		Export: ExportConfig{
			Dir: getEnvString("EXPORT_DIR", "exports"),
		},
		Taxonomy: TaxonomyConfig{
			File: getEnvString("TAXONOMY_FILE", ""),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			EnableRateLimit: getEnvBool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    getEnvInt("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvInt("SECURITY_RATE_LIMIT_BURST", 10),
			AllowedOrigins:  getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8090"}),
			TrustedProxies:  getEnvStringSlice("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}

	if c.Collector.BaseURL == "" {
		return fmt.Errorf("collector base URL cannot be empty")
	}

	if c.Collector.MaxPages < 1 {
		return fmt.Errorf("collector max pages must be at least 1")
	}

	if c.Collector.PageSize < 1 || c.Collector.PageSize > 100 {
		return fmt.Errorf("collector page size must be between 1 and 100, got %d", c.Collector.PageSize)
	}

	if c.Collector.RateLimit <= 0 {
		return fmt.Errorf("collector rate limit must be positive")
	}

	if c.Collector.Workers < 1 {
		return fmt.Errorf("collector workers must be at least 1")
	}

	if c.Analytics.MinTrendPoints < 2 {
		return fmt.Errorf("minimum trend points must be at least 2")
	}

	if c.Analytics.TrendThreshold < 0 {
		return fmt.Errorf("trend threshold cannot be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
