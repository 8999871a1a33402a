// Package config provides configuration management for Firewatch.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firewatch.io/firewatch/internal/activity"
	"firewatch.io/firewatch/internal/cache"
	"firewatch.io/firewatch/internal/orchestration"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Risk          RiskConfig          `mapstructure:"risk"`
	Availability  AvailabilityConfig  `mapstructure:"availability"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	// UnsafeAllowAllOrigins permits a wildcard origin; development only.
	UnsafeAllowAllOrigins bool `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings. When neither URL
// nor Host is set the engine runs on the in-memory history store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// Enabled reports whether a PostgreSQL connection is configured at all.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize  int `mapstructure:"general_pool_size"`
	ActivityPoolSize int `mapstructure:"activity_pool_size"`
}

// OrchestrationConfig contains the engine's decision parameters. Intervals
// and timeouts are expressed in abstract time-units scaled by TimeUnit, so
// the same parameters drive fast tests and real deployments.
type OrchestrationConfig struct {
	TimeUnit time.Duration `mapstructure:"time_unit"`

	RiskThreshold           int `mapstructure:"risk_threshold"`
	ActivityTimeoutUnits    int `mapstructure:"activity_timeout_units"`
	EscalationIntervalUnits int `mapstructure:"escalation_interval_units"`
	EscalationMaxAttempts   int `mapstructure:"escalation_max_attempts"`
}

// Engine converts the section into engine parameters with real durations.
func (c OrchestrationConfig) Engine() orchestration.Config {
	return orchestration.Config{
		RiskThreshold:   c.RiskThreshold,
		ActivityTimeout: time.Duration(c.ActivityTimeoutUnits) * c.TimeUnit,
		Escalation: activity.RetryPolicy{
			FirstInterval: time.Duration(c.EscalationIntervalUnits) * c.TimeUnit,
			MaxAttempts:   c.EscalationMaxAttempts,
		},
	}
}

// CacheConfig contains resource-availability cache settings, in the same
// abstract time-units as the orchestration section.
type CacheConfig struct {
	SlidingUnits  int `mapstructure:"sliding_units"`
	AbsoluteUnits int `mapstructure:"absolute_units"`
}

// Cache converts the section into cache expiration parameters.
func (c CacheConfig) Cache(timeUnit time.Duration) cache.Config {
	return cache.Config{
		Sliding:  time.Duration(c.SlidingUnits) * timeUnit,
		Absolute: time.Duration(c.AbsoluteUnits) * timeUnit,
	}
}

// RiskConfig tunes risk analysis.
type RiskConfig struct {
	// Exposure is an additive per-location risk uplift.
	Exposure map[string]int `mapstructure:"exposure"`
}

// AvailabilityConfig describes the regional availability source.
type AvailabilityConfig struct {
	// Units is the deployable-unit count per resource type reported for
	// every region by the static availability source.
	Units map[string]int `mapstructure:"units"`
}

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (DATABASE_URL, SERVER_PORT,
// etc.); nested keys map as orchestration.risk_threshold →
// ORCHESTRATION_RISK_THRESHOLD.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/firewatch")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Orchestration.TimeUnit <= 0 {
		return fmt.Errorf("orchestration.time_unit must be positive")
	}
	if c.Orchestration.EscalationMaxAttempts < 1 {
		return fmt.Errorf("orchestration.escalation_max_attempts must be at least 1")
	}
	if c.Orchestration.ActivityTimeoutUnits < 1 {
		return fmt.Errorf("orchestration.activity_timeout_units must be at least 1")
	}
	if c.Cache.SlidingUnits < 1 || c.Cache.AbsoluteUnits < 1 {
		return fmt.Errorf("cache expiration units must be at least 1")
	}
	if c.Cache.AbsoluteUnits < c.Cache.SlidingUnits {
		return fmt.Errorf("cache.absolute_units must not be below cache.sliding_units")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database: empty by default, in-memory store unless configured
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "firewatch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "firewatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.activity_pool_size", 50)

	// Orchestration
	v.SetDefault("orchestration.time_unit", "1s")
	v.SetDefault("orchestration.risk_threshold", 8)
	v.SetDefault("orchestration.activity_timeout_units", 5)
	v.SetDefault("orchestration.escalation_interval_units", 5)
	v.SetDefault("orchestration.escalation_max_attempts", 3)

	// Availability cache
	v.SetDefault("cache.sliding_units", 10)
	v.SetDefault("cache.absolute_units", 60)

	// Risk analysis
	v.SetDefault("risk.exposure", map[string]int{})

	// Availability source
	v.SetDefault("availability.units", map[string]int{
		"medical":       10,
		"search_rescue": 8,
		"logistics":     12,
	})
}
