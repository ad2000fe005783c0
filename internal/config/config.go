package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Agent     AgentConfig
	Telemetry TelemetryConfig
	Backend   BackendConfig
	Location  LocationConfig
	Metrics   MetricsConfig
	NewRelic  NewRelicConfig
	Sentry    SentryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AgentConfig identifies this agent and tunes its background loops.
type AgentConfig struct {
	OperatorID       string
	OrgID            string
	SessionToken     string
	FlushInterval    time.Duration
	TaskPollInterval time.Duration
}

// TelemetryConfig holds the GPS ingestion endpoint configuration.
type TelemetryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// BackendConfig holds the trip records API configuration.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

// LocationConfig holds the simulated GPS source configuration.
type LocationConfig struct {
	RouteFile string
	Interval  time.Duration
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool
	Port    string
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// SentryConfig holds Sentry configuration.
type SentryConfig struct {
	DSN         string
	Environment string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Agent: AgentConfig{
			OperatorID:       getEnv("AGENT_OPERATOR_ID", "demo-operator"),
			OrgID:            getEnv("AGENT_ORG_ID", "demo-org"),
			SessionToken:     getEnv("AGENT_SESSION_TOKEN", ""),
			FlushInterval:    getDurationEnv("AGENT_FLUSH_INTERVAL", 30*time.Second),
			TaskPollInterval: getDurationEnv("AGENT_TASK_POLL_INTERVAL", 5*time.Second),
		},
		Telemetry: TelemetryConfig{
			BaseURL: getEnv("TELEMETRY_BASE_URL", "http://localhost:9000"),
			Timeout: getDurationEnv("TELEMETRY_TIMEOUT", 10*time.Second),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:9001"),
			Timeout: getDurationEnv("BACKEND_TIMEOUT", 10*time.Second),
			APIKey:  getEnv("BACKEND_API_KEY", ""),
		},
		Location: LocationConfig{
			RouteFile: getEnv("LOCATION_ROUTE_FILE", "configs/route.yaml"),
			Interval:  getDurationEnv("LOCATION_INTERVAL", 12*time.Second),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("METRICS_ENABLED", false),
			Port:    getEnv("METRICS_PORT", "9102"),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "bustrack-agent"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: getEnv("SENTRY_ENVIRONMENT", "development"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
