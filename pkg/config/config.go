package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config holds the configuration for a zephyr agent
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Postgres configuration (optional, used by the learning archive)
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresMaxConns int

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string

	// Fan agent configuration
	TickIntervalSec int
	ZonesFile       string

	// Default control parameters (per-zone overrides come from ZonesFile)
	Deadband            float64
	MinIntervalMinutes  float64
	SoftError           float64
	HardError           float64
	LimitTimeoutMinutes float64
	SlopeThreshold      float64

	// Learning configuration
	StagnationThreshold float64
	WindowHours         float64
	MinSamples          int
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:       "localhost",
		MQTTPort:         1883,
		MQTTUser:         "",
		MQTTPassword:     "",
		MQTTClientID:     "",
		RedisHost:        "localhost",
		RedisPort:        6379,
		RedisPassword:    "",
		RedisDB:          0,
		PostgresEnabled:  false,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "zephyr",
		PostgresPassword: "",
		PostgresDB:       "zephyr",
		PostgresMaxConns: 5,
		ServiceName:      "zephyr-agent",
		HealthPort:       8080,
		LogLevel:         "info",
		// Fan agent defaults
		TickIntervalSec: 120,
		ZonesFile:       "",
		// Control defaults
		Deadband:            0.2,
		MinIntervalMinutes:  10,
		SoftError:           0.3,
		HardError:           0.6,
		LimitTimeoutMinutes: 15,
		SlopeThreshold:      0.1,
		// Learning defaults
		StagnationThreshold: 0.15,
		WindowHours:         168,
		MinSamples:          240,
	}
}

// LoadFromEnv loads configuration from environment variables with ZEPHYR_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	if v := os.Getenv("ZEPHYR_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("ZEPHYR_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v := os.Getenv("ZEPHYR_MQTT_USER"); v != "" {
		c.MQTTUser = v
	}
	if v := os.Getenv("ZEPHYR_MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := os.Getenv("ZEPHYR_MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}

	// Redis configuration
	if v := os.Getenv("ZEPHYR_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("ZEPHYR_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("ZEPHYR_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("ZEPHYR_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}

	// Postgres configuration
	if v := os.Getenv("ZEPHYR_POSTGRES_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.PostgresEnabled = enabled
		}
	}
	if v := os.Getenv("ZEPHYR_POSTGRES_HOST"); v != "" {
		c.PostgresHost = v
	}
	if v := os.Getenv("ZEPHYR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.PostgresPort = port
		}
	}
	if v := os.Getenv("ZEPHYR_POSTGRES_USER"); v != "" {
		c.PostgresUser = v
	}
	if v := os.Getenv("ZEPHYR_POSTGRES_PASSWORD"); v != "" {
		c.PostgresPassword = v
	}
	if v := os.Getenv("ZEPHYR_POSTGRES_DB"); v != "" {
		c.PostgresDB = v
	}

	// Service configuration
	if v := os.Getenv("ZEPHYR_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("ZEPHYR_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("ZEPHYR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// Fan agent configuration
	if v := os.Getenv("ZEPHYR_TICK_INTERVAL_SEC"); v != "" {
		if interval, err := strconv.Atoi(v); err == nil {
			c.TickIntervalSec = interval
		}
	}
	if v := os.Getenv("ZEPHYR_ZONES_FILE"); v != "" {
		c.ZonesFile = v
	}

	// Control parameters
	if v := os.Getenv("ZEPHYR_DEADBAND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Deadband = f
		}
	}
	if v := os.Getenv("ZEPHYR_MIN_INTERVAL_MINUTES"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MinIntervalMinutes = f
		}
	}
	if v := os.Getenv("ZEPHYR_SOFT_ERROR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SoftError = f
		}
	}
	if v := os.Getenv("ZEPHYR_HARD_ERROR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HardError = f
		}
	}
	if v := os.Getenv("ZEPHYR_LIMIT_TIMEOUT_MINUTES"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.LimitTimeoutMinutes = f
		}
	}
	if v := os.Getenv("ZEPHYR_SLOPE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SlopeThreshold = f
		}
	}

	// Learning parameters
	if v := os.Getenv("ZEPHYR_STAGNATION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.StagnationThreshold = f
		}
	}
	if v := os.Getenv("ZEPHYR_WINDOW_HOURS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.WindowHours = f
		}
	}
	if v := os.Getenv("ZEPHYR_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinSamples = n
		}
	}
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	// MQTT flags
	pflag.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	pflag.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	pflag.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	pflag.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	pflag.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	pflag.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	pflag.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	pflag.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	pflag.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Postgres flags
	pflag.BoolVar(&c.PostgresEnabled, "postgres-enabled", c.PostgresEnabled, "Enable the Postgres learning archive")
	pflag.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname")
	pflag.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	pflag.StringVar(&c.PostgresUser, "postgres-user", c.PostgresUser, "Postgres username")
	pflag.StringVar(&c.PostgresPassword, "postgres-password", c.PostgresPassword, "Postgres password")
	pflag.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database name")

	// Service flags
	pflag.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	pflag.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	pflag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	// Fan agent flags
	pflag.IntVar(&c.TickIntervalSec, "tick-interval", c.TickIntervalSec, "Control tick interval in seconds")
	pflag.StringVar(&c.ZonesFile, "zones-file", c.ZonesFile, "YAML file with per-zone control overrides")

	// Control flags
	pflag.Float64Var(&c.Deadband, "deadband", c.Deadband, "Temperature tolerance zone around target")
	pflag.Float64Var(&c.MinIntervalMinutes, "min-interval", c.MinIntervalMinutes, "Minimum minutes between fan changes")
	pflag.Float64Var(&c.SoftError, "soft-error", c.SoftError, "Error threshold for recovery behavior")
	pflag.Float64Var(&c.HardError, "hard-error", c.HardError, "Error threshold for emergency behavior")
	pflag.Float64Var(&c.LimitTimeoutMinutes, "limit-timeout", c.LimitTimeoutMinutes, "Minutes after which a change interval is considered expired")
	pflag.Float64Var(&c.SlopeThreshold, "slope-threshold", c.SlopeThreshold, "Slope delta considered a significant change (°/h)")

	// Learning flags
	pflag.Float64Var(&c.StagnationThreshold, "stagnation-threshold", c.StagnationThreshold, "Minimum |slope| for a learnable sample (°/h)")
	pflag.Float64Var(&c.WindowHours, "window-hours", c.WindowHours, "Learning sample retention window in hours")
	pflag.IntVar(&c.MinSamples, "min-samples", c.MinSamples, "Samples required before learning is ready")

	pflag.Parse()
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.PostgresEnabled {
		if c.PostgresHost == "" {
			return fmt.Errorf("Postgres host is required when the archive is enabled")
		}
		if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
			return fmt.Errorf("Postgres port must be between 1 and 65535")
		}
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.TickIntervalSec <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns the lib/pq connection string
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB)
}

// TickInterval returns the control tick period as a duration
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSec) * time.Second
}
