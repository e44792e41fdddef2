package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	TickInterval time.Duration

	PropagationThreshold float64
	PropagationMaxHops   int

	DeployProbabilityThreshold float64
	DeploySustainDuration      time.Duration
	DeployMaxWindSpeed         float64
	TargetAltitudeM            float64
	AscentRateMS               float64
	DescentRateMS              float64

	// Kafka alert publishing. Enabled only when both brokers and topic are set.
	KafkaBrokers     []string
	KafkaAlertsTopic string
}

// GetLogLevel implements observability.LoggerConfig.
func (c *Config) GetLogLevel() string { return c.LogLevel }

// GetLogFormat implements observability.LoggerConfig.
func (c *Config) GetLogFormat() string { return c.LogFormat }

// AlertPublishingEnabled reports whether alerts should also be produced to Kafka.
func (c *Config) AlertPublishingEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaAlertsTopic != ""
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	tickInterval, err := parseDuration("ENGINE_TICK_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	sustain, err := parseDuration("DEPLOY_SUSTAIN_DURATION", 30*time.Second)
	if err != nil {
		return nil, err
	}

	redisDB, err := parseInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	maxHops, err := parseInt("PROPAGATION_MAX_HOPS", 4)
	if err != nil {
		return nil, err
	}

	propagationThreshold, err := parseFloat("PROPAGATION_THRESHOLD", 30)
	if err != nil {
		return nil, err
	}
	deployThreshold, err := parseFloat("DEPLOY_PROBABILITY_THRESHOLD", 50)
	if err != nil {
		return nil, err
	}
	maxWind, err := parseFloat("DEPLOY_MAX_WIND_SPEED", 15)
	if err != nil {
		return nil, err
	}
	targetAltitude, err := parseFloat("TARGET_ALTITUDE_M", 400)
	if err != nil {
		return nil, err
	}
	ascentRate, err := parseFloat("ASCENT_RATE_MS", 2.5)
	if err != nil {
		return nil, err
	}
	descentRate, err := parseFloat("DESCENT_RATE_MS", 2.0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RedisAddr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		TickInterval: tickInterval,

		PropagationThreshold: propagationThreshold,
		PropagationMaxHops:   maxHops,

		DeployProbabilityThreshold: deployThreshold,
		DeploySustainDuration:      sustain,
		DeployMaxWindSpeed:         maxWind,
		TargetAltitudeM:            targetAltitude,
		AscentRateMS:               ascentRate,
		DescentRateMS:              descentRate,

		KafkaBrokers:     parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaAlertsTopic: os.Getenv("KAFKA_ALERTS_TOPIC"),
	}

	if cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required")
	}
	if cfg.TickInterval <= 0 {
		return nil, errors.New("ENGINE_TICK_INTERVAL must be positive")
	}
	if cfg.PropagationThreshold < 0 || cfg.PropagationThreshold > 100 {
		return nil, errors.New("PROPAGATION_THRESHOLD must be in [0, 100]")
	}
	if cfg.PropagationMaxHops < 1 {
		return nil, errors.New("PROPAGATION_MAX_HOPS must be at least 1")
	}
	if cfg.AscentRateMS <= 0 || cfg.DescentRateMS <= 0 {
		return nil, errors.New("ascent and descent rates must be positive")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaAlertsTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_ALERTS_TOPIC is not")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
