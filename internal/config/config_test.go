package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, 30.0, cfg.PropagationThreshold)
	assert.Equal(t, 4, cfg.PropagationMaxHops)
	assert.Equal(t, 50.0, cfg.DeployProbabilityThreshold)
	assert.Equal(t, 30*time.Second, cfg.DeploySustainDuration)
	assert.Equal(t, 15.0, cfg.DeployMaxWindSpeed)
	assert.Equal(t, 400.0, cfg.TargetAltitudeM)
	assert.Equal(t, 2.5, cfg.AscentRateMS)
	assert.Equal(t, 2.0, cfg.DescentRateMS)
	assert.False(t, cfg.AlertPublishingEnabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("ENGINE_TICK_INTERVAL", "2s")
	t.Setenv("PROPAGATION_THRESHOLD", "40")
	t.Setenv("PROPAGATION_MAX_HOPS", "2")
	t.Setenv("DEPLOY_PROBABILITY_THRESHOLD", "60")
	t.Setenv("DEPLOY_SUSTAIN_DURATION", "45s")
	t.Setenv("DEPLOY_MAX_WIND_SPEED", "12")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_ALERTS_TOPIC", "cloudburst-alerts")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, "hunter2", cfg.RedisPassword)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
	assert.Equal(t, 40.0, cfg.PropagationThreshold)
	assert.Equal(t, 2, cfg.PropagationMaxHops)
	assert.Equal(t, 60.0, cfg.DeployProbabilityThreshold)
	assert.Equal(t, 45*time.Second, cfg.DeploySustainDuration)
	assert.Equal(t, 12.0, cfg.DeployMaxWindSpeed)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "cloudburst-alerts", cfg.KafkaAlertsTopic)
	assert.True(t, cfg.AlertPublishingEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad tick interval", "ENGINE_TICK_INTERVAL", "soon"},
		{"negative tick interval", "ENGINE_TICK_INTERVAL", "-5s"},
		{"bad max hops", "PROPAGATION_MAX_HOPS", "many"},
		{"zero max hops", "PROPAGATION_MAX_HOPS", "0"},
		{"threshold out of range", "PROPAGATION_THRESHOLD", "150"},
		{"bad redis db", "REDIS_DB", "primary"},
		{"zero ascent rate", "ASCENT_RATE_MS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_KafkaRequiresTopic(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_ALERTS_TOPIC")
}
