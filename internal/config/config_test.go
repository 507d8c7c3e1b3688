package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		GroupID:              1,
		GoogleCloudBucket:    "bucket",
		GoogleAccessKey:      "key",
		GoogleSecretKey:      "secret",
		RedisURL:             "redis://localhost:6379",
		RedisConnectionCount: 8,
		WorkerCount:          4,
		ListenAddr:           ":5555",
		ForwardAddr:          ":5557",
		ReplyAddr:            ":5556",
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestValidateAccumulatesAllMissingFields(t *testing.T) {
	cfg := Config{}

	err := cfg.Validate()
	require.Error(t, err)

	for _, want := range []string{
		"GOOGLE_CLOUD_BUCKET",
		"GOOGLE_ACCESS_KEY",
		"GOOGLE_SECRET_KEY",
		"REDIS_URL",
		"REDIS_CONNECTION_COUNT",
		"WORKER_COUNT",
		"LISTEN_ADDR",
		"FORWARD_ADDR",
		"REPLY_ADDR",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidateSingleMissingField(t *testing.T) {
	cfg := validConfig()
	cfg.ReplyAddr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "REPLY_ADDR")
	assert.NotContains(t, err.Error(), "LISTEN_ADDR is required")
}

func TestValidateRejectsNonPositiveCounts(t *testing.T) {
	cfg := validConfig()
	cfg.WorkerCount = 0
	cfg.RedisConnectionCount = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "WORKER_COUNT")
	assert.ErrorContains(t, err, "REDIS_CONNECTION_COUNT")
}

func TestFromEnvAppliesDefaults(t *testing.T) {
	t.Setenv("GROUP_ID", "3")
	t.Setenv("GOOGLE_CLOUD_BUCKET", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_SERVICE_HOST", "")
	t.Setenv("REDIS_CONNECTION_COUNT", "")
	t.Setenv("WORKER_COUNT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("HOSTNAME", "")

	cfg := FromEnv()

	assert.Equal(t, uint32(3), cfg.GroupID)
	assert.Equal(t, defaultRedisConnectionCount, cfg.RedisConnectionCount)
	assert.Equal(t, defaultWorkerCount, cfg.WorkerCount)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
}

func TestFromEnvDerivesGroupIDFromHostname(t *testing.T) {
	t.Setenv("GROUP_ID", "")
	t.Setenv("HOSTNAME", "pathmesh-7-abcde")

	cfg := FromEnv()
	assert.Equal(t, uint32(7), cfg.GroupID)
}

func TestFromEnvDerivesRedisURLFromServiceHost(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_SERVICE_HOST", "redis.internal")

	cfg := FromEnv()
	assert.Equal(t, "redis://redis.internal:6379", cfg.RedisURL)
}

func TestFromEnvZMQModeParsesBool(t *testing.T) {
	t.Setenv("ZMQ_MODE", "true")
	cfg := FromEnv()
	assert.True(t, cfg.ZMQMode)

	t.Setenv("ZMQ_MODE", "not-a-bool")
	cfg = FromEnv()
	assert.False(t, cfg.ZMQMode)
}
