package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "STORYFORGE_") {
			key := strings.SplitN(e, "=", 2)[0]
			os.Unsetenv(key)
		}
	}
}

func TestConfig_Load_DefaultValues(t *testing.T) {
	clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 20, cfg.Database.MaxConnections)
	assert.Equal(t, 5, cfg.Database.MinConnections)
	assert.Equal(t, 30*time.Minute, cfg.Database.MaxIdleTime)

	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, 10, cfg.Redis.PoolSize)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 512, cfg.Cache.FingerprintLRU)
	assert.True(t, cfg.Cache.SingleFlight)

	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2, cfg.Breaker.SuccessThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.CooldownTimeout)

	assert.Equal(t, int64(16), cfg.Services.Prompt.MaxConcurrency)
	assert.Equal(t, int64(8), cfg.Services.Content.MaxConcurrency)

	assert.Equal(t, 3, cfg.Negotiate.MaxGlobalRounds)
	assert.Equal(t, 3, cfg.Negotiate.MaxRoundsPerNode)
	assert.Equal(t, 0.6, cfg.Validation.QualityThreshold)
}

func TestConfig_Load_OverridesFromEnv(t *testing.T) {
	clearEnv()
	os.Setenv("STORYFORGE_CACHE_TTL", "10m")
	os.Setenv("STORYFORGE_BREAKER_FAILURE_THRESHOLD", "7")
	os.Setenv("STORYFORGE_PROMPT_URL", "http://prompt.internal:9001")
	defer clearEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 7, cfg.Breaker.FailureThreshold)
	assert.Equal(t, "http://prompt.internal:9001", cfg.Services.Prompt.BaseURL)
}

func TestConfig_Validate_RejectsBadThresholds(t *testing.T) {
	cfg := &Config{
		Database:   DatabaseConfig{MaxConnections: 5, MinConnections: 1},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
		Breaker:    BreakerConfig{FailureThreshold: 3},
		Negotiate:  NegotiateConfig{MaxRoundsPerNode: 3},
		Validation: ValidationConfig{QualityThreshold: 1.5, ConstraintThreshold: 0.5},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality threshold")
}

func TestConfig_Validate_RejectsInvertedConnectionBounds(t *testing.T) {
	cfg := &Config{
		Database:   DatabaseConfig{MaxConnections: 2, MinConnections: 5},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
		Breaker:    BreakerConfig{FailureThreshold: 3},
		Negotiate:  NegotiateConfig{MaxRoundsPerNode: 3},
		Validation: ValidationConfig{QualityThreshold: 0.5, ConstraintThreshold: 0.5},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min connections")
}
