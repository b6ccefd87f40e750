package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, 3, cfg.Jobs.MaxAttempts)
	assert.Equal(t, "exponential", cfg.Jobs.BackoffPolicy)
	assert.Equal(t, time.Second, cfg.Jobs.BackoffBase)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, 0.5, cfg.NLP.LowConfidenceThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Auth.RefreshThreshold)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ERRAND_STORAGE_ENGINE", "memory")
	t.Setenv("ERRAND_MAX_ATTEMPTS", "5")
	t.Setenv("ERRAND_LOW_CONFIDENCE", "0.7")
	t.Setenv("ERRAND_BACKOFF_POLICY", "fixed")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.StorageEngine)
	assert.Equal(t, 5, cfg.Jobs.MaxAttempts)
	assert.Equal(t, 0.7, cfg.NLP.LowConfidenceThreshold)
	assert.Equal(t, "fixed", cfg.Jobs.BackoffPolicy)
}

func TestMalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("ERRAND_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("ERRAND_LOW_CONFIDENCE", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Jobs.MaxAttempts)
	assert.Equal(t, 0.5, cfg.NLP.LowConfidenceThreshold)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown engine", map[string]string{"ERRAND_STORAGE_ENGINE": "dynamodb"}},
		{"postgres without dsn", map[string]string{"ERRAND_STORAGE_ENGINE": "postgres"}},
		{"zero attempts", map[string]string{"ERRAND_MAX_ATTEMPTS": "0"}},
		{"unknown backoff", map[string]string{"ERRAND_BACKOFF_POLICY": "jittered"}},
		{"zero workers", map[string]string{"ERRAND_WORKERS": "0"}},
		{"confidence above one", map[string]string{"ERRAND_LOW_CONFIDENCE": "1.5"}},
		{"bad timezone", map[string]string{"ERRAND_CRON_TIMEZONE": "Mars/Olympus"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
