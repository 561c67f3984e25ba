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

	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, ":8082", cfg.RunnerAddr())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Execution.ExecuteTimeout)
	assert.Equal(t, time.Second, cfg.Execution.ContextDebounce)
	assert.Equal(t, 5*time.Minute+30*time.Second, cfg.Execution.LockTTL())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("API_PORT", "9000")
	t.Setenv("EXECUTE_TIMEOUT", "30s")
	t.Setenv("STEP_LOCK_TTL", "2m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("DB_URL", "postgres://db/craftflow")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.APIAddr())
	assert.Equal(t, 30*time.Second, cfg.Execution.ExecuteTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Execution.LockTTL())
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "postgres://db/craftflow", cfg.DatabaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"port out of range", "RUNNER_PORT", "70000", "RUNNER_PORT"},
		{"log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"log format", "LOG_FORMAT", "xml", "LOG_FORMAT"},
		{"zero timeout", "EXECUTE_TIMEOUT", "0s", "EXECUTE_TIMEOUT"},
		{"bad duration", "POLL_INTERVAL", "soon", "PollInterval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
