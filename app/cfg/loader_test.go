package cfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	assert.NotEmpty(t, GetVersion())
}

func TestLoadArgsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadArgs([]string{"--backend-url", "https://club.example.com/api", "--user-id", "7"})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://club.example.com/api", cfg.BackendURL)
	assert.Equal(t, "7", cfg.UserID)
	assert.Equal(t, "./data/clubfeed.db", cfg.DBPath)
	assert.Equal(t, "./streams", cfg.StreamsDir)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10.0, cfg.RequestsPerSecond)
	assert.Equal(t, 5, cfg.RequestBurst)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 30, cfg.SchedulerInterval)
	assert.Equal(t, 15*time.Minute, cfg.SessionIdleTimeout)
	assert.False(t, cfg.Debug)
	assert.Equal(t, GetVersion(), cfg.Version)

	assert.Same(t, cfg, Get())
}

func TestLoadArgsFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKEND_URL", "https://env.example.com")
	t.Setenv("USER_ID", "99")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("SESSION_IDLE_TIMEOUT", "1m")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadArgs([]string{})
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.BackendURL)
	assert.Equal(t, "99", cfg.UserID)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.SessionIdleTimeout)
	assert.True(t, cfg.Debug)
}

func TestLoadArgsValidation(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"missing backend", []string{"--user-id", "7"}},
		{"zero workers", []string{"--backend-url", "http://x", "--user-id", "7", "--worker-count", "0"}},
		{"zero interval", []string{"--backend-url", "http://x", "--user-id", "7", "--scheduler-interval", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadArgs(tt.args)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadArgsHelp(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadArgs([]string{"--help"})
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}
