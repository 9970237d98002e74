package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "ENVIRONMENT", "LOG_LEVEL", "PORT",
	"APP_ADMIN_PASSWORD", "APP_ADMIN_PASSWORD_HASH", "SESSION_SECRET", "SESSION_TTL",
	"DB_DRIVER", "DATABASE_URL",
	"TRANSCRIBE_URL", "TRANSCRIBE_API_KEY", "TRANSCRIBE_MODEL", "TRANSCRIBE_TIMEOUT", "TRANSCRIBE_RETRIES", "USE_MOCK_TRANSCRIBE",
	"LLM_GATEWAY_URL", "LLM_API_KEY", "LLM_MODEL", "LLM_TIMEOUT", "LLM_MAX_RETRY_TIME", "USE_MOCK_LLM",
	"GROQ_API_KEY", "DEDUP_THRESHOLD", "DEDUP_WINDOW_SIZE", "DEDUP_WINDOW_MAX_AGE", "REVIEW_SESSION_TTL",
}

// clearEnv isolates a test from the developer's environment and any .env in
// the package directory.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.UsesDefaultPassword())
	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.Equal(t, 0.6, cfg.Dedup.Threshold)
	assert.Equal(t, 50, cfg.Dedup.WindowSize)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "reception.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = 9090

[auth]
admin_password = "from-file"
session_ttl = "30m"

[database]
driver = "postgres"
dsn = "postgres://localhost/calls"

[dedup]
threshold = 0.75
window_max_age = "72h"
`), 0o644))

	t.Setenv("DEDUP_WINDOW_SIZE", "10")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("LLM_API_KEY", "llm-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "from-file", cfg.Auth.AdminPassword)
	assert.False(t, cfg.UsesDefaultPassword())
	assert.Equal(t, 30*time.Minute, cfg.Auth.SessionTTL.Duration)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 0.75, cfg.Dedup.Threshold)
	assert.Equal(t, 72*time.Hour, cfg.Dedup.MaxAge.Duration)
	assert.Equal(t, 10, cfg.Dedup.WindowSize)
	assert.Equal(t, "groq-key", cfg.Transcription.APIKey)
	assert.Equal(t, "llm-key", cfg.LLM.APIKey)

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_ADMIN_PASSWORD", "from-env")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.AdminPassword)
}

func TestLoadReportsAllProblems(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")
	t.Setenv("USE_MOCK_LLM", "maybe")
	t.Setenv("TRANSCRIBE_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	for _, key := range []string{"PORT", "USE_MOCK_LLM", "TRANSCRIBE_TIMEOUT"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mysql"
	cfg.Dedup.Threshold = 1.5
	cfg.Dedup.WindowSize = 0
	cfg.Auth.AdminPassword = ""
	cfg.Sessions.TTL = Duration{}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"DB_DRIVER", "DEDUP_THRESHOLD", "DEDUP_WINDOW_SIZE", "APP_ADMIN_PASSWORD", "REVIEW_SESSION_TTL"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg = Default()
	cfg.Transcription.URL = ""
	require.Error(t, cfg.Validate())
	cfg.Transcription.Mock = true
	require.NoError(t, cfg.Validate())

	cfg.Auth.AdminPassword = ""
	cfg.Auth.AdminPasswordHash = "$2a$10$hash"
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.UsesDefaultPassword())
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
