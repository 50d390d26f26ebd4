package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAPIRequiresSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	_, err := LoadAPI()
	require.Error(t, err)
}

func TestLoadAPIDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "s3cret")
	cfg, err := LoadAPI()
	require.NoError(t, err)
	require.Equal(t, ":8000", cfg.Address)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, "admin@clinica.com", cfg.AdminEmail)
	require.Equal(t, "debug", cfg.Level)
}

func TestLoadConsole(t *testing.T) {
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("BACKEND_URL", "http://api:8000")
	cfg, err := LoadConsole()
	require.NoError(t, err)
	require.Equal(t, SessionStoreRedis, cfg.SessionStore)
	require.Equal(t, "http://api:8000", cfg.BackendURL)
	require.Equal(t, 15*time.Second, cfg.BackendTimeout)
}

func TestLoadConsoleRejectsUnknownStore(t *testing.T) {
	t.Setenv("SESSION_STORE", "files")
	_, err := LoadConsole()
	require.Error(t, err)
}
