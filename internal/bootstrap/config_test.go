package bootstrap

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spie-ics/meraki-captive-portal/config"
)

func TestSetLogLevel(t *testing.T) {
	InitLogger()
	t.Cleanup(func() { logLevel.Set(slog.LevelInfo) })

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, slog.LevelDebug, logLevel.Level())
	require.NoError(t, SetLogLevel(" WARN "))
	assert.Equal(t, slog.LevelWarn, logLevel.Level())
	require.Error(t, SetLogLevel("verbose"))
}

func TestLoadConfig(t *testing.T) {
	// Run from an empty directory so no stray .env is picked up.
	t.Chdir(t.TempDir())

	t.Setenv("AUTH_MODE", "mock")
	t.Setenv("DEV", "true")
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("REDIRECT_URL", "http://localhost:3000/")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.AuthModeMock, cfg.Auth.Mode)
	assert.Equal(t, config.SessionStoreMemory, cfg.Session.Store)
	assert.Equal(t, "http://localhost:3000", cfg.Auth.RedirectURL)
	assert.Equal(t, "http://localhost:3000/auth/openid/return", cfg.Auth.RedirectURI())
}

func TestLoadConfig_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("AUTH_MODE=mock\nDEV=true\nSESSION_STORE=memory\nPORTAL_TITLE=From Dotenv\n"), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"AUTH_MODE", "DEV", "SESSION_STORE", "PORTAL_TITLE"} {
			_ = os.Unsetenv(k)
		}
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "From Dotenv", cfg.Portal.Title)
}

func TestLoadConfig_RejectsMockOutsideDev(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_MODE", "mock")
	t.Setenv("DEV", "false")
	t.Setenv("NODE_ENV", "production")

	_, err := LoadConfig()
	require.Error(t, err)
}
