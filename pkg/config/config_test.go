package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "/api/v1", cfg.APIPrefix)
	require.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	require.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	require.Equal(t, 1, cfg.Exports.WorkerConcurrency)
	require.False(t, cfg.Exports.Enabled)
}

func TestLoadReadsEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ENABLE_CACHE", "true")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("SCHOOL_NAME", "Lycée Moderne")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.True(t, cfg.Cache.Enabled)
	require.Equal(t, 90*time.Second, cfg.Cache.TTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, "Lycée Moderne", cfg.School.Name)
}

func TestParseDurationFallback(t *testing.T) {
	require.Equal(t, time.Minute, parseDuration("", time.Minute))
	require.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	require.Equal(t, 2*time.Hour, parseDuration("2h", time.Minute))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
