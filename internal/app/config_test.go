package app

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
	"github.com/odyssey-erp/odyssey-admin/jobs"
)

func validConfig() Config {
	return Config{
		JWTSecret:       "0123456789abcdef",
		SuperAdminRole:  "superadmin",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
		TokenStore:      "Redis",
		RateStore:       " memory ",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("SUPERADMIN_ROLE", "superadmin")
	unsetenv(t, "TOKEN_STORE")
	unsetenv(t, "RATE_STORE")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "odyssey-admin", cfg.JWTIssuer)
	require.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, StoreRedis, cfg.TokenStore)
	require.Equal(t, 5, cfg.LoginRule().Limit)
	require.Equal(t, time.Minute, cfg.LoginRule().Window)
	require.False(t, cfg.RateBeforeAuth)
	require.Equal(t, ":9091", cfg.WorkerMetricsAddr)
}

// unsetenv removes key for the test; envconfig only applies defaults to
// variables that are absent, not empty.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestWorkerTasksFollowTokenStore(t *testing.T) {
	for store, want := range map[string][]string{
		StoreRedis:    {jobs.TaskCatalogCheck},
		StoreMemory:   {jobs.TaskCatalogCheck},
		StorePostgres: {jobs.TaskCatalogCheck, jobs.TaskRefreshSweep},
	} {
		cfg := Config{TokenStore: store}
		require.Equal(t, want, cfg.WorkerTasks(), store)
	}
}

func TestLoadConfigRequiresSuperAdminRole(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("SUPERADMIN_ROLE", "")

	_, err := LoadConfig()
	require.True(t, errors.Is(err, shared.ErrConfiguration))
}

func TestValidateNormalisesStores(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, StoreRedis, cfg.TokenStore)
	require.Equal(t, StoreMemory, cfg.RateStore)
	require.True(t, cfg.UsesMemoryStores())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"blank superadmin":      func(c *Config) { c.SuperAdminRole = "  " },
		"short secret":          func(c *Config) { c.JWTSecret = "short" },
		"refresh below access":  func(c *Config) { c.RefreshTokenTTL = time.Minute },
		"zero access ttl":       func(c *Config) { c.AccessTokenTTL = 0 },
		"unknown token store":   func(c *Config) { c.TokenStore = "etcd" },
		"postgres rate windows": func(c *Config) { c.RateStore = StorePostgres },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), shared.ErrConfiguration)
		})
	}
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLevel(&Config{LogLevel: "debug"}).String())
	require.Equal(t, "WARN", parseLevel(&Config{LogLevel: "WARNING"}).String())
	require.Equal(t, "INFO", parseLevel(&Config{LogLevel: "verbose"}).String())
	require.Equal(t, "INFO", parseLevel(nil).String())
}
