package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps user-level config files out of the test.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	SetConfigFile("")
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	isolate(t)

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, 100.0, cfg.Server.RateLimit)
		assert.Equal(t, 200, cfg.Server.RateBurst)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)

		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.False(t, cfg.Debug.Enabled)
		assert.False(t, cfg.Debug.PprofEnabled)

		assert.False(t, cfg.Store.Configured())
		assert.Empty(t, cfg.Workspace.Dir)
		assert.True(t, cfg.Timing.ImportFixed)
		assert.False(t, cfg.S3.ForcePathStyle)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("GOJOBGRAPH_PORT", "3000")
		t.Setenv("GOJOBGRAPH_LOG_LEVEL", "warn")
		t.Setenv("GOJOBGRAPH_METRICS_ENABLED", "false")
		t.Setenv("GOJOBGRAPH_DB", "/tmp/jobs.db")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, "/tmp/jobs.db", cfg.Store.Path)
		assert.True(t, cfg.Store.Configured())
	})

	t.Run("LongEnvNames", func(t *testing.T) {
		t.Setenv("GOJOBGRAPH_SERVER_PORT", "3100")
		t.Setenv("GOJOBGRAPH_TIMING_IMPORT_FIXED", "false")
		t.Setenv("GOJOBGRAPH_S3_REGION", "eu-west-1")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3100, cfg.Server.Port)
		assert.False(t, cfg.Timing.ImportFixed)
		assert.Equal(t, "eu-west-1", cfg.S3.Region)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("GOJOBGRAPH_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{
			"server": map[string]any{"port": 5000},
		})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Load(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoadConfigFile(t *testing.T) {
	ctx := context.Background()
	isolate(t)
	defer SetConfigFile("")

	path := filepath.Join(t.TempDir(), "gojobgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`server:
  port: 8181
  shutdown_timeout: 3s
store:
  url: postgres://localhost/jobs
workspace:
  dir: /var/lib/gojobgraph
`), 0o644))
	SetConfigFile(path)

	cfg, err := Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres://localhost/jobs", cfg.Store.URL)
	assert.Equal(t, "/var/lib/gojobgraph", cfg.Workspace.Dir)
	assert.Equal(t, path, ConfigFileUsed())

	t.Setenv("GOJOBGRAPH_PORT", "8282")
	cfg, err = Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8282, cfg.Server.Port, "env wins over file")
}

func TestLoadConfigFileDiscovery(t *testing.T) {
	ctx := context.Background()
	isolate(t)

	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "gojobgraph")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gojobgraph.yaml"), []byte("logging:\n  level: error\n"), 0o644))

	cfg, err := Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadRejectsBadFile(t *testing.T) {
	isolate(t)
	defer SetConfigFile("")

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	SetConfigFile(path)

	_, err := Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }, "metrics.port"},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, "rate_limit"},
		{"zero burst", func(c *Config) { c.Server.RateBurst = 0 }, "rate_burst"},
		{"profile", func(c *Config) { c.Logging.Profile = "xml" }, "logging.profile"},
		{"store", func(c *Config) { c.Store.Path, c.Store.URL = "a.db", "libsql://x" }, "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err = Load(context.Background(), map[string]any{"server": map[string]any{"port": -1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestGetConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestConfigReload(t *testing.T) {
	ctx := context.Background()
	isolate(t)

	cfg1, err := Load(ctx)
	require.NoError(t, err)

	cfg2, err := Load(ctx, map[string]any{
		"server": map[string]any{"port": cfg1.Server.Port + 1000},
	})
	require.NoError(t, err)

	assert.Equal(t, cfg1.Server.Port+1000, cfg2.Server.Port)
	assert.Equal(t, cfg2.Server.Port, GetConfig().Server.Port)
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("GOJOBGRAPH_READ_TIMEOUT", "45s")
	t.Setenv("GOJOBGRAPH_SHUTDOWN_TIMEOUT", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
}

func TestEnvSpecs(t *testing.T) {
	isolate(t)
	_, err := Load(context.Background())
	require.NoError(t, err)

	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
		assert.Contains(t, spec.Name, "GOJOBGRAPH_")
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
	}
	for _, want := range []string{"GOJOBGRAPH_LOG_LEVEL", "GOJOBGRAPH_PORT", "GOJOBGRAPH_HOST", "GOJOBGRAPH_METRICS_PORT", "GOJOBGRAPH_DB"} {
		assert.True(t, names[want], "%s must be mapped", want)
	}
}

// resetAppIdentity resets package state for isolated tests.
func resetAppIdentity() {
	configMu.Lock()
	defer configMu.Unlock()
	appIdentity = nil
	appConfig = nil
}

func TestNilIdentity(t *testing.T) {
	resetAppIdentity()
	defer func() { _, _ = Load(context.Background()) }()

	assert.Empty(t, getUserConfigPaths())
	assert.Empty(t, getEnvSpecs())
	assert.Nil(t, GetConfig())
	assert.Empty(t, ConfigFileUsed())
}

func TestCustomIdentity(t *testing.T) {
	isolate(t)
	SetIdentity(&Identity{BinaryName: "jg", EnvPrefix: "JG", ConfigName: "jg"})
	defer SetIdentity(DefaultIdentity())

	t.Setenv("JG_PORT", "7070")
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"server": map[string]any{"port": 1, "tls": map[string]any{"on": true}},
		"debug":  true,
	})
	assert.Equal(t, map[string]any{
		"server.port":   1,
		"server.tls.on": true,
		"debug":         true,
	}, got)
}
