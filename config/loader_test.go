package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyadame/DeepResearchAgent-sub002/persistence"
)

func TestLoad_DefaultsWhenNothingProvided(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Minute, cfg.Store.CacheTTL)
	assert.InDelta(t, 8.0, cfg.Supervisor.QualityTarget, 1e-9)
	assert.Equal(t, persistence.BackendMemory, cfg.Persistence.Type)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  http_port: 9090
log:
  level: debug
  format: console
store:
  gate_threshold: 0.85
  cache_ttl: 2m
supervisor:
  quality_target: 7.5
  max_iterations: 8
persistence:
  type: redis
  redis:
    host: cache.internal
    port: 6380
    key_prefix: "dra:"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.85, cfg.Store.GateThreshold, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.Store.CacheTTL)
	assert.InDelta(t, 7.5, cfg.Supervisor.QualityTarget, 1e-9)
	assert.Equal(t, 8, cfg.Supervisor.MaxIterations)
	assert.Equal(t, persistence.BackendRedis, cfg.Persistence.Type)
	assert.Equal(t, "cache.internal", cfg.Persistence.Redis.Host)
	assert.Equal(t, 6380, cfg.Persistence.Redis.Port)
	assert.Equal(t, "dra:", cfg.Persistence.Redis.KeyPrefix)

	// 未覆盖的字段保持默认
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9090\n"), 0o600))

	t.Setenv("DEEPRESEARCH_SERVER_HTTP_PORT", "9191")
	t.Setenv("DEEPRESEARCH_STORE_GATE_THRESHOLD", "0.9")
	t.Setenv("DEEPRESEARCH_LOG_LEVEL", "warn")
	t.Setenv("DEEPRESEARCH_LOG_OUTPUT_PATHS", "stdout, /var/log/deepresearch.log")
	t.Setenv("DEEPRESEARCH_LOG_ENABLE_CALLER", "false")
	t.Setenv("DEEPRESEARCH_STORE_CACHE_TTL", "90s")
	t.Setenv("DEEPRESEARCH_PERSISTENCE_TYPE", "memory")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.HTTPPort)
	assert.InDelta(t, 0.9, cfg.Store.GateThreshold, 1e-9)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/var/log/deepresearch.log"}, cfg.Log.OutputPaths)
	assert.False(t, cfg.Log.EnableCaller)
	assert.Equal(t, 90*time.Second, cfg.Store.CacheTTL)
	assert.Equal(t, persistence.BackendMemory, cfg.Persistence.Type)
}

func TestLoad_CustomEnvPrefix(t *testing.T) {
	t.Setenv("DRA_SERVER_HTTP_PORT", "7070")

	cfg, err := NewLoader().WithEnvPrefix("DRA").Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.HTTPPort)
}

func TestLoad_ValidationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"DEEPRESEARCH_SERVER_HTTP_PORT": "0"}},
		{"gate threshold above one", map[string]string{"DEEPRESEARCH_STORE_GATE_THRESHOLD": "1.5"}},
		{"unknown backend", map[string]string{"DEEPRESEARCH_PERSISTENCE_TYPE": "dynamo"}},
		{"zero iterations", map[string]string{"DEEPRESEARCH_SUPERVISOR_MAX_ITERATIONS": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewLoader().Load()
			require.Error(t, err)
		})
	}
}

func TestLoad_CustomValidator(t *testing.T) {
	called := false
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			called = true
			return nil
		}).
		Load()
	require.NoError(t, err)
	assert.True(t, called)
}

func TestMustLoad_PanicsOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o600))

	assert.Panics(t, func() {
		MustLoad(path)
	})
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}
