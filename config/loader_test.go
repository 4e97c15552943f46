package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- defaults ---

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.Executor.DefaultTimeout)
	assert.Equal(t, "codeflow", cfg.Executor.MetricsNamespace)
	assert.Equal(t, 1024*1024, cfg.Subprocess.MaxOutputBytes)
	assert.Equal(t, 10*time.Second, cfg.Sandbox.TeardownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Telemetry.Enabled)

	require.NoError(t, cfg.Validate())
}

// --- file layer ---

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
executor:
  default_timeout: 45s
subprocess:
  python_path: /opt/python3
sandbox:
  endpoint: https://sandbox.example.com
  api_key: sk-test
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Executor.DefaultTimeout)
	assert.Equal(t, "/opt/python3", cfg.Subprocess.PythonPath)
	assert.Equal(t, "https://sandbox.example.com", cfg.Sandbox.Endpoint)
	// Untouched sections keep their defaults.
	assert.Equal(t, "codeflow", cfg.Executor.MetricsNamespace)
}

func TestLoader_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Executor.DefaultTimeout)
}

func TestLoader_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("executor: ["), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

// --- env layer ---

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wasm:\n  base_url: http://from-file\n"), 0o600))

	t.Setenv("CODEFLOW_WASM_BASE_URL", "http://from-env")
	t.Setenv("CODEFLOW_EXECUTOR_DEFAULT_TIMEOUT", "90s")
	t.Setenv("CODEFLOW_TELEMETRY_ENABLED", "true")
	t.Setenv("CODEFLOW_TELEMETRY_SAMPLE_RATE", "0.25")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", cfg.WASM.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Executor.DefaultTimeout)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LOG_LEVEL", "debug")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("CODEFLOW_SCRIPT_MAX_CODE_BYTES", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
}

// --- validation ---

func TestLoader_ValidatorRejects(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			c.Executor.DefaultTimeout = 0
			return c.Validate()
		}).
		Load()
	require.Error(t, err)
}

func TestConfig_ValidateTelemetryEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.OTLPEndpoint = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "otlp_endpoint")
}
