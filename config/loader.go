// Package config provides unified configuration loading for the execution
// core: defaults, overridden by an optional YAML file, overridden by
// environment variables.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("codeflow.yaml").
//	    WithEnvPrefix("CODEFLOW").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of the execution core.
type Config struct {
	// Server configures the HTTP surface of codeflowd.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Executor configures the façade.
	Executor ExecutorConfig `yaml:"executor" env:"EXECUTOR"`

	// Script configures the in-process script sandbox.
	Script ScriptConfig `yaml:"script" env:"SCRIPT"`

	// Subprocess configures the local interpreter runtime.
	Subprocess SubprocessConfig `yaml:"subprocess" env:"SUBPROCESS"`

	// Sandbox configures the ephemeral remote sandbox provider.
	Sandbox SandboxConfig `yaml:"sandbox" env:"SANDBOX"`

	// WASM configures the external compute-module service.
	WASM WASMConfig `yaml:"wasm" env:"WASM"`

	// Log configures logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OTel export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the codeflowd HTTP servers.
type ServerConfig struct {
	// Addr is the API listen address.
	Addr string `yaml:"addr" env:"ADDR"`
	// MetricsAddr is the Prometheus scrape address. Empty disables the
	// metrics listener.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	// ReadTimeout bounds request reads.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// WriteTimeout bounds response writes. It must exceed the longest
	// execution budget or responses are cut off mid-run.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// IdleTimeout bounds keep-alive connections.
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RateLimitRPS caps per-client request rate. Zero disables limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the per-client burst allowance.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// ExecutorConfig configures the execution façade.
type ExecutorConfig struct {
	// DefaultTimeout bounds executions whose request sets none.
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	// MetricsNamespace prefixes the Prometheus metrics.
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
}

// ScriptConfig configures the in-process sandbox.
type ScriptConfig struct {
	// MaxCodeBytes rejects oversized snippets. Zero disables the limit.
	MaxCodeBytes int `yaml:"max_code_bytes" env:"MAX_CODE_BYTES"`
}

// SubprocessConfig configures the local interpreter runtime.
type SubprocessConfig struct {
	// ScratchDir is where materialized scripts are written.
	ScratchDir string `yaml:"scratch_dir" env:"SCRATCH_DIR"`
	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int `yaml:"max_output_bytes" env:"MAX_OUTPUT_BYTES"`
	// PythonPath overrides the probed python interpreter.
	PythonPath string `yaml:"python_path" env:"PYTHON_PATH"`
	// BashPath overrides the probed bash interpreter.
	BashPath string `yaml:"bash_path" env:"BASH_PATH"`
}

// SandboxConfig configures the remote sandbox provider.
type SandboxConfig struct {
	// Endpoint is the provider base URL.
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// APIKey authorizes provider calls.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// TeardownTimeout bounds the best-effort sandbox release.
	TeardownTimeout time.Duration `yaml:"teardown_timeout" env:"TEARDOWN_TIMEOUT"`
}

// WASMConfig configures the compute-module service.
type WASMConfig struct {
	// BaseURL is the service base URL.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// APIKey is optional.
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig configures OTel export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CODEFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML configuration file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration. Precedence: defaults, then YAML file,
// then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration parses as a duration string, not an integer
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	var errs []string

	if c.Executor.DefaultTimeout <= 0 {
		errs = append(errs, "executor default_timeout must be positive")
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < c.Executor.DefaultTimeout {
		errs = append(errs, "server write_timeout must cover executor default_timeout")
	}
	if c.Subprocess.MaxOutputBytes <= 0 {
		errs = append(errs, "subprocess max_output_bytes must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, "telemetry enabled but otlp_endpoint empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
