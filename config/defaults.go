package config

import "time"

// DefaultConfig returns the baseline configuration: local-only backends
// enabled, remote backends unconfigured, telemetry off.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitBurst:  20,
		},
		Executor: ExecutorConfig{
			DefaultTimeout:   30 * time.Second,
			MetricsNamespace: "codeflow",
		},
		Script: ScriptConfig{
			MaxCodeBytes: 1024 * 1024,
		},
		Subprocess: SubprocessConfig{
			MaxOutputBytes: 1024 * 1024,
		},
		Sandbox: SandboxConfig{
			TeardownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "codeflow",
			SampleRate:  1.0,
		},
	}
}
