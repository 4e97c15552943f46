// Package codeflow provides a top-level convenience entry point for building
// an execution service with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/codeflow"
//
//	svc := codeflow.New()
//	svc := codeflow.New(codeflow.WithSandboxAPI(endpoint, key))
//	svc := codeflow.New(codeflow.WithWASMService(url, key))
//
// New always wires the in-process script sandbox and the subprocess runtime;
// remote backends join only when configured. For full control construct
// [executor.Service] directly.
package codeflow

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/codeflow/executor"
	"github.com/BaSui01/codeflow/internal/metrics"
	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/runtime/sandboxapi"
	"github.com/BaSui01/codeflow/runtime/script"
	"github.com/BaSui01/codeflow/runtime/subprocess"
	"github.com/BaSui01/codeflow/runtime/wasmsvc"
)

// Option configures the service created by [New].
type Option func(*options)

type options struct {
	logger         *zap.Logger
	collector      *metrics.Collector
	router         *runtime.Router
	defaultTimeout time.Duration

	sandboxEndpoint string
	sandboxKey      string
	wasmURL         string
	wasmKey         string

	extraBackends []runtime.Backend
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets a metrics collector. Defaults to no metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithRouter replaces the default routing policy.
func WithRouter(r *runtime.Router) Option {
	return func(o *options) { o.router = r }
}

// WithDefaultTimeout bounds executions whose request sets no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) { o.defaultTimeout = d }
}

// WithSandboxAPI enables the ephemeral remote sandbox backend. Empty
// arguments fall back to CODEFLOW_SANDBOX_ENDPOINT and
// CODEFLOW_SANDBOX_API_KEY environment variables.
func WithSandboxAPI(endpoint, apiKey string) Option {
	return func(o *options) {
		o.sandboxEndpoint = endpoint
		o.sandboxKey = apiKey
		if o.sandboxEndpoint == "" {
			o.sandboxEndpoint = os.Getenv("CODEFLOW_SANDBOX_ENDPOINT")
		}
		if o.sandboxKey == "" {
			o.sandboxKey = os.Getenv("CODEFLOW_SANDBOX_API_KEY")
		}
	}
}

// WithWASMService enables the external compute-module backend. An empty URL
// falls back to the CODEFLOW_WASM_URL environment variable.
func WithWASMService(baseURL, apiKey string) Option {
	return func(o *options) {
		o.wasmURL = baseURL
		o.wasmKey = apiKey
		if o.wasmURL == "" {
			o.wasmURL = os.Getenv("CODEFLOW_WASM_URL")
		}
	}
}

// WithBackend registers an additional backend. A backend with the same kind
// as a built-in one replaces it.
func WithBackend(b runtime.Backend) Option {
	return func(o *options) { o.extraBackends = append(o.extraBackends, b) }
}

// New creates an execution service with the default backend set.
func New(opts ...Option) *executor.Service {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backends := []runtime.Backend{
		script.New(script.Config{}, logger),
		subprocess.New(subprocess.Config{}, logger),
	}
	if o.sandboxEndpoint != "" {
		backends = append(backends, sandboxapi.New(sandboxapi.Config{
			Endpoint: o.sandboxEndpoint,
			APIKey:   o.sandboxKey,
		}, logger))
	}
	if o.wasmURL != "" {
		backends = append(backends, wasmsvc.New(wasmsvc.Config{
			BaseURL: o.wasmURL,
			APIKey:  o.wasmKey,
		}, logger))
	}
	backends = append(backends, o.extraBackends...)

	return executor.New(executor.Config{
		Router:         o.router,
		DefaultTimeout: o.defaultTimeout,
		Metrics:        o.collector,
		Logger:         logger,
	}, backends...)
}
