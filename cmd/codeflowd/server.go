package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/codeflow/api/handlers"
	"github.com/BaSui01/codeflow/config"
	"github.com/BaSui01/codeflow/executor"
	"github.com/BaSui01/codeflow/internal/metrics"
	"github.com/BaSui01/codeflow/internal/server"
	"github.com/BaSui01/codeflow/internal/telemetry"
	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/runtime/sandboxapi"
	"github.com/BaSui01/codeflow/runtime/script"
	"github.com/BaSui01/codeflow/runtime/subprocess"
	"github.com/BaSui01/codeflow/runtime/wasmsvc"
	"github.com/BaSui01/codeflow/types"
)

// Server wires config, backends, the façade, and the HTTP listeners.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	executeHandler *handlers.ExecuteHandler
	healthHandler  *handlers.HealthHandler

	collector *metrics.Collector
	otel      *telemetry.Providers

	rateLimiterCancel context.CancelFunc
}

// NewServer creates the codeflowd server.
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{cfg: cfg, logger: logger, otel: otel}
}

// Start builds the execution service and begins serving.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector(s.cfg.Executor.MetricsNamespace, s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.executeHandler = handlers.NewExecuteHandler(s.buildExecutor(), s.logger)

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.String("addr", s.cfg.Server.Addr),
		zap.String("metrics_addr", s.cfg.Server.MetricsAddr),
	)
	return nil
}

// buildExecutor assembles the backend set from configuration. Local backends
// are always present; remote backends join when configured, and the module
// service additionally registers a readiness probe.
func (s *Server) buildExecutor() *executor.Service {
	backends := []runtime.Backend{
		script.New(script.Config{
			MaxCodeBytes: s.cfg.Script.MaxCodeBytes,
		}, s.logger),
		subprocess.New(subprocess.Config{
			ScratchDir:     s.cfg.Subprocess.ScratchDir,
			MaxOutputBytes: s.cfg.Subprocess.MaxOutputBytes,
			Interpreters:   s.interpreterOverrides(),
		}, s.logger),
	}

	if s.cfg.Sandbox.Endpoint != "" {
		backends = append(backends, sandboxapi.New(sandboxapi.Config{
			Endpoint:        s.cfg.Sandbox.Endpoint,
			APIKey:          s.cfg.Sandbox.APIKey,
			TeardownTimeout: s.cfg.Sandbox.TeardownTimeout,
		}, s.logger))
		s.logger.Info("remote sandbox backend enabled",
			zap.String("endpoint", s.cfg.Sandbox.Endpoint))
	}

	if s.cfg.WASM.BaseURL != "" {
		wasmClient := wasmsvc.New(wasmsvc.Config{
			BaseURL: s.cfg.WASM.BaseURL,
			APIKey:  s.cfg.WASM.APIKey,
		}, s.logger)
		backends = append(backends, wasmClient)
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("module_service",
			func(ctx context.Context) error {
				if !wasmClient.HealthCheck(ctx) {
					return fmt.Errorf("module service unhealthy")
				}
				return nil
			}))
		s.logger.Info("compute-module backend enabled",
			zap.String("base_url", s.cfg.WASM.BaseURL))
	}

	return executor.New(executor.Config{
		DefaultTimeout: s.cfg.Executor.DefaultTimeout,
		Metrics:        s.collector,
		Logger:         s.logger,
	}, backends...)
}

func (s *Server) interpreterOverrides() map[types.Language]string {
	overrides := make(map[types.Language]string)
	if s.cfg.Subprocess.PythonPath != "" {
		overrides[types.LangPython] = s.cfg.Subprocess.PythonPath
	}
	if s.cfg.Subprocess.BashPath != "" {
		overrides[types.LangBash] = s.cfg.Subprocess.BashPath
	}
	return overrides
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/execute", s.executeHandler.HandleExecute)
	mux.HandleFunc("POST /v1/packages", s.executeHandler.HandleInstall)
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.rateLimiterCancel = cancel
		middlewares = append(middlewares,
			RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	handler := Chain(mux, middlewares...)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsAddr == "" {
		s.logger.Info("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            s.cfg.Server.MetricsAddr,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.metricsManager.Start()
}

// WaitForShutdown blocks until the API server exits, then stops everything.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(context.Background()); err != nil {
			s.logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}
	if s.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
}
