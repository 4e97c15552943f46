// Package executor provides the execution façade: the single entry point
// that glues routing, backends, schema validation, and result normalization
// into one call. Every failure, regardless of origin, is converted into a
// canonical ExecutionResult; nothing panics or errors past this boundary.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/codeflow/internal/metrics"
	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/schema"
	"github.com/BaSui01/codeflow/types"
)

const tracerName = "codeflow/executor"

// Config configures the execution façade.
type Config struct {
	// Router selects the backend. Nil means a router with defaults.
	Router *runtime.Router

	// DefaultTimeout bounds executions whose request sets none.
	// Defaults to types.DefaultTimeoutMS.
	DefaultTimeout time.Duration

	// Metrics is optional; nil disables metric recording.
	Metrics *metrics.Collector

	// Logger is optional; nil means a nop logger.
	Logger *zap.Logger
}

// Service is the execution façade. It is safe for concurrent use; individual
// executions share no mutable state.
type Service struct {
	router         *runtime.Router
	backends       map[types.RuntimeKind]runtime.Backend
	defaultTimeout time.Duration
	collector      *metrics.Collector
	logger         *zap.Logger
	tracer         trace.Tracer
}

// New creates an execution façade over the given backends. A backend kind
// registered twice keeps the last instance.
func New(cfg Config, backends ...runtime.Backend) *Service {
	router := cfg.Router
	if router == nil {
		router = runtime.NewRouter(runtime.RouterConfig{})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = types.DefaultTimeoutMS * time.Millisecond
	}

	registry := make(map[types.RuntimeKind]runtime.Backend, len(backends))
	for _, b := range backends {
		registry[b.Kind()] = b
	}

	return &Service{
		router:         router,
		backends:       registry,
		defaultTimeout: timeout,
		collector:      cfg.Metrics,
		logger:         logger,
		tracer:         otel.Tracer(tracerName),
	}
}

// Execute runs one code execution request to a terminal result. The state
// machine is: validate input → route → execute → validate output, and every
// stage can short-circuit to a typed failure. The returned duration is
// façade wall-clock time, so it includes routing and validation overhead.
func (s *Service) Execute(ctx context.Context, req types.ExecutionRequest) (result types.ExecutionResult) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "executor.Execute",
		trace.WithAttributes(
			attribute.String("codeflow.language", string(req.Language)),
			attribute.String("codeflow.runtime", string(req.Config.Runtime)),
		))
	defer span.End()

	backendKind := types.RuntimeKind("")

	// Last line of defense: a panicking backend must still yield a
	// well-formed result to the caller.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("execution panicked", zap.Any("panic", r))
			result = types.Failure(
				types.NewErrorf(types.ErrExecution, "internal execution fault: %v", r),
				types.ExecutionMetadata{DurationMS: time.Since(start).Milliseconds()},
			)
		}
		s.finish(span, req, backendKind, result, time.Since(start))
	}()

	if strings.TrimSpace(req.Code) == "" {
		return s.fail(start, types.NewError(types.ErrMissingCode, "no code provided"))
	}

	input := req.Input
	if input == nil && req.Language.IsScript() {
		input = map[string]any{}
	}

	if verrs := schema.Validate(input, req.Config.InputSchema); len(verrs) > 0 {
		span.AddEvent("input validation failed")
		if s.collector != nil {
			s.collector.RecordValidationFailure("input")
		}
		return s.fail(start, types.NewError(types.ErrInputValidation, "input does not match input schema").
			WithDetail("errors", validationMessages(verrs)))
	}
	span.AddEvent("input validated")

	kind, routeErr := s.router.Route(req.Language, req.Config.Runtime)
	if routeErr != nil {
		return s.fail(start, routeErr)
	}
	backendKind = kind
	span.SetAttributes(attribute.String("codeflow.backend", string(kind)))
	span.AddEvent("routed")

	backend, ok := s.backends[kind]
	if !ok {
		return s.fail(start, types.NewErrorf(types.ErrNotAvailable,
			"backend %q not configured", kind))
	}

	timeout := time.Duration(req.Config.EffectiveTimeoutMS()) * time.Millisecond
	if req.Config.TimeoutMS <= 0 && s.defaultTimeout > 0 {
		timeout = s.defaultTimeout
	}

	// The façade enforces the budget on ctx even when the backend's own
	// timer fails to fire.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, execErr := backend.Execute(ctx, runtime.Request{
		ID:            executionID(),
		Language:      req.Language,
		Code:          req.Code,
		Input:         input,
		Timeout:       timeout,
		Env:           req.Config.Env,
		Packages:      req.Config.Packages,
		FunctionName:  req.Config.FunctionName,
		MemoryLimitMB: req.Config.MemoryLimitMB,
	})
	meta := metadataFrom(raw, start)

	if execErr != nil {
		e := types.AsExecutionError(execErr)
		if e.Code == types.ErrTimeout && s.collector != nil {
			s.collector.RecordTimeout(string(kind))
		}
		s.logger.Debug("execution failed",
			zap.String("language", string(req.Language)),
			zap.String("backend", string(kind)),
			zap.String("code", string(e.Code)))
		return types.Failure(e, meta)
	}
	span.AddEvent("executed")

	output := Normalize(raw)

	if verrs := schema.Validate(output, req.Config.OutputSchema); len(verrs) > 0 {
		span.AddEvent("output validation failed")
		if s.collector != nil {
			s.collector.RecordValidationFailure("output")
		}
		return types.Failure(types.NewError(types.ErrOutputValidation,
			"output does not match output schema").
			WithDetail("errors", validationMessages(verrs)).
			WithDetail("output", output), meta)
	}
	span.AddEvent("output validated")

	return types.Successful(output, meta)
}

// InstallPackage runs the subprocess runtime's package-manager pre-step.
func (s *Service) InstallPackage(ctx context.Context, lang types.Language, pkg string) error {
	backend, ok := s.backends[types.RuntimeSubprocess]
	if !ok {
		return types.NewError(types.ErrNotAvailable, "subprocess backend not configured")
	}
	installer, ok := backend.(interface {
		InstallPackage(ctx context.Context, lang types.Language, pkg string) error
	})
	if !ok {
		return types.NewError(types.ErrInstall, "subprocess backend does not support package install")
	}
	err := installer.InstallPackage(ctx, lang, pkg)
	if s.collector != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.collector.RecordPackageInstall(status)
	}
	return err
}

func (s *Service) fail(start time.Time, err *types.ExecutionError) types.ExecutionResult {
	return types.Failure(err, types.ExecutionMetadata{
		DurationMS: time.Since(start).Milliseconds(),
	})
}

// finish records span status and metrics for one terminal result.
func (s *Service) finish(span trace.Span, req types.ExecutionRequest, kind types.RuntimeKind, result types.ExecutionResult, elapsed time.Duration) {
	if result.Success {
		span.SetStatus(codes.Ok, "")
	} else if result.Error != nil {
		span.SetStatus(codes.Error, string(result.Error.Code))
		span.SetAttributes(attribute.String("codeflow.error_code", string(result.Error.Code)))
	}
	span.SetAttributes(attribute.Bool("codeflow.success", result.Success))

	if s.collector != nil {
		status := "success"
		if !result.Success {
			status = "failure"
			if result.Error != nil {
				status = string(result.Error.Code)
			}
		}
		s.collector.RecordExecution(string(req.Language), string(kind), status, elapsed)
	}
}

func metadataFrom(raw runtime.RawResult, start time.Time) types.ExecutionMetadata {
	return types.ExecutionMetadata{
		DurationMS: time.Since(start).Milliseconds(),
		MemoryMB:   raw.MemoryMB,
		ExitCode:   raw.ExitCode,
	}
}

func validationMessages(verrs []schema.ValidationError) []string {
	msgs := make([]string, len(verrs))
	for i, v := range verrs {
		msgs[i] = v.Error()
	}
	return msgs
}

func executionID() string {
	return "exec-" + uuid.NewString()
}
