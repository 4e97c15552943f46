package executor

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/types"
)

// testBackend is a scriptable backend double.
type testBackend struct {
	kind      types.RuntimeKind
	executeFn func(ctx context.Context, req runtime.Request) (runtime.RawResult, error)
	calls     atomic.Int32
}

func (b *testBackend) Kind() types.RuntimeKind { return b.kind }

func (b *testBackend) Execute(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
	b.calls.Add(1)
	if b.executeFn != nil {
		return b.executeFn(ctx, req)
	}
	return runtime.RawResult{Value: "ok", HasValue: true}, nil
}

func newService(backends ...runtime.Backend) *Service {
	return New(Config{}, backends...)
}

// --- terminal shape ---

func TestService_SuccessResult(t *testing.T) {
	t.Parallel()

	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			return runtime.RawResult{Value: map[string]any{"sum": 7}, HasValue: true, MemoryMB: 1.5}, nil
		},
	}
	svc := newService(backend)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "return {sum: input.a + input.b};",
		Input:    map[string]any{"a": 3, "b": 4},
	})

	require.True(t, result.Success)
	require.NotNil(t, result.Output)
	assert.Nil(t, result.Error)
	assert.Equal(t, map[string]any{"sum": 7}, result.Output.Output)
	assert.GreaterOrEqual(t, result.Metadata.DurationMS, int64(0))
	assert.Equal(t, 1.5, result.Metadata.MemoryMB)
}

func TestService_ExecutionIDsUnique(t *testing.T) {
	t.Parallel()

	var ids []string
	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			ids = append(ids, req.ID)
			return runtime.RawResult{Value: "ok", HasValue: true}, nil
		},
	}
	svc := newService(backend)

	req := types.ExecutionRequest{Language: types.LangJavaScript, Code: "return 1;"}
	svc.Execute(context.Background(), req)
	svc.Execute(context.Background(), req)

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	for _, id := range ids {
		require.True(t, strings.HasPrefix(id, "exec-"), "id %q", id)
		_, err := uuid.Parse(strings.TrimPrefix(id, "exec-"))
		assert.NoError(t, err, "id %q", id)
	}
}

func TestService_FailureResult(t *testing.T) {
	t.Parallel()

	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			return runtime.RawResult{}, types.NewError(types.ErrExecution, "Test error")
		},
	}
	svc := newService(backend)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "throw new Error('Test error');",
	})

	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Nil(t, result.Output)
	assert.Equal(t, types.ErrExecution, result.Error.Code)
	assert.Contains(t, result.Error.Message, "Test error")
}

// --- pre-flight checks ---

func TestService_MissingCode(t *testing.T) {
	t.Parallel()

	backend := &testBackend{kind: types.RuntimeInProcess}
	svc := newService(backend)

	for _, code := range []string{"", "   ", "\n\t"} {
		result := svc.Execute(context.Background(), types.ExecutionRequest{
			Language: types.LangJavaScript,
			Code:     code,
		})
		require.False(t, result.Success)
		assert.Equal(t, types.ErrMissingCode, result.Error.Code)
	}
	assert.Equal(t, int32(0), backend.calls.Load(), "missing code must fail before any backend runs")
}

func TestService_InputValidationShortCircuits(t *testing.T) {
	t.Parallel()

	backend := &testBackend{kind: types.RuntimeInProcess}
	svc := newService(backend)

	schema := types.NewObjectSchema().
		AddProperty("value", types.NewNumberSchema()).
		AddRequired("value")

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "return input.value;",
		Input:    map[string]any{"wrong": true},
		Config:   types.ExecutionConfig{InputSchema: schema},
	})

	require.False(t, result.Success)
	assert.Equal(t, types.ErrInputValidation, result.Error.Code)
	assert.Equal(t, int32(0), backend.calls.Load(), "invalid input must never reach a backend")
}

func TestService_NilInputDefaultsToEmptyObject(t *testing.T) {
	t.Parallel()

	var seen any
	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			seen = req.Input
			return runtime.RawResult{Value: req.Input, HasValue: true}, nil
		},
	}
	svc := newService(backend)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "return input;",
	})
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{}, seen)
}

// --- routing ---

func TestService_RoutingErrors(t *testing.T) {
	t.Parallel()
	svc := newService(&testBackend{kind: types.RuntimeInProcess})

	t.Run("unsupported language", func(t *testing.T) {
		result := svc.Execute(context.Background(), types.ExecutionRequest{
			Language: "cobol",
			Code:     "DISPLAY 'HI'.",
		})
		require.False(t, result.Success)
		assert.Equal(t, types.ErrUnsupportedLanguage, result.Error.Code)
	})

	t.Run("unsupported runtime", func(t *testing.T) {
		result := svc.Execute(context.Background(), types.ExecutionRequest{
			Language: types.LangPython,
			Code:     "print(1)",
			Config:   types.ExecutionConfig{Runtime: types.RuntimeInProcess},
		})
		require.False(t, result.Success)
		assert.Equal(t, types.ErrUnsupportedRuntime, result.Error.Code)
	})

	t.Run("backend not registered", func(t *testing.T) {
		result := svc.Execute(context.Background(), types.ExecutionRequest{
			Language: types.LangPython,
			Code:     "print(1)",
		})
		require.False(t, result.Success)
		assert.Equal(t, types.ErrNotAvailable, result.Error.Code)
	})
}

func TestService_DeclaredRuntimeSelectsBackend(t *testing.T) {
	t.Parallel()

	inProcess := &testBackend{kind: types.RuntimeInProcess}
	remote := &testBackend{kind: types.RuntimeRemoteSandbox}
	svc := newService(inProcess, remote)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "return 1;",
		Config:   types.ExecutionConfig{Runtime: types.RuntimeRemoteSandbox},
	})
	require.True(t, result.Success)
	assert.Equal(t, int32(0), inProcess.calls.Load())
	assert.Equal(t, int32(1), remote.calls.Load())
}

// --- output validation ---

func TestService_OutputValidationOverridesSuccess(t *testing.T) {
	t.Parallel()

	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			return runtime.RawResult{Value: map[string]any{"sum": "seven"}, HasValue: true}, nil
		},
	}
	svc := newService(backend)

	schema := types.NewObjectSchema().
		AddProperty("sum", types.NewNumberSchema()).
		AddRequired("sum")

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "return {sum: 'seven'};",
		Config:   types.ExecutionConfig{OutputSchema: schema},
	})

	require.False(t, result.Success, "a run that executed but produced a bad shape is a failure")
	assert.Equal(t, types.ErrOutputValidation, result.Error.Code)
	// The offending output is preserved for diagnosis.
	assert.NotNil(t, result.Error.Details["output"])
}

// --- timeout and budget ---

func TestService_TimeoutPropagatesBudget(t *testing.T) {
	t.Parallel()

	var budget time.Duration
	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			budget = req.Timeout
			deadline, ok := ctx.Deadline()
			require.True(t, ok, "façade must bound the context")
			require.LessOrEqual(t, time.Until(deadline), req.Timeout)
			return runtime.RawResult{HasValue: true}, nil
		},
	}
	svc := newService(backend)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "return 1;",
		Config:   types.ExecutionConfig{TimeoutMS: 1500},
	})
	require.True(t, result.Success)
	assert.Equal(t, 1500*time.Millisecond, budget)
}

func TestService_BackendTimeoutRecorded(t *testing.T) {
	t.Parallel()

	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			return runtime.RawResult{Stdout: "partial"}, types.NewError(types.ErrTimeout, "script timed out")
		},
	}
	svc := newService(backend)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "while(true){}",
	})
	require.False(t, result.Success)
	assert.Equal(t, types.ErrTimeout, result.Error.Code)
}

// --- resilience ---

func TestService_PanickingBackend(t *testing.T) {
	t.Parallel()

	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			panic("interpreter blew up")
		},
	}
	svc := newService(backend)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "return 1;",
	})
	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrExecution, result.Error.Code)
	assert.Contains(t, result.Error.Message, "interpreter blew up")
}

func TestService_ForeignBackendError(t *testing.T) {
	t.Parallel()

	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			return runtime.RawResult{}, context.Canceled
		},
	}
	svc := newService(backend)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "return 1;",
	})
	require.False(t, result.Success)
	assert.Equal(t, types.ErrExecution, result.Error.Code)
}

// --- metadata ---

func TestService_ErrorMetadataPreserved(t *testing.T) {
	t.Parallel()

	backend := &testBackend{
		kind: types.RuntimeSubprocess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			return runtime.RawResult{Stdout: "", Stderr: "boom", ExitCode: runtime.IntPtr(2)},
				types.NewError(types.ErrExecution, "process exited with code 2")
		},
	}
	svc := newService(backend)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangPython,
		Code:     "import sys; sys.exit(2)",
	})
	require.False(t, result.Success)
	require.NotNil(t, result.Metadata.ExitCode)
	assert.Equal(t, 2, *result.Metadata.ExitCode)
}

// --- package install ---

func TestService_InstallPackageWithoutSubprocessBackend(t *testing.T) {
	t.Parallel()

	svc := newService(&testBackend{kind: types.RuntimeInProcess})
	err := svc.InstallPackage(context.Background(), types.LangPython, "requests")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotAvailable, types.GetErrorCode(err))
}

func TestService_InstallPackageUnsupportedBackend(t *testing.T) {
	t.Parallel()

	// A registered subprocess backend without install support is an
	// INSTALL_ERROR, not NOT_AVAILABLE.
	svc := newService(&testBackend{kind: types.RuntimeSubprocess})
	err := svc.InstallPackage(context.Background(), types.LangPython, "requests")
	require.Error(t, err)
	assert.Equal(t, types.ErrInstall, types.GetErrorCode(err))
}

// --- output normalization for stream backends ---

func TestService_StreamOutputNormalized(t *testing.T) {
	t.Parallel()

	backend := &testBackend{
		kind: types.RuntimeSubprocess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			return runtime.RawResult{Stdout: "{\"count\": 3}\n", ExitCode: runtime.IntPtr(0)}, nil
		},
	}
	svc := newService(backend)

	result := svc.Execute(context.Background(), types.ExecutionRequest{
		Language: types.LangPython,
		Code:     "print(json.dumps({'count': 3}))",
	})
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{"count": float64(3)}, result.Output.Output)
}

func TestService_Idempotence(t *testing.T) {
	t.Parallel()

	backend := &testBackend{
		kind: types.RuntimeInProcess,
		executeFn: func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
			in := req.Input.(map[string]any)
			return runtime.RawResult{Value: in["value"], HasValue: true}, nil
		},
	}
	svc := newService(backend)

	req := types.ExecutionRequest{
		Language: types.LangJavaScript,
		Code:     "return input.value;",
		Input:    map[string]any{"value": 42},
	}
	first := svc.Execute(context.Background(), req)
	second := svc.Execute(context.Background(), req)

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, first.Output.Output, second.Output.Output)
	assert.Equal(t, map[string]any{"value": 42}, req.Input, "request input must survive both runs unmutated")
}
