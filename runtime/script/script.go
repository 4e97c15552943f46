// Package script provides the in-process script sandbox. Code in the
// JavaScript family is evaluated on an embedded interpreter inside the host
// process; the evaluation context exposes only the caller's input and the
// language built-ins, never filesystem or network handles.
package script

import (
	"context"
	goruntime "runtime"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/types"
)

// interruptReason marks interpreter interrupts raised by the timeout race.
type interruptReason string

const (
	interruptTimeout  interruptReason = "timeout"
	interruptCanceled interruptReason = "canceled"
)

// Config configures the in-process sandbox.
type Config struct {
	// MaxCodeBytes rejects oversized snippets before compilation.
	// Zero means no limit.
	MaxCodeBytes int
}

// Sandbox executes script-family code inside the host process. A fresh
// interpreter is created per call, so instances are safe for concurrent use.
type Sandbox struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an in-process script sandbox.
func New(cfg Config, logger *zap.Logger) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sandbox{cfg: cfg, logger: logger}
}

// Kind returns the backend variant tag.
func (s *Sandbox) Kind() types.RuntimeKind { return types.RuntimeInProcess }

// Execute evaluates req.Code as the body of a function receiving input.
// A thrown exception inside the code is reported as an EXECUTION_ERROR,
// never propagated as a host-level fault. Memory is approximated by the
// host heap delta around the evaluation and is advisory only.
func (s *Sandbox) Execute(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
	if s.cfg.MaxCodeBytes > 0 && len(req.Code) > s.cfg.MaxCodeBytes {
		return runtime.RawResult{}, types.NewErrorf(types.ErrExecution,
			"code exceeds %d bytes", s.cfg.MaxCodeBytes)
	}

	// Wrapping the snippet as a function body makes a bare `return` legal,
	// matching how code nodes are authored.
	program, err := goja.Compile("code", "(function(input){\n"+req.Code+"\n})", false)
	if err != nil {
		return runtime.RawResult{}, types.NewErrorf(types.ErrExecution,
			"compile error: %v", err)
	}

	vm := goja.New()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = types.DefaultTimeoutMS * time.Millisecond
	}
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(interruptTimeout)
	})
	defer timer.Stop()

	// Honor façade-level cancellation as well as the local timer.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				vm.Interrupt(interruptTimeout)
			} else {
				vm.Interrupt(interruptCanceled)
			}
		case <-watcherDone:
		}
	}()

	var before goruntime.MemStats
	goruntime.ReadMemStats(&before)

	value, err := s.run(vm, program, req.Input)

	var after goruntime.MemStats
	goruntime.ReadMemStats(&after)
	memMB := heapDeltaMB(before, after)

	if err != nil {
		if execErr := classify(err, timeout); execErr != nil {
			return runtime.RawResult{MemoryMB: memMB}, execErr
		}
		return runtime.RawResult{MemoryMB: memMB}, types.AsExecutionError(err)
	}

	return runtime.RawResult{
		Value:    value,
		HasValue: true,
		MemoryMB: memMB,
	}, nil
}

func (s *Sandbox) run(vm *goja.Runtime, program *goja.Program, input any) (any, error) {
	fnValue, err := vm.RunProgram(program)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, types.NewError(types.ErrExecution, "compiled code is not callable")
	}

	result, err := fn(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		return nil, err
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}
	return result.Export(), nil
}

// classify maps interpreter errors onto the failure taxonomy.
func classify(err error, timeout time.Duration) *types.ExecutionError {
	switch e := err.(type) {
	case *goja.InterruptedError:
		if reason, ok := e.Value().(interruptReason); ok && reason == interruptCanceled {
			return types.NewError(types.ErrExecution, "execution canceled")
		}
		return types.NewErrorf(types.ErrTimeout, "script timed out after %s", timeout).
			WithDetail("backend", string(types.RuntimeInProcess))
	case *goja.Exception:
		return types.NewErrorf(types.ErrExecution, "%s", e.Error())
	case *goja.StackOverflowError:
		return types.NewError(types.ErrExecution, "stack overflow")
	default:
		return nil
	}
}

// heapDeltaMB reports the clamped-to-zero host heap growth in MB.
func heapDeltaMB(before, after goruntime.MemStats) float64 {
	if after.HeapAlloc <= before.HeapAlloc {
		return 0
	}
	return float64(after.HeapAlloc-before.HeapAlloc) / (1024 * 1024)
}
