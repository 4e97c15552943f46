// Package runtime defines the capability contract shared by all execution
// backends and the router that selects among them. Concrete backends live in
// subpackages (script, subprocess, sandboxapi, wasmsvc); each owns its
// resources for the lifetime of one call only.
package runtime

import (
	"context"
	"time"

	"github.com/BaSui01/codeflow/types"
)

// Request is the backend-level execution request, produced by the executor
// façade after validation and routing.
type Request struct {
	// ID identifies one execution for logging and resource naming.
	ID string

	Language types.Language
	Code     string
	Input    any

	// Timeout is the per-call budget. Backends enforce it themselves in
	// addition to the ctx deadline the façade sets, so a timed-out run is
	// terminated even if one of the two timers fails to fire.
	Timeout time.Duration

	Env      map[string]string
	Packages []string

	// FunctionName and MemoryLimitMB apply to module execution only.
	FunctionName  string
	MemoryLimitMB int
}

// RawResult is a backend-specific result before normalization. Backends that
// evaluate to a value set Value/HasValue; backends that capture process output
// set Stdout/Stderr and leave normalization to the façade.
type RawResult struct {
	Value    any
	HasValue bool

	Stdout string
	Stderr string

	ExitCode *int

	// MemoryMB is advisory telemetry, not an enforced cap.
	MemoryMB float64
}

// Backend is one concrete execution strategy. Implementations must be safe
// for concurrent use, honor ctx cancellation, and release every acquired
// resource on every exit path, including timeout.
//
// Failures are reported as *types.ExecutionError; the façade converts any
// foreign error with types.AsExecutionError as a last line of defense.
type Backend interface {
	// Kind returns the backend variant tag.
	Kind() types.RuntimeKind

	// Execute runs one code snippet to completion or failure.
	Execute(ctx context.Context, req Request) (RawResult, error)
}

// IntPtr returns a pointer to v; helper for RawResult.ExitCode.
func IntPtr(v int) *int { return &v }
