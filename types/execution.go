package types

// DefaultTimeoutMS bounds executions whose config does not set a timeout.
const DefaultTimeoutMS = 30000

// ExecutionRequest represents one code execution request. It is immutable
// once dispatched; the core never persists it.
type ExecutionRequest struct {
	Language Language        `json:"language"`
	Code     string          `json:"code"`
	Input    any             `json:"input,omitempty"`
	Config   ExecutionConfig `json:"config"`
}

// ExecutionConfig carries the per-request execution options.
type ExecutionConfig struct {
	Runtime   RuntimeKind `json:"runtime,omitempty"`
	TimeoutMS int64       `json:"timeout_ms,omitempty"`
	// Packages are installed before the run. Subprocess runtime only.
	Packages []string `json:"packages,omitempty"`

	InputSchema  *JSONSchema `json:"input_schema,omitempty"`
	OutputSchema *JSONSchema `json:"output_schema,omitempty"`

	Env map[string]string `json:"env,omitempty"`

	// FunctionName and MemoryLimitMB apply to the remote module runtime,
	// where Code carries the base64-encoded module bytes.
	FunctionName  string `json:"function_name,omitempty"`
	MemoryLimitMB int    `json:"memory_limit_mb,omitempty"`
}

// EffectiveTimeoutMS returns the configured timeout, or the default bound.
func (c ExecutionConfig) EffectiveTimeoutMS() int64 {
	if c.TimeoutMS > 0 {
		return c.TimeoutMS
	}
	return DefaultTimeoutMS
}

// ExecutionOutput wraps the value produced by the executed code.
type ExecutionOutput struct {
	Output any `json:"output"`
}

// ExecutionMetadata carries advisory measurements for one execution.
// DurationMS is wall-clock time measured by the façade, so it includes
// routing and validation overhead.
type ExecutionMetadata struct {
	DurationMS int64   `json:"duration_ms"`
	MemoryMB   float64 `json:"memory_mb,omitempty"`
	ExitCode   *int    `json:"exit_code,omitempty"`
}

// ExecutionResult is the canonical result shape returned to the caller
// regardless of which backend ran the code. Exactly one of Output and Error
// is populated.
type ExecutionResult struct {
	Success  bool              `json:"success"`
	Output   *ExecutionOutput  `json:"output,omitempty"`
	Error    *ExecutionError   `json:"error,omitempty"`
	Metadata ExecutionMetadata `json:"metadata"`
}

// Failure builds a terminal failed result carrying the given error.
func Failure(err *ExecutionError, meta ExecutionMetadata) ExecutionResult {
	return ExecutionResult{Success: false, Error: err, Metadata: meta}
}

// Successful builds a terminal successful result carrying the given output.
func Successful(output any, meta ExecutionMetadata) ExecutionResult {
	return ExecutionResult{Success: true, Output: &ExecutionOutput{Output: output}, Metadata: meta}
}
