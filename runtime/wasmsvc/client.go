// Package wasmsvc provides the compute-module backend: a client for the
// external service that executes precompiled portable binary modules under a
// memory limit. Unlike the sandbox provider, this service's response is
// already canonical, so the client decodes it directly.
package wasmsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/types"
)

const (
	defaultFunctionName  = "main"
	defaultMemoryLimitMB = 128
	healthCheckTimeout   = 5 * time.Second
)

// Config configures the compute-module client.
type Config struct {
	// BaseURL is the service base URL, e.g. "http://wasm-svc:8080".
	BaseURL string

	// APIKey is optional; when set it is sent as a bearer token.
	APIKey string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client calls the module execution service.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a compute-module client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Kind returns the backend variant tag.
func (c *Client) Kind() types.RuntimeKind { return types.RuntimeRemoteModule }

// executeRequest is the service wire request. Code carries the module bytes
// base64-encoded; the service decodes them.
type executeRequest struct {
	WASM         string `json:"wasm"`
	Input        any    `json:"input"`
	FunctionName string `json:"function_name"`
	MemoryLimit  int    `json:"memory_limit"`
	Timeout      int64  `json:"timeout"`
}

// executeResponse is the service wire response.
type executeResponse struct {
	Success       bool    `json:"success"`
	Output        any     `json:"output,omitempty"`
	Error         *string `json:"error,omitempty"`
	ExecutionTime *int64  `json:"execution_time,omitempty"`
	MemoryUsed    *int64  `json:"memory_used,omitempty"`
}

// Execute posts the module to the service and decodes the canonical result.
// An expired budget reports TIMEOUT; any other network failure is an
// EXECUTION_ERROR, so an absent service never looks like a timeout.
func (c *Client) Execute(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = types.DefaultTimeoutMS * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := executeRequest{
		WASM:         req.Code,
		Input:        req.Input,
		FunctionName: req.FunctionName,
		MemoryLimit:  req.MemoryLimitMB,
		Timeout:      timeout.Milliseconds(),
	}
	if payload.FunctionName == "" {
		payload.FunctionName = defaultFunctionName
	}
	if payload.MemoryLimit <= 0 {
		payload.MemoryLimit = defaultMemoryLimitMB
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return runtime.RawResult{}, types.AsExecutionError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/execute", bytes.NewReader(data))
	if err != nil {
		return runtime.RawResult{}, types.AsExecutionError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return runtime.RawResult{}, types.NewErrorf(types.ErrTimeout,
				"module execution timed out after %s", timeout).
				WithDetail("backend", string(types.RuntimeRemoteModule))
		}
		return runtime.RawResult{}, types.NewErrorf(types.ErrExecution,
			"module service unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return runtime.RawResult{}, types.AsExecutionError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return runtime.RawResult{}, types.NewErrorf(types.ErrExecution,
			"module service returned %d", resp.StatusCode).
			WithDetail("body", strings.TrimSpace(string(body)))
	}

	var decoded executeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return runtime.RawResult{}, types.NewErrorf(types.ErrExecution,
			"invalid module service response: %v", err)
	}

	raw := runtime.RawResult{}
	if decoded.MemoryUsed != nil {
		raw.MemoryMB = float64(*decoded.MemoryUsed)
	}
	if !decoded.Success {
		msg := "module execution failed"
		if decoded.Error != nil {
			msg = *decoded.Error
		}
		return raw, types.NewError(types.ErrExecution, msg)
	}

	raw.Value = decoded.Output
	raw.HasValue = true
	return raw, nil
}

// HealthCheck probes the service with a short fixed budget. All errors
// collapse to false; backend-selection policy on an unhealthy service
// belongs to the caller.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("module service health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
