// Package sandboxapi provides the ephemeral remote sandbox backend. Each
// call provisions a short-lived execution environment from the configured
// provider, runs the code there, and tears the environment down again
// regardless of outcome.
package sandboxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/types"
)

const defaultTeardownTimeout = 10 * time.Second

// Config configures the remote sandbox client.
type Config struct {
	// Endpoint is the provider base URL, e.g. "https://sandbox.example.com".
	Endpoint string

	// APIKey authorizes provider calls. The client reports itself
	// unavailable when either Endpoint or APIKey is empty.
	APIKey string

	// TeardownTimeout bounds the best-effort sandbox release. The teardown
	// runs on its own context because the execution context is usually
	// already expired when teardown matters most. Defaults to 10s.
	TeardownTimeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client executes code in ephemeral remote sandboxes.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a remote sandbox client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = defaultTeardownTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Kind returns the backend variant tag.
func (c *Client) Kind() types.RuntimeKind { return types.RuntimeRemoteSandbox }

// Available reports whether the provider is configured. When false, Execute
// fails fast with NOT_AVAILABLE instead of attempting network calls.
func (c *Client) Available() bool {
	return c.cfg.Endpoint != "" && c.cfg.APIKey != ""
}

// templateFor maps a language onto a provider execution template.
func templateFor(lang types.Language) (string, bool) {
	switch lang {
	case types.LangJavaScript, types.LangTypeScript:
		return "node", true
	case types.LangPython:
		return "python3", true
	case types.LangBash:
		return "bash", true
	default:
		return "", false
	}
}

// Execute provisions a sandbox, runs the code, and guarantees teardown.
func (c *Client) Execute(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
	if !c.Available() {
		return runtime.RawResult{}, types.NewError(types.ErrNotAvailable,
			"remote sandbox provider not configured")
	}

	template, ok := templateFor(req.Language)
	if !ok {
		return runtime.RawResult{}, types.NewErrorf(types.ErrUnsupportedLanguage,
			"no sandbox template for language %q", req.Language)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = types.DefaultTimeoutMS * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sandboxID, err := c.createSandbox(ctx, template)
	if err != nil {
		return runtime.RawResult{}, c.classifyTransport(err, timeout)
	}
	// Teardown runs on every exit path, on its own context; a teardown
	// failure is logged, never surfaced as the execution's error.
	defer c.teardown(sandboxID)

	code := buildPreamble(req.Language, req.Input) + req.Code

	run, err := c.runCode(ctx, sandboxID, code, timeout)
	if err != nil {
		return runtime.RawResult{}, c.classifyTransport(err, timeout)
	}

	raw := runtime.RawResult{Stdout: run.stdout, Stderr: run.stderr, ExitCode: run.exitCode}
	if run.exitCode != nil && *run.exitCode != 0 {
		return raw, types.NewErrorf(types.ErrExecution,
			"sandbox process exited with code %d", *run.exitCode).
			WithDetail("stderr", run.stderr)
	}
	if run.stderr != "" {
		return raw, types.NewError(types.ErrExecution, "sandbox reported errors").
			WithDetail("stderr", run.stderr)
	}

	raw.Value = normalizeStdout(run.stdout, req.Input)
	raw.HasValue = true
	return raw, nil
}

// runResult is the normalized shape of one provider run response.
type runResult struct {
	stdout   string
	stderr   string
	exitCode *int
}

func (c *Client) createSandbox(ctx context.Context, template string) (string, error) {
	body, err := c.post(ctx, "/v1/sandboxes", map[string]any{"template": template})
	if err != nil {
		return "", err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("unexpected create response: %w", err)
	}
	for _, field := range []string{"id", "sandbox_id", "sandboxId"} {
		if id, ok := payload[field].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", errors.New("create response carries no sandbox id")
}

func (c *Client) runCode(ctx context.Context, sandboxID, code string, timeout time.Duration) (runResult, error) {
	body, err := c.post(ctx, "/v1/sandboxes/"+sandboxID+"/exec", map[string]any{
		"code":       code,
		"timeout_ms": timeout.Milliseconds(),
	})
	if err != nil {
		return runResult{}, err
	}
	return parseRunResponse(body), nil
}

// parseRunResponse normalizes the provider response. Response shapes vary
// across providers and versions, so known field names are probed before
// falling back to treating the whole payload as stdout.
func parseRunResponse(body []byte) runResult {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return runResult{stdout: string(body)}
	}

	// Presence matters, not emptiness: {"stdout": ""} is a complete answer
	// meaning "the run printed nothing", not a shape we failed to recognize.
	var res runResult
	var found bool
	for _, field := range []string{"stdout", "output", "text"} {
		if s, ok := payload[field].(string); ok {
			res.stdout = s
			found = true
			break
		}
	}
	if s, ok := payload["stderr"].(string); ok {
		res.stderr = s
		found = true
	}
	for _, field := range []string{"exit_code", "exitCode"} {
		if f, ok := payload[field].(float64); ok {
			res.exitCode = runtime.IntPtr(int(f))
			found = true
			break
		}
	}
	if !found {
		res.stdout = string(body)
	}
	return res
}

// normalizeStdout derives the output value: parsed JSON when stdout is JSON,
// otherwise the trimmed text, otherwise the original input echoed back.
func normalizeStdout(stdout string, input any) any {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return input
	}
	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err == nil {
		return value
	}
	return trimmed
}

// buildPreamble serializes the input into a language-appropriate constant
// the snippet can reference.
func buildPreamble(lang types.Language, input any) string {
	if input == nil {
		input = map[string]any{}
	}
	data, err := json.Marshal(input)
	if err != nil {
		data = []byte("{}")
	}
	// Marshal the JSON text once more to obtain a quoted, escaped literal
	// valid in both JavaScript and Python source.
	literal, _ := json.Marshal(string(data))

	switch lang {
	case types.LangJavaScript, types.LangTypeScript:
		return fmt.Sprintf("const input = JSON.parse(%s);\n", literal)
	case types.LangPython:
		return fmt.Sprintf("import json\ninput = json.loads(%s)\n", literal)
	case types.LangBash:
		return fmt.Sprintf("CODEFLOW_INPUT=%s\n", shellQuote(string(data)))
	default:
		return ""
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.Endpoint, "/")+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sandbox provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// teardown releases the remote sandbox handle, best effort.
func (c *Client) teardown(sandboxID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TeardownTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		strings.TrimRight(c.cfg.Endpoint, "/")+"/v1/sandboxes/"+sandboxID, nil)
	if err != nil {
		c.logger.Warn("failed to build sandbox teardown request", zap.Error(err))
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("sandbox teardown failed",
			zap.String("sandbox_id", sandboxID),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("sandbox released", zap.String("sandbox_id", sandboxID))
}

// classifyTransport maps transport errors onto the failure taxonomy,
// reporting TIMEOUT distinctly when the budget expired.
func (c *Client) classifyTransport(err error, timeout time.Duration) *types.ExecutionError {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewErrorf(types.ErrTimeout, "sandbox call timed out after %s", timeout).
			WithDetail("backend", string(types.RuntimeRemoteSandbox))
	}
	return types.AsExecutionError(err)
}
