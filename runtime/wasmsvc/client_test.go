package wasmsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/types"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL}, nil)
}

// --- execution ---

func TestClient_ExecuteSuccess(t *testing.T) {
	t.Parallel()

	var got executeRequest
	c := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/execute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"success":        true,
			"output":         map[string]any{"doubled": 10},
			"execution_time": 7,
			"memory_used":    3,
		})
	})

	raw, err := c.Execute(context.Background(), runtime.Request{
		Language:      types.LangWASM,
		Code:          "AGFzbQEAAAA=",
		Input:         map[string]any{"value": 5},
		Timeout:       5 * time.Second,
		FunctionName:  "double",
		MemoryLimitMB: 64,
	})
	require.NoError(t, err)
	require.True(t, raw.HasValue)
	assert.Equal(t, map[string]any{"doubled": float64(10)}, raw.Value)
	assert.Equal(t, float64(3), raw.MemoryMB)

	assert.Equal(t, "AGFzbQEAAAA=", got.WASM)
	assert.Equal(t, "double", got.FunctionName)
	assert.Equal(t, 64, got.MemoryLimit)
	assert.Equal(t, int64(5000), got.Timeout)
}

func TestClient_ExecuteDefaults(t *testing.T) {
	t.Parallel()

	var got executeRequest
	c := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "output": nil})
	})

	_, err := c.Execute(context.Background(), runtime.Request{
		Language: types.LangWASM,
		Code:     "AGFzbQEAAAA=",
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "main", got.FunctionName)
	assert.Equal(t, 128, got.MemoryLimit)
}

// --- failure taxonomy ---

func TestClient_ServiceReportsFailure(t *testing.T) {
	t.Parallel()

	c := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "function 'missing' not found in module",
		})
	})

	_, err := c.Execute(context.Background(), runtime.Request{
		Language: types.LangWASM,
		Code:     "AGFzbQEAAAA=",
		Timeout:  time.Second,
	})
	require.Error(t, err)
	execErr := types.AsExecutionError(err)
	assert.Equal(t, types.ErrExecution, execErr.Code)
	assert.Contains(t, execErr.Message, "not found in module")
}

func TestClient_Non2xxResponse(t *testing.T) {
	t.Parallel()

	c := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := c.Execute(context.Background(), runtime.Request{
		Language: types.LangWASM,
		Code:     "AGFzbQEAAAA=",
		Timeout:  time.Second,
	})
	require.Error(t, err)
	execErr := types.AsExecutionError(err)
	assert.Equal(t, types.ErrExecution, execErr.Code)
	assert.Equal(t, "overloaded", execErr.Details["body"])
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()

	c := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})

	_, err := c.Execute(context.Background(), runtime.Request{
		Language: types.LangWASM,
		Code:     "AGFzbQEAAAA=",
		Timeout:  100 * time.Millisecond,
	})
	require.Error(t, err)
	execErr := types.AsExecutionError(err)
	assert.Equal(t, types.ErrTimeout, execErr.Code)
	assert.Equal(t, string(types.RuntimeRemoteModule), execErr.Details["backend"])
}

func TestClient_ServiceUnreachable(t *testing.T) {
	t.Parallel()

	// A connection error is not a timeout.
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := c.Execute(context.Background(), runtime.Request{
		Language: types.LangWASM,
		Code:     "AGFzbQEAAAA=",
		Timeout:  5 * time.Second,
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrExecution, types.GetErrorCode(err))
}

// --- health ---

func TestClient_HealthCheck(t *testing.T) {
	t.Parallel()

	healthy := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	assert.True(t, healthy.HealthCheck(context.Background()))

	down := New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	assert.False(t, down.HealthCheck(context.Background()))
}
