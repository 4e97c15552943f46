package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- EffectiveTimeoutMS ---

func TestExecutionConfig_EffectiveTimeoutMS(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(DefaultTimeoutMS), ExecutionConfig{}.EffectiveTimeoutMS())
	assert.Equal(t, int64(DefaultTimeoutMS), ExecutionConfig{TimeoutMS: -1}.EffectiveTimeoutMS())
	assert.Equal(t, int64(5000), ExecutionConfig{TimeoutMS: 5000}.EffectiveTimeoutMS())
}

// --- result constructors ---

func TestResultConstructors(t *testing.T) {
	t.Parallel()

	ok := Successful(map[string]any{"sum": 3}, ExecutionMetadata{DurationMS: 12})
	require.True(t, ok.Success)
	require.NotNil(t, ok.Output)
	assert.Nil(t, ok.Error)
	assert.Equal(t, int64(12), ok.Metadata.DurationMS)

	fail := Failure(NewError(ErrMissingCode, "no code provided"), ExecutionMetadata{})
	require.False(t, fail.Success)
	require.NotNil(t, fail.Error)
	assert.Nil(t, fail.Output)
	assert.Equal(t, ErrMissingCode, fail.Error.Code)
}

// --- wire shape ---

func TestExecutionResult_JSONShape(t *testing.T) {
	t.Parallel()

	exit := 1
	fail := Failure(
		NewError(ErrExecution, "process exited with code 1").WithDetail("stderr", "boom"),
		ExecutionMetadata{DurationMS: 40, ExitCode: &exit},
	)

	data, err := json.Marshal(fail)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, false, decoded["success"])
	assert.NotContains(t, decoded, "output")
	errObj, ok := decoded["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "EXECUTION_ERROR", errObj["code"])
	meta, ok := decoded["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), meta["exit_code"])
}

func TestLanguage_IsScript(t *testing.T) {
	t.Parallel()

	assert.True(t, LangJavaScript.IsScript())
	assert.True(t, LangTypeScript.IsScript())
	assert.False(t, LangPython.IsScript())
	assert.False(t, LangBash.IsScript())
	assert.False(t, LangWASM.IsScript())
}
