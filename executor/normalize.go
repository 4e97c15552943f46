package executor

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/codeflow/runtime"
)

// Normalize converts a backend's raw result into the caller-facing output
// value. Backends that produce a value directly win; stream-producing
// backends get their stdout decoded as JSON when possible, otherwise the
// trimmed text is the output.
func Normalize(raw runtime.RawResult) any {
	if raw.HasValue {
		return raw.Value
	}
	trimmed := strings.TrimSpace(raw.Stdout)
	if trimmed == "" {
		return ""
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}
	return trimmed
}
