// Package types provides the shared type contracts of the codeflow execution
// core. It is the lowest layer of the module and depends on no internal
// package, so runtime backends, the schema validator, and the executor façade
// can all share one request/result/error vocabulary without import cycles.
//
// Core types:
//
//   - ExecutionRequest / ExecutionConfig — one code execution, immutable once dispatched
//   - ExecutionResult / ExecutionOutput  — the canonical result every backend maps into
//   - ExecutionError / ErrorCode         — the closed failure taxonomy
//   - Language / RuntimeKind             — language and backend-selection enums
//   - JSONSchema                         — schema descriptor for input/output contracts
package types
