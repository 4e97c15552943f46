package types

// Language represents supported programming languages.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
	LangBash       Language = "bash"
	LangWASM       Language = "wasm" // precompiled module, Code carries base64 bytes
)

// IsScript reports whether the language belongs to the script family that the
// in-process sandbox can evaluate directly.
func (l Language) IsScript() bool {
	return l == LangJavaScript || l == LangTypeScript
}

// RuntimeKind identifies one concrete execution backend, or the auto policy.
type RuntimeKind string

const (
	RuntimeAuto          RuntimeKind = "auto"
	RuntimeInProcess     RuntimeKind = "in_process"
	RuntimeSubprocess    RuntimeKind = "subprocess"
	RuntimeRemoteSandbox RuntimeKind = "remote_sandbox"
	RuntimeRemoteModule  RuntimeKind = "remote_module"
)
