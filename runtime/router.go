package runtime

import (
	"github.com/BaSui01/codeflow/types"
)

// RouterConfig configures backend selection.
type RouterConfig struct {
	// AutoPolicy maps a language to the backend chosen under RuntimeAuto.
	// Leave nil for the defaults; override per-language to change the auto
	// decision without forking the router.
	AutoPolicy map[types.Language]types.RuntimeKind
}

// DefaultAutoPolicy returns the default auto-routing table: script-family
// languages stay in-process (lowest latency, no network dependency),
// python/bash go to the local subprocess runtime. The two remote backends are
// never auto-selected; callers wanting strict isolation declare them.
func DefaultAutoPolicy() map[types.Language]types.RuntimeKind {
	return map[types.Language]types.RuntimeKind{
		types.LangJavaScript: types.RuntimeInProcess,
		types.LangTypeScript: types.RuntimeInProcess,
		types.LangPython:     types.RuntimeSubprocess,
		types.LangBash:       types.RuntimeSubprocess,
		types.LangWASM:       types.RuntimeRemoteModule,
	}
}

// supportMatrix declares which languages each backend kind can execute.
var supportMatrix = map[types.RuntimeKind]map[types.Language]bool{
	types.RuntimeInProcess: {
		types.LangJavaScript: true,
		types.LangTypeScript: true,
	},
	types.RuntimeSubprocess: {
		types.LangPython: true,
		types.LangBash:   true,
	},
	types.RuntimeRemoteSandbox: {
		types.LangJavaScript: true,
		types.LangTypeScript: true,
		types.LangPython:     true,
		types.LangBash:       true,
	},
	// The module service runs precompiled module bytes only; source
	// languages must not route there.
	types.RuntimeRemoteModule: {
		types.LangWASM: true,
	},
}

// Router selects the backend kind for a request. It is pure and
// deterministic given its routing table and performs no I/O.
type Router struct {
	auto map[types.Language]types.RuntimeKind
}

// NewRouter creates a router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	auto := cfg.AutoPolicy
	if auto == nil {
		auto = DefaultAutoPolicy()
	}
	return &Router{auto: auto}
}

// Route resolves the backend kind for language under the declared runtime
// preference. A declared non-auto runtime is used verbatim when it supports
// the language; otherwise routing fails with UNSUPPORTED_RUNTIME. Under
// RuntimeAuto an unknown language fails with UNSUPPORTED_LANGUAGE.
func (r *Router) Route(language types.Language, declared types.RuntimeKind) (types.RuntimeKind, *types.ExecutionError) {
	if declared != "" && declared != types.RuntimeAuto {
		supported, known := supportMatrix[declared]
		if !known {
			return "", types.NewErrorf(types.ErrUnsupportedRuntime, "unknown runtime %q", declared)
		}
		if !supported[language] {
			return "", types.NewErrorf(types.ErrUnsupportedRuntime,
				"runtime %q does not support language %q", declared, language).
				WithDetail("language", string(language)).
				WithDetail("runtime", string(declared))
		}
		return declared, nil
	}

	kind, ok := r.auto[language]
	if !ok {
		return "", types.NewErrorf(types.ErrUnsupportedLanguage, "no backend for language %q", language).
			WithDetail("language", string(language))
	}
	return kind, nil
}
