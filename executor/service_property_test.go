package executor

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/types"
)

// genLanguage generates any language string, valid or not.
func genLanguage() *rapid.Generator[types.Language] {
	return rapid.Custom(func(t *rapid.T) types.Language {
		if rapid.Bool().Draw(t, "known") {
			return rapid.SampledFrom([]types.Language{
				types.LangJavaScript,
				types.LangTypeScript,
				types.LangPython,
				types.LangBash,
				types.LangWASM,
			}).Draw(t, "language")
		}
		return types.Language(rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "unknown"))
	})
}

// genRuntimeKind generates a declared runtime, including auto and garbage.
func genRuntimeKind() *rapid.Generator[types.RuntimeKind] {
	return rapid.SampledFrom([]types.RuntimeKind{
		"",
		types.RuntimeAuto,
		types.RuntimeInProcess,
		types.RuntimeSubprocess,
		types.RuntimeRemoteSandbox,
		types.RuntimeRemoteModule,
		"bare_metal",
	})
}

// Every execution, whatever the request, yields a terminal result: success
// with an output and no error, or failure with a taxonomy error and no
// output. Nothing panics and nothing escapes the result shape.
func TestProperty_ResultAlwaysTerminal(t *testing.T) {
	echo := func(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
		return runtime.RawResult{Value: req.Input, HasValue: true}, nil
	}
	svc := New(Config{},
		&testBackend{kind: types.RuntimeInProcess, executeFn: echo},
		&testBackend{kind: types.RuntimeSubprocess, executeFn: echo},
		&testBackend{kind: types.RuntimeRemoteSandbox, executeFn: echo},
		&testBackend{kind: types.RuntimeRemoteModule, executeFn: echo},
	)

	knownCodes := map[types.ErrorCode]bool{
		types.ErrMissingCode:         true,
		types.ErrInputValidation:     true,
		types.ErrOutputValidation:    true,
		types.ErrUnsupportedLanguage: true,
		types.ErrUnsupportedRuntime:  true,
		types.ErrNotAvailable:        true,
		types.ErrTimeout:             true,
		types.ErrExecution:           true,
		types.ErrInstall:             true,
	}

	rapid.Check(t, func(t *rapid.T) {
		req := types.ExecutionRequest{
			Language: genLanguage().Draw(t, "language"),
			Code:     rapid.StringMatching(`[ -~]{0,40}`).Draw(t, "code"),
			Config: types.ExecutionConfig{
				Runtime:   genRuntimeKind().Draw(t, "runtime"),
				TimeoutMS: int64(rapid.IntRange(0, 5000).Draw(t, "timeout")),
			},
		}

		result := svc.Execute(context.Background(), req)

		if result.Success {
			if result.Output == nil || result.Error != nil {
				t.Fatalf("success must carry output and no error: %+v", result)
			}
		} else {
			if result.Error == nil || result.Output != nil {
				t.Fatalf("failure must carry error and no output: %+v", result)
			}
			if !knownCodes[result.Error.Code] {
				t.Fatalf("error code %q outside the taxonomy", result.Error.Code)
			}
		}
		if result.Metadata.DurationMS < 0 {
			t.Fatalf("negative duration %d", result.Metadata.DurationMS)
		}
	})
}
