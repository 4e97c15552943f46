// Package subprocess provides the local interpreter runtime. Python and bash
// code is written to a scratch file and executed by a spawned OS process
// under a timeout, with bounded output capture and guaranteed scratch-file
// cleanup on every exit path.
package subprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/codeflow/runtime"
	"github.com/BaSui01/codeflow/types"
)

// InputEnvVar carries the JSON-serialized request input into the child
// process; bash reads it as $CODEFLOW_INPUT, python via os.environ.
const InputEnvVar = "CODEFLOW_INPUT"

const defaultMaxOutputBytes = 1024 * 1024

// Config configures the subprocess runtime.
type Config struct {
	// ScratchDir is where materialized scripts are written.
	// Defaults to os.TempDir().
	ScratchDir string

	// MaxOutputBytes caps each captured stream to prevent unbounded memory
	// growth from runaway output. Defaults to 1MB.
	MaxOutputBytes int

	// Interpreters overrides the probed interpreter per language, e.g.
	// {python: "/usr/local/bin/python3.12"}.
	Interpreters map[types.Language]string
}

// discovery caches one interpreter probe for the process lifetime.
type discovery struct {
	once sync.Once
	path string
	err  error
}

// Runtime executes python/bash code via local OS processes.
type Runtime struct {
	cfg    Config
	logger *zap.Logger

	discoveries map[types.Language]*discovery
}

// interpreter candidates probed in order on first use.
var candidates = map[types.Language][]string{
	types.LangPython: {"python3", "python"},
	types.LangBash:   {"bash", "sh"},
}

// New creates a subprocess runtime.
func New(cfg Config, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	discoveries := make(map[types.Language]*discovery, len(candidates))
	for lang := range candidates {
		discoveries[lang] = &discovery{}
	}
	return &Runtime{cfg: cfg, logger: logger, discoveries: discoveries}
}

// Kind returns the backend variant tag.
func (r *Runtime) Kind() types.RuntimeKind { return types.RuntimeSubprocess }

// Interpreter resolves the interpreter binary for a language. The probe runs
// once per language for the process lifetime; subsequent calls read the
// cached result.
func (r *Runtime) Interpreter(lang types.Language) (string, error) {
	d, ok := r.discoveries[lang]
	if !ok {
		return "", types.NewErrorf(types.ErrUnsupportedLanguage, "no interpreter candidates for language %q", lang)
	}
	d.once.Do(func() {
		if override := r.cfg.Interpreters[lang]; override != "" {
			d.path, d.err = exec.LookPath(override)
			return
		}
		for _, name := range candidates[lang] {
			if path, err := exec.LookPath(name); err == nil {
				d.path = path
				return
			}
		}
		d.err = types.NewErrorf(types.ErrNotAvailable,
			"no %s interpreter found (tried %s)", lang, strings.Join(candidates[lang], ", "))
	})
	if d.err != nil {
		return "", d.err
	}
	r.logger.Debug("resolved interpreter",
		zap.String("language", string(lang)),
		zap.String("path", d.path))
	return d.path, nil
}

// Execute materializes req.Code into a scratch file and runs it under the
// resolved interpreter. The scratch file is deleted on every exit path;
// deletion failures are logged and swallowed. On failure the returned
// RawResult still carries whatever partial output and exit code were
// captured, so the façade can attach them as metadata.
func (r *Runtime) Execute(ctx context.Context, req runtime.Request) (runtime.RawResult, error) {
	interpreter, err := r.Interpreter(req.Language)
	if err != nil {
		return runtime.RawResult{}, err
	}

	for _, pkg := range req.Packages {
		if err := r.InstallPackage(ctx, req.Language, pkg); err != nil {
			return runtime.RawResult{}, err
		}
	}

	scriptPath, cleanup, err := r.materialize(req)
	if err != nil {
		return runtime.RawResult{}, types.AsExecutionError(err)
	}
	defer cleanup()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = types.DefaultTimeoutMS * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, interpreter, scriptPath)
	cmd.Env = r.buildEnv(req)
	cmd.Dir = r.cfg.ScratchDir
	cmd.WaitDelay = 2 * time.Second

	stdout, stderr, runErr := r.runBounded(cmd)

	raw := runtime.RawResult{Stdout: stdout, Stderr: stderr}
	if cmd.ProcessState != nil {
		raw.ExitCode = runtime.IntPtr(cmd.ProcessState.ExitCode())
	}

	if ctx.Err() == context.DeadlineExceeded {
		return raw, types.NewErrorf(types.ErrTimeout, "process timed out after %s", timeout).
			WithDetail("backend", string(types.RuntimeSubprocess)).
			WithDetail("stdout", stdout).
			WithDetail("stderr", stderr)
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			raw.ExitCode = runtime.IntPtr(exitErr.ExitCode())
			return raw, types.NewErrorf(types.ErrExecution,
				"process exited with code %d", exitErr.ExitCode()).
				WithDetail("stderr", stderr).
				WithDetail("exit_code", exitErr.ExitCode())
		}
		return raw, types.AsExecutionError(runErr)
	}

	return raw, nil
}

// InstallPackage installs one package with the interpreter's package manager.
// This is a distinct pre-step: failures surface as INSTALL_ERROR, never as
// the execution's own error.
func (r *Runtime) InstallPackage(ctx context.Context, lang types.Language, pkg string) error {
	if lang != types.LangPython {
		return types.NewErrorf(types.ErrInstall, "package install not supported for language %q", lang)
	}
	interpreter, err := r.Interpreter(lang)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, interpreter, "-m", "pip", "install", "--quiet", pkg)
	out, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return types.NewErrorf(types.ErrInstall, "failed to install package %q", pkg).
			WithDetail("output", string(out)).
			WithDetail("cause", runErr.Error())
	}
	r.logger.Info("installed package", zap.String("package", pkg))
	return nil
}

// materialize writes code to a uniquely named scratch file, unless it already
// names an existing file. The returned cleanup is a no-op for caller-owned
// paths.
func (r *Runtime) materialize(req runtime.Request) (string, func(), error) {
	if info, err := os.Stat(req.Code); err == nil && !info.IsDir() {
		return req.Code, func() {}, nil
	}

	name := fmt.Sprintf("codeflow-%s%s", uuid.NewString(), scriptExtension(req.Language))
	path := filepath.Join(r.cfg.ScratchDir, name)
	if err := os.WriteFile(path, []byte(req.Code), 0o600); err != nil {
		return "", nil, fmt.Errorf("failed to write scratch script: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to remove scratch script",
				zap.String("path", path),
				zap.Error(err))
		}
	}
	return path, cleanup, nil
}

func scriptExtension(lang types.Language) string {
	switch lang {
	case types.LangPython:
		return ".py"
	case types.LangBash:
		return ".sh"
	default:
		return ""
	}
}

// buildEnv merges the host environment, request env, and serialized input.
func (r *Runtime) buildEnv(req runtime.Request) []string {
	env := os.Environ()
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	if req.Input != nil {
		if data, err := json.Marshal(req.Input); err == nil {
			env = append(env, InputEnvVar+"="+string(data))
		} else {
			r.logger.Warn("failed to serialize input for subprocess", zap.Error(err))
		}
	}
	return env
}

// runBounded starts cmd and drains both streams concurrently, capping each
// at MaxOutputBytes while keeping the pipes flowing so the child never
// blocks on a full pipe.
func (r *Runtime) runBounded(cmd *exec.Cmd) (string, string, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", err
	}
	if err := cmd.Start(); err != nil {
		return "", "", err
	}

	var stdout, stderr string
	var g errgroup.Group
	g.Go(func() error {
		stdout = drainCapped(stdoutPipe, r.cfg.MaxOutputBytes)
		return nil
	})
	g.Go(func() error {
		stderr = drainCapped(stderrPipe, r.cfg.MaxOutputBytes)
		return nil
	})
	_ = g.Wait()

	return stdout, stderr, cmd.Wait()
}

// drainCapped reads up to cap bytes, then discards the remainder of the
// stream so the writer is never blocked.
func drainCapped(rd io.Reader, capBytes int) string {
	data, _ := io.ReadAll(io.LimitReader(rd, int64(capBytes)))
	_, _ = io.Copy(io.Discard, rd)
	return string(data)
}
