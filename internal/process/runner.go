// Package process runs external speech tools with argument vectors only,
// classifies their failures and applies a single not-found fallback.
package process

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

const (
	// DefaultStderrLimit bounds the diagnostics kept from one run.
	DefaultStderrLimit = 16 << 10

	// waitDelay bounds how long Wait blocks on inherited pipes after a kill.
	waitDelay = 2 * time.Second
)

// Command describes one invocation. Caller-controlled content belongs in
// Args entries, Env values or files, never in a command string.
type Command struct {
	Program  string
	Fallback string
	Args     []string
	Env      map[string]string
}

// Output is the success result of a run.
type Output struct {
	Program string
	Stdout  []byte
	Stderr  string
}

// Executor runs a single program to completion.
type Executor interface {
	Execute(ctx context.Context, program string, args, env []string) (Output, error)
}

// ExecExecutor runs programs on the host with os/exec.
type ExecExecutor struct {
	StderrLimit int
}

// NewExecExecutor returns an executor keeping DefaultStderrLimit bytes of stderr.
func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{StderrLimit: DefaultStderrLimit}
}

// Execute runs program with args; env entries are appended to the host
// environment. The returned error is always *Error.
func (e *ExecExecutor) Execute(ctx context.Context, program string, args, env []string) (Output, error) {
	if program == "" {
		return Output{}, NonZeroExit(program, -1, "", ErrEmptyProgram)
	}

	// #nosec G204 -- program comes from configuration, args are discrete entries
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.WaitDelay = waitDelay

	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout bytes.Buffer

	stderr := newTailBuffer(e.StderrLimit)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if runErr != nil {
		return Output{}, classify(ctx, program, runErr, stderr.String())
	}

	return Output{
		Program: program,
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.String(),
	}, nil
}

func classify(ctx context.Context, program string, runErr error, stderr string) *Error {
	if errors.Is(runErr, exec.ErrNotFound) ||
		errors.Is(runErr, exec.ErrDot) ||
		errors.Is(runErr, fs.ErrNotExist) {
		return NotFound(program, runErr)
	}

	diagnostics := strings.TrimSpace(stderr)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if diagnostics == "" {
			diagnostics = ctxErr.Error()
		}

		return NonZeroExit(program, -1, diagnostics, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return NonZeroExit(program, exitErr.ExitCode(), diagnostics, runErr)
	}

	if diagnostics == "" {
		diagnostics = runErr.Error()
	}

	return NonZeroExit(program, -1, diagnostics, runErr)
}

// Runner applies the preferred/fallback policy on top of an Executor.
type Runner struct {
	executor Executor
	log      *logger.Logger
}

// NewRunner creates a Runner. A nil executor selects ExecExecutor.
func NewRunner(executor Executor, log *logger.Logger) *Runner {
	if executor == nil {
		executor = NewExecExecutor()
	}

	return &Runner{
		executor: executor,
		log:      log,
	}
}

// Run executes cmd. A NotFound result for cmd.Program is retried once with
// cmd.Fallback; any other failure is returned immediately.
func (r *Runner) Run(ctx context.Context, cmd Command) (Output, error) {
	env := envList(cmd.Env)

	out, err := r.executor.Execute(ctx, cmd.Program, cmd.Args, env)
	if err == nil || cmd.Fallback == "" || !errors.Is(err, ErrNotFound) {
		return out, err
	}

	if r.log != nil {
		r.log.Warn("%s not found, falling back to %s", cmd.Program, cmd.Fallback)
	}

	return r.executor.Execute(ctx, cmd.Fallback, cmd.Args, env)
}

// envList renders overrides as sorted KEY=VALUE entries.
func envList(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+overrides[key])
	}

	return env
}
