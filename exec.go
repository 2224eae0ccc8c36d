package wgapple

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/magefile/mage/sh"
)

// CommandRunner runs one external command and returns its combined output
// split into lines.
//
// env holds variables added on top of the current process environment for
// this invocation only; the process environment itself is never modified,
// so nothing leaks between sequential target builds.
//
// The mage-backed implementation expands $VAR references in name and args
// against env first, then the process environment.
type CommandRunner interface {
	Run(ctx context.Context, env map[string]string, name string, args ...string) ([]string, error)
}

// Seams swapped out by tests.
var (
	execLookPath = exec.LookPath
	shellExec    = sh.Exec
)

// ShellRunner is the CommandRunner backed by mage's sh package.
type ShellRunner struct {
	// Verbose logs every command line before it runs.
	Verbose bool
}

// Run executes name with args. A non-zero exit is returned as an error that
// carries the exit status (see ExitStatus).
func (r *ShellRunner) Run(ctx context.Context, env map[string]string, name string, args ...string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.Verbose {
		logf("exec", "running: %s %s", name, strings.Join(args, " "))
	}

	var out bytes.Buffer
	ran, err := shellExec(env, &out, &out, name, args...)
	lines := splitLines(out.String())
	if !ran {
		return lines, fmt.Errorf("failed to run %s: %w", name, err)
	}
	if err != nil {
		return lines, &commandError{name: name, code: sh.ExitStatus(err), err: err}
	}

	return lines, nil
}

type commandError struct {
	name string
	code int
	err  error
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.name, e.code)
}

func (e *commandError) Unwrap() error { return e.err }

// ExitStatus implements mage's exit status interface.
func (e *commandError) ExitStatus() int { return e.code }

// ExitStatus returns the exit code for err: 0 for nil, the status of the
// failed command when err wraps one, and 1 otherwise.
func ExitStatus(err error) int {
	var ce *commandError
	if errors.As(err, &ce) && ce.code != 0 {
		return ce.code
	}
	return sh.ExitStatus(err)
}
