// SPDX-License-Identifier: MIT
// Package execx runs external programs and reports their exit status and
// raw output. Every call blocks until the child process exits.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result is the captured output of one finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandError describes a process that could not be started or exited
// non-zero. Stderr is kept verbatim (trimmed) for operator diagnosis.
type CommandError struct {
	Bin      string
	Args     []string
	Dir      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	cmdline := strings.TrimSpace(e.Bin + " " + strings.Join(e.Args, " "))
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s: %v", cmdline, e.Stderr, e.Err)
	}
	return fmt.Sprintf("%s: %v", cmdline, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Runner executes a program in a directory.
// This interface allows mocking in tests.
type Runner interface {
	Run(ctx context.Context, dir, bin string, args ...string) (Result, error)
	LookPath(name string) (string, error)
}

// OSRunner is the default Runner backed by os/exec.
type OSRunner struct{}

// Run executes bin with args in dir. A non-zero exit yields a
// *CommandError alongside the captured Result.
func (OSRunner) Run(ctx context.Context, dir, bin string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if strings.TrimSpace(dir) != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err == nil {
		return res, nil
	}
	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	return res, &CommandError{
		Bin:      bin,
		Args:     append([]string(nil), args...),
		Dir:      dir,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
		Err:      err,
	}
}

// LookPath searches PATH for an executable.
func (OSRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Stderr extracts the raw stderr text from err when it carries a CommandError.
func Stderr(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}
	return ""
}
