// Package build runs the external build command after the patch phase.
package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"github.com/skaphos/forksmith/internal/execx"
)

// DefaultCommand builds the vendor tree in release mode.
const DefaultCommand = "cargo build --release"

// Builder runs one shell-style command line without a shell.
type Builder struct {
	Runner  execx.Runner
	Command string
	Dir     string
	Logger  *zap.Logger
}

// Args splits the configured command line into argv.
func (b *Builder) Args() ([]string, error) {
	command := b.Command
	if command == "" {
		command = DefaultCommand
	}
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse build command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, errors.New("build command is empty")
	}
	return args, nil
}

// Run executes the build and returns a *execx.CommandError on failure.
func (b *Builder) Run(ctx context.Context) error {
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	args, err := b.Args()
	if err != nil {
		return err
	}
	runner := b.Runner
	if runner == nil {
		runner = execx.OSRunner{}
	}
	start := time.Now()
	logger.Info("build started", zap.Strings("argv", args), zap.String("dir", b.Dir))
	if _, err := runner.Run(ctx, b.Dir, args[0], args[1:]...); err != nil {
		logger.Warn("build failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return err
	}
	logger.Info("build finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}
