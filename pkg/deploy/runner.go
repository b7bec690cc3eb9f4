package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// DefaultCLIPath is the az executable looked up on PATH.
const DefaultCLIPath = "az"

// Runner runs az CLI commands and returns their standard output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// NewExecCommand creates a new exec.Cmd with the given name and arguments.
// It sets up the command to use the current working directory and inherit
// the environment.
func NewExecCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	// SECURITY: Getwd failure defaults to empty string (current dir), acceptable for CLI.
	cmd.Dir, _ = os.Getwd() //nolint:errcheck // Fallback to current directory is acceptable
	cmd.Env = os.Environ()
	return cmd
}

// CLIRunner runs commands through the az executable.
type CLIRunner struct {
	path   string
	logger *zap.Logger
}

// NewCLIRunner creates a runner for the az executable at path ("" for DefaultCLIPath).
func NewCLIRunner(path string, logger *zap.Logger) *CLIRunner {
	if path == "" {
		path = DefaultCLIPath
	}
	return &CLIRunner{path: path, logger: logger}
}

// Run executes az with args. A non-zero exit status is returned as
// ErrCommandFailed carrying the arguments, the status and stderr.
func (r *CLIRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := NewExecCommand(ctx, r.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running az command", zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		status := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			status = exitErr.ExitCode()
		}
		return nil, fmt.Errorf("%w: %s %s (exit status %d): %s",
			ErrCommandFailed, r.path, strings.Join(args, " "), status, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
