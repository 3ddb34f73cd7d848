// Package infra implements infrastructure concerns (subprocesses, package
// manager, filesystem, downloads, run history).
package infra

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

// ExecRunner implements domain.CommandRunner with os/exec. Output is fully
// buffered before the caller proceeds and there is no timeout: a hang in the
// external tool hangs the run, which is preferable to evaluating partial
// output.
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates a command runner.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes argv with the inherited environment.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (string, int, error) {
	return r.RunWithEnv(ctx, argv, nil)
}

// RunWithEnv executes argv with exactly the given environment variables.
// A nil env inherits the parent environment.
func (r *ExecRunner) RunWithEnv(ctx context.Context, argv []string, env map[string]string) (string, int, error) {
	if len(argv) == 0 {
		return "", -1, fmt.Errorf("empty command")
	}

	r.logger.Info("calling command", zap.String("cmd", strings.Join(argv, " ")))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if env != nil {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vars := make([]string, 0, len(env))
		for _, k := range keys {
			vars = append(vars, k+"="+env[k])
		}
		cmd.Env = vars
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), exitErr.ExitCode(), nil
		}
		return string(out), -1, fmt.Errorf("failed to run '%s': %w", argv[0], err)
	}
	return string(out), 0, nil
}

// Ensure ExecRunner implements domain.CommandRunner.
var _ domain.CommandRunner = (*ExecRunner)(nil)
