// Package runner supervises external remediation-action processes.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/remedyd/internal/rules"
)

// Result is the outcome of one action invocation.
type Result struct {
	OK       bool
	TimedOut bool
	// Lines holds log output in append order: stream captures, control
	// messages and error descriptions.
	Lines []string
	// Duration is the wall-clock time spent on the invocation.
	Duration time.Duration
}

// Runner spawns the external automation runner for a single action,
// bounded by the action's timeout. Run never returns an error: every
// failure mode is folded into the Result.
type Runner struct {
	bin     string
	workDir string
	logger  *zap.Logger
}

// New creates a process runner invoking the given binary per action.
func New(bin, workDir string, logger *zap.Logger) *Runner {
	return &Runner{
		bin:     bin,
		workDir: workDir,
		logger:  logger,
	}
}

// Run executes one action and waits for completion or timeout.
func (r *Runner) Run(ctx context.Context, action rules.Action) Result {
	start := time.Now()
	res := Result{}

	if _, err := os.Stat(action.Playbook); err != nil {
		res.Lines = append(res.Lines, fmt.Sprintf("error: playbook not found: %s", action.Playbook))
		res.Duration = time.Since(start)
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, action.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.bin, buildArgs(action)...)
	cmd.Dir = r.workDir
	// Give the process a moment to die on its own after the kill signal
	// before Wait gives up on its pipes.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Spawning action runner",
		zap.String("action_id", action.ID),
		zap.String("bin", r.bin),
		zap.String("playbook", action.Playbook),
		zap.Duration("timeout", action.Timeout),
	)

	err := cmd.Run()
	res.Duration = time.Since(start)

	if out := strings.TrimRight(stdout.String(), "\n"); out != "" {
		res.Lines = append(res.Lines, "stdout: "+out)
	}
	if errOut := strings.TrimRight(stderr.String(), "\n"); errOut != "" {
		res.Lines = append(res.Lines, "stderr: "+errOut)
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		// CommandContext killed the process for us.
		res.TimedOut = true
		res.Lines = append(res.Lines, fmt.Sprintf("error: action %s timed out after %s", action.ID, action.Timeout))
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.Lines = append(res.Lines, fmt.Sprintf("error: runner exited with code %d", exitErr.ExitCode()))
		} else {
			res.Lines = append(res.Lines, fmt.Sprintf("error: failed to run %s: %v", r.bin, err))
		}
	default:
		res.OK = true
	}

	return res
}

// buildArgs surfaces each action variable as a discrete runner argument.
func buildArgs(action rules.Action) []string {
	args := []string{action.Playbook}

	keys := make([]string, 0, len(action.Variables))
	for k := range action.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, action.Variables[k]))
	}
	return args
}
