// Package integration wraps the external process boundary of the
// pipeline: running automated gate verification commands.
package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"
)

// DefaultGateTimeout bounds an automated gate command when no override
// is configured.
const DefaultGateTimeout = 60 * time.Second

// DefaultOutputCap limits how much captured stdout/stderr is retained
// per stream.
const DefaultOutputCap = 64 * 1024

// GateRunOptions configures a single gate command execution.
type GateRunOptions struct {
	Timeout   time.Duration
	WorkDir   string
	OutputCap int
}

// GateRunResult is the definite outcome of a gate command. Spawn
// failures and timeouts are normalized into a failed result rather than
// an error; the command never hangs past its timeout.
type GateRunResult struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Command  string `json:"command"`
	WorkDir  string `json:"workDir,omitempty"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// GateRunner executes automated gate commands with a bounded timeout.
type GateRunner interface {
	Run(ctx context.Context, command string, opts GateRunOptions) GateRunResult
}

type shellGateRunner struct{}

// NewGateRunner creates the default shell-based GateRunner.
func NewGateRunner() GateRunner {
	return &shellGateRunner{}
}

// Run executes command through the system shell, capturing stdout and
// stderr up to the output cap. Success means a zero exit status. A
// non-zero exit, a timeout, or a spawn failure all produce a failed
// result with diagnostic output, never an error.
func (r *shellGateRunner) Run(ctx context.Context, command string, opts GateRunOptions) GateRunResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultGateTimeout
	}
	outputCap := opts.OutputCap
	if outputCap <= 0 {
		outputCap = DefaultOutputCap
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(runCtx, "cmd", "/c", command)
	} else {
		cmd = exec.CommandContext(runCtx, "sh", "-c", command)
	}
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()

	result := GateRunResult{
		Stdout:  capString(stdoutBuf.String(), outputCap),
		Stderr:  capString(stderrBuf.String(), outputCap),
		Command: command,
		WorkDir: opts.WorkDir,
	}

	switch {
	case err == nil:
		result.Success = true
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
		if result.Stderr == "" {
			result.Stderr = fmt.Sprintf("command timed out after %s", timeout)
		}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Command could not be started at all.
			result.ExitCode = -1
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
	}

	return result
}

func capString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
