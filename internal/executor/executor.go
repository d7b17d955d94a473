package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/renderhost/chrome-installer/internal/logging"
)

const (
	// DefaultTimeout applies when a Command does not set one.
	DefaultTimeout = 5 * time.Minute

	// MaxOutputSize is the maximum size of stdout/stderr to capture
	MaxOutputSize = 1024 * 1024 // 1MB
)

// Command describes one external process invocation.
type Command struct {
	Name    string
	Args    []string
	Env     []string // extra KEY=VALUE entries
	Timeout time.Duration
	// Sudo runs the command through "sudo -n" so it fails instead of prompting.
	Sudo bool
}

// Argv returns the full argument vector that will be executed.
func (c Command) Argv() []string {
	var argv []string
	if c.Sudo {
		argv = append(argv, "sudo", "-n")
		if len(c.Env) > 0 {
			// sudo resets the environment, so pass extras through env(1)
			argv = append(argv, "env")
			argv = append(argv, c.Env...)
		}
	}
	argv = append(argv, c.Name)
	return append(argv, c.Args...)
}

func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Result is the captured outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Output returns stderr followed by stdout, trimmed, for error reporting.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(r.Stderr) + "\n" + strings.TrimSpace(r.Stdout))
}

// Runner runs external commands. Components depend on this interface so
// tests can substitute a recorder.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Output)
}

// TimeoutError reports a process killed after exceeding its timeout.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Command, e.Timeout)
}

// Executor runs commands as child processes in their own process group.
type Executor struct{}

// New returns an Executor.
func New() *Executor {
	return &Executor{}
}

// Run executes cmd and waits for it. The returned Result is never nil.
func (e *Executor) Run(ctx context.Context, command Command) (*Result, error) {
	log := logging.For(ctx, "executor")
	result := &Result{ExitCode: -1}
	if command.Name == "" {
		return result, fmt.Errorf("command name is empty")
	}

	timeout := command.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := command.Argv()
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if !command.Sudo && len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, limit: MaxOutputSize}
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: MaxOutputSize}

	// Set process group so children are killed on timeout
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}

	start := time.Now()
	log.Debug("running command", "command", command.String(), "timeout", timeout)
	err := cmd.Run()

	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err == nil {
		result.ExitCode = 0
		log.Debug("command completed", "command", command.Name, logging.KeyDurationMs, result.Duration.Milliseconds())
		return result, nil
	}

	if ctx.Err() != nil {
		return result, fmt.Errorf("%s: %w", command.Name, ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		log.Warn("command timed out", "command", command.Name, "timeout", timeout)
		return result, &TimeoutError{Command: command.String(), Timeout: timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{
			Command:  command.String(),
			ExitCode: result.ExitCode,
			Output:   result.Output(),
		}
	}

	return result, fmt.Errorf("run %s: %w", command.Name, err)
}

// limitedWriter wraps a buffer with a size limit
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	if w.written >= w.limit {
		// Discard additional data but don't error
		return total, nil
	}

	if remaining := w.limit - w.written; len(p) > remaining {
		p = p[:remaining]
	}

	n, err := w.buf.Write(p)
	w.written += n
	// report the full length so exec's copy loop never sees a short write
	return total, err
}
