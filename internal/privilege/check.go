package privilege

import (
	"context"
	"time"

	"github.com/renderhost/chrome-installer/internal/executor"
	"github.com/renderhost/chrome-installer/internal/logging"
)

var log = logging.L("privilege")

// Level describes how privileged commands can be run.
type Level int

const (
	// None means neither root nor passwordless sudo is available.
	None Level = iota
	// Sudo means commands must be prefixed with "sudo -n".
	Sudo
	// Root means the process already runs as root/administrator.
	Root
)

func (l Level) String() string {
	switch l {
	case Root:
		return "root"
	case Sudo:
		return "sudo"
	default:
		return "none"
	}
}

// CanRunPrivileged reports whether privileged commands can run at all.
func (l Level) CanRunPrivileged() bool {
	return l != None
}

const sudoProbeTimeout = 10 * time.Second

// Checker resolves the privilege Level of the running process.
type Checker struct {
	runner executor.Runner
	isRoot func() bool
}

// NewChecker returns a Checker that probes sudo through runner.
func NewChecker(runner executor.Runner) *Checker {
	return &Checker{runner: runner, isRoot: IsRunningAsRoot}
}

// WithRootCheck overrides the root detection, for tests.
func (c *Checker) WithRootCheck(isRoot func() bool) *Checker {
	c.isRoot = isRoot
	return c
}

// Level returns Root when already elevated, otherwise Sudo when
// "sudo -n true" succeeds without prompting, otherwise None.
func (c *Checker) Level(ctx context.Context) Level {
	if c.isRoot() {
		return Root
	}

	_, err := c.runner.Run(ctx, executor.Command{
		Name:    "true",
		Sudo:    true,
		Timeout: sudoProbeTimeout,
	})
	if err != nil {
		log.Debug("non-interactive sudo unavailable", logging.KeyError, err)
		return None
	}
	return Sudo
}
