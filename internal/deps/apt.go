package deps

import (
	"context"
	"fmt"
	"time"

	"github.com/renderhost/chrome-installer/internal/executor"
)

var aptEnv = []string{"DEBIAN_FRONTEND=noninteractive"}

// AptProvider installs packages with apt-get on Debian/Ubuntu systems.
type AptProvider struct {
	runner executor.Runner
}

// NewAptProvider creates a new AptProvider.
func NewAptProvider(runner executor.Runner) *AptProvider {
	return &AptProvider{runner: runner}
}

// ID returns the provider identifier.
func (a *AptProvider) ID() string {
	return "apt"
}

// Refresh updates the package index.
func (a *AptProvider) Refresh(ctx context.Context, sudo bool) error {
	return a.run(ctx, "update", sudo, "update")
}

// Install installs packages in a single batch without recommends.
func (a *AptProvider) Install(ctx context.Context, packages []string, sudo bool) error {
	args := append([]string{"install", "-y", "--no-install-recommends"}, packages...)
	return a.run(ctx, "install", sudo, args...)
}

func (a *AptProvider) run(ctx context.Context, step string, sudo bool, args ...string) error {
	cmd := executor.Command{
		Name:    "apt-get",
		Args:    args,
		Env:     aptEnv,
		Sudo:    sudo,
		Timeout: remaining(ctx),
	}
	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		return &InstallError{Step: step, Output: res.Output(), Err: err}
	}
	return nil
}

// remaining returns the time left on ctx, or 0 (executor default) without a deadline.
func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return time.Millisecond
}

// InstallError is a failed package-manager step with its captured output.
type InstallError struct {
	Step   string
	Output string
	Err    error
}

func (e *InstallError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("dependency %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("dependency %s failed: %v: %s", e.Step, e.Err, e.Output)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}
