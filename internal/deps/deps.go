// Package deps installs the native libraries Chrome needs on Linux hosts.
package deps

import (
	"context"
	"fmt"
	"time"

	"github.com/renderhost/chrome-installer/internal/executor"
	"github.com/renderhost/chrome-installer/internal/logging"
	"github.com/renderhost/chrome-installer/internal/platform"
	"github.com/renderhost/chrome-installer/internal/privilege"
)

const (
	// DefaultTimeout bounds the batch package install.
	DefaultTimeout = 5 * time.Minute

	// DefaultRefreshTimeout bounds the package index refresh that precedes it.
	DefaultRefreshTimeout = 2 * time.Minute
)

// Outcome says what Install did when it did not fail.
type Outcome string

const (
	OutcomeInstalled         Outcome = "installed"
	OutcomeBundled           Outcome = "bundled"
	OutcomeUnsupportedDistro Outcome = "unsupported-distro"
	OutcomeNoPrivileges      Outcome = "no-privileges"
)

// Skipped reports whether nothing was installed.
func (o Outcome) Skipped() bool {
	return o != OutcomeInstalled
}

// ProgressCallback receives dependency progress updates.
type ProgressCallback func(event ProgressEvent)

// ProgressEvent describes the current dependency step. Percent is 0-100
// within the dependency phase.
type ProgressEvent struct {
	Step    string  `json:"step"` // "detecting", "privileges", "refreshing", "installing", "done"
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Provider is a package manager able to install a batch of packages.
type Provider interface {
	ID() string
	Refresh(ctx context.Context, sudo bool) error
	Install(ctx context.Context, packages []string, sudo bool) error
}

// EnvironmentDetector is satisfied by *platform.Detector.
type EnvironmentDetector interface {
	Detect(ctx context.Context) platform.Environment
}

// PrivilegeChecker is satisfied by *privilege.Checker.
type PrivilegeChecker interface {
	Level(ctx context.Context) privilege.Level
}

// Installer decides whether dependencies can be installed and installs them.
type Installer struct {
	detector   EnvironmentDetector
	privileges PrivilegeChecker
	providers  map[platform.Distro]Provider
	packages   []string
	timeout    time.Duration
	refresh    time.Duration
}

// NewInstaller returns an Installer that supports Debian-family hosts via apt.
func NewInstaller(detector EnvironmentDetector, privileges PrivilegeChecker, runner executor.Runner) *Installer {
	return &Installer{
		detector:   detector,
		privileges: privileges,
		providers: map[platform.Distro]Provider{
			platform.DistroDebian: NewAptProvider(runner),
		},
		packages: ChromePackages,
		timeout:  DefaultTimeout,
		refresh:  DefaultRefreshTimeout,
	}
}

// WithTimeout overrides DefaultTimeout.
func (i *Installer) WithTimeout(d time.Duration) *Installer {
	if d > 0 {
		i.timeout = d
	}
	return i
}

// WithRefreshTimeout overrides DefaultRefreshTimeout.
func (i *Installer) WithRefreshTimeout(d time.Duration) *Installer {
	if d > 0 {
		i.refresh = d
	}
	return i
}

// Packages returns the package list that will be installed.
func (i *Installer) Packages() []string {
	return append([]string(nil), i.packages...)
}

// Install ensures Chrome's shared libraries are present. Unsupported hosts
// and missing privileges are not errors: the returned Outcome says why
// nothing was installed. An error is returned only when installation was
// attempted and failed.
func (i *Installer) Install(ctx context.Context, progress ProgressCallback) (Outcome, error) {
	log := logging.For(ctx, "deps")
	report := func(step string, percent float64, msg string) {
		if progress != nil {
			progress(ProgressEvent{Step: step, Percent: percent, Message: msg})
		}
	}

	report("detecting", 0, "Detecting environment")
	env := i.detector.Detect(ctx)

	if !env.IsLinux() {
		report("done", 100, fmt.Sprintf("Dependencies are bundled on %s", env.OS))
		return OutcomeBundled, nil
	}

	provider, ok := i.providers[env.Distro]
	if !ok {
		log.Warn("unsupported distribution, skipping dependency install", "distro", env.Distro)
		report("done", 100, fmt.Sprintf("Skipping dependencies: unsupported distribution %q", env.Distro))
		return OutcomeUnsupportedDistro, nil
	}

	report("privileges", 10, "Checking privileges")
	level := i.privileges.Level(ctx)
	if !level.CanRunPrivileged() {
		log.Warn("no root or passwordless sudo, skipping dependency install")
		report("done", 100, "Skipping dependencies: root or passwordless sudo required")
		return OutcomeNoPrivileges, nil
	}
	sudo := level == privilege.Sudo

	start := time.Now()
	report("refreshing", 20, "Updating package index")
	if err := i.runStep(ctx, i.refresh, func(ctx context.Context) error {
		return provider.Refresh(ctx, sudo)
	}); err != nil {
		return "", err
	}

	report("installing", 50, fmt.Sprintf("Installing %d packages", len(i.packages)))
	if err := i.runStep(ctx, i.timeout, func(ctx context.Context) error {
		return provider.Install(ctx, i.packages, sudo)
	}); err != nil {
		return "", err
	}

	log.Info("dependencies installed",
		"provider", provider.ID(),
		"packages", len(i.packages),
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	report("done", 100, "Dependencies installed")
	return OutcomeInstalled, nil
}

// runStep runs one provider step under its own deadline.
func (i *Installer) runStep(ctx context.Context, timeout time.Duration, step func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return step(ctx)
}
