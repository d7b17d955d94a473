// Package installer sequences dependency installation, mirror download,
// extraction and verification of a Chrome for Testing build, and owns the
// shared progress snapshot.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/renderhost/chrome-installer/internal/deps"
	"github.com/renderhost/chrome-installer/internal/executor"
	"github.com/renderhost/chrome-installer/internal/fetch"
	"github.com/renderhost/chrome-installer/internal/logging"
	"github.com/renderhost/chrome-installer/internal/platform"
	"github.com/renderhost/chrome-installer/internal/progress"
)

var log = logging.L("installer")

// DefaultVersion is the pinned known-good Chrome for Testing build.
const DefaultVersion = "131.0.6778.204"

// Percent bands per phase.
const (
	depsWeight    = 20.0
	downloadStart = 20.0
	downloadSpan  = 50.0
	extractStart  = 70.0
)

// DependencyInstaller is satisfied by *deps.Installer.
type DependencyInstaller interface {
	Install(ctx context.Context, progress deps.ProgressCallback) (deps.Outcome, error)
}

// Downloader is satisfied by *fetch.Fetcher.
type Downloader interface {
	Download(ctx context.Context, url, dest string, onProgress fetch.ProgressFunc) error
}

// Unpacker is satisfied by *extract.Extractor.
type Unpacker interface {
	Extract(ctx context.Context, archive, dest string) error
}

// Request describes one installation.
type Request struct {
	Version     string
	Sources     []Source // tried in order; empty means DefaultSources
	InstallPath string   // empty means the platform default
	InstallDeps bool
	// OnProgress is called synchronously with every stored snapshot.
	OnProgress func(progress.Snapshot)
}

// Result is the terminal outcome of Install.
type Result struct {
	Success        bool   `json:"success" yaml:"success"`
	ExecutablePath string `json:"executablePath,omitempty" yaml:"executablePath,omitempty"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
	// Err is the failure behind Error, for errors.As.
	Err error `json:"-" yaml:"-"`
}

// Options wires an Installer. Env, Deps, Fetcher, Extractor and Runner are required.
type Options struct {
	Env       platform.Environment
	Deps      DependencyInstaller
	Fetcher   Downloader
	Extractor Unpacker
	Runner    executor.Runner
	Reporter  *progress.Reporter // nil creates one
	TempDir   string             // archive download directory; empty means os.TempDir()
	// MinFreeSpace is the free space required in TempDir before downloading; 0 disables.
	MinFreeSpace uint64
	Clock        func() time.Time
	DiskUsage    func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// Installer runs at most one installation at a time.
type Installer struct {
	env       platform.Environment
	deps      DependencyInstaller
	fetcher   Downloader
	extractor Unpacker
	runner    executor.Runner
	reporter  *progress.Reporter
	guard     Guard
	tempDir   string
	minFree   uint64
	clock     func() time.Time
	diskUsage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// New returns an Installer.
func New(opts Options) *Installer {
	i := &Installer{
		env:       opts.Env,
		deps:      opts.Deps,
		fetcher:   opts.Fetcher,
		extractor: opts.Extractor,
		runner:    opts.Runner,
		reporter:  opts.Reporter,
		tempDir:   opts.TempDir,
		minFree:   opts.MinFreeSpace,
		clock:     opts.Clock,
		diskUsage: opts.DiskUsage,
	}
	if i.reporter == nil {
		i.reporter = progress.NewReporter()
	}
	if i.tempDir == "" {
		i.tempDir = os.TempDir()
	}
	if i.clock == nil {
		i.clock = time.Now
	}
	if i.diskUsage == nil {
		i.diskUsage = disk.UsageWithContext
	}
	return i
}

// Environment returns the host the installer targets.
func (i *Installer) Environment() platform.Environment {
	return i.env
}

// IsInstalling reports whether an installation is running.
func (i *Installer) IsInstalling() bool {
	return i.guard.Busy()
}

// Progress returns the current snapshot. It is the idle snapshot before
// any installation has started.
func (i *Installer) Progress() progress.Snapshot {
	return i.reporter.Snapshot()
}

// Subscribe streams every snapshot published after the call.
func (i *Installer) Subscribe(buffer int) (<-chan progress.Snapshot, func()) {
	return i.reporter.Subscribe(buffer)
}

// Watchers returns the number of live progress subscriptions.
func (i *Installer) Watchers() int {
	return i.reporter.Subscribers()
}

// ArchivePath is where the archive for version is downloaded.
func (i *Installer) ArchivePath(version string) string {
	return filepath.Join(i.tempDir, "chrome-"+version+".zip")
}

// Install runs a full installation. A call made while another is running
// returns immediately with ErrAlreadyInstalling and leaves progress alone.
// Cancelling ctx stops the installation at the next phase boundary or
// download chunk.
func (i *Installer) Install(ctx context.Context, req Request) Result {
	if !i.guard.TryAcquire() {
		log.Warn("install rejected", logging.KeyError, ErrAlreadyInstalling)
		return Result{Error: ErrAlreadyInstalling.Error(), Err: ErrAlreadyInstalling}
	}
	defer i.guard.Release()

	req = i.normalize(req)
	i.reporter.Reset()

	// Every record below, including those from deps, fetch and extract,
	// carries the version and install path.
	ctx = logging.NewContext(ctx, logging.WithInstall(logging.FromContext(ctx), req.Version, req.InstallPath))
	logger := logging.For(ctx, "installer")
	logger.Info("starting chrome install",
		"platform", i.env.Token(),
		"sources", len(req.Sources),
		"installDeps", req.InstallDeps)

	start := time.Now()
	execPath, err := i.run(ctx, logger, req)
	if err != nil {
		msg := "Installation failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			msg = "Installation cancelled"
		}
		logger.Error("chrome install failed",
			logging.KeyError, err,
			logging.KeyDurationMs, time.Since(start).Milliseconds())
		i.update(req, progress.Snapshot{Phase: progress.PhaseFailed, Percent: 0, Message: msg, Error: err.Error()})
		return Result{Error: err.Error(), Err: err}
	}

	logger.Info("chrome installed",
		"executable", execPath,
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	return Result{Success: true, ExecutablePath: execPath}
}

func (i *Installer) normalize(req Request) Request {
	if req.Version == "" {
		req.Version = DefaultVersion
	}
	if req.InstallPath == "" {
		req.InstallPath = platform.DefaultInstallPath(i.env.OS)
	}
	if len(req.Sources) == 0 {
		req.Sources = DefaultSources()
	}
	return req
}

func (i *Installer) run(ctx context.Context, logger *slog.Logger, req Request) (string, error) {
	if _, err := version.NewVersion(req.Version); err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidVersion, req.Version, err)
	}

	if req.InstallDeps {
		if err := i.installDeps(ctx, logger, req); err != nil {
			return "", err
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	i.update(req, progress.Snapshot{Phase: progress.PhaseDownloading, Percent: downloadStart, Message: "Preparing download"})
	if err := i.preflight(ctx, logger); err != nil {
		return "", err
	}

	archive := i.ArchivePath(req.Version)
	defer func() {
		if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove downloaded archive", "path", archive, logging.KeyError, err)
		}
	}()

	if err := i.download(ctx, logger, req, archive); err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	i.update(req, progress.Snapshot{Phase: progress.PhaseExtracting, Percent: extractStart, Message: "Extracting Chrome"})
	if err := i.extractor.Extract(ctx, archive, req.InstallPath); err != nil {
		return "", fmt.Errorf("extraction failed: %w", err)
	}

	execPath := i.ExecutablePath(req.InstallPath)
	if err := makeExecutable(i.env, execPath); err != nil {
		return "", err
	}

	if _, err := os.Stat(execPath); err != nil {
		return "", &VerificationError{Path: execPath}
	}

	i.update(req, progress.Snapshot{Phase: progress.PhaseCompleted, Percent: 100, Message: "Chrome installed"})
	return execPath, nil
}

func (i *Installer) installDeps(ctx context.Context, logger *slog.Logger, req Request) error {
	i.update(req, progress.Snapshot{Phase: progress.PhaseInstallingDeps, Percent: 0, Message: "Installing system dependencies"})

	outcome, err := i.deps.Install(ctx, func(e deps.ProgressEvent) {
		i.update(req, progress.Snapshot{
			Phase:   progress.PhaseInstallingDeps,
			Percent: e.Percent * depsWeight / 100,
			Message: e.Message,
		})
	})
	if err != nil {
		return fmt.Errorf("dependency installation failed: %w", err)
	}
	logger.Info("dependency step finished", "outcome", outcome)
	return nil
}

// download tries each source in order until one succeeds.
func (i *Installer) download(ctx context.Context, logger *slog.Logger, req Request, archive string) error {
	token := i.env.Token()
	var attempts []MirrorAttempt

	for _, src := range req.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		url := src.ArchiveURL(req.Version, token)
		logger.Info("downloading chrome", logging.KeyMirror, src.Name, logging.KeyURL, url)
		i.update(req, progress.Snapshot{
			Phase:   progress.PhaseDownloading,
			Percent: downloadStart,
			Message: fmt.Sprintf("Downloading Chrome from %s", src.Name),
		})

		meter := progress.NewMeter(i.clock)
		err := i.fetcher.Download(ctx, url, archive, func(done, total int64) {
			stats, ok := meter.Observe(done, total)
			if !ok {
				return
			}
			var pct float64
			if total > 0 {
				pct = float64(done) / float64(total) * 100
			}
			i.update(req, progress.Snapshot{
				Phase:    progress.PhaseDownloading,
				Percent:  downloadStart + pct*downloadSpan/100,
				Message:  fmt.Sprintf("Downloading Chrome... %.1f%%", pct),
				Download: &stats,
			})
		})
		if err == nil {
			logger.Info("download succeeded", logging.KeyMirror, src.Name)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("download cancelled: %w", ctxErr)
		}

		logger.Warn("mirror failed", logging.KeyMirror, src.Name, logging.KeyError, err)
		attempts = append(attempts, MirrorAttempt{Source: src, URL: url, Err: err})
	}

	return &MirrorsExhaustedError{Attempts: attempts}
}

// preflight checks free space where the archive will be written.
func (i *Installer) preflight(ctx context.Context, logger *slog.Logger) error {
	if i.minFree == 0 {
		return nil
	}
	usage, err := i.diskUsage(ctx, i.tempDir)
	if err != nil {
		logger.Warn("disk usage unavailable, skipping free space check", "path", i.tempDir, logging.KeyError, err)
		return nil
	}
	if usage.Free < i.minFree {
		return &PreflightError{
			Check:   "disk_space",
			Message: fmt.Sprintf("%d MB free in %s, need %d MB", usage.Free/1024/1024, i.tempDir, i.minFree/1024/1024),
		}
	}
	return nil
}

// update stores a snapshot and forwards the stored copy to the caller.
func (i *Installer) update(req Request, s progress.Snapshot) {
	stored, err := i.reporter.Update(s)
	if err != nil {
		log.Warn("progress update rejected", logging.KeyPhase, s.Phase, logging.KeyError, err)
		return
	}
	if req.OnProgress != nil {
		req.OnProgress(stored)
	}
}

// makeExecutable adds execute bits on non-Windows hosts. A missing file is
// left for verification to report.
func makeExecutable(env platform.Environment, path string) error {
	if env.IsWindows() {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if err := os.Chmod(path, info.Mode().Perm()|0111); err != nil {
		return fmt.Errorf("failed to set executable permission on %s: %w", path, err)
	}
	return nil
}
