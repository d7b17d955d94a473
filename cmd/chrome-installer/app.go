package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/renderhost/chrome-installer/internal/config"
	"github.com/renderhost/chrome-installer/internal/deps"
	"github.com/renderhost/chrome-installer/internal/executor"
	"github.com/renderhost/chrome-installer/internal/extract"
	"github.com/renderhost/chrome-installer/internal/fetch"
	"github.com/renderhost/chrome-installer/internal/installer"
	"github.com/renderhost/chrome-installer/internal/logging"
	"github.com/renderhost/chrome-installer/internal/platform"
	"github.com/renderhost/chrome-installer/internal/privilege"
)

var log = logging.L("main")

// app holds the wired components shared by every subcommand.
type app struct {
	cfg       *config.Config
	deps      *deps.Installer
	installer *installer.Installer
	logCloser io.Closer
}

// setup loads and validates config, configures logging and wires components.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	result := cfg.ValidateTiered()
	closer, err := logging.Setup(cfg.LogFormat, cfg.LogLevel, cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	for _, w := range result.Warnings {
		log.Warn("config validation", logging.KeyError, w)
	}
	if result.HasFatals() {
		closer.Close()
		return nil, fmt.Errorf("invalid config: %w", errors.Join(result.Fatals...))
	}

	runner := executor.New()
	detector := platform.NewDetector(runner)
	env := detector.Detect(ctx)
	log.Debug("environment detected", "os", env.OS, "arch", env.Arch, "distro", env.Distro, "platform", env.PlatformName)

	depInstaller := deps.NewInstaller(detector, privilege.NewChecker(runner), runner).
		WithTimeout(cfg.DepsTimeout())

	inst := installer.New(installer.Options{
		Env:  env,
		Deps: depInstaller,
		Fetcher: fetch.New(
			fetch.WithTimeout(cfg.DownloadTimeout()),
			fetch.WithProxy(cfg.HonorProxy),
			fetch.WithUserAgent(cfg.UserAgent),
		),
		Extractor:    extract.New(runner).WithTimeout(cfg.ExtractTimeout()),
		Runner:       runner,
		MinFreeSpace: cfg.MinFreeSpaceBytes(),
	})

	return &app{
		cfg:       cfg,
		deps:      depInstaller,
		installer: inst,
		logCloser: closer,
	}, nil
}

func (a *app) Close() {
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

// sources resolves the mirror order. A single override is preferred ahead
// of the defaults; several overrides replace the list.
func (a *app) sources(override []string) ([]installer.Source, error) {
	switch len(override) {
	case 0:
		return installer.ResolveSources(a.cfg.Sources)
	case 1:
		src, err := installer.ResolveSource(override[0])
		if err != nil {
			return nil, err
		}
		return installer.Prefer(src), nil
	default:
		return installer.ResolveSources(override)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func hostPlatform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
