package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/renderhost/chrome-installer/internal/installer"
	"github.com/renderhost/chrome-installer/internal/progress"
)

var (
	installVersion       string
	installSources       []string
	installPath          string
	installNoDeps        bool
	installSkipInstalled bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install Chrome for Testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall()
	},
}

func init() {
	installCmd.Flags().StringVar(&installVersion, "version", "", "Chrome version (default from config)")
	installCmd.Flags().StringArrayVar(&installSources, "source", nil, "mirror name (npmmirror, google) or base URL; repeatable")
	installCmd.Flags().StringVar(&installPath, "path", "", "install directory (default from config)")
	installCmd.Flags().BoolVar(&installNoDeps, "no-deps", false, "skip system dependency installation")
	installCmd.Flags().BoolVar(&installSkipInstalled, "skip-installed", false, "do nothing when the requested version is already installed")
}

func runInstall() error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := a.sources(installSources)
	if err != nil {
		return err
	}

	req := installer.Request{
		Version:     firstNonEmpty(installVersion, a.cfg.ChromeVersion),
		Sources:     sources,
		InstallPath: firstNonEmpty(installPath, a.cfg.InstallPath),
		InstallDeps: a.cfg.InstallDeps && !installNoDeps,
	}

	if installSkipInstalled {
		if info := a.installer.InstalledInfo(ctx, req.InstallPath); info.Matches(req.Version) {
			fmt.Printf("Chrome %s already installed at %s\n", info.Version, info.ExecutablePath)
			return nil
		}
	}

	updates, cancel := a.installer.Subscribe(32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		renderProgress(os.Stderr, updates)
	}()

	res := a.installer.Install(ctx, req)
	cancel()
	<-done

	if !res.Success {
		return installError(res)
	}
	fmt.Println(res.ExecutablePath)
	return nil
}

// installError describes a failed install, listing every mirror attempt
// when all of them failed.
func installError(res installer.Result) error {
	var exhausted *installer.MirrorsExhaustedError
	if errors.As(res.Err, &exhausted) {
		return fmt.Errorf("install failed, every mirror was tried:\n%s", exhausted.Summary())
	}
	return fmt.Errorf("install failed: %s", res.Error)
}

// renderProgress prints one line per phase or message change until updates closes.
func renderProgress(w io.Writer, updates <-chan progress.Snapshot) {
	var lastLine string
	for snap := range updates {
		line := formatProgress(snap)
		if line == lastLine {
			continue
		}
		lastLine = line
		fmt.Fprintln(w, line)
	}
}

func formatProgress(s progress.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%-15s] %5.1f%%  %s", s.Phase, s.Percent, s.Message)
	if d := s.Download; d != nil {
		fmt.Fprintf(&b, "  %s", d.Speed)
		if d.TotalBytes > 0 {
			fmt.Fprintf(&b, "  ETA %s", d.ETA)
		}
	}
	if s.Error != "" {
		fmt.Fprintf(&b, ": %s", s.Error)
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
