package installer

import (
	"context"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/renderhost/chrome-installer/internal/executor"
	"github.com/renderhost/chrome-installer/internal/platform"
)

const versionQueryTimeout = 30 * time.Second

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+){1,3}`)

// Info describes an installed browser.
type Info struct {
	Installed      bool   `json:"installed" yaml:"installed"`
	ExecutablePath string `json:"executablePath,omitempty" yaml:"executablePath,omitempty"`
	Version        string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Matches reports whether the installed version equals want.
func (info Info) Matches(want string) bool {
	if info.Version == "" {
		return false
	}
	have, err := version.NewVersion(info.Version)
	if err != nil {
		return false
	}
	target, err := version.NewVersion(want)
	if err != nil {
		return false
	}
	return have.Equal(target)
}

// ExecutablePath returns the expected binary under installPath, or under
// the platform default when installPath is empty.
func (i *Installer) ExecutablePath(installPath string) string {
	if installPath == "" {
		installPath = platform.DefaultInstallPath(i.env.OS)
	}
	return platform.ExecutablePath(installPath, i.env.OS, i.env.Arch)
}

// IsInstalled reports whether the executable exists. The version is not checked.
func (i *Installer) IsInstalled(installPath string) bool {
	_, err := os.Stat(i.ExecutablePath(installPath))
	return err == nil
}

// InstalledInfo runs the executable with --version. A binary that exists
// but cannot report a version is still Installed.
func (i *Installer) InstalledInfo(ctx context.Context, installPath string) Info {
	path := i.ExecutablePath(installPath)
	if _, err := os.Stat(path); err != nil {
		return Info{}
	}

	info := Info{Installed: true, ExecutablePath: path}
	res, err := i.runner.Run(ctx, executor.Command{
		Name:    path,
		Args:    []string{"--version"},
		Timeout: versionQueryTimeout,
	})
	if err != nil {
		log.Debug("version query failed", "path", path, "error", err)
		return info
	}
	info.Version = ParseVersion(res.Stdout)
	return info
}

// ParseVersion extracts the dotted version from --version output such as
// "Google Chrome for Testing 131.0.6778.204". Output without a version is
// returned trimmed.
func ParseVersion(output string) string {
	output = strings.TrimSpace(output)
	if v := versionPattern.FindString(output); v != "" {
		return v
	}
	return output
}
