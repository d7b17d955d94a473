// Package platform identifies the host environment and maps it onto the
// archive layout published by Chrome for Testing.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

// Distro classifies a Linux distribution by package-manager family.
type Distro string

const (
	DistroDebian  Distro = "debian"
	DistroFedora  Distro = "fedora"
	DistroSUSE    Distro = "suse"
	DistroArch    Distro = "arch"
	DistroUnknown Distro = "unknown"
)

// Platform tokens used in archive URLs and directory names.
const (
	TokenLinux64  = "linux64"
	TokenMacARM64 = "mac-arm64"
	TokenMacX64   = "mac-x64"
	TokenWin64    = "win64"
	TokenWin32    = "win32"
)

// Environment is the detected host description.
type Environment struct {
	OS              string `json:"os" yaml:"os"`
	Arch            string `json:"arch" yaml:"arch"`
	Distro          Distro `json:"distro" yaml:"distro"`
	PlatformName    string `json:"platformName,omitempty" yaml:"platformName,omitempty"`
	PlatformVersion string `json:"platformVersion,omitempty" yaml:"platformVersion,omitempty"`
	KernelVersion   string `json:"kernelVersion,omitempty" yaml:"kernelVersion,omitempty"`
}

// Host returns the OS and architecture of the running binary with an
// unknown distro. Use a Detector for the full picture.
func Host() Environment {
	return Environment{OS: runtime.GOOS, Arch: runtime.GOARCH, Distro: DistroUnknown}
}

// IsLinux reports whether the environment is a Linux host.
func (e Environment) IsLinux() bool {
	return e.OS == "linux"
}

// IsWindows reports whether the environment is a Windows host.
func (e Environment) IsWindows() bool {
	return e.OS == "windows"
}

// Token returns the platform token for the environment.
func (e Environment) Token() string {
	return Token(e.OS, e.Arch)
}

// ExecutablePath returns where the browser binary lives under installPath.
func (e Environment) ExecutablePath(installPath string) string {
	return ExecutablePath(installPath, e.OS, e.Arch)
}

// Token maps GOOS/GOARCH onto one of the five published platform tokens.
// Unknown operating systems fall back to the Linux build.
func Token(goos, goarch string) string {
	switch goos {
	case "darwin":
		if goarch == "arm64" {
			return TokenMacARM64
		}
		return TokenMacX64
	case "windows":
		if goarch == "amd64" {
			return TokenWin64
		}
		return TokenWin32
	default:
		return TokenLinux64
	}
}

// ArchiveDir is the top-level folder inside the published archive.
func ArchiveDir(goos, goarch string) string {
	return "chrome-" + Token(goos, goarch)
}

// ExecutablePath returns <installPath>/chrome-<token>/<executable>.
func ExecutablePath(installPath, goos, goarch string) string {
	dir := filepath.Join(installPath, ArchiveDir(goos, goarch))
	switch goos {
	case "windows":
		return filepath.Join(dir, "chrome.exe")
	case "darwin":
		return filepath.Join(dir, "Google Chrome for Testing.app", "Contents", "MacOS", "Google Chrome for Testing")
	default:
		return filepath.Join(dir, "chrome")
	}
}

// DefaultInstallPath returns the conventional per-user cache directory.
func DefaultInstallPath(goos string) string {
	if goos == "windows" {
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = `C:\`
		}
		return filepath.Join(base, "puppeteer", "chrome")
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".cache", "puppeteer", "chrome")
}
