package platform

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestToken(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
	}{
		{"linux", "amd64", TokenLinux64},
		{"linux", "arm64", TokenLinux64},
		{"darwin", "arm64", TokenMacARM64},
		{"darwin", "amd64", TokenMacX64},
		{"windows", "amd64", TokenWin64},
		{"windows", "386", TokenWin32},
		{"windows", "arm64", TokenWin32},
		{"freebsd", "amd64", TokenLinux64},
	}
	for _, tt := range tests {
		if got := Token(tt.goos, tt.goarch); got != tt.want {
			t.Errorf("Token(%s, %s) = %q, want %q", tt.goos, tt.goarch, got, tt.want)
		}
	}
}

func TestExecutablePath(t *testing.T) {
	base := filepath.Join("opt", "chrome")

	got := ExecutablePath(base, "linux", "amd64")
	if want := filepath.Join(base, "chrome-linux64", "chrome"); got != want {
		t.Errorf("linux: got %q, want %q", got, want)
	}

	got = ExecutablePath(base, "windows", "amd64")
	if want := filepath.Join(base, "chrome-win64", "chrome.exe"); got != want {
		t.Errorf("windows: got %q, want %q", got, want)
	}

	got = ExecutablePath(base, "darwin", "arm64")
	want := filepath.Join(base, "chrome-mac-arm64", "Google Chrome for Testing.app", "Contents", "MacOS", "Google Chrome for Testing")
	if got != want {
		t.Errorf("darwin: got %q, want %q", got, want)
	}
}

func TestDefaultInstallPath(t *testing.T) {
	t.Setenv("HOME", "/home/render")
	got := DefaultInstallPath("linux")
	if !strings.HasSuffix(got, filepath.Join(".cache", "puppeteer", "chrome")) {
		t.Errorf("DefaultInstallPath(linux) = %q", got)
	}

	t.Setenv("LOCALAPPDATA", "appdata")
	if got := DefaultInstallPath("windows"); got != filepath.Join("appdata", "puppeteer", "chrome") {
		t.Errorf("DefaultInstallPath(windows) = %q", got)
	}

	t.Setenv("LOCALAPPDATA", "")
	if got := DefaultInstallPath("windows"); !strings.HasPrefix(got, `C:\`) {
		t.Errorf("DefaultInstallPath(windows) without LOCALAPPDATA = %q", got)
	}
}

func TestEnvironmentHelpers(t *testing.T) {
	env := Environment{OS: "windows", Arch: "amd64", Distro: DistroUnknown}
	if env.IsLinux() || !env.IsWindows() {
		t.Fatalf("unexpected OS helpers for %+v", env)
	}
	if env.Token() != TokenWin64 {
		t.Fatalf("Token() = %q", env.Token())
	}
}
