package config

import (
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() || len(result.Warnings) > 0 {
		t.Fatalf("default config should validate cleanly: %v %v", result.Fatals, result.Warnings)
	}
}

func TestValidateTieredBadVersionIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ChromeVersion = "latest-ish"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("unparseable chrome_version should be fatal")
	}
	if !strings.Contains(result.Fatals[0].Error(), "chrome_version") {
		t.Fatalf("unexpected fatal: %v", result.Fatals[0])
	}
}

func TestValidateTieredSources(t *testing.T) {
	tests := []struct {
		name      string
		sources   []string
		wantFatal bool
	}{
		{"known names", []string{"google", "NPMMirror"}, false},
		{"https url", []string{"https://mirror.example.com/cft"}, false},
		{"ftp url", []string{"ftp://mirror.example.com"}, true},
		{"bare word", []string{"nearest"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Sources = tt.sources
			if got := cfg.ValidateTiered().HasFatals(); got != tt.wantFatal {
				t.Fatalf("HasFatals() = %v, want %v", got, tt.wantFatal)
			}
		})
	}
}

func TestValidateTieredEmptySourcesRestoresDefaults(t *testing.T) {
	cfg := Default()
	cfg.Sources = nil
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("empty sources should be a warning: %v", result.Fatals)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0] != "npmmirror" {
		t.Fatalf("Sources = %v", cfg.Sources)
	}
}

func TestValidateTieredTimeoutClamping(t *testing.T) {
	cfg := Default()
	cfg.DownloadTimeoutSeconds = 0
	cfg.DepsTimeoutSeconds = 99999
	result := cfg.ValidateTiered()

	if result.HasFatals() {
		t.Fatalf("clamped timeouts should be warnings: %v", result.Fatals)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", result.Warnings)
	}
	if cfg.DownloadTimeoutSeconds != 5 {
		t.Fatalf("DownloadTimeoutSeconds = %d, want 5", cfg.DownloadTimeoutSeconds)
	}
	if cfg.DepsTimeoutSeconds != 3600 {
		t.Fatalf("DepsTimeoutSeconds = %d, want 3600", cfg.DepsTimeoutSeconds)
	}
}

func TestValidateTieredNegativeFreeSpaceDisablesCheck(t *testing.T) {
	cfg := Default()
	cfg.MinFreeSpaceMB = -1
	cfg.ValidateTiered()
	if cfg.MinFreeSpaceBytes() != 0 {
		t.Fatalf("MinFreeSpaceBytes() = %d, want 0", cfg.MinFreeSpaceBytes())
	}
}

func TestValidateTieredLogSettings(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("log settings should only warn: %v", result.Fatals)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", result.Warnings)
	}
}

func TestValidateTieredCollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.ChromeVersion = ""
	cfg.ExtractTimeoutSeconds = 1
	result := cfg.ValidateTiered()
	if len(result.Fatals) != 1 || len(result.Warnings) != 1 {
		t.Fatalf("fatals = %v, warnings = %v, want one of each", result.Fatals, result.Warnings)
	}
	if cfg.ExtractTimeoutSeconds != 30 {
		t.Fatalf("extract timeout = %d, want clamped to 30", cfg.ExtractTimeoutSeconds)
	}
}
