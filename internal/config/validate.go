package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/renderhost/chrome-installer/internal/installer"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates problems that must stop startup from values
// that were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// ValidateTiered checks the config and returns every problem found, split
// by severity. Out-of-range numbers are clamped in place.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if strings.TrimSpace(c.ChromeVersion) == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("chrome_version is required"))
	} else if _, err := version.NewVersion(c.ChromeVersion); err != nil {
		result.Fatals = append(result.Fatals, fmt.Errorf("chrome_version %q is not a valid version: %w", c.ChromeVersion, err))
	}

	if len(c.Sources) == 0 {
		c.Sources = defaultSourceNames()
		result.Warnings = append(result.Warnings, fmt.Errorf("sources is empty, using %s", strings.Join(c.Sources, ", ")))
	}
	for _, src := range c.Sources {
		if _, err := installer.ResolveSource(src); err != nil {
			result.Fatals = append(result.Fatals, err)
		}
	}

	if strings.TrimSpace(c.InstallPath) == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("install_path is required"))
	}

	c.DownloadTimeoutSeconds = clamp(&result, "download_timeout_seconds", c.DownloadTimeoutSeconds, 5, 600)
	c.DepsTimeoutSeconds = clamp(&result, "deps_timeout_seconds", c.DepsTimeoutSeconds, 30, 3600)
	c.ExtractTimeoutSeconds = clamp(&result, "extract_timeout_seconds", c.ExtractTimeoutSeconds, 30, 3600)

	if c.MinFreeSpaceMB < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("min_free_space_mb %d is negative, disabling check", c.MinFreeSpaceMB))
		c.MinFreeSpaceMB = 0
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.LogFile != "" {
		c.LogMaxSizeMB = clamp(&result, "log_max_size_mb", c.LogMaxSizeMB, 1, 500)
		c.LogMaxBackups = clamp(&result, "log_max_backups", c.LogMaxBackups, 0, 20)
	}

	return result
}

func clamp(result *ValidationResult, key string, value, lo, hi int) int {
	if value < lo {
		result.Warnings = append(result.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", key, value, lo))
		return lo
	}
	if value > hi {
		result.Warnings = append(result.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", key, value, hi))
		return hi
	}
	return value
}
