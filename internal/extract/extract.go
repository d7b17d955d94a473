// Package extract unpacks downloaded zip archives with the platform's
// native tool, staging the output so a failed run leaves nothing behind.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/renderhost/chrome-installer/internal/executor"
	"github.com/renderhost/chrome-installer/internal/logging"
)

// DefaultTimeout bounds a single extraction.
const DefaultTimeout = 10 * time.Minute

const stagingPattern = ".staging-*"

// ErrArchiveNotFound is returned when the archive path does not exist.
var ErrArchiveNotFound = errors.New("archive not found")

// ExtractionError is a failed run of the extraction tool.
type ExtractionError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s failed: %v: %s", e.Tool, e.Err, e.Output)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor unpacks zip archives.
type Extractor struct {
	runner  executor.Runner
	goos    string
	timeout time.Duration
}

// New returns an Extractor for the running OS.
func New(runner executor.Runner) *Extractor {
	return &Extractor{runner: runner, goos: runtime.GOOS, timeout: DefaultTimeout}
}

// WithOS selects the extraction tool for goos instead of the running OS.
func (e *Extractor) WithOS(goos string) *Extractor {
	e.goos = goos
	return e
}

// WithTimeout overrides DefaultTimeout.
func (e *Extractor) WithTimeout(d time.Duration) *Extractor {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// Command returns the tool invocation that unpacks archive into dir.
func (e *Extractor) Command(archive, dir string) executor.Command {
	if e.goos == "windows" {
		script := fmt.Sprintf("Expand-Archive -LiteralPath %s -DestinationPath %s -Force",
			psQuote(archive), psQuote(dir))
		return executor.Command{
			Name:    "powershell",
			Args:    []string{"-NoProfile", "-NonInteractive", "-Command", script},
			Timeout: e.timeout,
		}
	}
	return executor.Command{
		Name:    "unzip",
		Args:    []string{"-o", "-q", archive, "-d", dir},
		Timeout: e.timeout,
	}
}

// Extract unpacks archive into dest, creating dest if needed. The tool
// writes into a staging directory under dest; top-level entries are moved
// into place only after it succeeds, replacing any existing ones.
func (e *Extractor) Extract(ctx context.Context, archive, dest string) error {
	log := logging.For(ctx, "extract")
	if _, err := os.Stat(archive); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrArchiveNotFound, archive)
		}
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	staging, err := os.MkdirTemp(dest, stagingPattern)
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			log.Warn("failed to remove staging directory", "path", staging, logging.KeyError, rmErr)
		}
	}()

	start := time.Now()
	cmd := e.Command(archive, staging)
	res, err := e.runner.Run(ctx, cmd)
	if err != nil {
		return &ExtractionError{Tool: cmd.Name, Output: res.Output(), Err: err}
	}

	if err := promote(staging, dest); err != nil {
		return err
	}

	log.Info("archive extracted",
		"archive", archive,
		"dest", dest,
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	return nil
}

// promote moves every top-level entry of staging into dest.
func promote(staging, dest string) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("archive produced no files")
	}

	var result *multierror.Error
	for _, entry := range entries {
		target := filepath.Join(dest, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", target, err))
			continue
		}
		if err := os.Rename(filepath.Join(staging, entry.Name()), target); err != nil {
			result = multierror.Append(result, fmt.Errorf("move %s: %w", entry.Name(), err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("failed to move extracted files into place: %w", err)
	}
	return nil
}

// psQuote wraps s in single quotes for PowerShell, doubling embedded quotes.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
