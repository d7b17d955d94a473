package installer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyInstalling rejects an install while another is running.
	ErrAlreadyInstalling = errors.New("an installation is already in progress")

	// ErrInvalidVersion is returned for a version string that cannot be parsed.
	ErrInvalidVersion = errors.New("invalid chrome version")
)

// MirrorAttempt is one failed download.
type MirrorAttempt struct {
	Source Source
	URL    string
	Err    error
}

// MirrorsExhaustedError is returned after every mirror failed. Its message
// surfaces the last error.
type MirrorsExhaustedError struct {
	Attempts []MirrorAttempt
}

func (e *MirrorsExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all download sources failed: no sources configured"
	}
	return fmt.Sprintf("all download sources failed: %v", e.Last())
}

// Last returns the error of the final attempt.
func (e *MirrorsExhaustedError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

func (e *MirrorsExhaustedError) Unwrap() error {
	return e.Last()
}

// Summary lists every attempt, one per line.
func (e *MirrorsExhaustedError) Summary() string {
	var b strings.Builder
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "%s: %v\n", a.Source.Name, a.Err)
	}
	return strings.TrimSpace(b.String())
}

// VerificationError means the executable is missing after extraction.
type VerificationError struct {
	Path string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("installation verification failed: executable not found at %s", e.Path)
}

// PreflightError indicates a pre-flight check failed before downloading.
type PreflightError struct {
	Check   string // e.g. "disk_space"
	Message string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight check %q failed: %s", e.Check, e.Message)
}
