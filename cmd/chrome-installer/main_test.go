package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/renderhost/chrome-installer/internal/installer"
	"github.com/renderhost/chrome-installer/internal/progress"
)

func TestFormatProgress(t *testing.T) {
	line := formatProgress(progress.Snapshot{
		Phase:   progress.PhaseDownloading,
		Percent: 45,
		Message: "Downloading Chrome... 50.0%",
		Download: &progress.DownloadStats{
			TotalBytes: 1000,
			Speed:      "2.00 MB/s",
			ETA:        "3s",
		},
	})
	for _, want := range []string{"downloading", "45.0%", "2.00 MB/s", "ETA 3s"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}

	failed := formatProgress(progress.Snapshot{Phase: progress.PhaseFailed, Message: "Installation failed", Error: "boom"})
	if !strings.HasSuffix(failed, ": boom") {
		t.Errorf("failed line = %q", failed)
	}
}

func TestRenderProgressSkipsDuplicates(t *testing.T) {
	ch := make(chan progress.Snapshot, 4)
	ch <- progress.Snapshot{Phase: progress.PhaseDownloading, Percent: 20, Message: "a"}
	ch <- progress.Snapshot{Phase: progress.PhaseDownloading, Percent: 20, Message: "a"}
	ch <- progress.Snapshot{Phase: progress.PhaseCompleted, Percent: 100, Message: "done"}
	close(ch)

	var buf bytes.Buffer
	renderProgress(&buf, ch)
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("printed %d lines, want 2:\n%s", lines, buf.String())
	}
}

func TestWriteOutput(t *testing.T) {
	info := installer.Info{Installed: true, ExecutablePath: "/opt/chrome/chrome-linux64/chrome", Version: "131.0.6778.204"}

	var y bytes.Buffer
	if err := writeOutput(&y, "yaml", info); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(y.String(), "version: 131.0.6778.204") {
		t.Errorf("yaml output:\n%s", y.String())
	}

	var j bytes.Buffer
	if err := writeOutput(&j, "json", info); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(j.String(), `"executablePath": "/opt/chrome/chrome-linux64/chrome"`) {
		t.Errorf("json output:\n%s", j.String())
	}

	if err := writeOutput(&j, "xml", info); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestInstallErrorListsEveryMirror(t *testing.T) {
	err := &installer.MirrorsExhaustedError{Attempts: []installer.MirrorAttempt{
		{Source: installer.NPMMirror, Err: errors.New("404 Not Found")},
		{Source: installer.Google, Err: errors.New("connection reset")},
	}}
	msg := installError(installer.Result{Error: err.Error(), Err: err}).Error()
	for _, want := range []string{"npmmirror: 404 Not Found", "google: connection reset"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}

	plain := installError(installer.Result{Error: "extraction failed: unzip exited with code 9"})
	if plain.Error() != "install failed: extraction failed: unzip exited with code 9" {
		t.Errorf("plain error = %q", plain)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Fatalf("firstNonEmpty = %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("firstNonEmpty() = %q", got)
	}
}
