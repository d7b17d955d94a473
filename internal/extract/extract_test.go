package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/renderhost/chrome-installer/internal/executor"
	"github.com/renderhost/chrome-installer/internal/executor/executortest"
)

// fakeUnzip writes chrome-linux64/chrome into the -d directory of the command.
func fakeUnzip(t *testing.T) executortest.Response {
	return executortest.Response{Do: func(cmd executor.Command) {
		dir := cmd.Args[len(cmd.Args)-1]
		bin := filepath.Join(dir, "chrome-linux64", "chrome")
		if err := os.MkdirAll(filepath.Dir(bin), 0755); err != nil {
			t.Error(err)
		}
		if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0644); err != nil {
			t.Error(err)
		}
	}}
}

func writeArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chrome.zip")
	if err := os.WriteFile(path, []byte("PK\x03\x04"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestExtractMissingArchive(t *testing.T) {
	rec := executortest.New()
	err := New(rec).Extract(context.Background(), filepath.Join(t.TempDir(), "nope.zip"), t.TempDir())
	if !errors.Is(err, ErrArchiveNotFound) {
		t.Fatalf("err = %v, want ErrArchiveNotFound", err)
	}
	if calls := rec.Calls(); len(calls) != 0 {
		t.Fatalf("tool should not run, got %v", calls)
	}
}

func TestExtractMovesStagedFilesIntoPlace(t *testing.T) {
	rec := executortest.New().On("unzip", fakeUnzip(t))
	archive := writeArchive(t)
	dest := filepath.Join(t.TempDir(), "install", "chrome")

	if err := New(rec).WithOS("linux").Extract(context.Background(), archive, dest); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "chrome-linux64", "chrome")); err != nil {
		t.Fatalf("binary not promoted: %v", err)
	}
	if names := listDir(t, dest); len(names) != 1 || names[0] != "chrome-linux64" {
		t.Fatalf("staging directory left behind: %v", names)
	}

	cmd := rec.Commands()[0]
	if cmd.Args[2] != archive || !strings.Contains(cmd.Args[4], ".staging-") {
		t.Fatalf("unexpected unzip args: %v", cmd.Args)
	}
}

func TestExtractReplacesExistingInstall(t *testing.T) {
	rec := executortest.New().On("unzip", fakeUnzip(t))
	dest := t.TempDir()
	stale := filepath.Join(dest, "chrome-linux64", "stale.so")
	os.MkdirAll(filepath.Dir(stale), 0755)
	os.WriteFile(stale, []byte("old"), 0644)

	if err := New(rec).WithOS("linux").Extract(context.Background(), writeArchive(t), dest); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale file should be gone, stat err = %v", err)
	}
}

func TestExtractFailureLeavesDestinationUntouched(t *testing.T) {
	rec := executortest.New().On("unzip", executortest.Response{
		Result: &executor.Result{ExitCode: 9, Stderr: "End-of-central-directory signature not found."},
		Err:    &executor.ExitError{Command: "unzip", ExitCode: 9},
		Do: func(cmd executor.Command) {
			dir := cmd.Args[len(cmd.Args)-1]
			os.MkdirAll(filepath.Join(dir, "chrome-linux64"), 0755)
		},
	})
	dest := t.TempDir()

	err := New(rec).WithOS("linux").Extract(context.Background(), writeArchive(t), dest)
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("err = %v (%T), want *ExtractionError", err, err)
	}
	if extractErr.Tool != "unzip" || !strings.Contains(extractErr.Output, "central-directory") {
		t.Fatalf("unexpected error: %+v", extractErr)
	}
	if names := listDir(t, dest); len(names) != 0 {
		t.Fatalf("failed extraction should leave nothing, got %v", names)
	}
}

func TestExtractEmptyArchive(t *testing.T) {
	rec := executortest.New()
	dest := t.TempDir()
	if err := New(rec).WithOS("linux").Extract(context.Background(), writeArchive(t), dest); err == nil {
		t.Fatal("expected error for archive without entries")
	}
}

func TestCommandPerOS(t *testing.T) {
	linux := New(nil).WithOS("linux").Command("/tmp/c.zip", "/opt/chrome")
	if linux.String() != "unzip -o -q /tmp/c.zip -d /opt/chrome" {
		t.Errorf("linux command = %q", linux.String())
	}
	if linux.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", linux.Timeout)
	}

	win := New(nil).WithOS("windows").Command(`C:\Temp\c.zip`, `C:\Users\o'neil\chrome`)
	if win.Name != "powershell" {
		t.Fatalf("windows tool = %q", win.Name)
	}
	script := win.Args[len(win.Args)-1]
	want := `Expand-Archive -LiteralPath 'C:\Temp\c.zip' -DestinationPath 'C:\Users\o''neil\chrome' -Force`
	if script != want {
		t.Errorf("script = %q, want %q", script, want)
	}
}
