package executor

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell")
	}
}

func TestCommandArgv(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{
			name: "plain",
			cmd:  Command{Name: "apt-get", Args: []string{"update"}},
			want: "apt-get update",
		},
		{
			name: "sudo",
			cmd:  Command{Name: "apt-get", Args: []string{"update"}, Sudo: true},
			want: "sudo -n apt-get update",
		},
		{
			name: "sudo with env",
			cmd:  Command{Name: "apt-get", Args: []string{"install", "-y"}, Env: []string{"DEBIAN_FRONTEND=noninteractive"}, Sudo: true},
			want: "sudo -n env DEBIAN_FRONTEND=noninteractive apt-get install -y",
		},
		{
			name: "env without sudo stays out of argv",
			cmd:  Command{Name: "unzip", Args: []string{"-o"}, Env: []string{"LANG=C"}},
			want: "unzip -o",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunCapturesOutput(t *testing.T) {
	skipOnWindows(t)

	e := New()
	result, err := e.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err 1>&2"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "out" {
		t.Fatalf("stdout = %q", result.Stdout)
	}
	if strings.TrimSpace(result.Stderr) != "err" {
		t.Fatalf("stderr = %q", result.Stderr)
	}
}

func TestRunPassesEnv(t *testing.T) {
	skipOnWindows(t)

	result, err := New().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo $INSTALLER_TEST_VALUE"},
		Env:  []string{"INSTALLER_TEST_VALUE=forty-two"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "forty-two" {
		t.Fatalf("stdout = %q", result.Stdout)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	skipOnWindows(t)

	result, err := New().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo broken 1>&2; exit 3"},
	})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.ExitCode != 3 || result.ExitCode != 3 {
		t.Fatalf("exit code = %d/%d, want 3", exitErr.ExitCode, result.ExitCode)
	}
	if !strings.Contains(exitErr.Error(), "broken") {
		t.Fatalf("expected captured stderr in error, got %q", exitErr.Error())
	}
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)

	_, err := New().Run(context.Background(), Command{
		Name:    "sleep",
		Args:    []string{"5"},
		Timeout: 100 * time.Millisecond,
	})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestRunParentCancel(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := New().Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := New().Run(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Fatal("missing binary should not look like a non-zero exit")
	}
}

func TestLimitedWriterTruncates(t *testing.T) {
	var buf bytes.Buffer
	w := &limitedWriter{buf: &buf, limit: 4}

	n, err := w.Write([]byte("abcdef"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 6 {
		t.Fatalf("n = %d, want full length 6", n)
	}
	n, _ = w.Write([]byte("gh"))
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
	if buf.String() != "abcd" {
		t.Fatalf("buffer = %q, want %q", buf.String(), "abcd")
	}
}
