package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("fetch")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("mirror attempt", KeyMirror, "npmmirror")

	out := buf.String()
	if !strings.Contains(out, `msg="mirror attempt"`) {
		t.Fatalf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "component=fetch") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "mirror=npmmirror") {
		t.Fatalf("expected mirror field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("installer")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "debug", &buf)

	WithInstall(L("installer"), "131.0.6778.204", "/tmp/chrome").Debug("starting")

	out := buf.String()
	if !strings.Contains(out, `"version":"131.0.6778.204"`) {
		t.Fatalf("expected version attr in json output, got: %s", out)
	}
	if !strings.Contains(out, `"installPath":"/tmp/chrome"`) {
		t.Fatalf("expected installPath attr in json output, got: %s", out)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected default logger")
	}

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := NewContext(context.Background(), custom)
	if FromContext(ctx) != custom {
		t.Fatal("expected logger stored in context")
	}
}

func TestForKeepsInstallAttributes(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	ctx := NewContext(context.Background(), WithInstall(FromContext(context.Background()), "131.0.6778.204", "/opt/chrome"))
	For(ctx, "extract").Info("archive extracted")

	out := buf.String()
	for _, want := range []string{"component=extract", "version=131.0.6778.204", "installPath=/opt/chrome"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in: %s", want, out)
		}
	}
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("component should appear once: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "installer.log")

	rw, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer rw.Close()

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 3; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected first backup after rotation: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat active log: %v", err)
	}
	if info.Size() > 1024*1024 {
		t.Fatalf("active log exceeds max size: %d", info.Size())
	}
}
