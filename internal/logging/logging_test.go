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

func TestSetup_StderrOnly(t *testing.T) {
	logger, err := Setup("debug", "", true)
	if err != nil {
		t.Fatalf("Setup() returned error: %v", err)
	}
	if logger == nil {
		t.Fatalf("expected a logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("expected debug level enabled")
	}
}

func TestSetup_LevelThreshold(t *testing.T) {
	logger, err := Setup("warn", "", true)
	if err != nil {
		t.Fatalf("Setup() returned error: %v", err)
	}
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("expected info suppressed at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("expected error enabled at warn level")
	}
}

func TestSetup_CreatesLogFileDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "broskies.log")

	logger, err := Setup("info", path, true)
	if err != nil {
		t.Fatalf("Setup() returned error: %v", err)
	}
	logger.Info("analysis started", "login", "octocat")
	if err := Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "analysis started") {
		t.Fatalf("expected log record in file, got %q", string(data))
	}
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	}}

	logger := slog.New(h).With("job", "abc123")
	logger.Info("status poll")

	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		if !strings.Contains(buf.String(), "status poll") || !strings.Contains(buf.String(), "job=abc123") {
			t.Fatalf("%s handler missing record: %q", name, buf.String())
		}
	}
}
