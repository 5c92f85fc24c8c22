package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLoggerInit(t *testing.T) {
	// Test console mode
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize console logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}

	// Test json mode
	err = Init(WithFormat("json"))
	if err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}

	logger = Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerInitUnknownFormat(t *testing.T) {
	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

// Basic logging test
func TestLoggerBasic(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil")
	}

	ctx := WithRequestID(context.Background(), "req-1")
	logger.Info(ctx, "test message", String("k", "v"), Error(errors.New("boom")))
}

func TestLoggerNamed(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}

	ctx := context.Background()
	namedLogger.Info(ctx, "test message")
}

func TestLoggerFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	if err := Init(WithFormat("json"), WithFile(path, 1, 1, 1)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	Get().Info(context.Background(), "written to file", Int("n", 1))
	_ = Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Fatalf("log file does not contain message: %s", data)
	}

	// Reset to stdout-only so the rotator releases the temp file.
	if err := Init(); err != nil {
		t.Fatalf("failed to reinitialize logger: %v", err)
	}
}

func TestSetLevelString(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range cases {
		if err := SetLevelString(in); err != nil {
			t.Fatalf("SetLevelString(%q) returned error: %v", in, err)
		}
		if Level() != want {
			t.Fatalf("SetLevelString(%q): got %v, want %v", in, Level(), want)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	_ = SetLevelString("info")
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	if got := RequestID(ctx); got != "abc" {
		t.Fatalf("RequestID = %q, want abc", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("RequestID on empty ctx = %q", got)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info(context.Background(), "discarded")
	l.Named("x").Warn(context.Background(), "discarded")
}
