package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew_DualOutput(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	opts := Options{
		Env:          "prod",
		ConsoleLevel: "info",
		FileLevel:    "debug",
		File:         logFile,
		App:          "kairodb",
	}

	logger := New(opts)
	defer func() {
		if err := Close(logger); err != nil {
			t.Errorf("Error closing logger: %v", err)
		}
	}()

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	// Give some time for file writes
	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	fileContent := string(content)

	if !strings.Contains(fileContent, "debug message") {
		t.Error("File should contain debug message")
	}
	if !strings.Contains(fileContent, "info message") {
		t.Error("File should contain info message")
	}
	if !strings.Contains(fileContent, "warn message") {
		t.Error("File should contain warn message")
	}
	if !strings.Contains(fileContent, `"level":"DEBUG"`) {
		t.Error("File should contain JSON formatted debug level")
	}
	if !strings.Contains(fileContent, `"app":"kairodb"`) {
		t.Error("File should contain app field")
	}
}

func TestNew_ConsoleOnly(t *testing.T) {
	opts := Options{
		Env:          "dev",
		ConsoleLevel: "info",
		App:          "kairodb",
	}

	logger := New(opts)
	defer func() {
		if err := Close(logger); err != nil {
			t.Errorf("Error closing logger: %v", err)
		}
	}()

	if logger == nil {
		t.Fatal("Logger should not be nil")
	}

	// Should not panic
	logger.Info("console only message")
}

func TestNew_DifferentLevels(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "levels.log")

	opts := Options{
		Env:          "prod",
		ConsoleLevel: "warn",
		FileLevel:    "debug",
		File:         logFile,
		App:          "kairodb",
	}

	logger := New(opts)
	defer func() {
		if err := Close(logger); err != nil {
			t.Errorf("Error closing logger: %v", err)
		}
	}()

	logger.Debug("debug only in file")
	logger.Info("info only in file")
	logger.Warn("warn in both")
	logger.Error("error in both")

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	fileContent := string(content)

	for _, msg := range []string{"debug only in file", "info only in file", "warn in both", "error in both"} {
		if !strings.Contains(fileContent, msg) {
			t.Errorf("File should contain %q", msg)
		}
	}
}

func TestRedaction_Credentials(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "redacted.log")

	opts := Options{
		Env:       "prod",
		FileLevel: "debug",
		File:      logFile,
		App:       "kairodb",
	}

	logger := New(opts)
	defer func() {
		if err := Close(logger); err != nil {
			t.Errorf("Error closing logger: %v", err)
		}
	}()

	logger.Info("db connect",
		slog.String("password", "s3cr3t"),
		slog.String("dsn", "root:s3cr3t@tcp(localhost:3306)/test_db"),
		slog.String("user", "root"))

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	fileContent := string(content)

	if strings.Contains(fileContent, "s3cr3t") {
		t.Error("Credentials should be redacted")
	}
	if !strings.Contains(fileContent, "[REDACTED]") {
		t.Error("Should contain redacted placeholder")
	}
	if !strings.Contains(fileContent, `"user":"root"`) {
		t.Error("Non-sensitive data should not be redacted")
	}
}

func TestLooksLikeCredential(t *testing.T) {
	if !looksLikeCredential("root:pw@tcp(localhost:3306)/db") {
		t.Error("DSN-shaped string should look like a credential")
	}
	if looksLikeCredential("short") {
		t.Error("Short plain string should not look like a credential")
	}
	if looksLikeCredential("just a normal sentence") {
		t.Error("Plain string should not look like a credential")
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		def  slog.Level
		want slog.Level
	}{
		{"debug", slog.LevelInfo, slog.LevelDebug},
		{"INFO", slog.LevelDebug, slog.LevelInfo},
		{"warn", slog.LevelInfo, slog.LevelWarn},
		{"error", slog.LevelInfo, slog.LevelError},
		{"bogus", slog.LevelInfo, slog.LevelInfo},
		{"", slog.LevelDebug, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := levelFromString(tt.in, tt.def); got != tt.want {
			t.Errorf("levelFromString(%q, %v) = %v, want %v", tt.in, tt.def, got, tt.want)
		}
	}
}

func TestTee_FansOutByLevel(t *testing.T) {
	h1 := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})

	both := tee{h1, h2}

	ctx := context.Background()

	if !both.Enabled(ctx, slog.LevelInfo) {
		t.Error("Should be enabled for info level")
	}
	if !both.Enabled(ctx, slog.LevelWarn) {
		t.Error("Should be enabled for warn level")
	}

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "test", 0)
	if err := both.Handle(ctx, record); err != nil {
		t.Errorf("Handle should not return error: %v", err)
	}

	if both.WithAttrs([]slog.Attr{slog.String("key", "value")}) == nil {
		t.Error("WithAttrs should not return nil")
	}
	if both.WithGroup("group") == nil {
		t.Error("WithGroup should not return nil")
	}
}
