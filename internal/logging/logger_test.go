package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cinelex/internal/config"
	"cinelex/internal/logging"
	"cinelex/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.TMDB.APIKey = "test"
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("sync started", logging.String("year", "2024"))

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "cinelex.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, data)
	}
	if entry["msg"] != "sync started" || entry["level"] != "info" || entry["year"] != "2024" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "syncer").Info("message without caller", logging.Int("pages", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if strings.Contains(text, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", text)
	}
	if !strings.Contains(text, "INFO [syncer] - message without caller") {
		t.Fatalf("expected component in header, got %q", text)
	}
	if !strings.Contains(text, "    pages: 3") {
		t.Fatalf("expected indented field, got %q", text)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestWithContextAddsJobAndStage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-123")
	ctx = services.WithStage(ctx, "sync")
	ctx = services.WithRequestID(ctx, "req-9")
	logging.WithContext(ctx, logger).Info("hello")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry[logging.FieldJobID] != "job-123" || entry[logging.FieldStage] != "sync" || entry[logging.FieldCorrelationID] != "req-9" {
		t.Fatalf("context fields missing: %v", entry)
	}
}

func TestUnknownFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestTeeLoggerDuplicatesRecords(t *testing.T) {
	var a, b bytes.Buffer
	base := slog.New(slog.NewTextHandler(&a, nil))
	tee := logging.TeeLogger(base, slog.NewTextHandler(&b, nil))
	tee.With("k", "v").Info("dup")
	if !strings.Contains(a.String(), "dup") || !strings.Contains(b.String(), "k=v") {
		t.Fatalf("expected both handlers to receive record: %q / %q", a.String(), b.String())
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "quota low", "quota_low", logging.String(logging.FieldImpact, "downloads paused"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry[logging.FieldEventType] != "quota_low" {
		t.Fatalf("expected event_type, got %v", entry)
	}
	if entry[logging.FieldImpact] != "downloads paused" {
		t.Fatalf("expected caller-provided impact preserved, got %v", entry)
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default error_hint, got %v", entry)
	}
}

func TestErrorWithContextClassifiesError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	err := services.Wrap(services.ErrValidation, "sync", "ingest", "bad record", nil)
	logging.ErrorWithContext(logger, "record rejected", "record_rejected", logging.Error(err))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry[logging.FieldErrorKind] != "skip" {
		t.Fatalf("expected error_kind=skip, got %v", entry)
	}
	if entry[logging.FieldEventType] != "record_rejected" || entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default fields, got %v", entry)
	}
}
