package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/querybridge/querybridge/internal/config"
)

func TestNewLoggerAddsServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "querybridge-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	NewLogger(cfg, &buf).Info("ready")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body %s", err, buf.String())
	}
	if entry["service"] != "querybridge-api" || entry["profile"] != "test" {
		t.Fatalf("entry = %#v", entry)
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Observability: config.ObservabilityConfig{LogLevel: slog.LevelWarn}}
	NewLogger(cfg, &buf).Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestLoggerAddsTraceIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Engine:        config.EngineConfig{Backend: "duckdb"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	logger := NewLogger(cfg, &buf).With(slog.String("component", "assistant"))
	logger.InfoContext(ContextWithTraceID(context.Background(), "trace-9"), "session connected")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body %s", err, buf.String())
	}
	if entry["trace_id"] != "trace-9" || entry["backend"] != "duckdb" || entry["component"] != "assistant" {
		t.Fatalf("entry = %#v", entry)
	}
}

func TestLoggerOmitsTraceIDWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true}}
	NewLogger(cfg, &buf).Info("boot")
	if bytes.Contains(buf.Bytes(), []byte("trace_id")) {
		t.Fatalf("unexpected trace_id in %s", buf.String())
	}
}
