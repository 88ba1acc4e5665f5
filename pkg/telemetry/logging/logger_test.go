package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid JSON config", Config{Level: "info", Format: "json", RedactPII: true}, false},
		{"valid text config", Config{Level: "debug", Format: "text"}, false},
		{"empty uses defaults", Config{}, false},
		{"invalid log level", Config{Level: "verbose", Format: "json"}, true},
		{"invalid format", Config{Level: "info", Format: "console"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}
	if lines[0]["msg"] != "warn message" || lines[1]["msg"] != "error message" {
		t.Errorf("unexpected messages: %v", lines)
	}
}

func TestNew_LevelVarReload(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	logger, err := New(Config{Level: "info", Writer: &buf, LevelVar: &level})
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("hidden")
	level.Set(slog.LevelDebug)
	logger.Debug("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "shown" {
		t.Errorf("expected only the message after the level change, got %v", lines)
	}
}

func TestNew_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithOwner(ctx, "learner-7")
	ctx = WithSession(ctx, "sess-1")

	logger.With("component", "server").InfoContext(ctx, "turn served", "source", "primary")
	logger.Info("no context")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	want := map[string]string{
		"request_id": "req-123",
		"owner":      "learner-7",
		"session":    "sess-1",
		"component":  "server",
		"source":     "primary",
	}
	for k, v := range want {
		if lines[0][k] != v {
			t.Errorf("%s = %v, want %q", k, lines[0][k], v)
		}
	}
	if _, ok := lines[1]["request_id"]; ok {
		t.Error("request_id should be absent without context")
	}
}

func TestNew_Redaction(t *testing.T) {
	tests := []struct {
		name      string
		redact    bool
		args      []any
		key       string
		want      string
		forbidden string
	}{
		{"email in message body", true, []any{"message", "write me at ana@example.com"}, "message", "write me at a***@example.com", "ana@example.com"},
		{"api key value", true, []any{"detail", "key sk-abcdefghijkl123"}, "detail", "key sk-a***", "sk-abcdefghijkl123"},
		{"sensitive key", true, []any{"api_key", "supersecretvalue"}, "api_key", "supe***", "supersecretvalue"},
		{"redaction disabled", false, []any{"message", "ana@example.com"}, "message", "ana@example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(Config{Level: "info", RedactPII: tt.redact, Writer: &buf})
			if err != nil {
				t.Fatal(err)
			}

			logger.Info("event", tt.args...)

			lines := decodeLines(t, &buf)
			if got := lines[0][tt.key]; got != tt.want {
				t.Errorf("%s = %v, want %q", tt.key, got, tt.want)
			}
			if tt.forbidden != "" && strings.Contains(buf.String(), tt.forbidden) {
				t.Errorf("output still contains %q: %s", tt.forbidden, buf.String())
			}
		})
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    LogFormat
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"", FormatJSON, false},
		{"TEXT", FormatText, false},
		{"xml", FormatJSON, true},
	}

	for _, tt := range tests {
		got, err := parseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
