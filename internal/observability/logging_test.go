package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info("should not appear")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Error("info record emitted at warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn record missing")
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	logger.Info("hello", "session_id", "abc")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "hello" || record["session_id"] != "abc" {
		t.Errorf("record = %v", record)
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "text", Output: &buf})
	logger.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info("configured", "detail", "api_key: abcdef1234567890abcdef")
	out := buf.String()
	if strings.Contains(out, "abcdef1234567890abcdef") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("no redaction marker: %s", out)
	}
}

func TestLoggerRedactsInMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	logger.Info("token: abcdefghij1234567890")
	if strings.Contains(buf.String(), "abcdefghij1234567890") {
		t.Errorf("secret leaked in message: %s", buf.String())
	}
}

func TestLoggerCustomRedactPattern(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{
		Output:         &buf,
		RedactPatterns: []string{`internal-[0-9]+`},
	})
	logger.Info("ref", "id", "internal-12345")
	if strings.Contains(buf.String(), "internal-12345") {
		t.Errorf("custom pattern not applied: %s", buf.String())
	}
}
