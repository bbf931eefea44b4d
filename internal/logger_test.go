package internal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewLogger_ProdJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "prod", slog.LevelInfo)

	logger.Debug("below threshold")
	logger.Info("dispatched", slog.String("email_id", "abc-123"))

	if strings.Contains(buf.String(), "below threshold") {
		t.Error("debug record emitted at info level")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("prod output is not a single JSON record: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "dispatched" || entry["email_id"] != "abc-123" {
		t.Errorf("record = %v", entry)
	}

	ts, _ := entry["time"].(string)
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Errorf("time %q is not RFC3339Nano: %v", ts, err)
	}
}

func TestNewLogger_DevText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "dev", slog.LevelWarn)

	logger.Info("below threshold")
	logger.Warn("queue nearly full")

	out := buf.String()
	if strings.Contains(out, "below threshold") {
		t.Error("info record emitted at warn level")
	}
	if !strings.Contains(out, "msg=") || !strings.Contains(out, "queue nearly full") {
		t.Errorf("dev output should be text handler format, got %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Error("dev output should not be JSON")
	}
}
