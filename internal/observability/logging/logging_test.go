package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerTagsServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{ServiceName: "chat", Environment: "test", Level: "debug"}, &buf)

	logger.Debug("hello", "k", "v")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["service"] != "chat" || entry["env"] != "test" {
		t.Fatalf("missing service/env attributes: %v", entry)
	}
	if entry["msg"] != "hello" || entry["k"] != "v" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{ServiceName: "chat", Level: "warn"}, &buf)

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("warn should be written")
	}
}
