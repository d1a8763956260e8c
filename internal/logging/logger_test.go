package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_WritesJSONFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	log, err := NewLogger(dir, "debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Debug("test_message_from_logging_test", zap.String("k", "v"))
	_ = log.Sync()

	b, err := os.ReadFile(filepath.Join(dir, logFile))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"test_message_from_logging_test"`) || !strings.Contains(string(b), `"ts":`) {
		t.Fatalf("unexpected log line: %s", b)
	}
}

func TestNewLogger_RejectsBadLevel(t *testing.T) {
	if _, err := NewLogger(t.TempDir(), "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"": "info", "debug": "debug", "WARN": "warn", "error": "error"} {
		lvl, err := ParseLevel(in)
		if err != nil || lvl.String() != want {
			t.Errorf("%q: got %v %v", in, lvl, err)
		}
	}
}
