package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriterJSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("prod", &buf)
	logger.Info().Str("slot_id", "abc").Msg("slot reserved")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "slot reserved" || entry["slot_id"] != "abc" {
		t.Errorf("unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestNewWithWriterConsoleInDev(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("dev", &buf)
	logger.Info().Msg("slot reserved")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("expected console output in dev, got %q", out)
	}
	if !strings.Contains(out, "slot reserved") {
		t.Errorf("expected message in output, got %q", out)
	}
}
