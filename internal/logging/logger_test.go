package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json"}, &buf)

	WithCall(WithComponent(logger, "httpapi"), "c1").Info().Msg("decided")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	for k, want := range map[string]string{
		"level":     "info",
		"message":   "decided",
		"component": "httpapi",
		"call_id":   "c1",
		"service":   "ivrnav",
	} {
		if got, _ := entry[k].(string); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn line should be written")
	}
}

func TestNew_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "loud"}, &buf)

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")

	out := buf.String()
	if strings.Contains(out, `"debug"`) && strings.Contains(out, `"message":"debug"`) {
		t.Error("debug should be filtered by default")
	}
	if !strings.Contains(out, `"message":"info"`) {
		t.Error("info should be written by default")
	}
}
