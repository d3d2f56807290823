package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for s, want := range cases {
		if got := ParseLevel(s); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("text") != FormatText {
		t.Error("ParseFormat(text) should be FormatText")
	}
	if ParseFormat("json") != FormatJSON {
		t.Error("ParseFormat(json) should be FormatJSON")
	}
	if ParseFormat("") != FormatAuto {
		t.Error("ParseFormat(\"\") should be FormatAuto")
	}
}

func TestNewWritesJSONForNonTerminalWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo, FormatAuto)
	logger.Info("hello", "key", "value")
	out := buf.String()
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("expected JSON-formatted output, got %q", out)
	}
}

func TestNewRespectsExplicitTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo, FormatText)
	logger.Info("hello")
	out := buf.String()
	if strings.Contains(out, "{") {
		t.Errorf("expected text-formatted output, got %q", out)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn, FormatText)
	logger.Info("should be dropped")
	logger.Warn("should appear")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("Info message should have been filtered out below LevelWarn")
	}
	if !strings.Contains(out, "appear") {
		t.Error("Warn message should have been emitted")
	}
}

func TestOpenDestinationDefaultsToStderr(t *testing.T) {
	f, err := OpenDestination("")
	if err != nil {
		t.Fatalf("OpenDestination: %v", err)
	}
	if f != os.Stderr {
		t.Fatal("OpenDestination(\"\") did not return os.Stderr")
	}
}
