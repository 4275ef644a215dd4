package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test", Warning)
	logger.SetOutput(&buf)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("visible warning", "provider", "gemini")
	logger.Error("visible error", "status", 500)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below the level were logged: %s", out)
	}
	if !strings.Contains(out, "[test] ") {
		t.Errorf("prefix missing: %s", out)
	}
	if !strings.Contains(out, "[WARN] visible warning provider=gemini") {
		t.Errorf("warning not formatted as expected: %s", out)
	}
	if !strings.Contains(out, "[ERROR] visible error status=500") {
		t.Errorf("error not formatted as expected: %s", out)
	}
}

func TestLoggerOddKeyvals(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("odd", Debug)
	logger.SetOutput(&buf)

	logger.Info("message", "key")
	if strings.Contains(buf.String(), "key=") {
		t.Errorf("dangling key should be dropped: %s", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   Debug,
		"INFO":    Info,
		" warn ":  Warning,
		"warning": Warning,
		"error":   Error,
		"fatal":   Critical,
	}
	for in, want := range cases {
		got, ok := ParseLogLevel(in)
		if !ok || got != want {
			t.Errorf("ParseLogLevel(%q) = %v,%v want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseLogLevel("verbose"); ok {
		t.Error("ParseLogLevel should reject unknown names")
	}
}
