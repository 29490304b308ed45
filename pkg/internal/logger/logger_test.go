package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestDefaultLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LevelWarn)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("Expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn 3") || !strings.Contains(out, "error 4") {
		t.Errorf("Expected warn and error lines, got %q", out)
	}

	buf.Reset()
	l.SetLevel(LevelDebug)
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("Expected debug line after SetLevel, got %q", buf.String())
	}
}

func TestDefaultLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LevelInfo).With("link")

	l.Info("opened")

	out := buf.String()
	if !strings.Contains(out, "component=") || !strings.Contains(out, "link") {
		t.Errorf("Expected component field, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFrameDebugToggle(t *testing.T) {
	defer SetFrameDebug(false)

	SetFrameDebug(true)
	if !FrameDebug() {
		t.Errorf("Expected frame debug enabled")
	}
	SetFrameDebug(false)
	if FrameDebug() {
		t.Errorf("Expected frame debug disabled")
	}
}
