package querylog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelNoneDiscardsOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelNone, Out: &buf})
	l.Error("boom", nil, nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output at LevelNone, got %q", buf.String())
	}
	if l.Enabled() {
		t.Fatal("expected Enabled() = false at LevelNone")
	}
}

func TestLevelFiltersBelowConfigured(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Out: &buf})
	l.Info("should not appear", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected info suppressed at warn level, got %q", buf.String())
	}
	l.Warn("should appear", nil)
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message in output, got %q", buf.String())
	}
}

func TestComponentFieldIncluded(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Component: "cache", Out: &buf})
	l.Info("hello", nil)
	if !strings.Contains(buf.String(), `"component":"cache"`) {
		t.Fatalf("expected component field in output, got %q", buf.String())
	}
}
