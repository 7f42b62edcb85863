package logger

import "testing"

func TestNew_DefaultsToInfoOnBadLevel(t *testing.T) {
	l, err := New(Config{Level: "not-a-level", Format: "json", OutputFile: "stdout"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.Core().Enabled(0) { // zapcore.InfoLevel == 0
		t.Fatal("expected info level to be enabled by default")
	}
}

func TestNew_ConsoleEncoder(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "console", OutputFile: "stdout"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l == nil {
		t.Fatal("expected a logger instance")
	}
}

func TestNew_InvalidOutputFile(t *testing.T) {
	_, err := New(Config{Level: "info", Format: "json", OutputFile: "/nonexistent-dir/out.log"})
	if err == nil {
		t.Fatal("expected an error opening a file in a missing directory")
	}
}
