package logging

import "testing"

func TestNewDefaultsUnknownLevelToInfo(t *testing.T) {
	l, err := New(Config{Level: "not-a-level", Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Config{Level: "info", Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewConsoleFormat(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("hello")
}
