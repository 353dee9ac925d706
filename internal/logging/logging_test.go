package logging

import "testing"

func TestParseLevel(t *testing.T) {
	cases := map[string]bool{"debug": true, "warn": true, "error": true, "info": true, "": true, "garbage": true}
	for level := range cases {
		// parseLevel must never panic for any input; unrecognized
		// levels fall back to info.
		_ = parseLevel(level)
	}
}

func TestNewWriteConsoleOnlyDoesNotRequireAFile(t *testing.T) {
	log := New(Options{Level: "debug", WriteConsoleOnly: true})
	if log == nil {
		t.Fatalf("New() returned nil logger")
	}
}

func TestNewWithRotatingFile(t *testing.T) {
	dir := t.TempDir()
	log := New(Options{LogFilePath: dir + "/test.log", Level: "info", WriteConsole: false})
	if log == nil {
		t.Fatalf("New() returned nil logger")
	}
	log.Info("hello")
}
