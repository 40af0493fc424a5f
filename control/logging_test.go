// File: control/logging_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerValidLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		logger, atom, err := NewLogger(lvl)
		if err != nil {
			t.Fatalf("NewLogger(%q) returned error: %v", lvl, err)
		}
		if logger == nil {
			t.Fatalf("NewLogger(%q) returned nil logger", lvl)
		}
		defer logger.Sync()

		var want zapcore.Level
		_ = want.UnmarshalText([]byte(lvl))
		if atom.Level() != want {
			t.Errorf("level = %v, want %v", atom.Level(), want)
		}
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, _, err := NewLogger("not-a-level"); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestNewLoggerAtomicLevelIsLive(t *testing.T) {
	logger, atom, err := NewLogger("info")
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	defer logger.Sync()

	atom.SetLevel(zapcore.ErrorLevel)
	if atom.Level() != zapcore.ErrorLevel {
		t.Errorf("atom.Level() = %v, want error", atom.Level())
	}
}
