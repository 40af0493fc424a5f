// File: control/logging.go
// Author: momentics <momentics@gmail.com>
//
// Logger construction, grounded field-for-field on the teacher pack's
// common/go/logging/logging.go: a console encoder with color when stderr
// is a terminal (detected via golang.org/x/term), plain capitals
// otherwise, built through zap.Config rather than a canned constructor so
// callers get back the zap.AtomicLevel for live level changes.

package control

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// NewLogger builds a console-encoded zap.Logger at the given level
// ("debug", "info", "warn", "error"), returning the logger and its
// AtomicLevel so it can be adjusted at runtime (e.g. via OnReload).
func NewLogger(level string) (*zap.Logger, zap.AtomicLevel, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("parsing log level %q: %w", level, err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("building logger: %w", err)
	}
	return logger, cfg.Level, nil
}
