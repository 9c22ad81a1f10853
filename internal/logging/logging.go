// Package logging builds the process-wide zap logger. The logger is created
// once at startup and handed to every component that needs it; nothing in
// this codebase logs through package-level globals.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName is the file created under the configured log directory.
const LogFileName = "ffc.log"

// Options controls where log output goes.
type Options struct {
	// Verbose additionally sends informational messages to stdout.
	Verbose bool
	// ToFile additionally appends all messages to Dir/ffc.log.
	ToFile bool
	// Dir is the directory holding the log file; created if missing.
	Dir string
}

// New constructs the logger. Warnings and errors always go to stderr;
// informational and debug messages go to stdout when verbose is set. The
// returned close function flushes buffered entries and must be called
// before exit.
func New(opts Options) (*zap.SugaredLogger, func(), error) {
	return build(opts, os.Stdout, os.Stderr)
}

// build wires the cores against explicit writers so tests can capture the
// two console streams.
func build(opts Options, stdout, stderr io.Writer) (*zap.SugaredLogger, func(), error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stderr)), zapcore.WarnLevel),
	}

	if opts.Verbose {
		// Everything below warn lands on stdout; warn and above stay on
		// stderr so the two streams never duplicate a message.
		infoOnly := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l < zapcore.WarnLevel
		})
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stdout)), infoOnly))
	}

	var logFile *os.File
	if opts.ToFile {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: creating log directory %s: %w", opts.Dir, err)
		}
		path := filepath.Join(opts.Dir, LogFileName)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: opening %s: %w", path, err)
		}
		logFile = f
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(f), zapcore.DebugLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	closeFn := func() {
		_ = logger.Sync()
		if logFile != nil {
			_ = logFile.Close()
		}
	}
	return logger.Sugar(), closeFn, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
