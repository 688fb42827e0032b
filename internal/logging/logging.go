// Package logging builds the structured logger every Sparkle component
// receives explicitly (Design Note §9: no package-global logger). It is
// grounded on the teacher's daemonLogger interface in
// cmd/bd/daemon_server.go (key-value Info/Warn/Error calls), backed by
// zap instead of a hand-rolled logger and rotated with lumberjack the way
// the rest of the retrieved pack's daemons do.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// LogFile is the rotated log destination. Empty disables file
	// logging (console only).
	LogFile string
	// MaxSizeMB is the size at which lumberjack rotates LogFile.
	MaxSizeMB int
	// MaxBackups is how many rotated files lumberjack keeps.
	MaxBackups int
	// MaxAgeDays is how long lumberjack keeps rotated files.
	MaxAgeDays int
	// Debug enables debug-level logging.
	Debug bool
}

// New builds a zap.Logger that always writes JSON to LogFile (if set)
// and additionally writes a human-readable console encoding to stderr
// when stderr is a TTY, matching the teacher's dual console/file
// behavior in its daemon startup path.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core

	if opts.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    nonZero(opts.MaxSizeMB, 50),
			MaxBackups: nonZero(opts.MaxBackups, 5),
			MaxAge:     nonZero(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		jsonEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level))
	}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleEncoder := zapcore.NewConsoleEncoder(consoleCfg)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level))
	} else if opts.LogFile == "" {
		// Neither a TTY nor a log file: still emit JSON to stderr so a
		// daemon launched from a non-interactive supervisor isn't silent.
		jsonEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.Lock(os.Stderr), level))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
