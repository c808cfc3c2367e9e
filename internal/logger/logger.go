package logger

import (
	"fmt"
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Log is the global logger
	Log *zap.SugaredLogger

	// logger is the underlying zap logger
	logger *zap.Logger
)

// Options configures Init
type Options struct {
	Level  string
	Format string // json or text

	// File, when set, receives a copy of every entry in JSON, rotated by size
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init initializes the global logger. Console output goes to stderr so
// command output on stdout stays machine readable.
func Init(opts Options) error {
	zapLevel, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}
	level := zap.NewAtomicLevelAt(zapLevel)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.LevelKey = "level"
	encCfg.MessageKey = "msg"
	encCfg.CallerKey = "caller"
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	var consoleEnc zapcore.Encoder
	switch opts.Format {
	case "json":
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	case "text", "":
		devCfg := encCfg
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(devCfg)
	default:
		return fmt.Errorf("invalid log format: %s", opts.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	Log = logger.Sugar()
	return nil
}

// parseLevel converts string log level to zapcore.Level
func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// Sync flushes any buffered log entries
func Sync() error {
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// GetZapLogger returns the underlying zap.Logger, a no-op logger before Init
func GetZapLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
