package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Log *zap.Logger
)

func init() {
	// Nop until Init so packages can log before the CLI has parsed config
	Log = zap.NewNop()
}

// FileConfig enables a rotating log file next to the console output.
type FileConfig struct {
	Path      string // empty disables file output
	MaxSizeMB int
}

// Init initializes the global logger
func Init(env string, file FileConfig) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	// stdout belongs to the signature output of the CLI
	config.OutputPaths = []string{"stderr"}

	var err error
	Log, err = config.Build(zap.AddCallerSkip(1)) // Skip 1 caller so logs show where logger.Info was called, not wrapper
	if err != nil {
		panic(err)
	}

	if file.Path != "" {
		Log = Log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, newFileCore(file))
		}))
	}

	zap.ReplaceGlobals(Log)
}

func newFileCore(file FileConfig) zapcore.Core {
	maxSize := file.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	lj := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    maxSize, // lumberjack uses MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(lj), zapcore.DebugLevel)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
}

// Helper functions for direct usage
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}
