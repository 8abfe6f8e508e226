package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger *zap.SugaredLogger
)

func init() {
	logger = NewLogger()
}

func GetLogger() *zap.SugaredLogger {
	return logger
}

// SetDebug toggles per-frame debug logging at runtime. Info and above stay
// on either way.
func SetDebug(on bool) {
	if on {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

func NewLogger() *zap.SugaredLogger {
	cfg := zap.Config{
		Level:    level,
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:  "msg",
			LevelKey:    "level",
			TimeKey:     "time",
			NameKey:     "name",
			EncodeLevel: zapcore.CapitalLevelEncoder,
			EncodeTime:  zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
			EncodeName:  zapcore.FullNameEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}
