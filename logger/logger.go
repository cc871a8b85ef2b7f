package logger

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
}

var (
	processLogger *Logger
	processOnce   sync.Once
)

// Get builds the stdout logger on first use; later levels are ignored.
func Get(level string) *Logger {
	processOnce.Do(func() {
		processLogger = New(level, os.Stdout)
	})
	return processLogger
}

func New(level string, out io.Writer) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(out)),
		zap.NewAtomicLevelAt(ParseLevel(level)),
	)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}
}

func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}
