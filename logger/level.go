package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLevel maps LOG_LEVEL onto zap. Anything unrecognised logs at info.
func ParseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
