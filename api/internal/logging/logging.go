package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// InitLogger configures the process-wide logger. Only the first call has an effect.
func InitLogger(level logrus.Level, format string) {
	once.Do(func() {
		logger = newLogger(level, format)
	})
}

// GetLogger returns the process-wide logger, creating an info-level text logger if
// InitLogger was never called.
func GetLogger() *logrus.Logger {
	InitLogger(logrus.InfoLevel, "text")
	return logger
}

// ParseLevel maps a LOG_LEVEL value onto a logrus level, falling back to info.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func newLogger(level logrus.Level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(level)
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}
