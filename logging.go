package main

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerMu sync.Mutex
	logger   *logrus.Logger
)

// appLogger returns the process-wide structured logger, building a default
// info-level one on first use so that code which logs before NewLogger runs
// (e.g. config validation warnings) still gets a sane sink.
func appLogger() *logrus.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = newLogger("info")
	}
	return logger
}

// NewLogger builds the structured logger used throughout the controller and
// installs it as the process-wide logger returned by appLogger. Call once,
// immediately after config load, with the configured level.
func NewLogger(level string) *logrus.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = newLogger(level)
	return logger
}

func newLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return l
}
