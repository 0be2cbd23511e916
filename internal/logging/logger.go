// Package logging provides structured logging for the resistance-test core.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields carries structured context attached to a log entry.
type Fields = logrus.Fields

var (
	// global logger instance
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger. The level string follows logrus
// conventions ("debug", "info", "warn", "error"); unknown values fall back
// to info.
func Init(out io.Writer, level string) {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(out)
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
		})

		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			parsed = logrus.InfoLevel
		}
		l.SetLevel(parsed)

		global = l
	})
}

// Get returns the global logger instance, initializing it with defaults
// when Init was never called.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info")
	}
	return global
}

// Convenience functions using the global logger.

func Debug(message string, fields ...Fields) {
	entryFor(fields).Debug(message)
}

func Info(message string, fields ...Fields) {
	entryFor(fields).Info(message)
}

func Warn(message string, fields ...Fields) {
	entryFor(fields).Warn(message)
}

func Error(message string, err error, fields ...Fields) {
	entry := entryFor(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}

// entryFor merges the optional field maps into a single entry.
func entryFor(fields []Fields) *logrus.Entry {
	entry := logrus.NewEntry(Get())
	for _, f := range fields {
		if f != nil {
			entry = entry.WithFields(f)
		}
	}
	return entry
}
