// Package logging provides structured logging for the fieldsync agent.
// It is a thin layer over logrus configured for JSON output so device log
// lines can be shipped off and correlated with back-office traces.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Init configures the shared logrus logger. Level is one of
// debug|info|warn|error (case-insensitive); unknown values fall back to info.
func Init(out io.Writer, level string) {
	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(parseLevel(level))
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithComponent returns an entry tagged with the component name. Packages
// use this so every line carries its origin.
func WithComponent(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}

// Convenience functions mirroring the logrus API on the shared logger.

func Debug(msg string, fields ...map[string]interface{}) {
	entry(fields...).Debug(msg)
}

func Info(msg string, fields ...map[string]interface{}) {
	entry(fields...).Info(msg)
}

func Warn(msg string, fields ...map[string]interface{}) {
	entry(fields...).Warn(msg)
}

func Error(msg string, err error, fields ...map[string]interface{}) {
	e := entry(fields...)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

func entry(fields ...map[string]interface{}) *logrus.Entry {
	if len(fields) == 0 {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	merged := logrus.Fields{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return logrus.WithFields(merged)
}
