package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// Options controls how a logger is built from configuration
type Options struct {
	Level  string    // "debug", "info", "warn", "error"
	Format string    // "text" or "json"
	Output io.Writer // defaults to os.Stderr
}

// New creates a new logger instance
func New() *Logger {
	log := logrus.New()

	// Progress rendering owns stdout, logs go to stderr
	log.SetOutput(os.Stderr)

	log.SetLevel(logrus.InfoLevel)

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &Logger{Logger: log}
}

// NewWithLevel creates a new logger with specified level
func NewWithLevel(level logrus.Level) *Logger {
	log := New()
	log.SetLevel(level)
	return log
}

// NewWithOptions creates a logger from configuration values.
// Unknown levels fall back to info.
func NewWithOptions(opts Options) *Logger {
	log := New()

	if opts.Output != nil {
		log.SetOutput(opts.Output)
	}

	if level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level)); err == nil {
		log.SetLevel(level)
	}

	if strings.EqualFold(opts.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return log
}

// Discard returns a logger that drops everything, used by tests
func Discard() *Logger {
	return NewWithOptions(Options{Output: io.Discard, Level: "panic"})
}

// WithField creates an entry with a single field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields creates an entry with multiple fields
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithComponent creates an entry with component field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.WithField("component", component)
}
