package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields type, used to pass to [Logger.WithFields].
type Fields map[string]interface{}

// Logger allows to emits logs to the divers log systems.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	WithField(fn string, fv interface{}) Logger
	WithFields(fields Fields) Logger
	WithTime(t time.Time) Logger

	Log(level Level, msg string)
}

// Options contains the configuration values of the logger system
type Options struct {
	Hooks  []logrus.Hook
	Output io.Writer
	Level  string
	// JSON switches the output to one JSON object per line.
	JSON bool
	// Syslog sends the logs to the local syslog daemon instead of Output.
	Syslog bool
}

// Init initializes the logger module with the specified options. It can be
// called several times, the last call wins.
func Init(opt Options) error {
	level := opt.Level
	if level == "" {
		level = "info"
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if opt.Syslog {
		hook, err := SyslogHook()
		if err != nil {
			return err
		}
		opt.Hooks = append(opt.Hooks, hook)
		opt.Output = io.Discard
	}

	setupLogger(logrus.StandardLogger(), getLogrusLevel(lvl), opt)
	return nil
}

// Entry is the struct on which we can call the Debug, Info, Warn, Error
// methods with the structured data accumulated.
type Entry struct {
	entry *logrus.Entry
}

// WithNamespace returns a logger with the specified nspace field.
func WithNamespace(nspace string) *Entry {
	entry := logrus.WithField("nspace", nspace)

	return &Entry{entry}
}

// WithNamespace adds a namespace (nspace field).
func (e *Entry) WithNamespace(nspace string) *Entry {
	entry := e.entry.WithField("nspace", nspace)
	return &Entry{entry}
}

// WithField adds a single field to the Entry.
func (e *Entry) WithField(key string, value interface{}) Logger {
	entry := e.entry.WithField(key, value)
	return &Entry{entry}
}

// WithFields adds a map of fields to the Entry.
func (e *Entry) WithFields(fields Fields) Logger {
	entry := e.entry.WithFields(logrus.Fields(fields))
	return &Entry{entry}
}

// WithTime overrides the Entry's time
func (e *Entry) WithTime(t time.Time) Logger {
	entry := e.entry.WithTime(t)
	return &Entry{entry}
}

// maxLineWidth limits the number of characters of a line of log to avoid issue
// with syslog.
const maxLineWidth = 2000

func (e *Entry) Log(level Level, msg string) {
	if len(msg) > maxLineWidth {
		msg = msg[:maxLineWidth-12] + " [TRUNCATED]"
	}
	e.entry.Log(getLogrusLevel(level), msg)
}

func (e *Entry) Debug(msg string) {
	e.Log(DebugLevel, msg)
}

func (e *Entry) Info(msg string) {
	e.Log(InfoLevel, msg)
}

func (e *Entry) Warn(msg string) {
	e.Log(WarnLevel, msg)
}

func (e *Entry) Error(msg string) {
	e.Log(ErrorLevel, msg)
}

func (e *Entry) Debugf(format string, args ...interface{}) {
	e.Debug(fmt.Sprintf(format, args...))
}

func (e *Entry) Infof(format string, args ...interface{}) {
	e.Info(fmt.Sprintf(format, args...))
}

func (e *Entry) Warnf(format string, args ...interface{}) {
	e.Warn(fmt.Sprintf(format, args...))
}

func (e *Entry) Errorf(format string, args ...interface{}) {
	e.Error(fmt.Sprintf(format, args...))
}

// IsDebug returns whether or not the debug mode is activated.
func (e *Entry) IsDebug() bool {
	return e.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}

func setupLogger(logger *logrus.Logger, lvl logrus.Level, opt Options) {
	logger.SetLevel(lvl)

	if opt.Output != nil {
		logger.SetOutput(opt.Output)
	}

	// We need to reset the hooks to avoid the accumulation of hooks for
	// the global loggers in case of several calls to `Init`.
	logger.Hooks = logrus.LevelHooks{}

	for _, hook := range opt.Hooks {
		logger.AddHook(hook)
	}

	if opt.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		formatter := &logrus.TextFormatter{}
		if lvl == logrus.DebugLevel {
			formatter.FullTimestamp = true
			formatter.TimestampFormat = time.RFC3339Nano
		}
		logger.SetFormatter(formatter)
	}
}

func getLogrusLevel(lvl Level) logrus.Level {
	var logrusLevel logrus.Level
	switch lvl {
	case DebugLevel:
		logrusLevel = logrus.DebugLevel
	case InfoLevel:
		logrusLevel = logrus.InfoLevel
	case WarnLevel:
		logrusLevel = logrus.WarnLevel
	default:
		logrusLevel = logrus.ErrorLevel
	}

	return logrusLevel
}
