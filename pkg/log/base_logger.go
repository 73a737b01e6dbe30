package log

import (
	"os"
	"time"
)

// baseLogger implements the Logger interface.
type baseLogger struct {
	level     Level
	fields    Fields
	formatter Formatter
	outputs   []Output
}

// Debug logs a message at the debug level.
func (l *baseLogger) Debug(msg string, fields ...Field) {
	if l.level <= DebugLevel {
		l.write(DebugLevel, msg, fields)
	}
}

// Info logs a message at the info level.
func (l *baseLogger) Info(msg string, fields ...Field) {
	if l.level <= InfoLevel {
		l.write(InfoLevel, msg, fields)
	}
}

// Warn logs a message at the warn level.
func (l *baseLogger) Warn(msg string, fields ...Field) {
	if l.level <= WarnLevel {
		l.write(WarnLevel, msg, fields)
	}
}

// Error logs a message at the error level.
func (l *baseLogger) Error(msg string, fields ...Field) {
	if l.level <= ErrorLevel {
		l.write(ErrorLevel, msg, fields)
	}
}

// Fatal logs a message at the fatal level and exits.
func (l *baseLogger) Fatal(msg string, fields ...Field) {
	l.write(FatalLevel, msg, fields)
	os.Exit(1)
}

// With returns a new logger with the fields added to it.
func (l *baseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}

	newLogger := &baseLogger{
		level:     l.level,
		formatter: l.formatter,
		outputs:   l.outputs,
		fields:    Fields{},
	}
	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	for _, field := range fields {
		newLogger.fields[field.Key] = field.Value
	}
	return newLogger
}

// WithComponent returns a new logger with the component field added.
func (l *baseLogger) WithComponent(component string) Logger {
	return l.With(Str(ComponentKey, component))
}

// WithError returns a new logger with the error added as a field.
func (l *baseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.With(Err(err))
}

// SetLevel sets the minimum log level.
func (l *baseLogger) SetLevel(level Level) {
	l.level = level
}

// GetLevel returns the current minimum log level.
func (l *baseLogger) GetLevel() Level {
	return l.level
}

func (l *baseLogger) write(level Level, msg string, fields []Field) {
	entry := &Entry{
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
		Fields:    Fields{},
	}
	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	for _, field := range fields {
		entry.Fields[field.Key] = field.Value
	}

	formatted, err := l.formatter.Format(entry)
	if err != nil {
		return
	}
	for _, output := range l.outputs {
		// Output errors are swallowed; logging must never take the
		// process down.
		_ = output.Write(entry, formatted)
	}
}
