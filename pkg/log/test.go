package log

import "sync"

// TestLogger is a Logger that records entries for assertions in tests.
type TestLogger struct {
	mu      sync.Mutex
	level   Level
	fields  Fields
	entries *[]Entry
}

// NewTestLogger creates a new test logger.
func NewTestLogger() *TestLogger {
	entries := make([]Entry, 0)
	return &TestLogger{
		level:   DebugLevel,
		fields:  Fields{},
		entries: &entries,
	}
}

// Entries returns a copy of the recorded entries.
func (l *TestLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(*l.entries))
	copy(out, *l.entries)
	return out
}

func (l *TestLogger) record(level Level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{Level: level, Message: msg, Fields: Fields{}}
	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	for _, field := range fields {
		entry.Fields[field.Key] = field.Value
	}
	*l.entries = append(*l.entries, entry)
}

func (l *TestLogger) Debug(msg string, fields ...Field) { l.record(DebugLevel, msg, fields) }
func (l *TestLogger) Info(msg string, fields ...Field)  { l.record(InfoLevel, msg, fields) }
func (l *TestLogger) Warn(msg string, fields ...Field)  { l.record(WarnLevel, msg, fields) }
func (l *TestLogger) Error(msg string, fields ...Field) { l.record(ErrorLevel, msg, fields) }
func (l *TestLogger) Fatal(msg string, fields ...Field) { l.record(FatalLevel, msg, fields) }

func (l *TestLogger) With(fields ...Field) Logger {
	child := &TestLogger{level: l.level, fields: Fields{}, entries: l.entries}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for _, field := range fields {
		child.fields[field.Key] = field.Value
	}
	return child
}

func (l *TestLogger) WithComponent(component string) Logger {
	return l.With(Str(ComponentKey, component))
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.With(Err(err))
}

func (l *TestLogger) SetLevel(level Level) { l.level = level }
func (l *TestLogger) GetLevel() Level      { return l.level }
