package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes log entries to the console (stdout/stderr).
type ConsoleOutput struct {
	mu            sync.Mutex
	errorToStderr bool
	writer        io.Writer
	errorWriter   io.Writer
}

// ConsoleOutputOption configures a ConsoleOutput.
type ConsoleOutputOption func(*ConsoleOutput)

// WithErrorToStderr sends error and fatal entries to stderr.
func WithErrorToStderr() ConsoleOutputOption {
	return func(o *ConsoleOutput) {
		o.errorToStderr = true
	}
}

// WithCustomWriter uses a custom writer instead of stdout.
func WithCustomWriter(writer io.Writer) ConsoleOutputOption {
	return func(o *ConsoleOutput) {
		o.writer = writer
	}
}

// NewConsoleOutput creates a new ConsoleOutput with the given options.
func NewConsoleOutput(options ...ConsoleOutputOption) *ConsoleOutput {
	o := &ConsoleOutput{
		errorToStderr: true,
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// Write writes the log entry to the console.
func (o *ConsoleOutput) Write(entry *Entry, formattedEntry []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var writer io.Writer
	if o.writer != nil {
		writer = o.writer
	} else {
		writer = os.Stdout
	}
	if o.errorToStderr && (entry.Level == ErrorLevel || entry.Level == FatalLevel) {
		if o.errorWriter != nil {
			writer = o.errorWriter
		} else if o.writer == nil {
			writer = os.Stderr
		}
	}

	_, err := writer.Write(formattedEntry)
	return err
}

// Close implements the Output interface; a no-op for console output.
func (o *ConsoleOutput) Close() error {
	return nil
}
