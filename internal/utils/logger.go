// Package utils contains the file logger and filesystem path helpers used
// throughout pvebot.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Logger writes timestamped lines to a log file, falling back to stderr when
// no file is available.
type Logger struct {
	file *os.File
}

// NewLogger opens the given log file for appending. If the file cannot be
// opened, the returned logger writes to stderr instead.
func NewLogger(logFile string) *Logger {
	l := &Logger{}
	if logFile == "" {
		return l
	}
	_ = os.MkdirAll(filepath.Dir(logFile), 0o755)
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvebot: cannot open log file %s: %v\n", logFile, err)
		return l
	}
	l.file = f
	return l
}

// Write appends a timestamped message to the log.
func (l *Logger) Write(message string) {
	line := fmt.Sprintf("%s: %s\n", time.Now().Format("2006-01-02 15:04:05"), message)
	if l == nil || l.file == nil {
		fmt.Fprint(os.Stderr, line)
		return
	}
	l.file.WriteString(line)
	l.file.Sync()
}

// Writef formats and appends a timestamped message to the log.
func (l *Logger) Writef(format string, args ...any) {
	l.Write(fmt.Sprintf(format, args...))
}

// Close flushes and closes the underlying file handle.
func (l *Logger) Close() {
	if l != nil && l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
