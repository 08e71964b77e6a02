// Package persist provides small, shared on-disk utilities used across the
// module: currently just a file-backed logger. It intentionally does not
// grow into a generic persistence layer — this transport has no durable
// state (see DESIGN.md).
package persist

import (
	"log"
	"os"
)

// Logger wraps the standard library's log.Logger, writing timestamped lines
// to a single log file and bracketing its lifetime with STARTUP/SHUTDOWN
// markers so a truncated log file is easy to spot.
type Logger struct {
	*log.Logger
	file *os.File
}

// NewLogger returns a logger that writes only through the wrapped
// *log.Logger, with no file and no STARTUP marker. It exists mainly for tests
// and small command-line tools that don't want a log file.
func NewLogger(logger *log.Logger) *Logger {
	return &Logger{Logger: logger}
}

// NewFileLogger returns a logger that appends to (or creates) the file at
// filename, with log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile flags, and writes a
// STARTUP marker immediately.
func NewFileLogger(filename string) (*Logger, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	logger := log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	logger.Println("STARTUP: Log file opened, starting logging")
	return &Logger{Logger: logger, file: file}, nil
}

// Close logs a SHUTDOWN marker and, if this Logger owns a file, closes it.
func (l *Logger) Close() error {
	l.Println("SHUTDOWN: Logging has terminated.")
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
