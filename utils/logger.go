package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger provides logging functionality
// A nil *Logger discards everything, so components can be built without one.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	echo   bool
}

// NewLogger creates a logger that appends to logPath and echoes to stdout
func NewLogger(logPath string) (*Logger, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		file:   file,
		logger: log.New(file, "", log.LstdFlags),
		echo:   true,
	}, nil
}

// NewLoggerWriter creates a logger that only writes to w
func NewLoggerWriter(w io.Writer) *Logger {
	return &Logger{logger: log.New(w, "", log.LstdFlags)}
}

// SetEcho toggles copying log lines to stdout
func (l *Logger) SetEcho(echo bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.echo = echo
	l.mu.Unlock()
}

// Close closes the logger
func (l *Logger) Close() error {
	if l != nil && l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) write(level, format string, v ...interface{}) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf("["+level+"] "+format, v...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Println(msg)
	if l.echo {
		fmt.Println(msg)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.write("INFO", format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.write("ERROR", format, v...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.write("DEBUG", format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.write("WARN", format, v...)
}

// GetLogPath returns the default log path
func GetLogPath() string {
	return filepath.Join(".", "logs", fmt.Sprintf("report-%s.log", time.Now().Format("2006-01-02")))
}
