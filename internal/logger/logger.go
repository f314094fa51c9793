// Package logger writes progress messages to the console and a per-run log file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is the logging surface used by the sync engine.
type Logger interface {
	// Console writes to the log file, and to stdout only when verbose.
	Console(format string, args ...any)
	Info(format string, args ...any)
	// Error logs err with a message and returns err unchanged (nil stays nil).
	Error(err error, format string, args ...any) error
	Close() error
}

type fileLogger struct {
	mu      sync.Mutex
	out     io.Writer
	logFile *os.File
	verbose bool
}

// New creates a Logger writing to stdout and to logDir/drivetext_<timestamp>.log.
// If the log file cannot be created the logger falls back to stdout only.
func New(logDir string, verbose bool) Logger {
	l := &fileLogger{out: os.Stdout, verbose: verbose}
	if logDir == "" {
		return l
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating log directory: %v\n", err)
		return l
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("drivetext_%s.log", time.Now().Format("2006-01-02_15-04-05")))
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		return l
	}
	l.logFile = logFile
	return l
}

// NewWriter creates a Logger that writes only to w. Useful in tests.
func NewWriter(w io.Writer) Logger {
	return &fileLogger{out: w, verbose: true}
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return &fileLogger{out: io.Discard}
}

func (l *fileLogger) writeToLog(message string) {
	if l.logFile == nil {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(l.logFile, "[%s] %s\n", timestamp, message); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to log file: %v\n", err)
	}
}

func (l *fileLogger) Console(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.verbose {
		fmt.Fprintln(l.out, message)
	}
	l.writeToLog(message)
}

func (l *fileLogger) Info(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, message)
	l.writeToLog(message)
}

func (l *fileLogger) Error(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf("%s: %v", fmt.Sprintf(format, args...), err)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, message)
	l.writeToLog(message)
	return err
}

func (l *fileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	return err
}
