// Package logging provides a process-wide log sink with a mutable level
// and an optional file destination, mirroring the original system's
// Logger singleton while following the teacher's convention of plain
// *log.Logger streams with level-specific prefixes rather than a
// structured-logging dependency.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level is a minimum-severity filter. Messages below the sink's current
// level are discarded.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Sink is the process-wide logger. Its zero value is not usable; obtain
// one with New or the package-level Default.
type Sink struct {
	mu       sync.Mutex
	minLevel Level
	logger   *log.Logger
	file     *os.File
}

// New returns a Sink writing to w at the given minimum level.
func New(w io.Writer, level Level) *Sink {
	return &Sink{
		minLevel: level,
		logger:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
	}
}

var (
	defaultOnce sync.Once
	defaultSink *Sink
)

// Default returns the process-wide sink, initialized on first use to log
// at Info level to stderr.
func Default() *Sink {
	defaultOnce.Do(func() {
		defaultSink = New(os.Stderr, Info)
	})
	return defaultSink
}

// SetLevel changes the minimum severity logged.
func (s *Sink) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minLevel = level
}

// SetLogFile redirects output to filename, opening it for append and
// closing any previously opened file. Passing an empty filename reverts
// to the sink's original writer is not supported; callers that want
// stderr back should construct a new Sink.
func (s *Sink) SetLogFile(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", filename, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
	}
	s.file = f
	s.logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	return nil
}

// Close releases the sink's file destination, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Sink) log(level Level, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.minLevel {
		return
	}
	s.logger.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

// Debug logs at Debug level.
func (s *Sink) Debug(format string, args ...any) { s.log(Debug, format, args...) }

// Info logs at Info level.
func (s *Sink) Info(format string, args ...any) { s.log(Info, format, args...) }

// Warn logs at Warning level.
func (s *Sink) Warn(format string, args ...any) { s.log(Warning, format, args...) }

// Err logs at Error level.
func (s *Sink) Err(format string, args ...any) { s.log(Error, format, args...) }
