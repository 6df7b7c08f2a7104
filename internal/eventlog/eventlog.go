package eventlog

import (
	"log"
	"sync"
)

// DefaultCapacity is the number of lines the display overlay shows.
const DefaultCapacity = 5

// Log is a bounded ordered log of status lines, newest last.
type Log struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	logger   *log.Logger
}

// New creates a Log holding at most capacity lines.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		lines:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// SetLogger mirrors appended lines to logger for operator visibility.
func (l *Log) SetLogger(logger *log.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = logger
}

// Append adds a line, dropping it if identical to the most recent entry.
func (l *Log) Append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.lines); n > 0 && l.lines[n-1] == line {
		return
	}

	l.lines = append(l.lines, line)
	if len(l.lines) > l.capacity {
		l.lines = l.lines[len(l.lines)-l.capacity:]
	}

	if l.logger != nil {
		l.logger.Print(line)
	}
}

// Lines returns a copy of the current lines, oldest first.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
