package logsvc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cs61as/coursesite/core"
)

// Entry is a log line recorded by a TestLogger.
type Entry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// TestLogger records entries in memory.
type TestLogger struct {
	mu      sync.Mutex
	entries []Entry
}

var _ core.Logger = (*TestLogger)(nil)

func NewTestLogger() *TestLogger {
	return new(TestLogger)
}

func (l *TestLogger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Args: args})
}

func (l *TestLogger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *TestLogger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *TestLogger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *TestLogger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }

func (l *TestLogger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

func (l *TestLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Has reports whether an entry of the level contains substr.
func (l *TestLogger) Has(level, substr string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}
