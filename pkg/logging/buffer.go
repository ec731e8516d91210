package logging

import (
	"strings"
	"sync/atomic"
)

// LastLine is an io.Writer that remembers only the most recent line written
// to it. The UI status bar polls it.
type LastLine struct {
	line atomic.Value
}

var (
	// LastServerLine is the latest INFO+ server log line.
	LastServerLine = &LastLine{}
	// LastEventLine is the latest narration event line.
	LastEventLine = &LastLine{}
)

func (l *LastLine) Write(p []byte) (int, error) {
	l.line.Store(strings.TrimRight(string(p), "\r\n"))
	return len(p), nil
}

// Line returns the latest line without its trailing newline, or "" if
// nothing was written yet.
func (l *LastLine) Line() string {
	s, _ := l.line.Load().(string)
	return s
}
