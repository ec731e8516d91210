package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tourguide/pkg/config"
	"tourguide/pkg/model"
)

// RequestLogger receives one line per HTTP request. Init points it at the
// requests log.
var RequestLogger = slog.Default()

// Init opens the server and request logs, makes the server log the slog
// default and points LogEvent at the events log. Each log from the previous
// run is kept as <path>.old. The returned func closes the files.
func Init(cfg *config.LogConfig) (func(), error) {
	for _, p := range []string{cfg.Server.Path, cfg.Requests.Path, cfg.Events.Path} {
		keepPrevious(p)
	}
	events.setPath(cfg.Events.Path)
	EnableTrace = isTrace(cfg.Server.Level)

	serverFile, err := openLog(cfg.Server.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server log: %w", err)
	}
	requestFile, err := openLog(cfg.Requests.Path)
	if err != nil {
		serverFile.Close()
		return nil, fmt.Errorf("failed to open requests log: %w", err)
	}

	level := ParseLevel(cfg.Server.Level)
	slog.SetDefault(slog.New(fanout{
		textHandler(serverFile, level, level == slog.LevelDebug),
		// Console and the UI status line stay at INFO+ even when the file is DEBUG.
		textHandler(os.Stdout, max(level, slog.LevelInfo), false),
		textHandler(LastServerLine, slog.LevelInfo, false),
	}))
	RequestLogger = slog.New(textHandler(requestFile, ParseLevel(cfg.Requests.Level), false))

	return func() {
		serverFile.Close()
		requestFile.Close()
	}, nil
}

// ParseLevel maps a config level name to a slog level. Unknown names mean INFO.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG", LevelTrace:
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func textHandler(w io.Writer, level slog.Level, source bool) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: source})
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// keepPrevious moves an existing log at path to path+".old", replacing any
// older copy.
func keepPrevious(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	old := path + ".old"
	_ = os.Remove(old)
	_ = os.Rename(path, old)
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// nolint:gocritic // slog.Handler takes the record by value
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// eventLog appends narration events to a file, one line each.
type eventLog struct {
	mu   sync.Mutex
	path string
}

var events eventLog

func (l *eventLog) setPath(path string) {
	l.mu.Lock()
	l.path = path
	l.mu.Unlock()
}

func (l *eventLog) append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.path == "" {
		return nil
	}
	f, err := openLog(l.path)
	if err != nil {
		return err
	}
	_, err = f.WriteString(line + "\n")
	return errors.Join(err, f.Close())
}

// SetEventLogPath points LogEvent at path. An empty path disables the file.
func SetEventLogPath(path string) {
	events.setPath(path)
}

// LogEvent writes event to the events log and makes it the latest event
// shown by the UI.
func LogEvent(event *model.NarrationEvent) {
	line := FormatEvent(event)
	if err := events.append(line); err != nil {
		slog.Error("Event log write failed", "error", err)
		return
	}
	_, _ = LastEventLine.Write([]byte(line))
}

// FormatEvent renders an event as a single log line:
// [2006-01-02 15:04:05] [type] Title (poi-id) - Summary
func FormatEvent(event *model.NarrationEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", ts.Format("2006-01-02 15:04:05"), event.Type, event.Title)
	if event.POIID != "" && event.POIID != event.Title {
		b.WriteString(" (" + event.POIID + ")")
	}
	if event.Manual {
		b.WriteString(" [manual]")
	}
	if event.Summary != "" {
		b.WriteString(" - " + event.Summary)
	}
	return b.String()
}
