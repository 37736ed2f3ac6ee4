package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger implements Logger on zerolog. Output is one JSON object per
// line, or colored console lines when pretty is set.
type ZeroLogger struct {
	zlog *zerolog.Logger
}

var _ Logger = (*ZeroLogger)(nil)

var callerFormatOnce sync.Once

// New logs to stdout. An unknown level falls back to info.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(out io.Writer, level string, pretty bool) *ZeroLogger {
	// caller renders as "dir/file.go:line"; zerolog keeps this hook global
	callerFormatOnce.Do(func() {
		zerolog.CallerMarshalFunc = shortCaller
	})

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}

	l := zerolog.New(out).
		Level(zLevel).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()
	return &ZeroLogger{zlog: &l}
}

func shortCaller(_ uintptr, file string, line int) string {
	name := filepath.Base(file)
	if dir := filepath.Base(filepath.Dir(file)); dir != "." && dir != "" {
		name = dir + "/" + name
	}
	return name + ":" + strconv.Itoa(line)
}

func (l *ZeroLogger) Debug() LogEvent { return &event{e: l.zlog.Debug()} }
func (l *ZeroLogger) Info() LogEvent  { return &event{e: l.zlog.Info()} }
func (l *ZeroLogger) Warn() LogEvent  { return &event{e: l.zlog.Warn()} }
func (l *ZeroLogger) Error() LogEvent { return &event{e: l.zlog.Error()} }

// WithContext implements Logger.
func (l *ZeroLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	zl := zerolog.Ctx(ctx)
	if zl == nil || zl.GetLevel() == zerolog.Disabled {
		return l
	}
	return &ZeroLogger{zlog: zl}
}

// event wraps *zerolog.Event. A nil e (level filtered out) is safe: zerolog
// methods are no-ops on nil events.
type event struct {
	e *zerolog.Event
}

func (ev *event) Str(key, value string) LogEvent {
	ev.e = ev.e.Str(key, value)
	return ev
}

func (ev *event) Int(key string, value int) LogEvent {
	ev.e = ev.e.Int(key, value)
	return ev
}

func (ev *event) Int64(key string, value int64) LogEvent {
	ev.e = ev.e.Int64(key, value)
	return ev
}

func (ev *event) Bool(key string, value bool) LogEvent {
	ev.e = ev.e.Bool(key, value)
	return ev
}

func (ev *event) Err(err error) LogEvent {
	ev.e = ev.e.Err(err)
	return ev
}

func (ev *event) Msg(msg string) {
	ev.e.Msg(msg)
}
