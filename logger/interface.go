// Package logger is the structured logging facade shared by the server and
// the demo command. ZeroLogger backs it with zerolog.
package logger

import "context"

// Logger hands out leveled events.
type Logger interface {
	Debug() LogEvent
	Info() LogEvent
	Warn() LogEvent
	Error() LogEvent

	// WithContext returns the logger zerolog attached to ctx, falling back
	// to the receiver.
	WithContext(ctx context.Context) Logger
}

// LogEvent collects fields until Msg writes it. Events below the logger's
// level are discarded at Msg.
type LogEvent interface {
	Str(key, value string) LogEvent
	Int(key string, value int) LogEvent
	Int64(key string, value int64) LogEvent
	Bool(key string, value bool) LogEvent
	Err(err error) LogEvent
	Msg(msg string)
}
