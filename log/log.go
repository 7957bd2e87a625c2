// Package log defines the logging contract used across authkit and an
// slog-backed implementation. Components take a Logger and default to Nop,
// so the library stays silent unless the host application wires one in.
package log

import "context"

// Logger is the minimal structured logging interface authkit components use.
type Logger interface {
	// With returns a Logger that includes the given attributes on every record.
	With(args ...any) Logger

	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

var _ Logger = nopLogger{}

func (nopLogger) With(...any) Logger { return nopLogger{} }
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) DebugContext(context.Context, string, ...any) {}
func (nopLogger) InfoContext(context.Context, string, ...any) {}
func (nopLogger) WarnContext(context.Context, string, ...any) {}
func (nopLogger) ErrorContext(context.Context, string, ...any) {}
