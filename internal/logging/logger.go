// Package logging defines the structured-logging contract the service is
// built against. Everything takes the interface; the only implementation
// wraps slog, and tests hand out a discard-backed instance.
package logging

import "context"

// Logger is a context-aware, structured logger. Variadic args are
// key-value pairs:
//
//	log.Info(ctx, "qr generated", "identity", id)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that stamps the given key-value pairs
	// on every line, used to tag components ("module", "session_manager").
	With(args ...any) Logger
}
