package splat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for splat and the active backends.
// By default, splat produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by splat:
//   - [slog.LevelDebug]: per-stage diagnostics (intersection counts, buffer sizes)
//   - [slog.LevelInfo]: lifecycle events (backend selected, refinement summaries)
//   - [slog.LevelWarn]: non-fatal issues (ignored lens distortion, release errors)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	splat.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	splat.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	backendsMu.Lock()
	for b := range backends {
		propagateLogger(b, l)
	}
	backendsMu.Unlock()
}

// Logger returns the current logger used by splat.
// Package gpu calls this to share the same logger configuration.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// backends tracks the backends bound to live models so SetLogger reaches them.
var (
	backendsMu sync.Mutex
	backends   = map[Backend]struct{}{}
)

// trackBackend registers b for logger propagation and hands it the current
// logger. The returned func unregisters it.
func trackBackend(b Backend) func() {
	backendsMu.Lock()
	backends[b] = struct{}{}
	backendsMu.Unlock()
	propagateLogger(b, Logger())
	return func() {
		backendsMu.Lock()
		delete(backends, b)
		backendsMu.Unlock()
	}
}

// propagateLogger passes the logger to a backend if it implements
// the loggerSetter interface.
func propagateLogger(b Backend, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
