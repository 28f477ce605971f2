package gpu

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/splat"
)

// backendLog is the logger a Backend writes to. Until a Model hands it one
// through SetLogger it follows splat.Logger.
type backendLog struct {
	p atomic.Pointer[slog.Logger]
}

func (l *backendLog) get() *slog.Logger {
	if lg := l.p.Load(); lg != nil {
		return lg
	}
	return splat.Logger()
}

func (l *backendLog) set(lg *slog.Logger) { l.p.Store(lg) }
