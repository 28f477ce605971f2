package scene

import (
	"log/slog"

	"github.com/gogpu/splat"
)

// logger returns the logger configured through splat.SetLogger.
func logger() *slog.Logger { return splat.Logger() }
