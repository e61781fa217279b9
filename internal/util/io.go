package util

import (
	"io"
	"log/slog"
)

// SafeCloseFunc returns a deferred-close helper that logs close failures.
func SafeCloseFunc(c io.Closer, what string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close "+what, "error", err)
		}
	}
}
