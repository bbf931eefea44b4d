package internal

import (
	"io"
	"log/slog"
	"time"
)

// NewLogger builds the process logger. The level arrives already
// resolved by NewConfig. Production emits JSON with RFC3339Nano
// timestamps for log shippers; everything else gets a human-readable
// text handler.
func NewLogger(w io.Writer, env string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if env != "prod" {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
		}
		return a
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
