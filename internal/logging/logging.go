// Package logging configures the structured application logger.
package logging

import (
	"io"
	"log/slog"
	"time"
)

// New returns a JSON logger writing one object per line to w.
// The time attribute is emitted as "ts" in loc, matching the HTTP request log.
func New(w io.Writer, debug bool, loc *time.Location) *slog.Logger {
	if loc == nil {
		loc = time.UTC
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.String("ts", a.Value.Time().In(loc).Format(time.RFC3339Nano))
			case slog.LevelKey:
				return slog.String(slog.LevelKey, levelName(a.Value.Any()))
			}
			return a
		},
	})
	return slog.New(h).With("service", "filescdn")
}

func levelName(v any) string {
	l, ok := v.(slog.Level)
	if !ok {
		return "info"
	}
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
