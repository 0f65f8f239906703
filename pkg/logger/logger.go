// Package logger builds the process-wide slog logger and keeps the field
// names used across Jarvis consistent.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseLevel parses a string into a slog.Level. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options configures the logger.
type Options struct {
	Output io.Writer
	Level  slog.Level
	Format Format

	// AddSource adds file:line to each record.
	AddSource bool

	// Attrs are attached to every record, e.g. service and version.
	Attrs []slog.Attr
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  slog.LevelInfo,
		Format: FormatText,
	}
}

// OptionsFor picks the format from the environment when none is given:
// JSON in production, text otherwise.
func OptionsFor(level, format string, production bool) Options {
	opts := DefaultOptions()
	opts.Level = ParseLevel(level)

	switch Format(strings.ToLower(format)) {
	case FormatJSON:
		opts.Format = FormatJSON
	case FormatText:
		opts.Format = FormatText
	default:
		if production {
			opts.Format = FormatJSON
		}
	}
	opts.AddSource = opts.Level == slog.LevelDebug
	return opts
}

// New creates a logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var h slog.Handler
	if opts.Format == FormatJSON {
		h = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		h = slog.NewTextHandler(opts.Output, handlerOpts)
	}
	if len(opts.Attrs) > 0 {
		h = h.WithAttrs(opts.Attrs)
	}
	return slog.New(h)
}

// Setup creates the logger and installs it as slog.Default.
func Setup(opts Options) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}

// With returns a child logger tagged with the component name.
func With(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(ComponentKey, component)
}

// Context key for logger.
type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or returns slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// Common field keys.
const (
	ComponentKey  = "component"
	TelegramIDKey = "telegram_id"
	UserIDKey     = "user_id"
	ErrorKey      = "error"
)

// Err creates an error attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Any(ErrorKey, nil)
	}
	return slog.String(ErrorKey, err.Error())
}

// TelegramID creates a Telegram user attribute.
func TelegramID(id int64) slog.Attr { return slog.Int64(TelegramIDKey, id) }
