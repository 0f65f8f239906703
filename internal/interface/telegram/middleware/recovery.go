package middleware

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// Паника в обработчике не должна останавливать бота: она логируется со
// стеком, а пользователь получает короткое сообщение об ошибке.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig holds configuration for the recovery guard.
type RecoveryConfig struct {
	// UserErrorMessage is sent to the user when a panic is recovered.
	UserErrorMessage string

	// EnableStackTrace captures the stack of the panicking goroutine.
	EnableStackTrace bool

	Logger *slog.Logger
}

// DefaultRecoveryConfig returns sensible defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		UserErrorMessage: "Something went wrong on my side. Please try again in a minute.",
		EnableStackTrace: true,
		Logger:           slog.Default(),
	}
}

// PanicInfo contains information about a recovered panic.
type PanicInfo struct {
	Value      any
	StackTrace string
	TelegramID int64
	Timestamp  time.Time
}

// Error implements error so a PanicInfo can be returned as one.
func (p *PanicInfo) Error() string {
	return fmt.Sprintf("panic recovered (telegram_id=%d): %v", p.TelegramID, p.Value)
}

// String returns a multi-line report with the stack trace.
func (p *PanicInfo) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "=== PANIC RECOVERED ===\n")
	fmt.Fprintf(&buf, "Time:       %s\n", p.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&buf, "TelegramID: %d\n", p.TelegramID)
	fmt.Fprintf(&buf, "Value:      %v\n", p.Value)
	if p.StackTrace != "" {
		buf.WriteString("\nStack Trace:\n")
		buf.WriteString(p.StackTrace)
	}
	return buf.String()
}

// Recovery converts handler panics into PanicInfo.
type Recovery struct {
	config RecoveryConfig
	panics atomic.Int64
}

// NewRecovery creates a recovery guard.
func NewRecovery(config RecoveryConfig) *Recovery {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.UserErrorMessage == "" {
		config.UserErrorMessage = DefaultRecoveryConfig().UserErrorMessage
	}
	return &Recovery{config: config}
}

// Guard runs fn. A panic is returned as *PanicInfo instead of propagating;
// otherwise fn's error is returned as is.
func (r *Recovery) Guard(telegramID int64, fn func() error) (panicked *PanicInfo, err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		r.panics.Add(1)

		info := &PanicInfo{
			Value:      rec,
			TelegramID: telegramID,
			Timestamp:  time.Now(),
		}
		if r.config.EnableStackTrace {
			info.StackTrace = string(debug.Stack())
		}

		r.config.Logger.Error("panic recovered in update handler",
			"telegram_id", telegramID,
			"panic", fmt.Sprint(rec),
			"stack", info.StackTrace,
		)

		panicked, err = info, info
	}()

	return nil, fn()
}

// UserMessage is the text sent to the user after a panic.
func (r *Recovery) UserMessage() string {
	return r.config.UserErrorMessage
}

// Panics returns the number of recovered panics.
func (r *Recovery) Panics() int64 {
	return r.panics.Load()
}
