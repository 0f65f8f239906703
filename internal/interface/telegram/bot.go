// Package telegram connects the message router to the Telegram Bot API.
// Updates arrive over long polling, become message.Message values and are
// dispatched concurrently; replies go back through SendMessage.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/interface/telegram/middleware"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Token is the Telegram Bot API token.
	Token string

	// PollingTimeout is the long polling timeout in seconds.
	PollingTimeout int

	// Debug enables debug logging.
	Debug bool

	// Logger for structured logging.
	Logger *slog.Logger

	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// HandlerTimeout bounds a single dispatch.
	HandlerTimeout time.Duration

	// GracefulShutdownTimeout is how long Stop waits for in-flight updates.
	GracefulShutdownTimeout time.Duration

	RateLimit middleware.RateLimitConfig
	Recovery  middleware.RecoveryConfig
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig(token string) BotConfig {
	return BotConfig{
		Token:                   token,
		PollingTimeout:          30,
		Logger:                  slog.Default(),
		MaxConcurrentUpdates:    100,
		HandlerTimeout:          60 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
		RateLimit:               middleware.DefaultRateLimitConfig(),
		Recovery:                middleware.DefaultRecoveryConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher routes a converted message. *router.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *message.Message) error
}

// API is the part of *telego.Bot the adapter calls.
type API interface {
	GetMe(ctx context.Context) (*telego.User, error)
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// updateSource opens the update stream; closed or cancelled ends polling.
type updateSource func(ctx context.Context) (<-chan telego.Update, error)

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the Telegram adapter lifecycle.
type Bot struct {
	config     BotConfig
	api        API
	updates    updateSource
	dispatcher Dispatcher
	logger     *slog.Logger

	rateLimiter *middleware.RateLimiter
	recovery    *middleware.Recovery

	running   bool
	runningMu sync.Mutex
	cancel    context.CancelFunc
	updateSem chan struct{}
	wg        sync.WaitGroup

	stats *BotStats
}

// NewBot creates the bot. Nothing is contacted until Start.
func NewBot(config BotConfig, dispatcher Dispatcher) (*Bot, error) {
	if config.Token == "" {
		return nil, errors.New("telegram token is required")
	}

	client, err := telego.NewBot(config.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	timeout := config.PollingTimeout
	source := func(ctx context.Context) (<-chan telego.Update, error) {
		return client.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
			Timeout:        timeout,
			AllowedUpdates: []string{"message"},
		})
	}
	return newBot(config, client, source, dispatcher)
}

func newBot(config BotConfig, api API, source updateSource, dispatcher Dispatcher) (*Bot, error) {
	if dispatcher == nil {
		return nil, errors.New("telegram: dispatcher is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = 100
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 60 * time.Second
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = 30 * time.Second
	}
	if config.Recovery.Logger == nil {
		config.Recovery.Logger = config.Logger
	}

	return &Bot{
		config:      config,
		api:         api,
		updates:     source,
		dispatcher:  dispatcher,
		logger:      config.Logger.With("component", "telegram"),
		rateLimiter: middleware.NewRateLimiter(config.RateLimit),
		recovery:    middleware.NewRecovery(config.Recovery),
		updateSem:   make(chan struct{}, config.MaxConcurrentUpdates),
		stats:       newBotStats(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Start verifies the token and processes updates until ctx is done or Stop
// is called. In-flight updates are awaited before Start returns.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.stats.markStarted(time.Now())
	b.runningMu.Unlock()

	defer func() {
		cancel()
		b.runningMu.Lock()
		b.running = false
		b.runningMu.Unlock()
	}()

	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}
	b.logger.Info("bot verified", "id", me.ID, "username", me.Username)

	updates, err := b.updates(ctx)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	go b.rateLimiter.Run(ctx)
	b.logger.Info("long polling started", "max_concurrent", b.config.MaxConcurrentUpdates)

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				b.logger.Info("telegram updates channel closed")
				return nil
			}
			// Семафор ограничивает число одновременно обрабатываемых апдейтов.
			select {
			case b.updateSem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				defer func() { <-b.updateSem }()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// Stop ends polling and waits for in-flight updates, at most
// GracefulShutdownTimeout.
func (b *Bot) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.cancel()
	b.runningMu.Unlock()

	b.logger.Info("stopping telegram bot")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("all handlers completed gracefully")
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	case <-ctx.Done():
		b.logger.Warn("context cancelled during shutdown")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the bot is currently running.
func (b *Bot) IsRunning() bool {
	b.runningMu.Lock()
	defer b.runningMu.Unlock()
	return b.running
}

// Stats returns a snapshot of the bot counters.
func (b *Bot) Stats() StatsSnapshot {
	snap := b.stats.Snapshot()
	snap.Panics = b.recovery.Panics()
	snap.TrackedUsers = b.rateLimiter.Tracked()
	return snap
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	b.stats.received.Add(1)
	start := time.Now()

	msg, ok := ToMessage(update, b.answer)
	if !ok {
		b.stats.skipped.Add(1)
		if b.config.Debug {
			b.logger.Debug("update skipped", "update_id", update.UpdateID)
		}
		return
	}

	log := b.logger.With(
		"update_id", update.UpdateID,
		"correlation_id", CorrelationID(msg),
		"telegram_id", msg.UserID,
	)

	if allowed, retryAfter := b.rateLimiter.Check(msg.UserID); !allowed {
		b.stats.limited.Add(1)
		log.Info("rate limited", "retry_after", retryAfter)
		if err := msg.Reply(ctx, middleware.RateLimitedMessage(retryAfter)); err != nil {
			log.Warn("failed to send rate limit notice", "error", err)
		}
		return
	}

	// Остановка polling не прерывает уже начатую обработку.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.HandlerTimeout)
	defer cancel()

	panicked, err := b.recovery.Guard(msg.UserID, func() error {
		return b.dispatcher.Dispatch(hctx, msg)
	})

	switch {
	case panicked != nil:
		b.stats.errors.Add(1)
		if err := msg.Reply(hctx, b.recovery.UserMessage()); err != nil {
			log.Warn("failed to send panic notice", "error", err)
		}
	case err != nil:
		b.stats.errors.Add(1)
		log.Error("failed to handle update", "error", err, "duration", time.Since(start))
	default:
		b.stats.handled.Add(1)
		if b.config.Debug {
			log.Debug("update handled", "duration", time.Since(start))
		}
	}
}

// answer sends a reply through the Bot API.
func (b *Bot) answer(ctx context.Context, reply message.Message) error {
	_, err := b.api.SendMessage(ctx, tu.Message(tu.ID(reply.ChatID), reply.Text))
	if err != nil {
		return fmt.Errorf("telegram send message: %w", err)
	}
	b.stats.sent.Add(1)
	return nil
}
