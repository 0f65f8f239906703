package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jarvis-hub/jarvis/internal/application/providers"
	"github.com/jarvis-hub/jarvis/internal/application/routes"
	"github.com/jarvis-hub/jarvis/internal/infrastructure/persistence/postgres"
	"github.com/jarvis-hub/jarvis/internal/infrastructure/telemetry"
	httpserver "github.com/jarvis-hub/jarvis/internal/interface/http"
	"github.com/jarvis-hub/jarvis/internal/interface/http/handlers"
	"github.com/jarvis-hub/jarvis/internal/interface/telegram"
	"github.com/jarvis-hub/jarvis/internal/interface/telegram/middleware"
	"github.com/jarvis-hub/jarvis/pkg/logger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the HTTP health server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ПОДКЛЮЧЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, log := a.cfg, a.log
	log.Info("starting Jarvis",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
		"token_source", cfg.Telegram.TokenSource,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(a.db).Up(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed", "applied", applied)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ТРАССИРОВКА
	// ─────────────────────────────────────────────────────────────────────────
	tp, shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Observability.TracingEnabled,
		Endpoint:       cfg.Observability.TracingEndpoint,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    string(cfg.App.Environment),
		SampleRatio:    cfg.Observability.TracingSampleRatio,
		Logger:         logger.With(log, "telemetry"),
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПРОВАЙДЕРЫ И МАРШРУТЫ
	// ─────────────────────────────────────────────────────────────────────────
	graph, err := providers.New(a.infra())
	if err != nil {
		return fmt.Errorf("failed to build providers: %w", err)
	}

	root, err := routes.Build(graph, routes.Config{
		Logger:       logger.With(log, "router"),
		Debug:        cfg.App.Debug,
		Tracer:       tp.Tracer("github.com/jarvis-hub/jarvis/router"),
		HistoryLimit: cfg.Telegram.HistoryLimit,
		Features:     cfg.Features,
	})
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. TELEGRAM
	// ─────────────────────────────────────────────────────────────────────────
	botCfg := telegram.DefaultBotConfig(cfg.Telegram.Token)
	botCfg.PollingTimeout = int(cfg.Telegram.PollingTimeout.Seconds())
	botCfg.Debug = cfg.App.Debug
	botCfg.Logger = log
	botCfg.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	botCfg.HandlerTimeout = cfg.Telegram.HandlerTimeout
	botCfg.GracefulShutdownTimeout = cfg.App.ShutdownTimeout
	botCfg.RateLimit.RequestsPerMinute = cfg.Telegram.UserRateLimit
	botCfg.RateLimit.BurstSize = cfg.Telegram.UserBurst
	botCfg.RateLimit.WhitelistedUsers = whitelist(cfg.Telegram.AdminIDs)
	botCfg.Recovery = middleware.DefaultRecoveryConfig()
	botCfg.Recovery.EnableStackTrace = !cfg.IsProduction() || cfg.App.Debug

	bot, err := telegram.NewBot(botCfg, root)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	readiness := handlers.NewCompositeHealthChecker(cfg.App.Version)
	readiness.AddCheck("database", handlers.PingCheck(a.db))
	if a.cache != nil {
		readiness.AddCheck("redis", handlers.PingCheck(a.cache))
	}
	liveness := handlers.NewCompositeHealthChecker(cfg.App.Version)
	liveness.AddCheck("telegram", func(context.Context) error {
		if !bot.IsRunning() {
			return errors.New("bot is not polling")
		}
		return nil
	})

	stats := map[string]httpserver.StatsFunc{
		"bot":      func(context.Context) any { return bot.Stats() },
		"router":   func(context.Context) any { return root.Stats() },
		"features": func(context.Context) any { return cfg.Features.Snapshot() },
		"database": func(ctx context.Context) any { return databaseStats(ctx, a.db) },
	}
	if a.openai != nil {
		stats["openai"] = func(context.Context) any { return map[string]string{"breaker": a.openai.BreakerState()} }
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Liveness:  liveness,
		Readiness: readiness,
		Stats:     stats,
		Logger:    log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК
	// Бот и HTTP живут в одной группе: сбой любого останавливает оба.
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := bot.Start(gctx); err != nil {
			return fmt.Errorf("telegram bot: %w", err)
		}
		// Закрытый канал обновлений без отмены - тоже повод остановиться.
		if gctx.Err() == nil {
			return errors.New("telegram bot stopped unexpectedly")
		}
		return nil
	})
	if cfg.HTTP.Enabled {
		g.Go(func() error {
			if err := server.Start(gctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	log.Info("Jarvis is running", "http_address", httpCfg.Address(), "http_enabled", cfg.HTTP.Enabled)

	err = g.Wait()
	log.Info("Jarvis stopped", "stats", bot.Stats(), "router", root.Stats())
	return err
}

// databaseStats - состояние пула PostgreSQL для /stats.
func databaseStats(ctx context.Context, db *postgres.Connection) any {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status, err := db.Health(ctx)
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	return status
}

func whitelist(ids []int64) map[int64]bool {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
