package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jarvis-hub/jarvis/config"
	"github.com/jarvis-hub/jarvis/internal/application/providers"
	"github.com/jarvis-hub/jarvis/internal/infrastructure/crypto"
	"github.com/jarvis-hub/jarvis/internal/infrastructure/external/openai"
	"github.com/jarvis-hub/jarvis/internal/infrastructure/persistence/postgres"
	"github.com/jarvis-hub/jarvis/internal/infrastructure/persistence/redis"
	"github.com/jarvis-hub/jarvis/pkg/logger"
	"github.com/jarvis-hub/jarvis/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOOTSTRAP
// Общая для всех команд инициализация: конфигурация, логгер, подключения.
// ══════════════════════════════════════════════════════════════════════════════

// app - поднятая инфраструктура процесса.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	db     *postgres.Connection
	cache  *redis.Cache // nil, если Redis выключен или недоступен
	openai *openai.Client
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	opts := logger.OptionsFor(cfg.Observability.LogLevel, cfg.Observability.LogFormat, cfg.IsProduction())
	opts.Attrs = []slog.Attr{
		slog.String("service", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	}
	return cfg, logger.Setup(opts), nil
}

// connectDB открывает пул PostgreSQL, повторяя попытки, пока БД поднимается.
func connectDB(ctx context.Context, cfg *config.Config, log *slog.Logger) (*postgres.Connection, error) {
	dbCfg := postgres.DefaultConfig(cfg.Database.URL)
	dbCfg.MaxConns = int32(cfg.Database.MaxConns)
	dbCfg.MinConns = int32(cfg.Database.MinConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.QueryTimeout = cfg.Database.QueryTimeout

	log.Info("connecting to database...")
	conn, err := retry.DoWithData(ctx, startupRetrier(cfg, log, "postgres"), func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, dbCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")
	return conn, nil
}

// connectRedis подключает Redis. Недоступный Redis не останавливает бота:
// пропадают только кеш пользователей и контекст диалога.
func connectRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) *redis.Cache {
	if cfg.Redis.Disabled {
		log.Info("redis disabled, dialog context and user cache are off")
		return nil
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.URL = cfg.Redis.URL
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	log.Info("connecting to Redis...")
	cache, err := retry.DoWithData(ctx, startupRetrier(cfg, log, "redis"), func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, redisCfg)
	})
	if err != nil {
		log.Warn("failed to connect to Redis, continuing without it", "error", err)
		return nil
	}
	log.Info("Redis connection established")
	return cache
}

func newOpenAI(cfg *config.Config, log *slog.Logger) (*openai.Client, error) {
	if !cfg.OpenAI.Enabled() {
		log.Warn("OPENAI_API_KEY is not set, /add, /find and the assistant are unavailable")
		return nil, nil
	}

	aiCfg := openai.DefaultClientConfig(cfg.OpenAI.APIKey)
	aiCfg.BaseURL = cfg.OpenAI.BaseURL
	aiCfg.EmbeddingModel = cfg.OpenAI.EmbeddingModel
	aiCfg.ChatModel = cfg.OpenAI.ChatModel
	aiCfg.Temperature = cfg.OpenAI.Temperature
	aiCfg.Timeout = cfg.OpenAI.RequestTimeout
	aiCfg.Logger = logger.With(log, "openai")

	client, err := openai.NewClient(aiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return client, nil
}

func startupRetrier(cfg *config.Config, log *slog.Logger, target string) *retry.Retrier {
	return retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed", "target", target, "attempt", attempt, "retry_in", delay, "error", err)
	}, retry.WithMaxAttempts(cfg.App.StartupAttempts))
}

// bootstrap загружает конфигурацию и открывает все подключения.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if a.db, err = connectDB(ctx, cfg, log); err != nil {
		return nil, err
	}
	a.cache = connectRedis(ctx, cfg, log)
	if a.openai, err = newOpenAI(cfg, log); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		a.log.Info("closing database connection...")
		a.db.Close()
	}
}

// infra собирает providers.Infra из поднятых подключений. Отсутствующие
// компоненты остаются nil-интерфейсами, и зависящие от них маршруты
// отвечают мягкой ошибкой.
func (a *app) infra() providers.Infra {
	in := providers.Infra{
		Sessions: providers.FromConnection(a.db),
		Hasher:   crypto.NewArgon2Hasher(crypto.DefaultParams()),
		Logger:   a.log,
	}
	if a.openai != nil {
		in.Embedder = a.openai
		in.Assistant = a.openai
	}
	if a.cache != nil {
		in.Dialogs = redis.NewDialogStore(a.cache, 2*a.cfg.Telegram.HistoryLimit, redis.TTLDialog)
		in.UserCache = redis.NewUserCache(a.cache, redis.TTLUserCache)
	}
	return in
}
