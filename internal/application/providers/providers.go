// Package providers declares the dependency graph used by message handlers.
//
// Every provider is built once from Infra and is immutable afterwards. The
// "db" session is scoped: one transaction per handler call, committed when
// the handler succeeds and rolled back otherwise.
package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jarvis-hub/jarvis/internal/application/inject"
	"github.com/jarvis-hub/jarvis/internal/domain/assistant"
	"github.com/jarvis-hub/jarvis/internal/domain/link"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
	"github.com/jarvis-hub/jarvis/internal/domain/user"
	"github.com/jarvis-hub/jarvis/internal/infrastructure/persistence/postgres"
)

// Parameter names used by handlers.
const (
	ParamDB         = "db"
	ParamUserRepo   = "user_repo"
	ParamLinkRepo   = "link_repo"
	ParamHasher     = "hasher"
	ParamUsers      = "users"
	ParamEmbedder   = "embedder"
	ParamLinks      = "links"
	ParamAssistant  = "assistant"
	ParamDialogs    = "dialogs"
	ParamUserLookup = "user_lookup"
)

// Session is a database transaction. pgx.Tx satisfies it.
type Session interface {
	postgres.Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SessionFactory opens a new Session.
type SessionFactory func(ctx context.Context) (Session, error)

// UserCache caches users by Telegram ID. A miss is any error.
type UserCache interface {
	GetByTelegramID(ctx context.Context, telegramID user.TelegramID) (*user.User, error)
	Set(ctx context.Context, u *user.User) error
	Invalidate(ctx context.Context, telegramID user.TelegramID) error
}

// Infra holds the process-wide infrastructure the graph is built from.
// Embedder, Assistant, Dialogs and UserCache are optional.
type Infra struct {
	Sessions SessionFactory
	Hasher   user.PasswordHasher

	Embedder  link.Embedder
	Assistant assistant.Assistant
	Dialogs   assistant.DialogStore
	UserCache UserCache

	// NewUserRepo and NewLinkRepo default to the postgres repositories.
	NewUserRepo func(db postgres.Querier) user.Repository
	NewLinkRepo func(db postgres.Querier) link.Repository

	Logger *slog.Logger
}

// FromConnection returns a SessionFactory backed by conn transactions.
func FromConnection(conn *postgres.Connection) SessionFactory {
	return func(ctx context.Context) (Session, error) {
		return conn.BeginTx(ctx, postgres.DefaultTxOptions())
	}
}

// Graph is the set of providers handlers bind to.
type Graph struct {
	DB             *inject.Provider
	UserRepository *inject.Provider
	LinkRepository *inject.Provider
	PasswordHasher *inject.Provider
	UserService    *inject.Provider
	Embedder       *inject.Provider
	LinkService    *inject.Provider
	Assistant      *inject.Provider
	DialogStore    *inject.Provider
	UserLookup     *inject.Provider

	// Lookup is the instance UserLookup provides.
	Lookup *UserLookup
}

// New builds the provider graph.
func New(in Infra) (*Graph, error) {
	if in.Sessions == nil {
		return nil, shared.NewConfigurationError("providers.New", "no session factory")
	}
	if in.Hasher == nil {
		return nil, shared.NewConfigurationError("providers.New", "no password hasher")
	}
	if in.NewUserRepo == nil {
		in.NewUserRepo = func(db postgres.Querier) user.Repository { return postgres.NewUserRepository(db) }
	}
	if in.NewLinkRepo == nil {
		in.NewLinkRepo = func(db postgres.Querier) link.Repository { return postgres.NewLinkRepository(db) }
	}
	if in.Logger == nil {
		in.Logger = slog.Default()
	}

	g := &Graph{}

	g.DB = inject.Scoped("db_session", func(ctx context.Context, _ *inject.Deps, yield func(postgres.Querier) bool) error {
		tx, err := in.Sessions(ctx)
		if err != nil {
			return fmt.Errorf("begin session: %w", err)
		}
		if yield(tx) {
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit session: %w", err)
			}
			return nil
		}
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("rollback session: %w", err)
		}
		return nil
	})

	g.UserRepository = inject.Value("user_repository", func(_ context.Context, d *inject.Deps) (user.Repository, error) {
		db, err := inject.Get[postgres.Querier](d, ParamDB)
		if err != nil {
			return nil, err
		}
		return in.NewUserRepo(db), nil
	}, inject.Bind(ParamDB, g.DB))

	g.LinkRepository = inject.Value("link_repository", func(_ context.Context, d *inject.Deps) (link.Repository, error) {
		db, err := inject.Get[postgres.Querier](d, ParamDB)
		if err != nil {
			return nil, err
		}
		return in.NewLinkRepo(db), nil
	}, inject.Bind(ParamDB, g.DB))

	g.PasswordHasher = inject.Value("password_hasher", func(context.Context, *inject.Deps) (user.PasswordHasher, error) {
		return in.Hasher, nil
	})

	g.UserService = inject.Value("user_service", func(_ context.Context, d *inject.Deps) (*user.Service, error) {
		repo, err := inject.Get[user.Repository](d, ParamUserRepo)
		if err != nil {
			return nil, err
		}
		hasher, err := inject.Get[user.PasswordHasher](d, ParamHasher)
		if err != nil {
			return nil, err
		}
		return user.NewService(repo, hasher, in.Logger), nil
	}, inject.Bind(ParamUserRepo, g.UserRepository), inject.Bind(ParamHasher, g.PasswordHasher))

	g.Embedder = inject.Value("embedding_client", func(context.Context, *inject.Deps) (link.Embedder, error) {
		if in.Embedder == nil {
			return nil, shared.NewSoftRoutingError("embedding client is not configured")
		}
		return in.Embedder, nil
	})

	g.LinkService = inject.Value("link_service", func(_ context.Context, d *inject.Deps) (*link.Service, error) {
		repo, err := inject.Get[link.Repository](d, ParamLinkRepo)
		if err != nil {
			return nil, err
		}
		embedder, err := inject.Get[link.Embedder](d, ParamEmbedder)
		if err != nil {
			return nil, err
		}
		return link.NewService(repo, embedder), nil
	}, inject.Bind(ParamLinkRepo, g.LinkRepository), inject.Bind(ParamEmbedder, g.Embedder))

	g.Assistant = inject.Value("assistant", func(context.Context, *inject.Deps) (assistant.Assistant, error) {
		if in.Assistant == nil {
			return nil, shared.NewSoftRoutingError("assistant is not configured")
		}
		return in.Assistant, nil
	})

	g.DialogStore = inject.Value("dialog_store", func(context.Context, *inject.Deps) (assistant.DialogStore, error) {
		if in.Dialogs == nil {
			return nil, shared.NewSoftRoutingError("dialog store is not configured")
		}
		return in.Dialogs, nil
	})

	// Без привязки к db: сессия открывается только при промахе кеша.
	g.Lookup = NewUserLookup(in.Sessions, in.NewUserRepo, in.UserCache, in.Logger)
	g.UserLookup = inject.Value("user_lookup", func(context.Context, *inject.Deps) (*UserLookup, error) {
		return g.Lookup, nil
	})

	return g, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USER LOOKUP
// ══════════════════════════════════════════════════════════════════════════════

// UserLookup reads users by Telegram ID from the cache and falls back to a
// short read-only session on a miss.
type UserLookup struct {
	sessions SessionFactory
	newRepo  func(db postgres.Querier) user.Repository
	cache    UserCache
	logger   *slog.Logger
}

// NewUserLookup creates a lookup. cache may be nil.
func NewUserLookup(sessions SessionFactory, newRepo func(db postgres.Querier) user.Repository, cache UserCache, logger *slog.Logger) *UserLookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserLookup{sessions: sessions, newRepo: newRepo, cache: cache, logger: logger}
}

// ByTelegramID returns the user bound to telegramID.
func (l *UserLookup) ByTelegramID(ctx context.Context, telegramID user.TelegramID) (*user.User, error) {
	if l.cache != nil {
		if u, err := l.cache.GetByTelegramID(ctx, telegramID); err == nil {
			return u, nil
		}
	}

	u, err := l.load(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, u); err != nil {
			l.logger.Warn("failed to cache user", "telegram_id", int64(telegramID), "error", err)
		}
	}
	return u, nil
}

// Forget drops telegramID from the cache. Call it after the binding of a
// Telegram ID changes.
func (l *UserLookup) Forget(ctx context.Context, telegramID user.TelegramID) error {
	if l.cache == nil {
		return nil
	}
	if err := l.cache.Invalidate(ctx, telegramID); err != nil {
		return fmt.Errorf("invalidate cached user %d: %w", int64(telegramID), err)
	}
	return nil
}

// load reads the user in its own session. The session only reads, so it is
// always rolled back.
func (l *UserLookup) load(ctx context.Context, telegramID user.TelegramID) (*user.User, error) {
	tx, err := l.sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("failed to close lookup session", "error", err)
		}
	}()

	return l.newRepo(tx).GetByTelegramID(ctx, telegramID)
}
