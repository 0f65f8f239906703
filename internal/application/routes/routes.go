// Package routes собирает дерево маршрутов бота: middleware (авторизация,
// контекст диалога), команды работы со ссылками и дочерний роутер ассистента.
package routes

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/jarvis-hub/jarvis/config"
	"github.com/jarvis-hub/jarvis/internal/application/inject"
	"github.com/jarvis-hub/jarvis/internal/application/providers"
	"github.com/jarvis-hub/jarvis/internal/application/router"
	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
	"github.com/jarvis-hub/jarvis/internal/domain/user"
)

// KeyUser - ключ msg.Data, под которым auth кладёт *user.User.
const KeyUser = "user"

// Config - настройки дерева маршрутов.
type Config struct {
	Logger *slog.Logger
	Debug  bool
	Tracer trace.Tracer

	// HistoryLimit - сколько реплик диалога подгружать в msg.Context.
	HistoryLimit int

	// Features выключает ассистента и контекст диалога; nil - всё включено.
	Features Features
}

// Features - переключатели функций с раскаткой по пользователям.
// *config.FeatureFlags удовлетворяет интерфейсу.
type Features interface {
	IsEnabled(feature string, userID int64, admin bool) bool
}

// Build собирает и замораживает корневой роутер.
func Build(g *providers.Graph, cfg Config) (*router.Router, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}

	newRouter := func(name string) *router.Router {
		rc := router.DefaultConfig(name)
		rc.Logger = cfg.Logger
		rc.Debug = cfg.Debug
		rc.Tracer = cfg.Tracer
		return router.New(rc)
	}

	middleware := newRouter("middleware")
	main := newRouter("jarvis")
	chat := newRouter("assistant")

	steps := []func() error{
		// Порядок важен: auth должен отработать раньше контекста диалога.
		func() error {
			return middleware.Register("auth", router.Any, authenticate,
				inject.Bind(providers.ParamUserLookup, g.UserLookup))
		},
		func() error {
			return middleware.Register("dialog-context", enabled(cfg.Features, config.FeatureDialogContext), loadDialog(cfg.HistoryLimit),
				inject.Bind(providers.ParamDialogs, g.DialogStore))
		},

		func() error { return main.Register("start", router.Command("start"), start) },
		func() error { return main.Register("help", router.Command("help"), help) },
		func() error {
			return main.Register("hello", router.TextEquals("hello"), hello,
				inject.Bind(providers.ParamUsers, g.UserService))
		},
		func() error { return main.Register("test", router.TextEquals("test"), echoTest) },
		func() error {
			return main.Register("add", router.Command("add"), addLink,
				inject.Bind(providers.ParamLinks, g.LinkService))
		},
		func() error {
			return main.Register("find", router.Command("find"), findLinks,
				inject.Bind(providers.ParamLinks, g.LinkService))
		},
		func() error {
			return main.Register("list", router.Command("list"), listLinks,
				inject.Bind(providers.ParamLinks, g.LinkService))
		},
		func() error {
			return main.Register("edit", router.Command("edit"), editLink,
				inject.Bind(providers.ParamLinks, g.LinkService))
		},
		func() error {
			return main.Register("delete", router.Command("delete"), deleteLink,
				inject.Bind(providers.ParamLinks, g.LinkService))
		},

		func() error {
			return chat.Register("conversation", enabled(cfg.Features, config.FeatureAssistant), converse(cfg.Logger),
				inject.Bind(providers.ParamAssistant, g.Assistant),
				inject.Bind(providers.ParamDialogs, g.DialogStore))
		},

		func() error { return main.IncludeMiddleware(middleware) },
		func() error { return main.IncludeRouter(chat) },
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("build routes: %w", err)
		}
	}

	main.Freeze()
	return main, nil
}

// currentUser достаёт пользователя, положенного auth.
func currentUser(msg *message.Message) (*user.User, error) {
	u, ok := message.Value[*user.User](msg, KeyUser)
	if !ok || u == nil {
		return nil, shared.ErrUnknownTelegramUser
	}
	return u, nil
}

// enabled пропускает сообщение, если функция включена для его автора.
// Фильтр проверяется после auth, поэтому пользователь уже известен.
func enabled(features Features, feature string) router.Filter {
	if features == nil {
		return router.Any
	}
	return func(msg *message.Message) bool {
		u, _ := message.Value[*user.User](msg, KeyUser)
		return features.IsEnabled(feature, msg.UserID, u.IsAdmin())
	}
}

// reply - msg.Reply с оборачиванием ошибки транспорта.
func reply(ctx context.Context, msg *message.Message, text string) error {
	if err := msg.Reply(ctx, text); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
