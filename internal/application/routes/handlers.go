package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jarvis-hub/jarvis/internal/application/inject"
	"github.com/jarvis-hub/jarvis/internal/application/providers"
	"github.com/jarvis-hub/jarvis/internal/application/router"
	"github.com/jarvis-hub/jarvis/internal/domain/assistant"
	"github.com/jarvis-hub/jarvis/internal/domain/link"
	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
	"github.com/jarvis-hub/jarvis/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GREETINGS
// ══════════════════════════════════════════════════════════════════════════════

func start(ctx context.Context, msg *message.Message, _ *inject.Deps) error {
	u, err := currentUser(msg)
	if err != nil {
		return err
	}
	return reply(ctx, msg, fmt.Sprintf(TextStart, u.Username))
}

func help(ctx context.Context, msg *message.Message, _ *inject.Deps) error {
	return reply(ctx, msg, TextHelp)
}

// hello перечитывает пользователя через сервис, а не из msg.Data.
func hello(ctx context.Context, msg *message.Message, deps *inject.Deps) error {
	svc, err := inject.Get[*user.Service](deps, providers.ParamUsers)
	if err != nil {
		return err
	}
	current, err := currentUser(msg)
	if err != nil {
		return err
	}

	u, err := svc.GetByID(ctx, current.ID)
	if err != nil {
		return err
	}
	return reply(ctx, msg, fmt.Sprintf("Hello, %s!", u.Username))
}

func echoTest(ctx context.Context, msg *message.Message, _ *inject.Deps) error {
	return reply(ctx, msg, "Test passed.")
}

// ══════════════════════════════════════════════════════════════════════════════
// LINKS
// Ошибки ввода (плохой URL, пустой запрос, дубликат) - это ответ
// пользователю, а не сбой обработки.
// ══════════════════════════════════════════════════════════════════════════════

func linkContext(msg *message.Message, deps *inject.Deps) (*link.Service, *user.User, error) {
	svc, err := inject.Get[*link.Service](deps, providers.ParamLinks)
	if err != nil {
		return nil, nil, err
	}
	u, err := currentUser(msg)
	if err != nil {
		return nil, nil, err
	}
	return svc, u, nil
}

func addLink(ctx context.Context, msg *message.Message, deps *inject.Deps) error {
	svc, u, err := linkContext(msg, deps)
	if err != nil {
		return err
	}

	rawURL, description, _ := strings.Cut(router.CommandArgs(msg), " ")
	if rawURL == "" {
		return reply(ctx, msg, TextAddUsage)
	}

	saved, err := svc.Append(ctx, u.ID, link.AppendParams{URL: rawURL, Description: description})
	switch {
	case errors.Is(err, shared.ErrInvalidURL):
		return reply(ctx, msg, TextInvalidURL)
	case errors.Is(err, shared.ErrLinkAlreadyExists):
		return reply(ctx, msg, TextDuplicate)
	case err != nil:
		return fmt.Errorf("append link: %w", err)
	}
	return reply(ctx, msg, fmt.Sprintf(TextSaved, saved.ID, saved.URL))
}

func findLinks(ctx context.Context, msg *message.Message, deps *inject.Deps) error {
	svc, u, err := linkContext(msg, deps)
	if err != nil {
		return err
	}

	found, err := svc.Find(ctx, u.ID, router.CommandArgs(msg))
	switch {
	case errors.Is(err, shared.ErrEmptyQuery):
		return reply(ctx, msg, TextFindUsage)
	case errors.Is(err, shared.ErrNoLinksFound):
		return reply(ctx, msg, TextNothing)
	case err != nil:
		return fmt.Errorf("find links: %w", err)
	}
	return reply(ctx, msg, formatLinks(fmt.Sprintf("Found %d:", len(found)), found))
}

func listLinks(ctx context.Context, msg *message.Message, deps *inject.Deps) error {
	svc, u, err := linkContext(msg, deps)
	if err != nil {
		return err
	}

	links, err := svc.List(ctx, u.ID, link.SearchLimit)
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}
	if len(links) == 0 {
		return reply(ctx, msg, TextNoLinks)
	}
	return reply(ctx, msg, formatRecent(links, time.Now()))
}

// editLink меняет описание ссылки; вектор пересчитывает сервис.
func editLink(ctx context.Context, msg *message.Message, deps *inject.Deps) error {
	svc, u, err := linkContext(msg, deps)
	if err != nil {
		return err
	}

	rawID, description, _ := strings.Cut(router.CommandArgs(msg), " ")
	id, err := strconv.ParseInt(rawID, 10, 64)
	description = strings.TrimSpace(description)
	if err != nil || id <= 0 || description == "" {
		return reply(ctx, msg, TextEditUsage)
	}

	_, err = svc.Update(ctx, u.ID, id, link.Patch{Description: &description})
	switch {
	case errors.Is(err, shared.ErrLinkNotFound):
		return reply(ctx, msg, fmt.Sprintf(TextLinkNotFound, id))
	case err != nil:
		return fmt.Errorf("update link: %w", err)
	}
	return reply(ctx, msg, fmt.Sprintf(TextUpdated, id))
}

func deleteLink(ctx context.Context, msg *message.Message, deps *inject.Deps) error {
	svc, u, err := linkContext(msg, deps)
	if err != nil {
		return err
	}

	id, err := strconv.ParseInt(router.CommandArgs(msg), 10, 64)
	if err != nil || id <= 0 {
		return reply(ctx, msg, TextDeleteUsage)
	}

	removed, err := svc.Remove(ctx, u.ID, id)
	if err != nil {
		return fmt.Errorf("remove link: %w", err)
	}
	if !removed {
		return reply(ctx, msg, fmt.Sprintf(TextLinkNotFound, id))
	}
	return reply(ctx, msg, fmt.Sprintf(TextDeleted, id))
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSISTANT
// ══════════════════════════════════════════════════════════════════════════════

func converse(logger *slog.Logger) inject.HandlerFunc {
	return func(ctx context.Context, msg *message.Message, deps *inject.Deps) error {
		bot, err := inject.Get[assistant.Assistant](deps, providers.ParamAssistant)
		if err != nil {
			return err
		}
		store, err := inject.Get[assistant.DialogStore](deps, providers.ParamDialogs)
		if err != nil {
			return err
		}

		answer, err := bot.Reply(ctx, msg.Context, msg.Username, msg.Text)
		if err != nil {
			return fmt.Errorf("assistant reply: %w", err)
		}
		if err := reply(ctx, msg, answer); err != nil {
			return err
		}

		// Ответ уже отправлен, поэтому сбой записи истории не ошибка.
		if err := store.Append(ctx, msg.UserID, assistant.NewExchange(msg.Username, msg.Text, answer)); err != nil {
			logger.Warn("failed to store dialog exchange", "user_id", msg.UserID, "error", err)
		}
		return nil
	}
}
