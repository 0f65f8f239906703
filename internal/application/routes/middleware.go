package routes

import (
	"context"
	"fmt"

	"github.com/jarvis-hub/jarvis/internal/application/inject"
	"github.com/jarvis-hub/jarvis/internal/application/providers"
	"github.com/jarvis-hub/jarvis/internal/domain/assistant"
	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
	"github.com/jarvis-hub/jarvis/internal/domain/user"
)

// TextUnknownUser отправляется незарегистрированному пользователю.
const TextUnknownUser = "I don't know you yet."

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// Пользователь ищется по Telegram ID. Неизвестный пользователь получает
// ответ и ErrUnknownTelegramUser, что прерывает всю обработку сообщения.
// ══════════════════════════════════════════════════════════════════════════════

func authenticate(ctx context.Context, msg *message.Message, deps *inject.Deps) error {
	lookup, err := inject.Get[*providers.UserLookup](deps, providers.ParamUserLookup)
	if err != nil {
		return err
	}

	u, err := lookup.ByTelegramID(ctx, user.TelegramID(msg.UserID))
	if shared.IsNotFound(err) {
		if err := reply(ctx, msg, TextUnknownUser); err != nil {
			return err
		}
		return fmt.Errorf("telegram id %d: %w", msg.UserID, shared.ErrUnknownTelegramUser)
	}
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	msg.Set(KeyUser, u)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DIALOG CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

func loadDialog(limit int) func(context.Context, *message.Message, *inject.Deps) error {
	return func(ctx context.Context, msg *message.Message, deps *inject.Deps) error {
		store, err := inject.Get[assistant.DialogStore](deps, providers.ParamDialogs)
		if err != nil {
			return err
		}

		history, err := store.Load(ctx, msg.UserID, limit)
		if err != nil {
			// Без истории ассистент всё ещё может ответить.
			return shared.Decline("dialog context unavailable", err)
		}
		msg.AppendContext(history...)
		return nil
	}
}
