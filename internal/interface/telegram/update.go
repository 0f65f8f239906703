package telegram

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
)

// Ключи msg.Data, которые заполняет адаптер.
const (
	KeyUpdateID      = "telegram.update_id"
	KeyMessageID     = "telegram.message_id"
	KeyCorrelationID = "correlation_id"
)

// ToMessage converts a text message update. Updates without a text message
// or a sender are reported as not ok.
func ToMessage(update telego.Update, answer message.AnswerFunc) (*message.Message, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return nil, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil, false
	}

	msg := message.New(text,
		message.WithUser(m.From.ID, displayName(m.From)),
		message.WithChat(m.Chat.ID),
		message.WithAnswer(answer),
	)
	msg.Set(KeyUpdateID, update.UpdateID)
	msg.Set(KeyMessageID, m.MessageID)
	msg.Set(KeyCorrelationID, uuid.NewString())
	return msg, true
}

// CorrelationID returns the ID assigned by ToMessage.
func CorrelationID(msg *message.Message) string {
	id, _ := message.Value[string](msg, KeyCorrelationID)
	return id
}

func displayName(u *telego.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
