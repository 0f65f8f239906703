// Package assistant описывает диалоговое взаимодействие Jarvis с языковой
// моделью: порт ассистента, хранилище контекста диалога и сборку запроса.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
)

// HistoryLimit - сколько последних обменов репликами передаётся модели.
const HistoryLimit = 10

// SystemPrompt задаёт роль ассистента.
const SystemPrompt = "You are Jarvis, a concise personal assistant. " +
	"Answer in the language of the user. Do not invent facts."

// Assistant отвечает пользователю с учётом истории диалога.
type Assistant interface {
	Reply(ctx context.Context, history []message.Exchange, username, text string) (string, error)
}

// DialogStore хранит последние обмены репликами пользователя.
type DialogStore interface {
	// Load возвращает не более limit последних обменов в хронологическом порядке.
	Load(ctx context.Context, userID int64, limit int) ([]message.Exchange, error)

	// Append добавляет обмен в конец истории.
	Append(ctx context.Context, userID int64, exchange message.Exchange) error
}

// Role - роль реплики в запросе к модели.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn - одна реплика запроса к модели.
type Turn struct {
	Role    Role
	Content string
}

// BuildPrompt собирает запрос: системная роль, история, новая реплика.
// Пустые реплики истории пропускаются.
func BuildPrompt(history []message.Exchange, username, text string) []Turn {
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}

	system := SystemPrompt
	if username = strings.TrimSpace(username); username != "" {
		system += " The user's name is " + username + "."
	}

	turns := make([]Turn, 0, 2*len(history)+2)
	turns = append(turns, Turn{Role: RoleSystem, Content: system})
	for _, ex := range history {
		if ex.UserText != "" {
			turns = append(turns, Turn{Role: RoleUser, Content: ex.UserText})
		}
		if ex.JarvisText != "" {
			turns = append(turns, Turn{Role: RoleAssistant, Content: ex.JarvisText})
		}
	}
	turns = append(turns, Turn{Role: RoleUser, Content: text})
	return turns
}

// NewExchange фиксирует обмен репликами для сохранения в историю.
func NewExchange(username, userText, jarvisText string) message.Exchange {
	return message.Exchange{
		Date:       time.Now().UTC(),
		Username:   username,
		UserText:   userText,
		JarvisText: jarvisText,
	}
}
