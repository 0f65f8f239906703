// Package message содержит модель входящего сообщения, которое проходит
// через роутер. Сообщение создаётся адаптером транспорта (Telegram, CLI),
// изменяется middleware и хендлерами в рамках одного dispatch и выбрасывается
// после его завершения.
package message

import (
	"context"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// AnswerFunc отправляет ответ на сообщение. Принадлежит адаптеру транспорта.
type AnswerFunc func(ctx context.Context, reply Message) error

// Exchange - одна пара "реплика пользователя / ответ Jarvis" из истории диалога.
type Exchange struct {
	Date       time.Time `json:"date"`
	Username   string    `json:"username"`
	UserText   string    `json:"user_text"`
	JarvisText string    `json:"jarvis_text"`
}

// Message - единица работы роутера.
type Message struct {
	// Text - текст сообщения.
	Text string

	// UserID - идентификатор отправителя в транспорте (Telegram ID).
	UserID int64

	// ChatID - идентификатор чата для ответа.
	ChatID int64

	// Username - имя отправителя.
	Username string

	// Data - изменяемый словарь, который заполняют middleware и читают хендлеры.
	Data map[string]any

	// Context - упорядоченная история диалога. Только дополняется.
	Context []Exchange

	// Answer - колбэк ответа.
	Answer AnswerFunc
}

// Option настраивает Message при создании.
type Option func(*Message)

// WithUser задаёт отправителя.
func WithUser(userID int64, username string) Option {
	return func(m *Message) {
		m.UserID = userID
		m.Username = username
	}
}

// WithChat задаёт чат.
func WithChat(chatID int64) Option {
	return func(m *Message) {
		m.ChatID = chatID
	}
}

// WithAnswer задаёт колбэк ответа.
func WithAnswer(fn AnswerFunc) Option {
	return func(m *Message) {
		m.Answer = fn
	}
}

// New создаёт сообщение с пустым Data и no-op Answer.
func New(text string, opts ...Option) *Message {
	m := &Message{
		Text:   text,
		Data:   make(map[string]any),
		Answer: discardAnswer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.Answer == nil {
		m.Answer = discardAnswer
	}
	return m
}

func discardAnswer(context.Context, Message) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// METHODS
// ══════════════════════════════════════════════════════════════════════════════

// Reply отправляет текстовый ответ через Answer.
func (m *Message) Reply(ctx context.Context, text string) error {
	if m.Answer == nil {
		return nil
	}
	return m.Answer(ctx, Message{Text: text, ChatID: m.ChatID})
}

// Replyf - Reply с форматированием.
func (m *Message) Replyf(ctx context.Context, format string, args ...any) error {
	return m.Reply(ctx, fmt.Sprintf(format, args...))
}

// AppendContext добавляет обмен репликами в историю.
func (m *Message) AppendContext(ex ...Exchange) {
	m.Context = append(m.Context, ex...)
}

// Set кладёт значение в Data.
func (m *Message) Set(key string, value any) {
	if m.Data == nil {
		m.Data = make(map[string]any)
	}
	m.Data[key] = value
}

// Value достаёт типизированное значение из Data.
func Value[T any](m *Message, key string) (T, bool) {
	var zero T
	if m == nil || m.Data == nil {
		return zero, false
	}
	raw, ok := m.Data[key]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// String реализует fmt.Stringer для логов. Answer и Data не выводятся.
func (m *Message) String() string {
	return fmt.Sprintf("Message{user=%d chat=%d username=%q text=%q context=%d}",
		m.UserID, m.ChatID, m.Username, m.Text, len(m.Context))
}
