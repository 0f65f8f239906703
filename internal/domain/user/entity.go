// Package user содержит доменную модель пользователя Jarvis.
// Здесь нет внешних зависимостей: хранилище и хеширование паролей
// подключаются через интерфейсы.
package user

import (
	"strings"

	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// AdminLevel - минимальный уровень доступа администратора.
const AdminLevel = 99

// AdminUsername - имя записи администратора, создаваемой при первом запуске.
const AdminUsername = "admin"

// TelegramID представляет уникальный идентификатор пользователя Telegram.
type TelegramID int64

// IsValid проверяет, что TelegramID положительный.
func (t TelegramID) IsValid() bool {
	return t > 0
}

// User - пользователь, которому принадлежат ссылки.
type User struct {
	ID             int64
	Username       string
	HashedPassword string
	TelegramID     *TelegramID
	Level          int
}

// IsAdmin проверяет права администратора.
func (u *User) IsAdmin() bool {
	return u != nil && u.Level >= AdminLevel
}

// HasTelegram проверяет, привязан ли Telegram.
func (u *User) HasTelegram() bool {
	return u != nil && u.TelegramID != nil && u.TelegramID.IsValid()
}

// CreateParams - параметры создания пользователя.
type CreateParams struct {
	Username   string
	Password   string
	TelegramID *TelegramID
	Level      int
}

// Validate проверяет параметры создания.
func (p *CreateParams) Validate() error {
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" {
		return shared.ErrEmptyUsername
	}
	if p.TelegramID != nil && !p.TelegramID.IsValid() {
		return shared.ErrInvalidTelegramID
	}
	if p.Level < 0 {
		return shared.NewDomainError("user", "Validate", shared.ErrValidation, "level cannot be negative")
	}
	return nil
}

// Patch - частичное обновление пользователя. nil-поля не меняются.
type Patch struct {
	Username       *string
	HashedPassword *string
	TelegramID     *TelegramID
	Level          *int
}

// IsEmpty проверяет, что обновлять нечего.
func (p Patch) IsEmpty() bool {
	return p.Username == nil && p.HashedPassword == nil && p.TelegramID == nil && p.Level == nil
}

// Apply применяет изменения к пользователю.
func (p Patch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.HashedPassword != nil {
		u.HashedPassword = *p.HashedPassword
	}
	if p.TelegramID != nil {
		id := *p.TelegramID
		u.TelegramID = &id
	}
	if p.Level != nil {
		u.Level = *p.Level
	}
}
