package user

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища пользователей.
type Repository interface {
	// Create создаёт пользователя и возвращает его с присвоенным ID.
	// Возвращает ErrUserAlreadyExists при конфликте username или Telegram ID.
	Create(ctx context.Context, u *User) (*User, error)

	// GetByID возвращает пользователя по ID.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByUsername возвращает пользователя по username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByTelegramID возвращает пользователя по Telegram ID.
	GetByTelegramID(ctx context.Context, telegramID TelegramID) (*User, error)

	// ExistsByUsername проверяет, занят ли username.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// Update применяет patch и возвращает обновлённого пользователя.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	Update(ctx context.Context, id int64, patch Patch) (*User, error)

	// Delete удаляет пользователя. Возвращает false, если удалять было нечего.
	Delete(ctx context.Context, id int64) (bool, error)

	// List возвращает пользователей по возрастанию ID.
	List(ctx context.Context, limit, offset int) ([]*User, error)
}

// PasswordHasher хеширует и проверяет пароли.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}
