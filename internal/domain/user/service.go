package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// DefaultAdminPassword - пароль записи администратора по умолчанию.
// Его нужно сменить через UpdatePassword после первого входа.
const DefaultAdminPassword = "admin"

// Service реализует сценарии работы с пользователями.
type Service struct {
	repo   Repository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewService создаёт сервис пользователей.
func NewService(repo Repository, hasher PasswordHasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, logger: logger}
}

// Create создаёт пользователя. Доступно только администраторам.
func (s *Service) Create(ctx context.Context, actor *User, params CreateParams) (*User, error) {
	if !actor.IsAdmin() {
		return nil, shared.WrapError("user", "Create", shared.ErrForbidden,
			"you do not have permission to create a new user", shared.ErrPermissionDenied)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByUsername(ctx, params.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, shared.WrapError("user", "Create", shared.ErrAlreadyExists,
			fmt.Sprintf("user with username %s already exists", params.Username), shared.ErrUserAlreadyExists)
	}

	u := &User{
		Username:   params.Username,
		TelegramID: params.TelegramID,
		Level:      params.Level,
	}
	if params.Password != "" {
		hashed, err := s.hasher.Hash(params.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.HashedPassword = hashed
	}

	return s.repo.Create(ctx, u)
}

// GetByID возвращает пользователя по ID.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUsername возвращает пользователя по username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// GetByTelegramID возвращает пользователя по Telegram ID.
func (s *Service) GetByTelegramID(ctx context.Context, telegramID TelegramID) (*User, error) {
	if !telegramID.IsValid() {
		return nil, shared.ErrInvalidTelegramID
	}
	return s.repo.GetByTelegramID(ctx, telegramID)
}

// VerifyPassword проверяет пару username/password.
// Неверный пароль и неизвестный username неразличимы для вызывающего.
func (s *Service) VerifyPassword(ctx context.Context, username, password string) (*User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.checkPassword(u, password); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdatePassword меняет пароль после проверки старого.
func (s *Service) UpdatePassword(ctx context.Context, username, oldPassword, newPassword string) (*User, error) {
	u, err := s.VerifyPassword(ctx, username, oldPassword)
	if err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.Update(ctx, u.ID, Patch{HashedPassword: &hashed})
}

// Update применяет patch к пользователю id. Доступно только администраторам.
func (s *Service) Update(ctx context.Context, actor *User, id int64, patch Patch) (*User, error) {
	if !actor.IsAdmin() {
		return nil, shared.WrapError("user", "Update", shared.ErrForbidden,
			"you do not have permission to update this user", shared.ErrPermissionDenied)
	}
	if patch.IsEmpty() {
		return s.repo.GetByID(ctx, id)
	}
	return s.repo.Update(ctx, id, patch)
}

// CreateAdminRecord создаёт запись администратора, если её ещё нет.
// Возвращает true, если запись была создана.
func (s *Service) CreateAdminRecord(ctx context.Context) (bool, error) {
	_, err := s.repo.GetByUsername(ctx, AdminUsername)
	if err == nil {
		return false, nil
	}
	if !shared.IsNotFound(err) {
		return false, err
	}

	hashed, err := s.hasher.Hash(DefaultAdminPassword)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.repo.Create(ctx, &User{
		Username:       AdminUsername,
		HashedPassword: hashed,
		Level:          AdminLevel,
	}); err != nil {
		return false, err
	}

	s.logger.Info("admin user created, change the default password after first login",
		"username", AdminUsername)
	return true, nil
}

func (s *Service) checkPassword(u *User, password string) error {
	if u.HashedPassword == "" {
		return shared.ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(password, u.HashedPassword)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return shared.ErrInvalidCredentials
	}
	return nil
}
