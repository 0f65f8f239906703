package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jarvis-hub/jarvis/internal/domain/shared"
	"github.com/jarvis-hub/jarvis/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const userColumns = `id, username, hashed_password, telegram_id, level`

// UserRepository implements user.Repository for PostgreSQL.
// It runs on a Querier, usually the transaction of the current dispatch.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user and returns it with the assigned ID.
func (r *UserRepository) Create(ctx context.Context, u *user.User) (*user.User, error) {
	query := `
		INSERT INTO users (username, hashed_password, telegram_id, level)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query, u.Username, u.HashedPassword, telegramIDArg(u.TelegramID), u.Level)
	created, err := scanUser(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, shared.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

// GetByID returns a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername returns a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetByTelegramID returns a user by linked Telegram ID.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID user.TelegramID) (*user.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, int64(telegramID))
}

// ExistsByUsername checks whether the username is taken.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// Update applies the patch and returns the updated user.
func (r *UserRepository) Update(ctx context.Context, id int64, patch user.Patch) (*user.User, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	set := newSetBuilder()
	if patch.Username != nil {
		set.add("username", *patch.Username)
	}
	if patch.HashedPassword != nil {
		set.add("hashed_password", *patch.HashedPassword)
	}
	if patch.TelegramID != nil {
		set.add("telegram_id", telegramIDArg(patch.TelegramID))
	}
	if patch.Level != nil {
		set.add("level", *patch.Level)
	}
	set.add("updated_at", nowExpr{})

	query, args := set.build("users", "id", id)
	row := r.db.QueryRow(ctx, query+` RETURNING `+userColumns, args...)
	updated, err := scanUser(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, shared.ErrUserDuplicated
		}
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return updated, nil
}

// Delete removes a user. Returns false if nothing was deleted.
func (r *UserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns users ordered by ID.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*user.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*user.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, err
}

// scanUser scans a single user; pgx.Rows satisfies pgx.Row.
func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var telegramID *int64

	err := row.Scan(&u.ID, &u.Username, &u.HashedPassword, &telegramID, &u.Level)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if telegramID != nil {
		tg := user.TelegramID(*telegramID)
		u.TelegramID = &tg
	}
	return &u, nil
}

func telegramIDArg(id *user.TelegramID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}
