package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/jarvis-hub/jarvis/internal/domain/link"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINK REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const linkColumns = `id, user_id, url, description, title, created_at, pull_count, vector`

// LinkRepository implements link.Repository for PostgreSQL with pgvector.
type LinkRepository struct {
	db Querier
}

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository(db Querier) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create inserts a link with its embedding.
func (r *LinkRepository) Create(ctx context.Context, l *link.Link) (*link.Link, error) {
	query := `
		INSERT INTO links (user_id, url, description, title, vector)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + linkColumns

	row := r.db.QueryRow(ctx, query, l.UserID, l.URL, l.Description, l.Title, pgvector.NewVector(l.Vector))
	created, err := scanLink(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, shared.ErrLinkAlreadyExists
		}
		if IsForeignKeyViolation(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	return created, nil
}

// GetByID returns a link owned by the user.
func (r *LinkRepository) GetByID(ctx context.Context, userID, id int64) (*link.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1 AND user_id = $2`

	l, err := scanLink(r.db.QueryRow(ctx, query, id, userID))
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return l, err
}

// Update applies the patch to a link owned by the user.
func (r *LinkRepository) Update(ctx context.Context, userID, id int64, patch link.Patch) (*link.Link, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, userID, id)
	}

	set := newSetBuilder()
	if patch.URL != nil {
		set.add("url", *patch.URL)
	}
	if patch.Description != nil {
		set.add("description", *patch.Description)
	}
	if patch.Title != nil {
		set.add("title", *patch.Title)
	}
	if patch.Vector != nil {
		set.add("vector", pgvector.NewVector(patch.Vector))
	}

	query, args := set.build("links", "id", id, "user_id", userID)
	updated, err := scanLink(r.db.QueryRow(ctx, query+` RETURNING `+linkColumns, args...))
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, shared.ErrLinkAlreadyExists
		}
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update link: %w", err)
	}
	return updated, nil
}

// Delete removes a link owned by the user.
func (r *LinkRepository) Delete(ctx context.Context, userID, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM links WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete link: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUser returns the most recent links of the user.
func (r *LinkRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*link.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return scanLinks(rows)
}

// SearchByEmbedding returns the user's links nearest to the vector by cosine distance.
func (r *LinkRepository) SearchByEmbedding(ctx context.Context, userID int64, vector []float32, limit int) ([]*link.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE user_id = $1
		ORDER BY vector <=> $2
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, userID, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search links: %w", err)
	}
	return scanLinks(rows)
}

// IncrementPullCount bumps the pull counter of the given links.
func (r *LinkRepository) IncrementPullCount(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE links SET pull_count = pull_count + 1 WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to increment pull count: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanLink(row pgx.Row) (*link.Link, error) {
	var l link.Link
	var vector pgvector.Vector

	err := row.Scan(&l.ID, &l.UserID, &l.URL, &l.Description, &l.Title, &l.CreatedAt, &l.PullCount, &vector)
	if IsNoRows(err) {
		return nil, shared.ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}

	l.Vector = vector.Slice()
	return &l, nil
}

func scanLinks(rows pgx.Rows) ([]*link.Link, error) {
	defer rows.Close()

	var links []*link.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
