package link

import (
	"context"
	"fmt"
	"strings"

	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// Service реализует сценарии работы со ссылками.
type Service struct {
	repo     Repository
	embedder Embedder
}

// NewService создаёт сервис ссылок.
func NewService(repo Repository, embedder Embedder) *Service {
	return &Service{repo: repo, embedder: embedder}
}

// Append сохраняет ссылку вместе с её вектором.
func (s *Service) Append(ctx context.Context, userID int64, params AppendParams) (*Link, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	vector, err := s.embed(ctx, embeddingText(params.Title, params.Description, params.URL))
	if err != nil {
		return nil, err
	}

	return s.repo.Create(ctx, &Link{
		UserID:      userID,
		URL:         params.URL,
		Description: params.Description,
		Title:       params.Title,
		Vector:      vector,
	})
}

// Find ищет ссылки пользователя по смыслу запроса.
// Возвращает ErrNoLinksFound, если ничего не найдено.
func (s *Service) Find(ctx context.Context, userID int64, query string) ([]*Link, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, shared.ErrEmptyQuery
	}

	vector, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	links, err := s.repo.SearchByEmbedding(ctx, userID, vector, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search links: %w", err)
	}
	if len(links) == 0 {
		return nil, shared.ErrNoLinksFound
	}

	ids := make([]int64, len(links))
	for i, l := range links {
		ids[i] = l.ID
		l.PullCount++
	}
	if err := s.repo.IncrementPullCount(ctx, ids); err != nil {
		return nil, fmt.Errorf("increment pull count: %w", err)
	}
	return links, nil
}

// Update меняет ссылку. Если меняется текст, вектор пересчитывается.
func (s *Service) Update(ctx context.Context, userID, id int64, patch Patch) (*Link, error) {
	if patch.IsEmpty() {
		return s.repo.GetByID(ctx, userID, id)
	}
	if patch.URL != nil {
		if err := ValidateURL(strings.TrimSpace(*patch.URL)); err != nil {
			return nil, err
		}
	}

	if patch.ChangesText() {
		current, err := s.repo.GetByID(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		next := *current
		patch.Apply(&next)
		vector, err := s.embed(ctx, next.EmbeddingText())
		if err != nil {
			return nil, err
		}
		patch.Vector = vector
	}

	return s.repo.Update(ctx, userID, id, patch)
}

// Remove удаляет ссылку. Возвращает false, если ссылки не было.
func (s *Service) Remove(ctx context.Context, userID, id int64) (bool, error) {
	return s.repo.Delete(ctx, userID, id)
}

// List возвращает последние ссылки пользователя.
func (s *Service) List(ctx context.Context, userID int64, limit int) ([]*Link, error) {
	if limit <= 0 || limit > 100 {
		limit = SearchLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, shared.WrapError("link", "Embed", shared.ErrExternalService, "embedding failed", err)
	}
	return vector, nil
}
