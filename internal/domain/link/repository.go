package link

import "context"

// Repository определяет операции хранилища ссылок.
// Все операции ограничены ссылками одного пользователя.
type Repository interface {
	// Create сохраняет ссылку. Возвращает ErrLinkAlreadyExists, если URL уже сохранён.
	Create(ctx context.Context, l *Link) (*Link, error)

	// GetByID возвращает ссылку пользователя.
	// Возвращает ErrLinkNotFound, если ссылка не найдена.
	GetByID(ctx context.Context, userID, id int64) (*Link, error)

	// Update применяет patch. Возвращает ErrLinkNotFound, если ссылка не найдена.
	Update(ctx context.Context, userID, id int64, patch Patch) (*Link, error)

	// Delete удаляет ссылку. Возвращает false, если удалять было нечего.
	Delete(ctx context.Context, userID, id int64) (bool, error)

	// ListByUser возвращает последние ссылки пользователя.
	ListByUser(ctx context.Context, userID int64, limit int) ([]*Link, error)

	// SearchByEmbedding возвращает ближайшие по косинусному расстоянию ссылки.
	SearchByEmbedding(ctx context.Context, userID int64, vector []float32, limit int) ([]*Link, error)

	// IncrementPullCount увеличивает счётчик выдачи ссылок.
	IncrementPullCount(ctx context.Context, ids []int64) error
}

// Embedder строит вектор для текста.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
