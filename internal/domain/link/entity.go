// Package link содержит доменную модель сохранённой ссылки и сервис
// семантического поиска по ссылкам пользователя.
package link

import (
	"net/url"
	"strings"
	"time"

	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// EmbeddingDimensions - размерность вектора (text-embedding-3-small).
const EmbeddingDimensions = 1536

// SearchLimit - сколько ссылок возвращает поиск.
const SearchLimit = 10

// Link - ссылка, сохранённая пользователем.
type Link struct {
	ID          int64
	UserID      int64
	URL         string
	Description string
	Title       string
	CreatedAt   time.Time
	PullCount   int
	Vector      []float32
}

// EmbeddingText возвращает текст, по которому строится вектор ссылки.
func (l *Link) EmbeddingText() string {
	return embeddingText(l.Title, l.Description, l.URL)
}

func embeddingText(title, description, rawURL string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{title, description, rawURL} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// AppendParams - параметры добавления ссылки.
type AppendParams struct {
	URL         string
	Description string
	Title       string
}

// Validate нормализует и проверяет параметры.
func (p *AppendParams) Validate() error {
	p.URL = strings.TrimSpace(p.URL)
	p.Description = strings.TrimSpace(p.Description)
	p.Title = strings.TrimSpace(p.Title)
	return ValidateURL(p.URL)
}

// Patch - частичное обновление ссылки. nil-поля не меняются.
type Patch struct {
	URL         *string
	Description *string
	Title       *string
	Vector      []float32
}

// IsEmpty проверяет, что обновлять нечего.
func (p Patch) IsEmpty() bool {
	return p.URL == nil && p.Description == nil && p.Title == nil && p.Vector == nil
}

// ChangesText проверяет, меняет ли patch текст, по которому строится вектор.
func (p Patch) ChangesText() bool {
	return p.URL != nil || p.Description != nil || p.Title != nil
}

// Apply применяет изменения к ссылке.
func (p Patch) Apply(l *Link) {
	if p.URL != nil {
		l.URL = *p.URL
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Vector != nil {
		l.Vector = p.Vector
	}
}

// ValidateURL принимает только абсолютные http(s) ссылки.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return shared.ErrInvalidURL
	}
	return nil
}
