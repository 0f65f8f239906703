package link

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	links  map[int64]*Link
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{links: make(map[int64]*Link)}
}

func (r *memoryRepo) Create(_ context.Context, l *Link) (*Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.links {
		if existing.URL == l.URL {
			return nil, shared.ErrLinkAlreadyExists
		}
	}
	r.nextID++
	cp := *l
	cp.ID = r.nextID
	cp.CreatedAt = time.Now()
	r.links[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memoryRepo) GetByID(_ context.Context, userID, id int64) (*Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.UserID != userID {
		return nil, shared.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *memoryRepo) Update(_ context.Context, userID, id int64, patch Patch) (*Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.UserID != userID {
		return nil, shared.ErrLinkNotFound
	}
	patch.Apply(l)
	cp := *l
	return &cp, nil
}

func (r *memoryRepo) Delete(_ context.Context, userID, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.UserID != userID {
		return false, nil
	}
	delete(r.links, id)
	return true, nil
}

func (r *memoryRepo) ListByUser(_ context.Context, userID int64, limit int) ([]*Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Link
	for _, l := range r.links {
		if l.UserID == userID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchByEmbedding ranks by the first vector component distance.
func (r *memoryRepo) SearchByEmbedding(ctx context.Context, userID int64, vector []float32, limit int) ([]*Link, error) {
	all, _ := r.ListByUser(ctx, userID, 1000)
	dist := func(l *Link) float32 {
		d := l.Vector[0] - vector[0]
		if d < 0 {
			return -d
		}
		return d
	}
	sort.Slice(all, func(i, j int) bool { return dist(all[i]) < dist(all[j]) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *memoryRepo) IncrementPullCount(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if l, ok := r.links[id]; ok {
			l.PullCount++
		}
	}
	return nil
}

// lengthEmbedder encodes a text as its length.
type lengthEmbedder struct {
	calls []string
	err   error
}

func (e *lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls = append(e.calls, text)
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text))}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestAppend_StoresVector(t *testing.T) {
	emb := &lengthEmbedder{}
	svc := NewService(newMemoryRepo(), emb)

	l, err := svc.Append(context.Background(), 1, AppendParams{
		URL:         " https://go.dev/doc ",
		Description: "Go docs",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://go.dev/doc", l.URL)
	assert.Equal(t, []string{"Go docs\nhttps://go.dev/doc"}, emb.calls)
	assert.Len(t, l.Vector, 1)
}

func TestAppend_Errors(t *testing.T) {
	ctx := context.Background()

	svc := NewService(newMemoryRepo(), &lengthEmbedder{})
	_, err := svc.Append(ctx, 1, AppendParams{URL: "not a url"})
	assert.ErrorIs(t, err, shared.ErrInvalidURL)

	_, err = svc.Append(ctx, 1, AppendParams{URL: "ftp://example.com"})
	assert.ErrorIs(t, err, shared.ErrInvalidURL)

	_, err = svc.Append(ctx, 1, AppendParams{URL: "https://example.com"})
	require.NoError(t, err)
	_, err = svc.Append(ctx, 1, AppendParams{URL: "https://example.com"})
	assert.True(t, shared.IsAlreadyExists(err))

	failing := NewService(newMemoryRepo(), &lengthEmbedder{err: errors.New("quota")})
	_, err = failing.Append(ctx, 1, AppendParams{URL: "https://example.com"})
	assert.True(t, shared.IsExternalService(err))
}

func TestFind_RanksAndCountsPulls(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo, &lengthEmbedder{})

	short, err := svc.Append(ctx, 1, AppendParams{URL: "https://a.io"})
	require.NoError(t, err)
	long, err := svc.Append(ctx, 1, AppendParams{URL: "https://a-much-longer-domain.io/path"})
	require.NoError(t, err)
	_, err = svc.Append(ctx, 2, AppendParams{URL: "https://other-user.io"})
	require.NoError(t, err)

	found, err := svc.Find(ctx, 1, "https://b.io")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, short.ID, found[0].ID)
	assert.Equal(t, long.ID, found[1].ID)
	assert.Equal(t, 1, found[0].PullCount)

	stored, err := repo.GetByID(ctx, 1, short.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PullCount)
}

func TestFind_NothingFound(t *testing.T) {
	svc := NewService(newMemoryRepo(), &lengthEmbedder{})

	_, err := svc.Find(context.Background(), 1, "anything")
	assert.ErrorIs(t, err, shared.ErrNoLinksFound)
	assert.True(t, shared.IsNotFound(err))

	_, err = svc.Find(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, shared.ErrEmptyQuery)
}

func TestUpdate_ReembedsWhenTextChanges(t *testing.T) {
	ctx := context.Background()
	emb := &lengthEmbedder{}
	svc := NewService(newMemoryRepo(), emb)

	l, err := svc.Append(ctx, 1, AppendParams{URL: "https://go.dev"})
	require.NoError(t, err)

	desc := "the Go website"
	updated, err := svc.Update(ctx, 1, l.ID, Patch{Description: &desc})
	require.NoError(t, err)

	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, "the Go website\nhttps://go.dev", emb.calls[len(emb.calls)-1])
	assert.Equal(t, float32(len("the Go website\nhttps://go.dev")), updated.Vector[0])

	_, err = svc.Update(ctx, 2, l.ID, Patch{Description: &desc})
	assert.True(t, shared.IsNotFound(err))

	bad := "nope"
	_, err = svc.Update(ctx, 1, l.ID, Patch{URL: &bad})
	assert.ErrorIs(t, err, shared.ErrInvalidURL)
}

func TestRemoveAndList(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo(), &lengthEmbedder{})

	first, err := svc.Append(ctx, 1, AppendParams{URL: "https://one.io"})
	require.NoError(t, err)
	_, err = svc.Append(ctx, 1, AppendParams{URL: "https://two.io"})
	require.NoError(t, err)

	links, err := svc.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "https://two.io", links[0].URL)

	removed, err := svc.Remove(ctx, 1, first.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.Remove(ctx, 1, first.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}
