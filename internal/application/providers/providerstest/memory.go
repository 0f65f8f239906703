// Package providerstest provides in-memory infrastructure for tests that
// build a providers.Graph without PostgreSQL, Redis or OpenAI.
package providerstest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jarvis-hub/jarvis/internal/application/providers"
	"github.com/jarvis-hub/jarvis/internal/domain/link"
	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
	"github.com/jarvis-hub/jarvis/internal/domain/user"
	"github.com/jarvis-hub/jarvis/internal/infrastructure/persistence/postgres"
)

var errNoSQL = errors.New("providerstest: session does not run SQL")

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// Sessions counts opened, committed and rolled back sessions.
type Sessions struct {
	mu         sync.Mutex
	Opened     int
	Committed  int
	RolledBack int
	BeginErr   error
	CommitErr  error
}

// Factory returns a providers.SessionFactory backed by s.
func (s *Sessions) Factory() providers.SessionFactory {
	return func(context.Context) (providers.Session, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.BeginErr != nil {
			return nil, s.BeginErr
		}
		s.Opened++
		return &session{owner: s}, nil
	}
}

// Snapshot returns the counters under the lock.
func (s *Sessions) Snapshot() (opened, committed, rolledBack int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Opened, s.Committed, s.RolledBack
}

type session struct {
	owner *Sessions
}

func (s *session) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNoSQL
}

func (s *session) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNoSQL
}

func (s *session) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

func (s *session) Commit(context.Context) error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.owner.CommitErr != nil {
		return s.owner.CommitErr
	}
	s.owner.Committed++
	return nil
}

func (s *session) Rollback(context.Context) error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.owner.RolledBack++
	return nil
}

type errRow struct{}

func (errRow) Scan(...any) error { return errNoSQL }

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

// Users is an in-memory user.Repository shared by every session.
type Users struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*user.User
}

// NewUsers creates an empty repository.
func NewUsers() *Users {
	return &Users{users: make(map[int64]*user.User)}
}

// Repo adapts Users to Infra.NewUserRepo.
func (r *Users) Repo(postgres.Querier) user.Repository { return r }

// AddTelegramUser stores a user bound to a Telegram ID.
func (r *Users) AddTelegramUser(username string, telegramID int64, level int) *user.User {
	tg := user.TelegramID(telegramID)
	u, _ := r.Create(context.Background(), &user.User{Username: username, TelegramID: &tg, Level: level})
	return u
}

func (r *Users) Create(_ context.Context, u *user.User) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return nil, shared.ErrUserAlreadyExists
		}
	}
	r.nextID++
	cp := *u
	cp.ID = r.nextID
	r.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *Users) GetByID(_ context.Context, id int64) (*user.User, error) {
	return r.find(func(u *user.User) bool { return u.ID == id })
}

func (r *Users) GetByUsername(_ context.Context, username string) (*user.User, error) {
	return r.find(func(u *user.User) bool { return u.Username == username })
}

func (r *Users) GetByTelegramID(_ context.Context, id user.TelegramID) (*user.User, error) {
	return r.find(func(u *user.User) bool { return u.TelegramID != nil && *u.TelegramID == id })
}

func (r *Users) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	if shared.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (r *Users) Update(_ context.Context, id int64, patch user.Patch) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	patch.Apply(u)
	cp := *u
	return &cp, nil
}

func (r *Users) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	delete(r.users, id)
	return ok, nil
}

func (r *Users) List(_ context.Context, limit, offset int) ([]*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*user.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *Users) find(match func(*user.User) bool) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrUserNotFound
}

// UserCache is an in-memory providers.UserCache that records invalidations.
type UserCache struct {
	mu          sync.Mutex
	users       map[user.TelegramID]user.User
	Invalidated []user.TelegramID
}

// NewUserCache creates an empty cache.
func NewUserCache() *UserCache {
	return &UserCache{users: make(map[user.TelegramID]user.User)}
}

func (c *UserCache) GetByTelegramID(_ context.Context, id user.TelegramID) (*user.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return &u, nil
}

func (c *UserCache) Set(_ context.Context, u *user.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[*u.TelegramID] = *u
	return nil
}

func (c *UserCache) Invalidate(_ context.Context, id user.TelegramID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, id)
	c.Invalidated = append(c.Invalidated, id)
	return nil
}

// Has reports whether id is cached.
func (c *UserCache) Has(id user.TelegramID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.users[id]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// LINKS
// ══════════════════════════════════════════════════════════════════════════════

// Links is an in-memory link.Repository. Search matches by substring of the
// embedded text instead of vector distance.
type Links struct {
	mu     sync.Mutex
	nextID int64
	links  map[int64]*link.Link
	now    time.Time
}

// NewLinks creates an empty repository.
func NewLinks() *Links {
	return &Links{links: make(map[int64]*link.Link), now: time.Unix(1700000000, 0)}
}

// Repo adapts Links to Infra.NewLinkRepo.
func (r *Links) Repo(postgres.Querier) link.Repository { return r }

// All returns every stored link ordered by ID.
func (r *Links) All() []*link.Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*link.Link, 0, len(r.links))
	for _, l := range r.links {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Links) Create(_ context.Context, l *link.Link) (*link.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.links {
		if existing.UserID == l.UserID && existing.URL == l.URL {
			return nil, shared.ErrLinkAlreadyExists
		}
	}
	r.nextID++
	r.now = r.now.Add(time.Second)
	cp := *l
	cp.ID = r.nextID
	cp.CreatedAt = r.now
	r.links[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *Links) GetByID(_ context.Context, userID, id int64) (*link.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.UserID != userID {
		return nil, shared.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *Links) Update(_ context.Context, userID, id int64, patch link.Patch) (*link.Link, error) {
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

func (r *Links) Delete(_ context.Context, userID, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.UserID != userID {
		return false, nil
	}
	delete(r.links, id)
	return true, nil
}

func (r *Links) ListByUser(_ context.Context, userID int64, limit int) ([]*link.Link, error) {
	out := r.byUser(userID, func(*link.Link) bool { return true })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// SearchByEmbedding returns links whose text contains the query that
// StaticEmbedder last embedded.
func (r *Links) SearchByEmbedding(_ context.Context, userID int64, vector []float32, limit int) ([]*link.Link, error) {
	query := decodeQuery(vector)
	out := r.byUser(userID, func(l *link.Link) bool {
		return strings.Contains(strings.ToLower(l.EmbeddingText()), query)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *Links) IncrementPullCount(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if l, ok := r.links[id]; ok {
			l.PullCount++
		}
	}
	return nil
}

func (r *Links) byUser(userID int64, match func(*link.Link) bool) []*link.Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*link.Link, 0)
	for _, l := range r.links {
		if l.UserID == userID && match(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDINGS, ASSISTANT, DIALOGS
// ══════════════════════════════════════════════════════════════════════════════

// StaticEmbedder encodes the lowercased text as runes, so Links can search
// by substring.
type StaticEmbedder struct {
	Err error
}

func (e StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	runes := []rune(strings.ToLower(strings.TrimSpace(text)))
	out := make([]float32, len(runes))
	for i, r := range runes {
		out[i] = float32(r)
	}
	return out, nil
}

func decodeQuery(vector []float32) string {
	runes := make([]rune, len(vector))
	for i, v := range vector {
		runes[i] = rune(v)
	}
	return string(runes)
}

// Assistant answers with a fixed reply and records what it was asked.
type Assistant struct {
	mu      sync.Mutex
	Answer  string
	Err     error
	History [][]message.Exchange
	Texts   []string
}

func (a *Assistant) Reply(_ context.Context, history []message.Exchange, _ string, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.History = append(a.History, history)
	a.Texts = append(a.Texts, text)
	if a.Err != nil {
		return "", a.Err
	}
	return a.Answer, nil
}

// Dialogs is an in-memory assistant.DialogStore.
type Dialogs struct {
	mu      sync.Mutex
	LoadErr error
	byUser  map[int64][]message.Exchange
}

// NewDialogs creates an empty store.
func NewDialogs() *Dialogs {
	return &Dialogs{byUser: make(map[int64][]message.Exchange)}
}

func (d *Dialogs) Load(_ context.Context, userID int64, limit int) ([]message.Exchange, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LoadErr != nil {
		return nil, d.LoadErr
	}
	all := d.byUser[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]message.Exchange, len(all))
	copy(out, all)
	return out, nil
}

func (d *Dialogs) Append(_ context.Context, userID int64, exchange message.Exchange) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byUser[userID] = append(d.byUser[userID], exchange)
	return nil
}

// Hasher stores passwords as "hashed:" + password.
type Hasher struct{}

func (Hasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (Hasher) Verify(password, encoded string) (bool, error) {
	return encoded == "hashed:"+password, nil
}

// Infra returns a providers.Infra wired to the given fakes.
func Infra(sessions *Sessions, users *Users, links *Links) providers.Infra {
	return providers.Infra{
		Sessions:    sessions.Factory(),
		Hasher:      Hasher{},
		Embedder:    StaticEmbedder{},
		NewUserRepo: users.Repo,
		NewLinkRepo: links.Repo,
	}
}
