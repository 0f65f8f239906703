package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

type fakeClient struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
	ttls    map[string]time.Duration
	err     error

	// transactions counts TxPipelined calls.
	transactions int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
		ttls:    make(map[string]time.Duration),
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case []byte:
		return string(s)
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func (f *fakeClient) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[key] = toString(value)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", f.err)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.strings[k]; ok {
			n++
		}
		if _, ok := f.lists[k]; ok {
			n++
		}
		delete(f.strings, k)
		delete(f.lists, k)
	}
	return redis.NewIntResult(n, f.err)
}

func (f *fakeClient) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, f.err)
}

func (f *fakeClient) RPush(_ context.Context, key string, values ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, v := range values {
		f.lists[key] = append(f.lists[key], toString(v))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeClient) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = slice(f.lists[key], start, stop)
	return redis.NewStatusResult("OK", f.err)
}

func (f *fakeClient) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	return redis.NewStringSliceResult(slice(f.lists[key], start, stop), nil)
}

// fakePipe queues commands until the transaction commits. Methods the
// dialog store does not use panic through the nil embedded Pipeliner.
type fakePipe struct {
	redis.Pipeliner
	client *fakeClient
	queued []func()
}

func (p *fakePipe) RPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	p.queued = append(p.queued, func() { p.client.RPush(ctx, key, values...) })
	return redis.NewIntCmd(ctx)
}

func (p *fakePipe) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	p.queued = append(p.queued, func() { p.client.LTrim(ctx, key, start, stop) })
	return redis.NewStatusCmd(ctx)
}

func (p *fakePipe) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	p.queued = append(p.queued, func() { p.client.Expire(ctx, key, expiration) })
	return redis.NewBoolCmd(ctx)
}

func (f *fakeClient) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	f.mu.Lock()
	f.transactions++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	pipe := &fakePipe{client: f}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	for _, op := range pipe.queued {
		op()
	}
	return nil, nil
}

// slice applies Redis list index semantics.
func slice(list []string, start, stop int64) []string {
	n := int64(len(list))
	if start < 0 {
		start = max(n+start, 0)
	}
	if stop < 0 {
		stop = n + stop
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []string{}
	}
	return append([]string(nil), list[start:stop+1]...)
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheWithClient(newFakeClient())

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	require.NoError(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	require.NoError(t, cache.Delete(ctx, "k"))
	assert.ErrorIs(t, cache.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestCache_Validation(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheWithClient(newFakeClient())

	assert.ErrorIs(t, cache.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, "k", nil, 0), ErrCacheNilValue)
	assert.ErrorIs(t, cache.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, cache.Set(ctx, "k", make(chan int), 0), ErrCacheSerialization)
	assert.NoError(t, cache.Close())
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	cfg.URL = "redis://:secret@cache:6380/2"
	opts, err = cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestDialogStore_AppendTrimLoad(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := NewDialogStore(NewCacheWithClient(client), 3, time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, 42, message.Exchange{UserText: fmt.Sprintf("q%d", i)}))
	}

	assert.Len(t, client.lists[DialogKey(42)], 3)
	assert.Equal(t, time.Hour, client.ttls[DialogKey(42)])

	all, err := store.Load(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "q2", all[0].UserText)
	assert.Equal(t, "q4", all[2].UserText)

	last, err := store.Load(ctx, 42, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "q3", last[0].UserText)

	none, err := store.Load(ctx, 7, 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, store.Clear(ctx, 42))
	cleared, err := store.Load(ctx, 42, 5)
	require.NoError(t, err)
	assert.Empty(t, cleared)
}

func TestDialogStore_Errors(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := NewDialogStore(NewCacheWithClient(client), 0, 0)

	client.lists[DialogKey(1)] = []string{"{not json"}
	_, err := store.Load(ctx, 1, 5)
	assert.ErrorIs(t, err, ErrCacheSerialization)

	client.err = errors.New("connection refused")
	_, err = store.Load(ctx, 1, 5)
	assert.ErrorContains(t, err, "connection refused")
	assert.Error(t, store.Append(ctx, 1, message.Exchange{}))
}

func TestDialogStore_AppendIsOneTransaction(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := NewDialogStore(NewCacheWithClient(client), 2, time.Minute)

	require.NoError(t, store.Append(ctx, 5, message.Exchange{UserText: "a"}))
	require.NoError(t, store.Append(ctx, 5, message.Exchange{UserText: "b"}))
	require.NoError(t, store.Append(ctx, 5, message.Exchange{UserText: "c"}))
	assert.Equal(t, 3, client.transactions)
	assert.Len(t, client.lists[DialogKey(5)], 2)

	// A failed transaction leaves neither the entry nor a TTL behind.
	client.err = errors.New("EXECABORT")
	err := store.Append(ctx, 9, message.Exchange{UserText: "lost"})
	assert.ErrorContains(t, err, "append dialog")
	assert.Equal(t, 4, client.transactions)
	assert.NotContains(t, client.lists, DialogKey(9))
	assert.NotContains(t, client.ttls, DialogKey(9))
}

func TestUserCache(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	cache := NewUserCache(NewCacheWithClient(client), 0)

	tg := user.TelegramID(555)
	u := &user.User{ID: 3, Username: "tony", HashedPassword: "secret-hash", TelegramID: &tg, Level: 1}

	_, err := cache.GetByTelegramID(ctx, tg)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, u))
	assert.NotContains(t, client.strings[UserTelegramKey(555)], "secret-hash")
	assert.Equal(t, TTLUserCache, client.ttls[UserTelegramKey(555)])

	got, err := cache.GetByTelegramID(ctx, tg)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, "tony", got.Username)
	assert.Empty(t, got.HashedPassword)
	require.NotNil(t, got.TelegramID)
	assert.Equal(t, tg, *got.TelegramID)

	require.NoError(t, cache.Set(ctx, &user.User{ID: 4}))

	require.NoError(t, cache.Invalidate(ctx, tg))
	_, err = cache.GetByTelegramID(ctx, tg)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
