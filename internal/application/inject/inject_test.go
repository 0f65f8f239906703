package inject

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

type fakeResource struct {
	name     string
	released bool
}

// trackedScoped returns a scoped provider that records acquire and the
// release path (commit when the handler succeeded, rollback otherwise).
func trackedScoped(rec *recorder, name string, bindings ...Binding) *Provider {
	return Scoped(name, func(_ context.Context, _ *Deps, yield func(*fakeResource) bool) error {
		res := &fakeResource{name: name}
		rec.add("open " + name)
		ok := yield(res)
		res.released = true
		if ok {
			rec.add("commit " + name)
		} else {
			rec.add("rollback " + name)
		}
		return nil
	}, bindings...)
}

func noop(context.Context, *message.Message, *Deps) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// SCOPED RESOURCES
// ══════════════════════════════════════════════════════════════════════════════

func TestCall_ReleasesInReverseOrderOnSuccess(t *testing.T) {
	rec := &recorder{}
	a := trackedScoped(rec, "a")
	b := trackedScoped(rec, "b")
	c := trackedScoped(rec, "c")

	h, err := Wrap("handler", func(context.Context, *message.Message, *Deps) error {
		rec.add("handle")
		return nil
	}, Bind("a", a), Bind("b", b), Bind("c", c))
	require.NoError(t, err)

	require.NoError(t, h.Call(context.Background(), message.New("x")))

	assert.Equal(t, []string{
		"open a", "open b", "open c",
		"handle",
		"commit c", "commit b", "commit a",
	}, rec.list())
}

func TestCall_ReleasesOnHandlerErrorAndKeepsIt(t *testing.T) {
	rec := &recorder{}
	handlerErr := errors.New("boom")

	h := MustWrap("handler", func(context.Context, *message.Message, *Deps) error {
		return handlerErr
	}, Bind("a", trackedScoped(rec, "a")), Bind("b", trackedScoped(rec, "b")))

	err := h.Call(context.Background(), message.New("x"))

	assert.ErrorIs(t, err, handlerErr)
	assert.Equal(t, []string{"open a", "open b", "rollback b", "rollback a"}, rec.list())
}

func TestCall_NestedScopedProviderReleasedAfterDependent(t *testing.T) {
	rec := &recorder{}
	db := trackedScoped(rec, "db")
	repo := trackedScoped(rec, "repo", Bind("db", db))

	h := MustWrap("handler", noop, Bind("repo", repo))
	require.NoError(t, h.Call(context.Background(), nil))

	assert.Equal(t, []string{"open db", "open repo", "commit repo", "commit db"}, rec.list())
}

func TestCall_ReleaseErrorDoesNotMaskHandlerError(t *testing.T) {
	rec := &recorder{}
	releaseErr := errors.New("release failed")
	handlerErr := errors.New("handler failed")

	failing := Scoped("failing", func(_ context.Context, _ *Deps, yield func(int) bool) error {
		yield(1)
		rec.add("release failing")
		return releaseErr
	})

	h := MustWrap("handler", func(context.Context, *message.Message, *Deps) error {
		return handlerErr
	}, Bind("first", trackedScoped(rec, "first")), Bind("failing", failing))

	err := h.Call(context.Background(), nil)

	assert.ErrorIs(t, err, handlerErr)
	assert.NotErrorIs(t, err, releaseErr)
	assert.Equal(t, []string{"open first", "release failing", "rollback first"}, rec.list())
}

func TestCall_ReleaseErrorReturnedWhenHandlerSucceeds(t *testing.T) {
	rec := &recorder{}
	commitErr := errors.New("commit failed")

	failing := Scoped("failing", func(_ context.Context, _ *Deps, yield func(int) bool) error {
		yield(1)
		return commitErr
	})

	h := MustWrap("handler", noop,
		Bind("first", trackedScoped(rec, "first")),
		Bind("failing", failing),
	)

	err := h.Call(context.Background(), nil)

	assert.ErrorIs(t, err, commitErr)
	// the earlier resource is still released after the failing one
	assert.Equal(t, []string{"open first", "commit first"}, rec.list())
}

func TestCall_ReleasePanicIsContained(t *testing.T) {
	rec := &recorder{}
	panicking := Scoped("panicking", func(_ context.Context, _ *Deps, yield func(int) bool) error {
		yield(1)
		panic("release exploded")
	})

	h := MustWrap("handler", noop, Bind("first", trackedScoped(rec, "first")), Bind("p", panicking))

	err := h.Call(context.Background(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "release exploded")
	assert.Equal(t, []string{"open first", "commit first"}, rec.list())
}

func TestCall_HandlerPanicReleasesAndRepanics(t *testing.T) {
	rec := &recorder{}
	h := MustWrap("handler", func(context.Context, *message.Message, *Deps) error {
		panic("handler exploded")
	}, Bind("a", trackedScoped(rec, "a")))

	assert.PanicsWithValue(t, "handler exploded", func() {
		_ = h.Call(context.Background(), nil)
	})
	assert.Equal(t, []string{"open a", "rollback a"}, rec.list())
}

func TestCall_FreshResourcePerInvocation(t *testing.T) {
	rec := &recorder{}
	res := trackedScoped(rec, "res")

	var seen []*fakeResource
	h := MustWrap("handler", func(_ context.Context, _ *message.Message, deps *Deps) error {
		r, err := Get[*fakeResource](deps, "res")
		if err != nil {
			return err
		}
		assert.False(t, r.released)
		seen = append(seen, r)
		return nil
	}, Bind("res", res))

	require.NoError(t, h.Call(context.Background(), nil))
	require.NoError(t, h.Call(context.Background(), nil))

	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
	assert.True(t, seen[0].released)
	assert.True(t, seen[1].released)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION ERRORS
// ══════════════════════════════════════════════════════════════════════════════

func TestCall_ZeroYieldIsConfigurationError(t *testing.T) {
	rec := &recorder{}
	empty := Scoped("empty", func(context.Context, *Deps, func(int) bool) error {
		return nil
	})

	called := false
	h := MustWrap("handler", func(context.Context, *message.Message, *Deps) error {
		called = true
		return nil
	}, Bind("first", trackedScoped(rec, "first")), Bind("empty", empty))

	err := h.Call(context.Background(), nil)

	assert.True(t, shared.IsConfiguration(err))
	assert.False(t, called)
	assert.Equal(t, []string{"open first", "rollback first"}, rec.list())
}

func TestCall_DoubleYieldIsConfigurationError(t *testing.T) {
	twice := Scoped("twice", func(_ context.Context, _ *Deps, yield func(int) bool) error {
		if !yield(1) {
			return nil
		}
		yield(2)
		return nil
	})

	h := MustWrap("handler", noop, Bind("twice", twice))

	err := h.Call(context.Background(), nil)
	assert.True(t, shared.IsConfiguration(err))
	assert.Contains(t, err.Error(), "yielded more than once")
}

func TestCall_AcquireErrorIsNotConfiguration(t *testing.T) {
	rec := &recorder{}
	dbDown := errors.New("connection refused")
	broken := Scoped("broken", func(context.Context, *Deps, func(int) bool) error {
		return dbDown
	})

	h := MustWrap("handler", noop, Bind("first", trackedScoped(rec, "first")), Bind("broken", broken))

	err := h.Call(context.Background(), nil)

	assert.ErrorIs(t, err, dbDown)
	assert.False(t, shared.IsConfiguration(err))
	assert.Equal(t, []string{"open first", "rollback first"}, rec.list())
}

func TestGet_MissingBindingAndTypeMismatch(t *testing.T) {
	num := Value("num", func(context.Context, *Deps) (int, error) { return 7, nil })

	var missingErr, mismatchErr error
	h := MustWrap("handler", func(_ context.Context, _ *message.Message, deps *Deps) error {
		_, missingErr = Get[int](deps, "other")
		_, mismatchErr = Get[string](deps, "num")
		v, err := Get[int](deps, "num")
		assert.Equal(t, 7, v)
		return err
	}, Bind("num", num))

	require.NoError(t, h.Call(context.Background(), nil))
	assert.True(t, shared.IsConfiguration(missingErr))
	assert.True(t, shared.IsConfiguration(mismatchErr))
}

func TestWrap_Validation(t *testing.T) {
	ok := Value("ok", func(context.Context, *Deps) (int, error) { return 1, nil })

	tests := []struct {
		name     string
		fn       HandlerFunc
		bindings []Binding
	}{
		{name: "nil handler", fn: nil},
		{name: "empty param", fn: noop, bindings: []Binding{Bind("", ok)}},
		{name: "duplicate param", fn: noop, bindings: []Binding{Bind("x", ok), Bind("x", ok)}},
		{name: "nil provider", fn: noop, bindings: []Binding{Bind("x", nil)}},
		{name: "nil provider func", fn: noop, bindings: []Binding{Bind("x", Value[int]("nilfn", nil))}},
		{name: "nested nil provider", fn: noop, bindings: []Binding{
			Bind("x", Value("outer", func(context.Context, *Deps) (int, error) { return 0, nil }, Bind("y", nil))),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Wrap("handler", tt.fn, tt.bindings...)
			assert.True(t, shared.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestValidate_DetectsCycle(t *testing.T) {
	a := Value("a", func(context.Context, *Deps) (int, error) { return 1, nil })
	b := Value("b", func(context.Context, *Deps) (int, error) { return 2, nil }, Bind("a", a))
	// providers are immutable through the public API, so close the loop by hand
	a.bindings = []Binding{Bind("b", b)}

	err := Validate("handler", []Binding{Bind("a", a)})

	require.Error(t, err)
	assert.True(t, shared.IsConfiguration(err))
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestValidate_SharedProviderIsNotACycle(t *testing.T) {
	db := Value("db", func(context.Context, *Deps) (int, error) { return 1, nil })
	users := Value("users", func(context.Context, *Deps) (int, error) { return 2, nil }, Bind("db", db))
	links := Value("links", func(context.Context, *Deps) (int, error) { return 3, nil }, Bind("db", db))

	assert.NoError(t, Validate("handler", []Binding{Bind("users", users), Bind("links", links)}))
}

// ══════════════════════════════════════════════════════════════════════════════
// RESOLUTION
// ══════════════════════════════════════════════════════════════════════════════

type nodeC struct{ hits int }
type nodeB struct{ c *nodeC }
type nodeA struct{ b *nodeB }

func TestResolve_ChainBuildsIndependentGraphs(t *testing.T) {
	c := Value("c", func(context.Context, *Deps) (*nodeC, error) { return &nodeC{}, nil })
	b := Value("b", func(_ context.Context, deps *Deps) (*nodeB, error) {
		cv, err := Get[*nodeC](deps, "c")
		if err != nil {
			return nil, err
		}
		return &nodeB{c: cv}, nil
	}, Bind("c", c))
	a := Value("a", func(_ context.Context, deps *Deps) (*nodeA, error) {
		bv, err := Get[*nodeB](deps, "b")
		if err != nil {
			return nil, err
		}
		return &nodeA{b: bv}, nil
	}, Bind("b", b))

	var graphs []*nodeA
	h := MustWrap("handler", func(_ context.Context, _ *message.Message, deps *Deps) error {
		av, err := Get[*nodeA](deps, "a")
		if err != nil {
			return err
		}
		av.b.c.hits++
		graphs = append(graphs, av)
		return nil
	}, Bind("a", a))

	require.NoError(t, h.Call(context.Background(), message.New("one")))
	require.NoError(t, h.Call(context.Background(), message.New("two")))

	require.Len(t, graphs, 2)
	for _, g := range graphs {
		require.NotNil(t, g.b)
		require.NotNil(t, g.b.c)
		assert.Equal(t, 1, g.b.c.hits)
	}
	assert.NotSame(t, graphs[0], graphs[1])
	assert.NotSame(t, graphs[0].b, graphs[1].b)
	assert.NotSame(t, graphs[0].b.c, graphs[1].b.c)
}

func TestCall_ExplicitValueWinsOverBinding(t *testing.T) {
	providerCalls := 0
	p := Value("p", func(context.Context, *Deps) (string, error) {
		providerCalls++
		return "from provider", nil
	})

	var got string
	h := MustWrap("handler", func(_ context.Context, _ *message.Message, deps *Deps) error {
		var err error
		got, err = Get[string](deps, "value")
		return err
	}, Bind("value", p))

	require.NoError(t, h.Call(context.Background(), nil, With("value", "explicit")))
	assert.Equal(t, "explicit", got)
	assert.Equal(t, 0, providerCalls)

	require.NoError(t, h.Call(context.Background(), nil))
	assert.Equal(t, "from provider", got)
	assert.Equal(t, 1, providerCalls)
}

func TestCall_ValueProviderErrorIsWrapped(t *testing.T) {
	failure := errors.New("no api key")
	p := Value("client", func(context.Context, *Deps) (int, error) { return 0, failure })

	h := MustWrap("handler", noop, Bind("client", p))
	err := h.Call(context.Background(), nil)

	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "provider client")
}

func TestCall_CancelledContextStopsResolution(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := MustWrap("handler", noop, Bind("a", trackedScoped(rec, "a")))
	err := h.Call(ctx, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.list())
}

func TestInvoke_RunsTaskWithScope(t *testing.T) {
	rec := &recorder{}
	err := Invoke(context.Background(), "task", func(_ context.Context, deps *Deps) error {
		assert.True(t, deps.Has("db"))
		rec.add("task")
		return nil
	}, Bind("db", trackedScoped(rec, "db")))

	require.NoError(t, err)
	assert.Equal(t, []string{"open db", "task", "commit db"}, rec.list())
}

func TestScope_CloseIsIdempotent(t *testing.T) {
	rec := &recorder{}
	scope := NewScope("test", nil)
	deps, err := resolve(context.Background(), scope, "test", []Binding{Bind("a", trackedScoped(rec, "a"))}, nil)
	require.NoError(t, err)
	assert.True(t, deps.Has("a"))
	assert.Equal(t, 1, scope.Len())

	require.NoError(t, scope.Close(nil))
	require.NoError(t, scope.Close(errors.New("ignored")))

	assert.Equal(t, []string{"open a", "commit a"}, rec.list())
	assert.Equal(t, 0, scope.Len())
}

func TestScope_AcquireAfterCloseFails(t *testing.T) {
	rec := &recorder{}
	scope := NewScope("test", nil)
	require.NoError(t, scope.Close(nil))

	_, err := resolve(context.Background(), scope, "test", []Binding{Bind("a", trackedScoped(rec, "a"))}, nil)
	assert.True(t, shared.IsConfiguration(err))
}
