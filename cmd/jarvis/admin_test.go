package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-hub/jarvis/internal/application/inject"
	"github.com/jarvis-hub/jarvis/internal/application/providers"
	"github.com/jarvis-hub/jarvis/internal/application/providers/providerstest"
	"github.com/jarvis-hub/jarvis/internal/domain/shared"
	"github.com/jarvis-hub/jarvis/internal/domain/user"
)

type adminFixture struct {
	users *providerstest.Users
	cache *providerstest.UserCache
	graph *providers.Graph
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := &adminFixture{
		users: providerstest.NewUsers(),
		cache: providerstest.NewUserCache(),
	}
	in := providerstest.Infra(&providerstest.Sessions{}, f.users, providerstest.NewLinks())
	in.UserCache = f.cache

	g, err := providers.New(in)
	require.NoError(t, err)
	f.graph = g
	return f
}

func (f *adminFixture) run(t *testing.T, task inject.TaskFunc) error {
	t.Helper()
	return inject.Invoke(context.Background(), "task", task, inject.Bind(providers.ParamUsers, f.graph.UserService))
}

func TestCreateAdmin_Idempotent(t *testing.T) {
	f := newAdminFixture(t)
	var out bytes.Buffer

	require.NoError(t, f.run(t, createAdmin(&out, 0, f.graph.Lookup)))
	require.NoError(t, f.run(t, createAdmin(&out, 0, f.graph.Lookup)))

	assert.Equal(t, "admin user \"admin\" created\nadmin user \"admin\" already exists\n", out.String())
}

func TestCreateAdmin_RelinkForgetsPreviousTelegramID(t *testing.T) {
	f := newAdminFixture(t)
	var out bytes.Buffer
	ctx := context.Background()

	require.NoError(t, f.run(t, createAdmin(&out, 100, f.graph.Lookup)))

	// auth прочитал администратора и положил его в кеш.
	_, err := f.graph.Lookup.ByTelegramID(ctx, 100)
	require.NoError(t, err)
	require.True(t, f.cache.Has(100))

	require.NoError(t, f.run(t, createAdmin(&out, 200, f.graph.Lookup)))
	assert.Equal(t, []user.TelegramID{100}, f.cache.Invalidated)

	_, err = f.graph.Lookup.ByTelegramID(ctx, 100)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	admin, err := f.graph.Lookup.ByTelegramID(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, user.AdminUsername, admin.Username)
}

func TestCreateAdmin_SameTelegramIDKeepsCache(t *testing.T) {
	f := newAdminFixture(t)
	var out bytes.Buffer

	require.NoError(t, f.run(t, createAdmin(&out, 100, f.graph.Lookup)))
	require.NoError(t, f.run(t, createAdmin(&out, 100, f.graph.Lookup)))
	assert.Empty(t, f.cache.Invalidated)
}

func TestChangePassword(t *testing.T) {
	f := newAdminFixture(t)
	var out bytes.Buffer
	require.NoError(t, f.run(t, createAdmin(&out, 0, f.graph.Lookup)))

	out.Reset()
	require.NoError(t, f.run(t, changePassword(&out, user.AdminUsername, user.DefaultAdminPassword, "s3cret")))
	assert.Equal(t, "password of \"admin\" changed\n", out.String())

	// Старый пароль больше не подходит.
	err := f.run(t, changePassword(&out, user.AdminUsername, user.DefaultAdminPassword, "other"))
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	err = f.run(t, changePassword(&out, "nobody", "x", "y"))
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
