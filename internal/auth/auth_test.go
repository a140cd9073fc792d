package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/logging"
)

type failingStore struct{ MemoryStore }

func (*failingStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func newTestService(t *testing.T) (*Service, *Validator, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	v := newTestValidator(t, clk)
	store := NewMemoryStore(clk, logging.Discard())
	t.Cleanup(func() { store.Close() })
	return NewService(v, store, "admin", clk, logging.Discard()), v, clk
}

func TestService_AuthenticateAndLogout(t *testing.T) {
	ctx := context.Background()
	svc, v, _ := newTestService(t)

	token, _, err := v.Issue(Identity{UserID: "7", Username: "staff"}, time.Hour)
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "staff", id.Username)

	require.NoError(t, svc.Logout(ctx, id))

	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestService_Check(t *testing.T) {
	ctx := context.Background()
	svc, v, clk := newTestService(t)

	token, _, err := v.Issue(Identity{UserID: "7", Username: "staff"}, 10*time.Minute)
	require.NoError(t, err)
	id, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)

	assert.NoError(t, svc.Check(ctx, id, clk.Now()))
	assert.ErrorIs(t, svc.Check(ctx, id, clk.Now().Add(10*time.Minute)), ErrExpired)

	require.NoError(t, svc.Logout(ctx, id))
	assert.ErrorIs(t, svc.Check(ctx, id, clk.Now()), ErrRevoked)
}

func TestService_LogoutOfExpiredTokenIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTestService(t)

	id := Identity{Username: "staff", TokenID: "old", ExpiresAt: clk.Now().Add(-time.Minute)}
	assert.NoError(t, svc.Logout(ctx, id))

	revoked, err := svc.store.IsRevoked(ctx, "old")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestService_StoreFailure(t *testing.T) {
	clk := clock.NewFake(epoch)
	v := newTestValidator(t, clk)
	svc := NewService(v, &failingStore{}, "admin", clk, logging.Discard())

	token, _, err := v.Issue(Identity{UserID: "7", Username: "staff"}, time.Hour)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRevoked)
}

func TestService_IsAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.True(t, svc.IsAdmin(Identity{Role: "admin"}))
	assert.False(t, svc.IsAdmin(Identity{Role: "staff"}))

	noAdmin := NewService(svc.validator, svc.store, "", nil, nil)
	assert.False(t, noAdmin.IsAdmin(Identity{}))
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(epoch)
	store := NewMemoryStore(clk, logging.Discard())
	defer store.Close()

	require.NoError(t, store.Revoke(ctx, "tok", time.Minute))
	revoked, _ := store.IsRevoked(ctx, "tok")
	assert.True(t, revoked)

	clk.Advance(time.Minute)
	revoked, _ = store.IsRevoked(ctx, "tok")
	assert.False(t, revoked)

	assert.Equal(t, 1, store.cleanup())
	assert.Equal(t, 0, store.cleanup())
	assert.NoError(t, store.Close())
}
