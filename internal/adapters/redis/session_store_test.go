package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	"github.com/spie-ics/meraki-captive-portal/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	return testutil.SetupMiniRedis(t)
}

func newSession(id string, ttl time.Duration) domainauth.Session {
	now := time.Now()
	return domainauth.Session{
		ID:         id,
		TokenCache: `{"accounts":{}}`,
		IDToken:    "header.payload.sig",
		Account: &domainauth.Account{
			HomeAccountID: "oid.tid",
			Username:      "alice@example.com",
		},
		IsAuthenticated: true,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	session := newSession("sid-1", time.Minute)
	session.Flow = &domainauth.FlowState{
		PKCE: domainauth.PKCECodes{Verifier: "v", Challenge: "c", ChallengeMethod: domainauth.ChallengeMethodS256},
		AuthCodeURLRequest: domainauth.AuthCodeURLRequest{
			State:        "state-1",
			ResponseMode: domainauth.ResponseModeFormPost,
		},
	}

	require.NoError(t, store.Save(ctx, session))

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.TokenCache, got.TokenCache)
	assert.Equal(t, session.IDToken, got.IDToken)
	assert.Equal(t, session.Account, got.Account)
	assert.True(t, got.IsAuthenticated)
	require.NotNil(t, got.Flow)
	assert.Equal(t, "state-1", got.Flow.AuthCodeURLRequest.State)
	assert.Equal(t, "v", got.Flow.PKCE.Verifier)
	assert.WithinDuration(t, session.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestSessionStore_KeyPrefixAndTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewSessionStoreWithPrefix(client, "test:")

	require.NoError(t, store.Save(context.Background(), newSession("sid-2", time.Minute)))

	assert.True(t, mr.Exists("test:sid-2"))
	ttl := mr.TTL("test:sid-2")
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewSessionStore(client)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("sid-3", time.Minute)))
	require.NoError(t, store.Delete(ctx, "sid-3"))

	_, err := store.Get(ctx, "sid-3")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_TTLExpiration(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("sid-4", 2*time.Second)))
	mr.FastForward(3 * time.Second)

	_, err := store.Get(ctx, "sid-4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_SaveValidation(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	err := store.Save(ctx, newSession("", time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session ID cannot be empty")

	err = store.Save(ctx, newSession("sid-5", -time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session is expired")
}

func TestSessionStore_RedisUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewSessionStore(client)
	mr.Close()

	err := store.Save(context.Background(), newSession("sid-6", time.Minute))
	require.Error(t, err)

	_, err = store.Get(context.Background(), "sid-6")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_Ping(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewSessionStore(client)

	require.NoError(t, store.Ping(context.Background()))
	mr.Close()
	require.Error(t, store.Ping(context.Background()))
}
