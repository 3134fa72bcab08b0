package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	"github.com/spie-ics/meraki-captive-portal/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_RealRedisRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	client := testutil.SetupTestRedis(t)
	store := NewSessionStoreWithPrefix(client, "it:session:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("sid-it", 2*time.Second)))

	got, err := store.Get(ctx, "sid-it")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Username())

	ttl, err := client.TTL(ctx, "it:session:sid-it").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Delete(ctx, "sid-it"))
	_, err = store.Get(ctx, "sid-it")
	assert.True(t, errors.Is(err, domainauth.ErrSessionNotFound))
}
