package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	"github.com/spie-ics/meraki-captive-portal/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*SessionStore, *testutil.Clock) {
	clock := testutil.NewClock(testutil.TestTime())
	s := NewSessionStore()
	s.now = clock.Now
	return s, clock
}

func TestSessionStore_SaveGetDelete(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	sess := domainauth.Session{ID: "sid", IsAuthenticated: true, ExpiresAt: clock.Now().Add(time.Minute)}
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	require.NoError(t, store.Delete(ctx, "sid"))
	_, err = store.Get(ctx, "sid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_Expiry(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "sid", ExpiresAt: clock.Now().Add(time.Minute)}))
	clock.Advance(time.Minute)

	_, err := store.Get(ctx, "sid")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestSessionStore_SaveValidation(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, domainauth.Session{ExpiresAt: clock.Now().Add(time.Minute)}))
	assert.Error(t, store.Save(ctx, domainauth.Session{ID: "sid", ExpiresAt: clock.Now()}))

	_, err := store.Get(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_Sweep(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "short", ExpiresAt: clock.Now().Add(time.Second)}))
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "long", ExpiresAt: clock.Now().Add(time.Hour)}))
	clock.Advance(time.Minute)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())

	_, err := store.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_ = store.Save(ctx, domainauth.Session{ID: id, ExpiresAt: clock.Now().Add(time.Minute)})
			_, _ = store.Get(ctx, id)
			_ = store.Delete(ctx, id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, store.Len())
}

func TestSessionStore_RunSweeperStopsOnCancel(t *testing.T) {
	store, _ := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSessionStore_Ping(t *testing.T) {
	require.NoError(t, NewSessionStore().Ping(context.Background()))
}
