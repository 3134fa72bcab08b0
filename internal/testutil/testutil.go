package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// redisCandidates lists the addresses probed for a real Redis, most specific
// first. REDIS_ADDR pins the address and disables probing.
func redisCandidates() []string {
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		return []string{addr}
	}
	local := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if local == "" {
		local = "localhost:56379"
	}
	return []string{"redis:6379", "localhost:6379", local}
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// Clock is a settable time source for tests that exercise expiry.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current test time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// SetupMiniRedis starts an in-process Redis and returns it with a client
// bound to it. Both are closed when the test ends.
func SetupMiniRedis(t TestingTB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close redis client: %v", err)
		}
		mr.Close()
	})
	return mr, client
}

// GetTestRedisAddr returns the first reachable Redis address, or the last
// candidate and false when none answers PING.
func GetTestRedisAddr(t TestingTB) (string, bool) {
	t.Helper()

	candidates := redisCandidates()
	for _, addr := range candidates {
		if pingRedis(t, &redis.Options{Addr: addr}) == nil {
			return addr, true
		}
	}
	return candidates[len(candidates)-1], false
}

func pingRedis(t TestingTB, opts *redis.Options) error {
	client := redis.NewClient(opts)
	defer closeQuietly(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Logf("redis not available at %s: %v", opts.Addr, err)
		return err
	}
	return nil
}

func closeQuietly(t TestingTB, client *redis.Client) {
	if err := client.Close(); err != nil {
		t.Logf("warning: close redis client: %v", err)
	}
}

// reserveTestDB picks a logical DB for this test binary so parallel packages
// do not flush each other's keys. TEST_REDIS_DB overrides the choice.
// Otherwise a lock key in DB 0 claims one of DBs 1..15, falling back to 1.
func reserveTestDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer closeQuietly(t, meta)

	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for db := 1; db <= 15; db++ {
		key := fmt.Sprintf("captive-portal:testutil:db_lock:%d", db)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		claimed, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !claimed {
			continue
		}
		t.Cleanup(func() { releaseTestDB(t, addr, key) })
		return db
	}
	t.Logf("no free redis DB at %s, sharing DB 1", addr)
	return 1
}

func releaseTestDB(t TestingTB, addr, key string) {
	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer closeQuietly(t, meta)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := meta.Del(ctx, key).Err(); err != nil {
		t.Logf("warning: release %s: %v", key, err)
	}
}

// SetupTestRedis connects to a real Redis on a freshly flushed DB and closes
// it when the test ends. The test is skipped when no Redis answers, unless
// TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA is set.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := GetTestRedisAddr(t)
	if !ok {
		if requireRedis() {
			t.Fatalf("redis not available for testing at %s", addr)
		}
		t.Skipf("redis not available for testing at %s", addr)
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveTestDB(t, addr)})
	t.Cleanup(func() { closeQuietly(t, client) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush test redis db: %v", err)
	}
	return client
}
