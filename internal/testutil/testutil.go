// Package testutil provides testing utilities and helpers for the account console.
package testutil

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisProbeTimeout = 2 * time.Second
	redisLockTTL      = 30 * time.Minute
	redisLockPrefix   = "acct-console:testutil:db_lock:"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// FixedTimeFunc returns a function that always returns the same time.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	return slices.Contains([]string{"1", "true", "yes", "y"}, strings.ToLower(os.Getenv(key)))
}

// redisCandidates lists addresses probed for a test Redis. REDIS_ADDR wins
// when set; otherwise the compose service, a local default and the
// docker-compose test port are tried in order.
func redisCandidates() []string {
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		return []string{addr}
	}
	return []string{"redis:6379", "localhost:6379", "localhost:56379"}
}

func pingRedis(addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// SetupTestRedis returns a client on a flushed database reserved for the
// calling test. The test is skipped when no Redis answers, or fails when
// TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA is set.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	var (
		addr  string
		meta  *redis.Client
		tried []string
	)
	for _, candidate := range redisCandidates() {
		c, err := pingRedis(candidate, 0)
		if err != nil {
			tried = append(tried, fmt.Sprintf("%s (%v)", candidate, err))
			continue
		}
		addr, meta = candidate, c
		break
	}
	if meta == nil {
		msg := "Redis not available for testing: " + strings.Join(tried, ", ")
		if envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") {
			t.Fatal(msg)
		}
		t.Skip(msg)
		return nil
	}

	db := reserveRedisDB(t, meta)
	if err := meta.Close(); err != nil {
		t.Logf("warning: failed to close redis meta client: %v", err)
	}

	client, err := pingRedis(addr, db)
	if err != nil {
		t.Fatalf("redis at %s answered on DB 0 but not DB %d: %v", addr, db, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Logf("warning: failed to flush redis DB %d: %v", db, err)
	}
	return client
}

// reserveRedisDB picks the DB index for one test. TEST_REDIS_DB pins it;
// otherwise a lock key in DB 0 claims one of 1..15 so parallel packages do
// not flush each other's data. The lock is released on cleanup.
func reserveRedisDB(t TestingTB, meta *redis.Client) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("Invalid TEST_REDIS_DB=%q, falling back to auto-select", v)
	}

	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for db := 1; db <= 15; db++ {
		ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
		key := redisLockPrefix + strconv.Itoa(db)
		ok, err := meta.SetNX(ctx, key, owner, redisLockTTL).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		releaseOnCleanup(t, meta.Options().Addr, key)
		return db
	}

	t.Logf("all test Redis DBs locked; sharing DB 1")
	return 1
}

func releaseOnCleanup(t TestingTB, addr, key string) {
	tc, ok := any(t).(interface{ Cleanup(func()) })
	if !ok {
		return
	}
	tc.Cleanup(func() {
		c := redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = c.Close() }()
		ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
		defer cancel()
		if err := c.Del(ctx, key).Err(); err != nil {
			t.Logf("warning: failed to release redis db lock %s: %v", key, err)
		}
	})
}
