package redis

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
)

// newTestRedis starts an in-memory Redis for push idempotency keys and trip
// change notifications. Server and client are closed when the test ends.
func newTestRedis(t *testing.T) (*redislib.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

// pushKey is the Redis key holding the stored response of a push.
func pushKey(store *IdempotencyStore, idempotencyKey string) string {
	return store.prefix + idempotencyKey
}
