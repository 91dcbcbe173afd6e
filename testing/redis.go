package testing

import (
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// RedisAddrEnv names the environment variable that enables Redis tests.
const RedisAddrEnv = "BATON_REDIS_ADDR"

// ConnectRedis returns a client for the Redis server at $BATON_REDIS_ADDR.
//
// The test is skipped when the variable is unset or the server does not
// answer PING. The client is closed on test cleanup.
//
// Parameters:
//   - t: Testing context for skip and cleanup
//
// Returns:
//   - *redis.Client: Connected client
func ConnectRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv(RedisAddrEnv)
	if addr == "" {
		t.Skipf("%s not set, skipping Redis test", RedisAddrEnv)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(t.Context()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis at %s not reachable: %v", addr, err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
