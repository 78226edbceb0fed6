package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry of KEYS[1] to ARGV[2] ms while it still holds ARGV[1].
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (c *Client) runOwned(ctx context.Context, script *redis.Script, key string, args ...any) (bool, error) {
	if c.scripts == nil {
		return false, ErrNotInitialized
	}
	n, err := script.Run(ctx, c.scripts, []string{key}, args...).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DelIfValue removes key only when it still holds value and reports whether
// it did.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	return c.runOwned(ctx, releaseScript, key, value)
}

// ExpireIfValue resets the TTL on key only when it still holds value.
func (c *Client) ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.runOwned(ctx, extendScript, key, value, ttl.Milliseconds())
}
