package redis

import "strings"

const (
	keyNamespace      = "ledger"
	idempotencyPrefix = "idempotency"
	lockPrefix        = "lock"
	cachePrefix       = "cache"
	rateLimitPrefix   = "rl"
)

// Keyspace builds colon-joined keys under the ledger namespace. Blank parts
// are skipped.
type Keyspace struct{}

func (Keyspace) RateLimitKey(scope string, parts ...string) string {
	return joinKey(append([]string{rateLimitPrefix, scope}, parts...))
}

func (Keyspace) IdempotencyKey(scope, id string) string {
	return joinKey([]string{idempotencyPrefix, scope, id})
}

func (Keyspace) LockKey(name string) string {
	return joinKey([]string{lockPrefix, name})
}

func (Keyspace) CacheKey(scope string, parts ...string) string {
	return joinKey(append([]string{cachePrefix, scope}, parts...))
}

func joinKey(parts []string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}
