// Package ratelimit provides Redis-backed rate limiting using the INCR + EXPIRE
// fixed window algorithm. The HTTP layer throttles session creation and pick
// submission per client address.
package ratelimit

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:create:", "rl:submit:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// Key prefixes for the odds rules.
const (
	KeyCreate = "rl:create:"
	KeySubmit = "rl:submit:"
)

// CreateRule limits session creation per client address.
func CreateRule(limit int, window time.Duration) Rule {
	return Rule{Key: KeyCreate, Limit: limit, Window: window}
}

// SubmitRule limits pick submissions per client address.
func SubmitRule(limit int, window time.Duration) Rule {
	return Rule{Key: KeySubmit, Limit: limit, Window: window}
}

// Name returns the rule name used in logs and metric labels.
func (r Rule) Name() string {
	switch r.Key {
	case KeyCreate:
		return "create"
	case KeySubmit:
		return "submit"
	default:
		return r.Key
	}
}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow checks whether the given identifier is within the rate limit defined by
// rule. It increments the counter in Redis and sets the expiry on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does not
// block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	if rule.Limit <= 0 {
		return true, nil
	}
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// Without a TTL the counter would never reset.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	if int(count) > rule.Limit {
		return false, nil
	}

	return true, nil
}

// RetryAfter returns how long until the identifier's current window resets.
// It returns zero when no window is open or Redis cannot be reached.
func (l *Limiter) RetryAfter(ctx context.Context, identifier string, rule Rule) time.Duration {
	ttl, err := l.client.TTL(ctx, rule.Key+identifier).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("[ratelimit] redis TTL error key=%s: %v", rule.Key+identifier, err)
		return 0
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}
