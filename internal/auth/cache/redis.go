package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache implements domain.SessionCache on Redis. Every entry expires;
// nothing here is a source of truth. Key layout:
//
//	login:attempts:<email>      failed-login counter
//	blacklist:<token>           logged-out access token marker
//	refresh:<userID>:<tokenID>  refresh-token validity marker
//	email:verify:<token>        verification token -> user id, single use
//	rate:<purpose>:<identifier> fixed-window rate-limit counter
type SessionCache struct {
	redis         redis.UniversalClient
	attemptWindow time.Duration
}

func NewSessionCache(client redis.UniversalClient, attemptWindow time.Duration) *SessionCache {
	return &SessionCache{
		redis:         client,
		attemptWindow: attemptWindow,
	}
}

func loginAttemptsKey(email string) string { return "login:attempts:" + email }

func blacklistKey(token string) string { return "blacklist:" + token }

func refreshKey(userID, tokenID string) string {
	return fmt.Sprintf("refresh:%s:%s", userID, tokenID)
}

func verificationKey(token string) string { return "email:verify:" + token }

func rateLimitKey(key string) string { return "rate:" + key }

// IncrementLoginAttempts bumps the failed-login counter for the email. The
// first failure in a window starts the lockout clock; later failures share
// its expiry.
func (c *SessionCache) IncrementLoginAttempts(ctx context.Context, email string) (int64, error) {
	key := loginAttemptsKey(email)

	attempts, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing login attempts: %w", err)
	}
	if attempts == 1 {
		if err := c.redis.Expire(ctx, key, c.attemptWindow).Err(); err != nil {
			return 0, fmt.Errorf("setting login attempts expiry: %w", err)
		}
	}

	return attempts, nil
}

func (c *SessionCache) GetLoginAttempts(ctx context.Context, email string) (int64, error) {
	attempts, err := c.redis.Get(ctx, loginAttemptsKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading login attempts: %w", err)
	}

	return attempts, nil
}

func (c *SessionCache) ResetLoginAttempts(ctx context.Context, email string) error {
	return c.redis.Del(ctx, loginAttemptsKey(email)).Err()
}

// LoginAttemptsRemaining reports how long the current lockout window has
// left, derived from the counter key's TTL.
func (c *SessionCache) LoginAttemptsRemaining(ctx context.Context, email string) (time.Duration, error) {
	ttl, err := c.redis.TTL(ctx, loginAttemptsKey(email)).Result()
	if err != nil {
		return 0, fmt.Errorf("reading login attempts TTL: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}

	return ttl, nil
}

func (c *SessionCache) BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	return c.redis.SetEx(ctx, blacklistKey(token), "1", ttl).Err()
}

func (c *SessionCache) IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	result, err := c.redis.Get(ctx, blacklistKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("reading blacklist entry: %w", err)
	}

	return result == "1", nil
}

func (c *SessionCache) StoreRefreshToken(ctx context.Context, userID, tokenID string, ttl time.Duration) error {
	return c.redis.SetEx(ctx, refreshKey(userID, tokenID), "1", ttl).Err()
}

func (c *SessionCache) IsRefreshTokenValid(ctx context.Context, userID, tokenID string) (bool, error) {
	result, err := c.redis.Get(ctx, refreshKey(userID, tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("reading refresh validity: %w", err)
	}

	return result == "1", nil
}

func (c *SessionCache) RevokeRefreshToken(ctx context.Context, userID, tokenID string) error {
	return c.redis.Del(ctx, refreshKey(userID, tokenID)).Err()
}

// RevokeRefreshTokens deletes the exact validity markers for the given token
// ids. The ledger supplies the id list; the cache is never scanned by
// wildcard.
func (c *SessionCache) RevokeRefreshTokens(ctx context.Context, userID string, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		keys = append(keys, refreshKey(userID, tokenID))
	}

	return c.redis.Del(ctx, keys...).Err()
}

func (c *SessionCache) StoreEmailVerificationToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	return c.redis.SetEx(ctx, verificationKey(token), userID, ttl).Err()
}

// ConsumeEmailVerificationToken reads and deletes the token atomically, so a
// verification link works exactly once.
func (c *SessionCache) ConsumeEmailVerificationToken(ctx context.Context, token string) (string, error) {
	userID, err := c.redis.GetDel(ctx, verificationKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("consuming verification token: %w", err)
	}

	return userID, nil
}

// CheckRateLimit implements a fixed-window counter. The increment is never
// rolled back: a request that trips the limit still consumes the window.
func (c *SessionCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := rateLimitKey(key)

	current, err := c.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	if current == 1 {
		if err := c.redis.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("setting rate limit expiry: %w", err)
		}
	}

	return current <= int64(limit), nil
}
