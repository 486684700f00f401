package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*SessionCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewSessionCache(client, 15*time.Minute), mr
}

func TestSessionCache_LoginAttempts(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	email := "test@example.com"

	attempts, err := c.GetLoginAttempts(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, int64(0), attempts)

	for i := 1; i <= 3; i++ {
		attempts, err = c.IncrementLoginAttempts(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, int64(i), attempts)
	}

	attempts, err = c.GetLoginAttempts(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, int64(3), attempts)

	// The first failure started the clock; later ones did not push it out.
	ttl := mr.TTL("login:attempts:" + email)
	assert.Equal(t, 15*time.Minute, ttl)

	require.NoError(t, c.ResetLoginAttempts(ctx, email))

	attempts, err = c.GetLoginAttempts(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, int64(0), attempts)
}

func TestSessionCache_LoginAttemptsExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	email := "test@example.com"

	_, err := c.IncrementLoginAttempts(ctx, email)
	require.NoError(t, err)

	mr.FastForward(16 * time.Minute)

	attempts, err := c.GetLoginAttempts(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, int64(0), attempts)
}

func TestSessionCache_LoginAttemptsRemaining(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	email := "test@example.com"

	// No counter, no lockout clock.
	remaining, err := c.LoginAttemptsRemaining(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), remaining)

	_, err = c.IncrementLoginAttempts(ctx, email)
	require.NoError(t, err)

	mr.FastForward(5 * time.Minute)

	remaining, err = c.LoginAttemptsRemaining(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, remaining)
}

func TestSessionCache_BlacklistAccessToken(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	blacklisted, err := c.IsAccessTokenBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, blacklisted)

	require.NoError(t, c.BlacklistAccessToken(ctx, "token-a", 10*time.Minute))

	blacklisted, err = c.IsAccessTokenBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, blacklisted)

	// The marker lives exactly as long as the token would have.
	mr.FastForward(11 * time.Minute)

	blacklisted, err = c.IsAccessTokenBlacklisted(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, blacklisted)
}

func TestSessionCache_BlacklistAccessToken_NonPositiveTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.BlacklistAccessToken(ctx, "expired-token", -time.Minute))

	assert.False(t, mr.Exists("blacklist:expired-token"))
}

func TestSessionCache_RefreshTokenLifecycle(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	valid, err := c.IsRefreshTokenValid(ctx, "user-1", "tid-1")
	require.NoError(t, err)
	assert.False(t, valid)

	require.NoError(t, c.StoreRefreshToken(ctx, "user-1", "tid-1", 7*24*time.Hour))

	valid, err = c.IsRefreshTokenValid(ctx, "user-1", "tid-1")
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, c.RevokeRefreshToken(ctx, "user-1", "tid-1"))

	valid, err = c.IsRefreshTokenValid(ctx, "user-1", "tid-1")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestSessionCache_RevokeRefreshTokens(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.StoreRefreshToken(ctx, "user-1", "tid-1", time.Hour))
	require.NoError(t, c.StoreRefreshToken(ctx, "user-1", "tid-2", time.Hour))
	require.NoError(t, c.StoreRefreshToken(ctx, "user-2", "tid-3", time.Hour))

	require.NoError(t, c.RevokeRefreshTokens(ctx, "user-1", []string{"tid-1", "tid-2"}))

	assert.False(t, mr.Exists("refresh:user-1:tid-1"))
	assert.False(t, mr.Exists("refresh:user-1:tid-2"))
	// Another user's marker is untouched.
	assert.True(t, mr.Exists("refresh:user-2:tid-3"))
}

func TestSessionCache_RevokeRefreshTokens_EmptyList(t *testing.T) {
	c, _ := newTestCache(t)

	assert.NoError(t, c.RevokeRefreshTokens(context.Background(), "user-1", nil))
}

func TestSessionCache_EmailVerificationToken_SingleUse(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.StoreEmailVerificationToken(ctx, "verify-abc", "user-1", time.Hour))

	userID, err := c.ConsumeEmailVerificationToken(ctx, "verify-abc")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	// The first consume deleted the key.
	userID, err = c.ConsumeEmailVerificationToken(ctx, "verify-abc")
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestSessionCache_EmailVerificationToken_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.StoreEmailVerificationToken(ctx, "verify-abc", "user-1", time.Hour))

	mr.FastForward(2 * time.Hour)

	userID, err := c.ConsumeEmailVerificationToken(ctx, "verify-abc")
	require.NoError(t, err)
	assert.Empty(t, userID)
}

func TestSessionCache_CheckRateLimit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := c.CheckRateLimit(ctx, "login:203.0.113.10", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := c.CheckRateLimit(ctx, "login:203.0.113.10", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestSessionCache_CheckRateLimit_WindowResets(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.CheckRateLimit(ctx, "login:203.0.113.10", 3, time.Minute)
		require.NoError(t, err)
	}

	mr.FastForward(61 * time.Second)

	allowed, err := c.CheckRateLimit(ctx, "login:203.0.113.10", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSessionCache_CheckRateLimit_KeysAreIndependent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.CheckRateLimit(ctx, "login:203.0.113.10", 3, time.Minute)
		require.NoError(t, err)
	}

	// A different caller identity still has a fresh window.
	allowed, err := c.CheckRateLimit(ctx, "login:198.51.100.7", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSessionCache_CheckRateLimit_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c := NewSessionCache(client, 15*time.Minute)

	mr.Close()

	_, err := c.CheckRateLimit(context.Background(), "login:203.0.113.10", 3, time.Minute)
	assert.Error(t, err)
}
