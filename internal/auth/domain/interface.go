package domain

import (
	"context"
	"time"
)

//go:generate mockgen -destination=../../mocks/mock_domain.go -package=mocks github.com/ansm0403/Shopping-mall/internal/auth/domain UserRepository,RefreshTokenRepository,SessionCache,AuditLogger,Mailer

// UserRepository is the credential store. Lookups return (nil, nil) when no
// row matches so callers can distinguish absence from infrastructure failure.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	EmailExists(ctx context.Context, email string) (bool, error)
	NicknameExists(ctx context.Context, nickName string) (bool, error)
}

// RefreshTokenRepository is the durable session ledger. Records are never
// physically deleted; revocation is terminal.
type RefreshTokenRepository interface {
	Store(ctx context.Context, record *RefreshTokenRecord) error
	Get(ctx context.Context, tokenID, userID string) (*RefreshTokenRecord, error)
	// Revoke marks the record revoked only if it is not already. The boolean
	// reports whether this call performed the transition; under concurrent
	// rotation of the same token exactly one caller sees true.
	Revoke(ctx context.Context, tokenID string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) error
	GetActiveByUserID(ctx context.Context, userID string) ([]*RefreshTokenRecord, error)
	CountActiveByUserID(ctx context.Context, userID string) (int, error)
	RevokeOldestForUser(ctx context.Context, userID string) (string, error)
	TouchLastUsed(ctx context.Context, tokenID string) error
}

// SessionCache is the fast, expiring side of session state: login-attempt
// counters, the access-token blacklist, refresh validity markers,
// single-use verification tokens, and fixed-window rate-limit counters.
type SessionCache interface {
	IncrementLoginAttempts(ctx context.Context, email string) (int64, error)
	GetLoginAttempts(ctx context.Context, email string) (int64, error)
	ResetLoginAttempts(ctx context.Context, email string) error
	LoginAttemptsRemaining(ctx context.Context, email string) (time.Duration, error)

	BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error
	IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error)

	StoreRefreshToken(ctx context.Context, userID, tokenID string, ttl time.Duration) error
	IsRefreshTokenValid(ctx context.Context, userID, tokenID string) (bool, error)
	RevokeRefreshToken(ctx context.Context, userID, tokenID string) error
	// RevokeRefreshTokens deletes exact (userID, tokenID) markers. Callers
	// derive the id list from the ledger; the cache is never scanned by
	// pattern.
	RevokeRefreshTokens(ctx context.Context, userID string, tokenIDs []string) error

	StoreEmailVerificationToken(ctx context.Context, token, userID string, ttl time.Duration) error
	// ConsumeEmailVerificationToken returns the mapped user id and deletes
	// the token in the same call (single use). Returns "" when the token is
	// unknown or expired.
	ConsumeEmailVerificationToken(ctx context.Context, token string) (string, error)

	// CheckRateLimit increments the fixed-window counter for key and reports
	// whether the caller is still within limit. The window is consumed even
	// by the request that trips the limit.
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// AuditLogger records security events. Implementations must never fail the
// calling operation; writes are best-effort and non-blocking.
type AuditLogger interface {
	Log(ctx context.Context, entry AuditEntry)
}

// Mailer delivers the email-verification message. Dispatch failures are the
// caller's to swallow; registration must not fail observably because of
// them.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
}
