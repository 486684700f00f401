package domain

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	NickName     string
	PhoneNumber  string
	Address      string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshTokenRecord is one row of the session ledger. ID doubles as the
// token-family identifier carried in the refresh token's tokenId claim.
// Only the SHA-256 hash of the token string is stored, never the raw token.
type RefreshTokenRecord struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	IsRevoked  bool
	RevokedAt  *time.Time
	UserAgent  string
	IPAddress  string
	DeviceID   string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// RequestContext carries the per-request metadata every orchestrator
// operation receives from the HTTP layer.
type RequestContext struct {
	IPAddress string
	UserAgent string
	DeviceID  string
}
