package constant

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	// RefreshTokenCookie is the cookie carrying the refresh token. The raw
	// token never appears in a JSON response body.
	RefreshTokenCookie = "refreshToken"

	TokenTypeBearer = "Bearer"
)

const (
	LoginAttemptWindow = 15 * time.Minute
	LoginIPWindow      = 5 * time.Minute
	DupCheckWindow     = time.Minute
	VerificationTTL    = time.Hour
)

const (
	RateLimitLoginIP       = "login"
	RateLimitCheckEmail    = "check-email"
	RateLimitCheckNickname = "check-nickname"
)
