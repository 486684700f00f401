package dto

import (
	"time"

	"github.com/ansm0403/Shopping-mall/internal/auth/domain"
)

// UserOutput is the public projection of a user. The password hash never
// leaves the service layer.
type UserOutput struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	NickName  string    `json:"nickName"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUserOutput(u *domain.User) UserOutput {
	return UserOutput{
		ID:        u.ID,
		Email:     u.Email,
		NickName:  u.NickName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// TokenResult is what the orchestrator returns after issuing a pair. The
// refresh token is json-suppressed: the handler moves it into the httpOnly
// cookie and the body only ever carries the access token.
type TokenResult struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"-"`
	ExpiresIn    int        `json:"expiresIn"`
	TokenType    string     `json:"tokenType"`
	User         UserOutput `json:"user"`
}

// SessionOutput projects a ledger row for session listing. The token hash is
// deliberately absent.
type SessionOutput struct {
	ID         string     `json:"id"`
	UserAgent  string     `json:"userAgent"`
	IPAddress  string     `json:"ipAddress"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
}

func NewSessionOutput(r *domain.RefreshTokenRecord) SessionOutput {
	return SessionOutput{
		ID:         r.ID,
		UserAgent:  r.UserAgent,
		IPAddress:  r.IPAddress,
		CreatedAt:  r.CreatedAt,
		LastUsedAt: r.LastUsedAt,
	}
}

type AvailabilityOutput struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

type MessageOutput struct {
	Message string `json:"message"`
}
