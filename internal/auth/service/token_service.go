package service

//go:generate mockgen -destination=../../mocks/mock_token_generator.go -package=mocks github.com/ansm0403/Shopping-mall/internal/auth/service TokenGenerator

import (
	"fmt"
	"time"

	"github.com/ansm0403/Shopping-mall/internal/auth/domain"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type TokenGenerator interface {
	GenerateAccessToken(user *domain.User) (string, error)
	GenerateRefreshToken(user *domain.User, tokenID string) (string, error)
	VerifyAccessToken(tokenString string) (*JWTCustomClaims, error)
	VerifyRefreshToken(tokenString string) (*JWTCustomClaims, error)
	DecodeExpiry(tokenString string) (time.Time, error)
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

// TokenService signs and verifies the access/refresh pair. The two token
// types use separate secrets, so a refresh token can never pass where an
// access token is expected even before the type claim is checked.
type TokenService struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

type JWTCustomClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	TokenType string `json:"type"`
	TokenID   string `json:"tokenId,omitempty"`
	Role      string `json:"role,omitempty"`
}

func NewTokenService(accessSecret, refreshSecret string, accessMinutes, refreshMinutes int) *TokenService {
	return &TokenService{
		AccessTokenSecret:  accessSecret,
		RefreshTokenSecret: refreshSecret,
		AccessTokenExpiry:  time.Duration(accessMinutes) * time.Minute,
		RefreshTokenExpiry: time.Duration(refreshMinutes) * time.Minute,
	}
}

// GenerateAccessToken signs a short-lived access token carrying the user's
// role for downstream authorization decisions.
func (ts *TokenService) GenerateAccessToken(user *domain.User) (string, error) {
	now := time.Now()

	claims := JWTCustomClaims{
		Email:     user.Email,
		TokenType: TokenTypeAccess,
		Role:      user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ts.AccessTokenSecret))
}

// GenerateRefreshToken signs a refresh token bound to its ledger row through
// the tokenId claim.
func (ts *TokenService) GenerateRefreshToken(user *domain.User, tokenID string) (string, error) {
	now := time.Now()

	claims := JWTCustomClaims{
		Email:     user.Email,
		TokenType: TokenTypeRefresh,
		TokenID:   tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.RefreshTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ts.RefreshTokenSecret))
}

func (ts *TokenService) VerifyAccessToken(tokenString string) (*JWTCustomClaims, error) {
	return ts.verify(tokenString, ts.AccessTokenSecret, TokenTypeAccess)
}

func (ts *TokenService) VerifyRefreshToken(tokenString string) (*JWTCustomClaims, error) {
	return ts.verify(tokenString, ts.RefreshTokenSecret, TokenTypeRefresh)
}

func (ts *TokenService) verify(tokenString, secret, expectedType string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.TokenType != expectedType {
		return nil, fmt.Errorf("token type mismatch: expected %s, got %s", expectedType, claims.TokenType)
	}

	return claims, nil
}

// DecodeExpiry extracts the exp claim without verifying the signature. Used
// at logout to compute the blacklist TTL of an access token the caller is
// discarding anyway.
func (ts *TokenService) DecodeExpiry(tokenString string) (time.Time, error) {
	claims := &JWTCustomClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiry claim")
	}

	return claims.ExpiresAt.Time, nil
}

func (ts *TokenService) GetAccessTokenExpiry() time.Duration {
	return ts.AccessTokenExpiry
}

func (ts *TokenService) GetRefreshTokenExpiry() time.Duration {
	return ts.RefreshTokenExpiry
}
