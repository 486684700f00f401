package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/ansm0403/Shopping-mall/config"
	"github.com/ansm0403/Shopping-mall/internal/auth/domain"
	"github.com/ansm0403/Shopping-mall/internal/auth/dto"
	autherror "github.com/ansm0403/Shopping-mall/internal/errors"
	"github.com/ansm0403/Shopping-mall/pkg/constant"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AuthService is the auth orchestrator. Every collaborator is injected; the
// service holds no state of its own beyond configuration.
type AuthService struct {
	users        domain.UserRepository
	ledger       domain.RefreshTokenRepository
	cache        domain.SessionCache
	tokenService TokenGenerator
	audit        domain.AuditLogger
	mailer       domain.Mailer
	cfg          *config.Config
}

func NewAuthService(
	users domain.UserRepository,
	ledger domain.RefreshTokenRepository,
	cache domain.SessionCache,
	tokenService TokenGenerator,
	auditLogger domain.AuditLogger,
	mailer domain.Mailer,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		users:        users,
		ledger:       ledger,
		cache:        cache,
		tokenService: tokenService,
		audit:        auditLogger,
		mailer:       mailer,
		cfg:          cfg,
	}
}

// Register creates the user and kicks off email verification. The response
// is the same whether or not the verification mail could be dispatched, so
// registration never leaks mail-infrastructure state.
func (s *AuthService) Register(ctx context.Context, input dto.RegisterInput, rc domain.RequestContext) (*dto.MessageOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.users.EmailExists(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, autherror.ErrEmailAlreadyInUse
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		NickName:     input.NickName,
		PhoneNumber:  input.PhoneNumber,
		Address:      input.Address,
		Role:         constant.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	verificationToken, err := generateSecureToken()
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(s.cfg.VerificationExpirySec) * time.Second
	if err := s.cache.StoreEmailVerificationToken(ctx, verificationToken, user.ID, ttl); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:    user.ID,
		Action:    domain.AuditRegister,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Success:   true,
	})

	// Mail dispatch is best-effort; a delivery failure must not surface to
	// the registrant.
	if err := s.mailer.SendVerificationEmail(ctx, user.Email, verificationToken); err != nil {
		log.Printf("warn: failed to send verification mail to %s: %v", user.Email, err)
	}

	return &dto.MessageOutput{Message: "Registration complete. Please check your email to verify your account."}, nil
}

// VerifyEmail consumes a single-use verification token and performs an
// implicit login for the verified user.
func (s *AuthService) VerifyEmail(ctx context.Context, token string, rc domain.RequestContext) (*dto.TokenResult, error) {
	userID, err := s.cache.ConsumeEmailVerificationToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, autherror.ErrInvalidVerificationToken
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:    userID,
		Action:    domain.AuditEmailVerified,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Success:   true,
	})

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrUserNotFound
	}

	return s.generateTokens(ctx, user, rc)
}

// Login authenticates credentials behind two defenses: a per-IP fixed-window
// limit and a per-email failed-attempt lockout. Unknown-email and
// wrong-password failures are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, input dto.LoginInput, rc domain.RequestContext) (*dto.TokenResult, error) {
	allowed, err := s.cache.CheckRateLimit(ctx,
		fmt.Sprintf("%s:%s", constant.RateLimitLoginIP, rc.IPAddress),
		s.cfg.LoginIPLimit,
		time.Duration(s.cfg.LoginIPWindowSec)*time.Second)
	if err != nil {
		// Fail closed: no cache, no login path.
		return nil, err
	}
	if !allowed {
		return nil, autherror.ErrTooManyRequests
	}

	attempts, err := s.cache.GetLoginAttempts(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if attempts >= int64(s.cfg.LoginMaxAttempts) {
		remaining, err := s.cache.LoginAttemptsRemaining(ctx, input.Email)
		if err != nil {
			return nil, err
		}

		s.audit.Log(ctx, domain.AuditEntry{
			Action:    domain.AuditAccountLocked,
			IPAddress: rc.IPAddress,
			UserAgent: rc.UserAgent,
			Metadata:  map[string]any{"email": input.Email},
			Success:   false,
		})

		minutes := int(math.Ceil(remaining.Minutes()))
		if minutes < 1 {
			minutes = 1
		}

		return nil, autherror.ErrAccountLocked.WithMessage(
			"account is locked, please try again in %d minute(s)", minutes)
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, s.failLogin(ctx, "", input.Email, "user_not_found", rc)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		return nil, s.failLogin(ctx, user.ID, input.Email, "invalid_password", rc)
	}

	if err := s.cache.ResetLoginAttempts(ctx, input.Email); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:    user.ID,
		Action:    domain.AuditLogin,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Metadata:  map[string]any{"deviceId": rc.DeviceID},
		Success:   true,
	})

	return s.generateTokens(ctx, user, rc)
}

// failLogin records the failure and always returns the same generic
// credentials error.
func (s *AuthService) failLogin(ctx context.Context, userID, email, reason string, rc domain.RequestContext) error {
	if _, err := s.cache.IncrementLoginAttempts(ctx, email); err != nil {
		return err
	}

	metadata := map[string]any{"reason": reason}
	if userID == "" {
		metadata["email"] = email
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:    userID,
		Action:    domain.AuditFailedLogin,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Metadata:  metadata,
		Success:   false,
	})

	return autherror.ErrInvalidCredentials
}

// generateTokens issues a fresh access/refresh pair, writes the ledger row
// and mirrors validity into the cache. Shared by verify-email, login and
// refresh.
func (s *AuthService) generateTokens(ctx context.Context, user *domain.User, rc domain.RequestContext) (*dto.TokenResult, error) {
	tokenID := uuid.New().String()

	accessToken, err := s.tokenService.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refreshToken, err := s.tokenService.GenerateRefreshToken(user, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	refreshTTL := s.tokenService.GetRefreshTokenExpiry()
	now := time.Now()

	record := &domain.RefreshTokenRecord{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: now.Add(refreshTTL),
		UserAgent: rc.UserAgent,
		IPAddress: rc.IPAddress,
		DeviceID:  rc.DeviceID,
		CreatedAt: now,
	}
	if err := s.ledger.Store(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	if err := s.cache.StoreRefreshToken(ctx, user.ID, tokenID, refreshTTL); err != nil {
		return nil, err
	}

	s.enforceSessionCap(ctx, user.ID)

	return &dto.TokenResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.tokenService.GetAccessTokenExpiry().Seconds()),
		TokenType:    constant.TokenTypeBearer,
		User:         dto.NewUserOutput(user),
	}, nil
}

// enforceSessionCap revokes the oldest active session once the user exceeds
// the configured cap. Best-effort: a failure here never fails the issuance
// that triggered it.
func (s *AuthService) enforceSessionCap(ctx context.Context, userID string) {
	if s.cfg.MaxActiveSessions <= 0 {
		return
	}

	count, err := s.ledger.CountActiveByUserID(ctx, userID)
	if err != nil {
		log.Printf("warn: failed to count active sessions for user %s: %v", userID, err)
		return
	}
	if count <= s.cfg.MaxActiveSessions {
		return
	}

	tokenID, err := s.ledger.RevokeOldestForUser(ctx, userID)
	if err != nil {
		log.Printf("warn: failed to revoke oldest session for user %s: %v", userID, err)
		return
	}
	if tokenID == "" {
		return
	}
	if err := s.cache.RevokeRefreshToken(ctx, userID, tokenID); err != nil {
		log.Printf("warn: failed to drop cache marker for session %s: %v", tokenID, err)
	}
}

// Refresh rotates a refresh token. A missing or already-revoked ledger row
// means the presented token was consumed before: that is treated as theft
// and collapses the whole token family, including whichever concurrent
// caller lost the race on the conditional revoke.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, rc domain.RequestContext) (*dto.TokenResult, error) {
	claims, err := s.tokenService.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, autherror.ErrInvalidToken
	}
	if claims.TokenID == "" {
		return nil, autherror.ErrInvalidToken
	}
	userID := claims.Subject

	valid, err := s.cache.IsRefreshTokenValid(ctx, userID, claims.TokenID)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, autherror.ErrInvalidToken.WithMessage("token is expired or has been revoked")
	}

	stored, err := s.ledger.Get(ctx, claims.TokenID, userID)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.IsRevoked {
		return nil, s.handleTokenReuse(ctx, userID, rc)
	}

	if subtle.ConstantTimeCompare([]byte(stored.TokenHash), []byte(hashToken(refreshToken))) != 1 {
		return nil, autherror.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrInvalidToken
	}

	// Rotation: the presented token is single-use. Only one of two
	// concurrent refreshes can win this conditional revoke; the loser is
	// handled as reuse.
	revoked, err := s.ledger.Revoke(ctx, claims.TokenID)
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, s.handleTokenReuse(ctx, userID, rc)
	}
	if err := s.cache.RevokeRefreshToken(ctx, userID, claims.TokenID); err != nil {
		return nil, err
	}
	if err := s.ledger.TouchLastUsed(ctx, claims.TokenID); err != nil {
		log.Printf("warn: failed to update last_used_at for token %s: %v", claims.TokenID, err)
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:    user.ID,
		Action:    domain.AuditTokenRefresh,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Success:   true,
	})

	return s.generateTokens(ctx, user, rc)
}

// handleTokenReuse revokes every session of the user and returns the
// security-violation error. The response never says reuse was the cause.
func (s *AuthService) handleTokenReuse(ctx context.Context, userID string, rc domain.RequestContext) error {
	if err := s.revokeAllUserTokens(ctx, userID); err != nil {
		return err
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:       userID,
		Action:       domain.AuditTokenRefresh,
		IPAddress:    rc.IPAddress,
		UserAgent:    rc.UserAgent,
		Metadata:     map[string]any{"reason": "token_reuse_detected"},
		Success:      false,
		ErrorMessage: "token reuse detected, all sessions revoked",
	})

	return autherror.ErrSecurityViolation
}

// Logout blacklists the remaining lifetime of the access token and revokes
// the presented refresh token. An expired or garbled refresh token is not an
// error here; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, userID, accessToken, refreshToken string, rc domain.RequestContext) (*dto.MessageOutput, error) {
	if accessToken != "" {
		if expiresAt, err := s.tokenService.DecodeExpiry(accessToken); err == nil {
			if remaining := time.Until(expiresAt); remaining > 0 {
				if err := s.cache.BlacklistAccessToken(ctx, accessToken, remaining); err != nil {
					return nil, err
				}
			}
		}
	}

	if refreshToken != "" {
		if claims, err := s.tokenService.VerifyRefreshToken(refreshToken); err == nil && claims.TokenID != "" {
			if err := s.revokeRefreshToken(ctx, userID, claims.TokenID); err != nil {
				return nil, err
			}
		}
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:    userID,
		Action:    domain.AuditLogout,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Success:   true,
	})

	return &dto.MessageOutput{Message: "Logged out."}, nil
}

func (s *AuthService) LogoutAllDevices(ctx context.Context, userID string, rc domain.RequestContext) (*dto.MessageOutput, error) {
	if err := s.revokeAllUserTokens(ctx, userID); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:    userID,
		Action:    domain.AuditLogout,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Metadata:  map[string]any{"allDevices": true},
		Success:   true,
	})

	return &dto.MessageOutput{Message: "Logged out from all devices."}, nil
}

// GetActiveSessions lists the user's live sessions from the ledger. The
// projection never includes the token hash.
func (s *AuthService) GetActiveSessions(ctx context.Context, userID string) ([]dto.SessionOutput, error) {
	records, err := s.ledger.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions := make([]dto.SessionOutput, 0, len(records))
	for _, record := range records {
		sessions = append(sessions, dto.NewSessionOutput(record))
	}

	return sessions, nil
}

func (s *AuthService) RevokeSession(ctx context.Context, userID, tokenID string, rc domain.RequestContext) (*dto.MessageOutput, error) {
	record, err := s.ledger.Get(ctx, tokenID, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, autherror.ErrSessionNotFound
	}

	if err := s.revokeRefreshToken(ctx, userID, tokenID); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, domain.AuditEntry{
		UserID:    userID,
		Action:    domain.AuditLogout,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Metadata:  map[string]any{"revokedTokenId": tokenID},
		Success:   true,
	})

	return &dto.MessageOutput{Message: "Session revoked."}, nil
}

func (s *AuthService) CheckEmailDuplicate(ctx context.Context, email, ipAddress string) (*dto.AvailabilityOutput, error) {
	if err := s.checkDupRateLimit(ctx, constant.RateLimitCheckEmail, ipAddress); err != nil {
		return nil, err
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}

	return availability(exists, "email"), nil
}

func (s *AuthService) CheckNicknameDuplicate(ctx context.Context, nickName, ipAddress string) (*dto.AvailabilityOutput, error) {
	if err := s.checkDupRateLimit(ctx, constant.RateLimitCheckNickname, ipAddress); err != nil {
		return nil, err
	}

	exists, err := s.users.NicknameExists(ctx, nickName)
	if err != nil {
		return nil, err
	}

	return availability(exists, "nickname"), nil
}

func (s *AuthService) checkDupRateLimit(ctx context.Context, purpose, ipAddress string) error {
	allowed, err := s.cache.CheckRateLimit(ctx,
		fmt.Sprintf("%s:%s", purpose, ipAddress),
		s.cfg.DupCheckLimit,
		time.Duration(s.cfg.DupCheckWindowSec)*time.Second)
	if err != nil {
		return err
	}
	if !allowed {
		return autherror.ErrTooManyRequests
	}

	return nil
}

func availability(exists bool, what string) *dto.AvailabilityOutput {
	if exists {
		return &dto.AvailabilityOutput{
			Available: false,
			Message:   fmt.Sprintf("this %s is already in use", what),
		}
	}
	return &dto.AvailabilityOutput{
		Available: true,
		Message:   fmt.Sprintf("this %s is available", what),
	}
}

// VerifyAccessToken backs the request guard: blacklist first, then
// signature/expiry/type.
func (s *AuthService) VerifyAccessToken(ctx context.Context, token string) (*JWTCustomClaims, error) {
	blacklisted, err := s.cache.IsAccessTokenBlacklisted(ctx, token)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, autherror.ErrInvalidToken
	}

	claims, err := s.tokenService.VerifyAccessToken(token)
	if err != nil {
		return nil, autherror.ErrInvalidToken
	}

	return claims, nil
}

func (s *AuthService) GetMe(ctx context.Context, userID string) (*dto.UserOutput, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrUserNotFound
	}

	out := dto.NewUserOutput(user)

	return &out, nil
}

// revokeRefreshToken revokes one ledger row and drops its cache marker.
func (s *AuthService) revokeRefreshToken(ctx context.Context, userID, tokenID string) error {
	if _, err := s.ledger.Revoke(ctx, tokenID); err != nil {
		return err
	}

	return s.cache.RevokeRefreshToken(ctx, userID, tokenID)
}

// revokeAllUserTokens collapses every live session of the user. The ledger
// drives the cache cleanup: active ids are listed first so only exact keys
// are deleted, never a pattern scan.
func (s *AuthService) revokeAllUserTokens(ctx context.Context, userID string) error {
	records, err := s.ledger.GetActiveByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.ledger.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	tokenIDs := make([]string, 0, len(records))
	for _, record := range records {
		tokenIDs = append(tokenIDs, record.ID)
	}

	return s.cache.RevokeRefreshTokens(ctx, userID, tokenIDs)
}

func (s *AuthService) bcryptCost() int {
	if s.cfg.BcryptCost >= bcrypt.MinCost {
		return s.cfg.BcryptCost
	}
	return config.DefaultBcryptCost
}

// hashToken derives the ledger hash of a refresh token. Only this digest is
// ever persisted.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateSecureToken returns 256 bits of entropy, hex-encoded, for
// email-verification links.
func generateSecureToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
