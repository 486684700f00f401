package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/ansm0403/Shopping-mall/config"
	"github.com/ansm0403/Shopping-mall/internal/auth/domain"
	"github.com/ansm0403/Shopping-mall/internal/auth/dto"
	"github.com/ansm0403/Shopping-mall/internal/auth/service"
	autherror "github.com/ansm0403/Shopping-mall/internal/errors"
	"github.com/ansm0403/Shopping-mall/internal/mocks"
	"github.com/ansm0403/Shopping-mall/pkg/constant"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type authServiceFixture struct {
	users  *mocks.MockUserRepository
	ledger *mocks.MockRefreshTokenRepository
	cache  *mocks.MockSessionCache
	tokens *mocks.MockTokenGenerator
	audit  *mocks.MockAuditLogger
	mailer *mocks.MockMailer
	cfg    *config.Config
	svc    *service.AuthService
}

func newAuthServiceFixture(ctrl *gomock.Controller) *authServiceFixture {
	f := &authServiceFixture{
		users:  mocks.NewMockUserRepository(ctrl),
		ledger: mocks.NewMockRefreshTokenRepository(ctrl),
		cache:  mocks.NewMockSessionCache(ctrl),
		tokens: mocks.NewMockTokenGenerator(ctrl),
		audit:  mocks.NewMockAuditLogger(ctrl),
		mailer: mocks.NewMockMailer(ctrl),
		cfg: &config.Config{
			Env:                    "test",
			AccessExpiryMin:        15,
			RefreshExpiryMin:       10080,
			LoginMaxAttempts:       5,
			LoginLockoutMin:        15,
			LoginIPLimit:           10,
			LoginIPWindowSec:       300,
			DupCheckLimit:          20,
			DupCheckWindowSec:      60,
			MaxActiveSessions:      5,
			BcryptCost:             bcrypt.MinCost,
			VerificationExpirySec:  3600,
			LoginAttemptsWindowSec: 900,
		},
	}
	f.svc = service.NewAuthService(f.users, f.ledger, f.cache, f.tokens, f.audit, f.mailer, f.cfg)

	return f
}

// recordAudit accepts any audit writes and collects them for inspection.
func (f *authServiceFixture) recordAudit() *[]domain.AuditEntry {
	entries := &[]domain.AuditEntry{}
	f.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e domain.AuditEntry) {
		*entries = append(*entries, e)
	}).AnyTimes()

	return entries
}

// expectTokenIssue wires the whole happy issuance path for one user.
func (f *authServiceFixture) expectTokenIssue(user *domain.User) {
	refreshTTL := 7 * 24 * time.Hour

	f.tokens.EXPECT().GenerateAccessToken(user).Return("signed-access", nil)
	f.tokens.EXPECT().GenerateRefreshToken(user, gomock.Any()).Return("signed-refresh", nil)
	f.tokens.EXPECT().GetRefreshTokenExpiry().Return(refreshTTL)
	f.ledger.EXPECT().Store(gomock.Any(), gomock.Any()).Return(nil)
	f.cache.EXPECT().StoreRefreshToken(gomock.Any(), user.ID, gomock.Any(), refreshTTL).Return(nil)
	f.ledger.EXPECT().CountActiveByUserID(gomock.Any(), user.ID).Return(1, nil)
	f.tokens.EXPECT().GetAccessTokenExpiry().Return(15 * time.Minute)
}

func hashOf(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func validRegisterInput() dto.RegisterInput {
	return dto.RegisterInput{
		Email:       "test@example.com",
		Password:    "Password1!",
		NickName:    "tester",
		PhoneNumber: "01012345678",
		Address:     "1 Example Street",
	}
}

func testRequestContext() domain.RequestContext {
	return domain.RequestContext{
		IPAddress: "203.0.113.10",
		UserAgent: "test-agent",
		DeviceID:  "device-1",
	}
}

func refreshClaims(userID, tokenID string) *service.JWTCustomClaims {
	return &service.JWTCustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		TokenType:        service.TokenTypeRefresh,
		TokenID:          tokenID,
	}
}

func TestAuthService_Register_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	f.recordAudit()
	input := validRegisterInput()

	var created *domain.User
	f.users.EXPECT().EmailExists(gomock.Any(), input.Email).Return(false, nil)
	f.users.EXPECT().Create(gomock.Any(), gomock.Any()).Do(func(_ context.Context, u *domain.User) {
		created = u
	}).Return(nil)
	f.cache.EXPECT().StoreEmailVerificationToken(gomock.Any(), gomock.Any(), gomock.Any(), time.Hour).Return(nil)
	f.mailer.EXPECT().SendVerificationEmail(gomock.Any(), input.Email, gomock.Any()).Return(nil)

	out, err := f.svc.Register(context.Background(), input, testRequestContext())

	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Contains(t, out.Message, "check your email")

	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, constant.RoleUser, created.Role)
	assert.NotEqual(t, input.Password, created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte(input.Password)))
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	input := validRegisterInput()
	input.Password = "alllowercase1"

	out, err := f.svc.Register(context.Background(), input, testRequestContext())

	assert.Nil(t, out)
	ae, ok := autherror.AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, autherror.ErrValidation.Kind, ae.Kind)
}

func TestAuthService_Register_EmailAlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	input := validRegisterInput()

	f.users.EXPECT().EmailExists(gomock.Any(), input.Email).Return(true, nil)

	out, err := f.svc.Register(context.Background(), input, testRequestContext())

	assert.Nil(t, out)
	assert.Equal(t, autherror.ErrEmailAlreadyInUse, err)
}

func TestAuthService_Register_MailFailureDoesNotSurface(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	f.recordAudit()
	input := validRegisterInput()

	f.users.EXPECT().EmailExists(gomock.Any(), input.Email).Return(false, nil)
	f.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.cache.EXPECT().StoreEmailVerificationToken(gomock.Any(), gomock.Any(), gomock.Any(), time.Hour).Return(nil)
	f.mailer.EXPECT().SendVerificationEmail(gomock.Any(), input.Email, gomock.Any()).Return(errors.New("smtp down"))

	out, err := f.svc.Register(context.Background(), input, testRequestContext())

	require.NoError(t, err)
	assert.Contains(t, out.Message, "check your email")
}

func TestAuthService_VerifyEmail_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	entries := f.recordAudit()
	user := &domain.User{ID: "user-1", Email: "test@example.com", Role: "user"}

	f.cache.EXPECT().ConsumeEmailVerificationToken(gomock.Any(), "verify-token").Return(user.ID, nil)
	f.users.EXPECT().GetByID(gomock.Any(), user.ID).Return(user, nil)
	f.expectTokenIssue(user)

	result, err := f.svc.VerifyEmail(context.Background(), "verify-token", testRequestContext())

	require.NoError(t, err)
	assert.Equal(t, "signed-access", result.AccessToken)
	assert.Equal(t, "signed-refresh", result.RefreshToken)
	assert.Equal(t, user.Email, result.User.Email)

	require.NotEmpty(t, *entries)
	assert.Equal(t, domain.AuditEmailVerified, (*entries)[0].Action)
}

func TestAuthService_VerifyEmail_UnknownToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)

	// GETDEL on a missing or already-consumed key yields an empty user id.
	f.cache.EXPECT().ConsumeEmailVerificationToken(gomock.Any(), "stale-token").Return("", nil)

	result, err := f.svc.VerifyEmail(context.Background(), "stale-token", testRequestContext())

	assert.Nil(t, result)
	assert.Equal(t, autherror.ErrInvalidVerificationToken, err)
}

func TestAuthService_Login_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	f.recordAudit()
	rc := testRequestContext()

	password := "Password1!"
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &domain.User{ID: "user-1", Email: "test@example.com", PasswordHash: string(hashed), Role: "user"}
	input := dto.LoginInput{Email: user.Email, Password: password}

	f.cache.EXPECT().CheckRateLimit(gomock.Any(),
		constant.RateLimitLoginIP+":"+rc.IPAddress, 10, 5*time.Minute).Return(true, nil)
	f.cache.EXPECT().GetLoginAttempts(gomock.Any(), user.Email).Return(int64(0), nil)
	f.users.EXPECT().GetByEmail(gomock.Any(), user.Email).Return(user, nil)
	f.cache.EXPECT().ResetLoginAttempts(gomock.Any(), user.Email).Return(nil)
	f.expectTokenIssue(user)

	result, err := f.svc.Login(context.Background(), input, rc)

	require.NoError(t, err)
	assert.Equal(t, "signed-access", result.AccessToken)
	assert.Equal(t, "signed-refresh", result.RefreshToken)
	assert.Equal(t, constant.TokenTypeBearer, result.TokenType)
	assert.Equal(t, int((15 * time.Minute).Seconds()), result.ExpiresIn)
}

func TestAuthService_Login_RateLimitedByIP(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	rc := testRequestContext()

	f.cache.EXPECT().CheckRateLimit(gomock.Any(), gomock.Any(), 10, 5*time.Minute).Return(false, nil)

	result, err := f.svc.Login(context.Background(), dto.LoginInput{Email: "a@b.com", Password: "x"}, rc)

	assert.Nil(t, result)
	assert.Equal(t, autherror.ErrTooManyRequests, err)
}

func TestAuthService_Login_RateLimiterUnavailableFailsClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	rc := testRequestContext()

	cacheErr := errors.New("redis unavailable")
	f.cache.EXPECT().CheckRateLimit(gomock.Any(), gomock.Any(), 10, 5*time.Minute).Return(false, cacheErr)

	result, err := f.svc.Login(context.Background(), dto.LoginInput{Email: "a@b.com", Password: "x"}, rc)

	assert.Nil(t, result)
	assert.Equal(t, cacheErr, err)
}

func TestAuthService_Login_LockedAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	entries := f.recordAudit()
	rc := testRequestContext()
	email := "locked@example.com"

	f.cache.EXPECT().CheckRateLimit(gomock.Any(), gomock.Any(), 10, 5*time.Minute).Return(true, nil)
	f.cache.EXPECT().GetLoginAttempts(gomock.Any(), email).Return(int64(5), nil)
	f.cache.EXPECT().LoginAttemptsRemaining(gomock.Any(), email).Return(14*time.Minute+30*time.Second, nil)

	result, err := f.svc.Login(context.Background(), dto.LoginInput{Email: email, Password: "x"}, rc)

	assert.Nil(t, result)
	ae, ok := autherror.AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, autherror.ErrAccountLocked.Kind, ae.Kind)
	// 14m30s rounds up to a whole 15 minutes in the user message.
	assert.Contains(t, ae.Message, "15 minute")

	require.NotEmpty(t, *entries)
	assert.Equal(t, domain.AuditAccountLocked, (*entries)[0].Action)
	assert.False(t, (*entries)[0].Success)
}

func TestAuthService_Login_NoEnumerationSignal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	f.recordAudit()
	rc := testRequestContext()

	hashed, err := bcrypt.GenerateFromPassword([]byte("RealPassword1!"), bcrypt.MinCost)
	require.NoError(t, err)
	knownUser := &domain.User{ID: "user-1", Email: "known@example.com", PasswordHash: string(hashed)}

	// Unknown email.
	f.cache.EXPECT().CheckRateLimit(gomock.Any(), gomock.Any(), 10, 5*time.Minute).Return(true, nil)
	f.cache.EXPECT().GetLoginAttempts(gomock.Any(), "unknown@example.com").Return(int64(0), nil)
	f.users.EXPECT().GetByEmail(gomock.Any(), "unknown@example.com").Return(nil, nil)
	f.cache.EXPECT().IncrementLoginAttempts(gomock.Any(), "unknown@example.com").Return(int64(1), nil)

	_, errUnknown := f.svc.Login(context.Background(),
		dto.LoginInput{Email: "unknown@example.com", Password: "x"}, rc)

	// Known email, wrong password.
	f.cache.EXPECT().CheckRateLimit(gomock.Any(), gomock.Any(), 10, 5*time.Minute).Return(true, nil)
	f.cache.EXPECT().GetLoginAttempts(gomock.Any(), knownUser.Email).Return(int64(0), nil)
	f.users.EXPECT().GetByEmail(gomock.Any(), knownUser.Email).Return(knownUser, nil)
	f.cache.EXPECT().IncrementLoginAttempts(gomock.Any(), knownUser.Email).Return(int64(1), nil)

	_, errWrongPassword := f.svc.Login(context.Background(),
		dto.LoginInput{Email: knownUser.Email, Password: "WrongPassword1!"}, rc)

	// Both failures look the same from the outside.
	assert.Equal(t, autherror.ErrInvalidCredentials, errUnknown)
	assert.Equal(t, autherror.ErrInvalidCredentials, errWrongPassword)
}

func TestAuthService_Refresh_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	entries := f.recordAudit()
	rc := testRequestContext()

	user := &domain.User{ID: "user-1", Email: "test@example.com", Role: "user"}
	presented := "presented-refresh-token"
	stored := &domain.RefreshTokenRecord{
		ID:        "tid-1",
		UserID:    user.ID,
		TokenHash: hashOf(presented),
	}

	f.tokens.EXPECT().VerifyRefreshToken(presented).Return(refreshClaims(user.ID, "tid-1"), nil)
	f.cache.EXPECT().IsRefreshTokenValid(gomock.Any(), user.ID, "tid-1").Return(true, nil)
	f.ledger.EXPECT().Get(gomock.Any(), "tid-1", user.ID).Return(stored, nil)
	f.users.EXPECT().GetByID(gomock.Any(), user.ID).Return(user, nil)
	f.ledger.EXPECT().Revoke(gomock.Any(), "tid-1").Return(true, nil)
	f.cache.EXPECT().RevokeRefreshToken(gomock.Any(), user.ID, "tid-1").Return(nil)
	f.ledger.EXPECT().TouchLastUsed(gomock.Any(), "tid-1").Return(nil)
	f.expectTokenIssue(user)

	result, err := f.svc.Refresh(context.Background(), presented, rc)

	require.NoError(t, err)
	assert.Equal(t, "signed-access", result.AccessToken)
	assert.Equal(t, "signed-refresh", result.RefreshToken)

	require.NotEmpty(t, *entries)
	assert.Equal(t, domain.AuditTokenRefresh, (*entries)[0].Action)
	assert.True(t, (*entries)[0].Success)
}

func TestAuthService_Refresh_ReusedTokenCollapsesFamily(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	entries := f.recordAudit()
	rc := testRequestContext()
	userID := "user-1"
	presented := "stolen-refresh-token"

	active := []*domain.RefreshTokenRecord{
		{ID: "tid-2", UserID: userID},
		{ID: "tid-3", UserID: userID},
	}

	f.tokens.EXPECT().VerifyRefreshToken(presented).Return(refreshClaims(userID, "tid-1"), nil)
	f.cache.EXPECT().IsRefreshTokenValid(gomock.Any(), userID, "tid-1").Return(true, nil)
	// Already consumed: the ledger row is gone.
	f.ledger.EXPECT().Get(gomock.Any(), "tid-1", userID).Return(nil, nil)
	f.ledger.EXPECT().GetActiveByUserID(gomock.Any(), userID).Return(active, nil)
	f.ledger.EXPECT().RevokeAllForUser(gomock.Any(), userID).Return(nil)
	f.cache.EXPECT().RevokeRefreshTokens(gomock.Any(), userID, []string{"tid-2", "tid-3"}).Return(nil)

	result, err := f.svc.Refresh(context.Background(), presented, rc)

	assert.Nil(t, result)
	assert.Equal(t, autherror.ErrSecurityViolation, err)

	require.NotEmpty(t, *entries)
	assert.Equal(t, domain.AuditTokenRefresh, (*entries)[0].Action)
	assert.False(t, (*entries)[0].Success)
	assert.Equal(t, "token_reuse_detected", (*entries)[0].Metadata["reason"])
}

func TestAuthService_Refresh_ConcurrentLoserTreatedAsReuse(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	f.recordAudit()
	rc := testRequestContext()

	user := &domain.User{ID: "user-1", Email: "test@example.com", Role: "user"}
	presented := "raced-refresh-token"
	stored := &domain.RefreshTokenRecord{
		ID:        "tid-1",
		UserID:    user.ID,
		TokenHash: hashOf(presented),
	}

	f.tokens.EXPECT().VerifyRefreshToken(presented).Return(refreshClaims(user.ID, "tid-1"), nil)
	f.cache.EXPECT().IsRefreshTokenValid(gomock.Any(), user.ID, "tid-1").Return(true, nil)
	f.ledger.EXPECT().Get(gomock.Any(), "tid-1", user.ID).Return(stored, nil)
	f.users.EXPECT().GetByID(gomock.Any(), user.ID).Return(user, nil)
	// A concurrent refresh won the conditional revoke first.
	f.ledger.EXPECT().Revoke(gomock.Any(), "tid-1").Return(false, nil)
	f.ledger.EXPECT().GetActiveByUserID(gomock.Any(), user.ID).Return(nil, nil)
	f.ledger.EXPECT().RevokeAllForUser(gomock.Any(), user.ID).Return(nil)
	f.cache.EXPECT().RevokeRefreshTokens(gomock.Any(), user.ID, []string{}).Return(nil)

	result, err := f.svc.Refresh(context.Background(), presented, rc)

	assert.Nil(t, result)
	assert.Equal(t, autherror.ErrSecurityViolation, err)
}

func TestAuthService_Refresh_CacheMarkerMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	rc := testRequestContext()

	f.tokens.EXPECT().VerifyRefreshToken("expired-token").Return(refreshClaims("user-1", "tid-1"), nil)
	f.cache.EXPECT().IsRefreshTokenValid(gomock.Any(), "user-1", "tid-1").Return(false, nil)

	result, err := f.svc.Refresh(context.Background(), "expired-token", rc)

	assert.Nil(t, result)
	ae, ok := autherror.AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, autherror.ErrInvalidToken.Kind, ae.Kind)
}

func TestAuthService_Refresh_HashMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	rc := testRequestContext()

	stored := &domain.RefreshTokenRecord{
		ID:        "tid-1",
		UserID:    "user-1",
		TokenHash: hashOf("some-other-token"),
	}

	f.tokens.EXPECT().VerifyRefreshToken("presented-token").Return(refreshClaims("user-1", "tid-1"), nil)
	f.cache.EXPECT().IsRefreshTokenValid(gomock.Any(), "user-1", "tid-1").Return(true, nil)
	f.ledger.EXPECT().Get(gomock.Any(), "tid-1", "user-1").Return(stored, nil)

	result, err := f.svc.Refresh(context.Background(), "presented-token", rc)

	assert.Nil(t, result)
	assert.Equal(t, autherror.ErrInvalidToken, err)
}

func TestAuthService_Refresh_BadSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	rc := testRequestContext()

	f.tokens.EXPECT().VerifyRefreshToken("garbage").Return(nil, errors.New("signature is invalid"))

	result, err := f.svc.Refresh(context.Background(), "garbage", rc)

	assert.Nil(t, result)
	assert.Equal(t, autherror.ErrInvalidToken, err)
}

func TestAuthService_Logout_BlacklistsAndRevokes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	entries := f.recordAudit()
	rc := testRequestContext()

	f.tokens.EXPECT().DecodeExpiry("access-token").Return(time.Now().Add(10*time.Minute), nil)
	f.cache.EXPECT().BlacklistAccessToken(gomock.Any(), "access-token", gomock.Any()).Return(nil)
	f.tokens.EXPECT().VerifyRefreshToken("refresh-token").Return(refreshClaims("user-1", "tid-1"), nil)
	f.ledger.EXPECT().Revoke(gomock.Any(), "tid-1").Return(true, nil)
	f.cache.EXPECT().RevokeRefreshToken(gomock.Any(), "user-1", "tid-1").Return(nil)

	out, err := f.svc.Logout(context.Background(), "user-1", "access-token", "refresh-token", rc)

	require.NoError(t, err)
	assert.NotEmpty(t, out.Message)

	require.NotEmpty(t, *entries)
	assert.Equal(t, domain.AuditLogout, (*entries)[0].Action)
}

func TestAuthService_Logout_GarbledTokensStillSucceed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	f.recordAudit()
	rc := testRequestContext()

	f.tokens.EXPECT().DecodeExpiry("garbled-access").Return(time.Time{}, errors.New("malformed"))
	f.tokens.EXPECT().VerifyRefreshToken("garbled-refresh").Return(nil, errors.New("malformed"))

	out, err := f.svc.Logout(context.Background(), "user-1", "garbled-access", "garbled-refresh", rc)

	require.NoError(t, err)
	assert.NotEmpty(t, out.Message)
}

func TestAuthService_Logout_ExpiredAccessTokenSkipsBlacklist(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	f.recordAudit()
	rc := testRequestContext()

	// Already expired: blacklisting would only waste a cache entry.
	f.tokens.EXPECT().DecodeExpiry("stale-access").Return(time.Now().Add(-time.Minute), nil)

	out, err := f.svc.Logout(context.Background(), "user-1", "stale-access", "", rc)

	require.NoError(t, err)
	assert.NotEmpty(t, out.Message)
}

func TestAuthService_LogoutAllDevices(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	entries := f.recordAudit()
	rc := testRequestContext()
	userID := "user-1"

	active := []*domain.RefreshTokenRecord{
		{ID: "tid-1", UserID: userID},
		{ID: "tid-2", UserID: userID},
	}

	f.ledger.EXPECT().GetActiveByUserID(gomock.Any(), userID).Return(active, nil)
	f.ledger.EXPECT().RevokeAllForUser(gomock.Any(), userID).Return(nil)
	f.cache.EXPECT().RevokeRefreshTokens(gomock.Any(), userID, []string{"tid-1", "tid-2"}).Return(nil)

	out, err := f.svc.LogoutAllDevices(context.Background(), userID, rc)

	require.NoError(t, err)
	assert.Contains(t, out.Message, "all devices")

	require.NotEmpty(t, *entries)
	assert.Equal(t, true, (*entries)[0].Metadata["allDevices"])
}

func TestAuthService_GetActiveSessions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	userID := "user-1"
	lastUsed := time.Now().Add(-time.Hour)

	records := []*domain.RefreshTokenRecord{
		{
			ID:         "tid-1",
			UserID:     userID,
			TokenHash:  "super-secret-hash",
			UserAgent:  "Mozilla/5.0",
			IPAddress:  "203.0.113.10",
			CreatedAt:  time.Now().Add(-2 * time.Hour),
			LastUsedAt: &lastUsed,
		},
	}

	f.ledger.EXPECT().GetActiveByUserID(gomock.Any(), userID).Return(records, nil)

	sessions, err := f.svc.GetActiveSessions(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "tid-1", sessions[0].ID)
	assert.Equal(t, "Mozilla/5.0", sessions[0].UserAgent)
	assert.Equal(t, "203.0.113.10", sessions[0].IPAddress)
	assert.Equal(t, &lastUsed, sessions[0].LastUsedAt)
}

func TestAuthService_RevokeSession_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	f.recordAudit()
	rc := testRequestContext()

	record := &domain.RefreshTokenRecord{ID: "tid-1", UserID: "user-1"}

	f.ledger.EXPECT().Get(gomock.Any(), "tid-1", "user-1").Return(record, nil)
	f.ledger.EXPECT().Revoke(gomock.Any(), "tid-1").Return(true, nil)
	f.cache.EXPECT().RevokeRefreshToken(gomock.Any(), "user-1", "tid-1").Return(nil)

	out, err := f.svc.RevokeSession(context.Background(), "user-1", "tid-1", rc)

	require.NoError(t, err)
	assert.NotEmpty(t, out.Message)
}

func TestAuthService_RevokeSession_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	rc := testRequestContext()

	// Scoped by user id: another user's session looks like a missing one.
	f.ledger.EXPECT().Get(gomock.Any(), "tid-1", "user-1").Return(nil, nil)

	out, err := f.svc.RevokeSession(context.Background(), "user-1", "tid-1", rc)

	assert.Nil(t, out)
	assert.Equal(t, autherror.ErrSessionNotFound, err)
}

func TestAuthService_CheckEmailDuplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)

	f.cache.EXPECT().CheckRateLimit(gomock.Any(),
		constant.RateLimitCheckEmail+":203.0.113.10", 20, time.Minute).Return(true, nil)
	f.users.EXPECT().EmailExists(gomock.Any(), "free@example.com").Return(false, nil)

	out, err := f.svc.CheckEmailDuplicate(context.Background(), "free@example.com", "203.0.113.10")

	require.NoError(t, err)
	assert.True(t, out.Available)
}

func TestAuthService_CheckEmailDuplicate_RateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)

	f.cache.EXPECT().CheckRateLimit(gomock.Any(), gomock.Any(), 20, time.Minute).Return(false, nil)

	out, err := f.svc.CheckEmailDuplicate(context.Background(), "free@example.com", "203.0.113.10")

	assert.Nil(t, out)
	assert.Equal(t, autherror.ErrTooManyRequests, err)
}

func TestAuthService_CheckNicknameDuplicate_Taken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)

	f.cache.EXPECT().CheckRateLimit(gomock.Any(),
		constant.RateLimitCheckNickname+":203.0.113.10", 20, time.Minute).Return(true, nil)
	f.users.EXPECT().NicknameExists(gomock.Any(), "taken").Return(true, nil)

	out, err := f.svc.CheckNicknameDuplicate(context.Background(), "taken", "203.0.113.10")

	require.NoError(t, err)
	assert.False(t, out.Available)
	assert.Contains(t, out.Message, "already in use")
}

func TestAuthService_VerifyAccessToken_Blacklisted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)

	// Blacklist wins even over a structurally valid token, so the token
	// service is never consulted.
	f.cache.EXPECT().IsAccessTokenBlacklisted(gomock.Any(), "some-token").Return(true, nil)

	claims, err := f.svc.VerifyAccessToken(context.Background(), "some-token")

	assert.Nil(t, claims)
	assert.Equal(t, autherror.ErrInvalidToken, err)
}

func TestAuthService_VerifyAccessToken_Valid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	expected := &service.JWTCustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		TokenType:        service.TokenTypeAccess,
		Role:             "user",
	}

	f.cache.EXPECT().IsAccessTokenBlacklisted(gomock.Any(), "good-token").Return(false, nil)
	f.tokens.EXPECT().VerifyAccessToken("good-token").Return(expected, nil)

	claims, err := f.svc.VerifyAccessToken(context.Background(), "good-token")

	require.NoError(t, err)
	assert.Equal(t, expected, claims)
}

func TestAuthService_GetMe(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	user := &domain.User{ID: "user-1", Email: "test@example.com", NickName: "tester", Role: "user"}

	f.users.EXPECT().GetByID(gomock.Any(), "user-1").Return(user, nil)

	out, err := f.svc.GetMe(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, user.Email, out.Email)
	assert.Equal(t, user.NickName, out.NickName)
}

func TestAuthService_GetMe_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)

	f.users.EXPECT().GetByID(gomock.Any(), "ghost").Return(nil, nil)

	out, err := f.svc.GetMe(context.Background(), "ghost")

	assert.Nil(t, out)
	assert.Equal(t, autherror.ErrUserNotFound, err)
}

func TestAuthService_SessionCapRevokesOldest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newAuthServiceFixture(ctrl)
	f.recordAudit()
	user := &domain.User{ID: "user-1", Email: "test@example.com", Role: "user"}

	refreshTTL := 7 * 24 * time.Hour
	f.tokens.EXPECT().VerifyRefreshToken("presented").Return(refreshClaims(user.ID, "tid-1"), nil)
	f.cache.EXPECT().IsRefreshTokenValid(gomock.Any(), user.ID, "tid-1").Return(true, nil)
	f.ledger.EXPECT().Get(gomock.Any(), "tid-1", user.ID).
		Return(&domain.RefreshTokenRecord{ID: "tid-1", UserID: user.ID, TokenHash: hashOf("presented")}, nil)
	f.users.EXPECT().GetByID(gomock.Any(), user.ID).Return(user, nil)
	f.ledger.EXPECT().Revoke(gomock.Any(), "tid-1").Return(true, nil)
	f.cache.EXPECT().RevokeRefreshToken(gomock.Any(), user.ID, "tid-1").Return(nil)
	f.ledger.EXPECT().TouchLastUsed(gomock.Any(), "tid-1").Return(nil)

	f.tokens.EXPECT().GenerateAccessToken(user).Return("signed-access", nil)
	f.tokens.EXPECT().GenerateRefreshToken(user, gomock.Any()).Return("signed-refresh", nil)
	f.tokens.EXPECT().GetRefreshTokenExpiry().Return(refreshTTL)
	f.ledger.EXPECT().Store(gomock.Any(), gomock.Any()).Return(nil)
	f.cache.EXPECT().StoreRefreshToken(gomock.Any(), user.ID, gomock.Any(), refreshTTL).Return(nil)
	// One session over the cap of five: the oldest one is pushed out.
	f.ledger.EXPECT().CountActiveByUserID(gomock.Any(), user.ID).Return(6, nil)
	f.ledger.EXPECT().RevokeOldestForUser(gomock.Any(), user.ID).Return("tid-oldest", nil)
	f.cache.EXPECT().RevokeRefreshToken(gomock.Any(), user.ID, "tid-oldest").Return(nil)
	f.tokens.EXPECT().GetAccessTokenExpiry().Return(15 * time.Minute)

	result, err := f.svc.Refresh(context.Background(), "presented", testRequestContext())

	require.NoError(t, err)
	assert.NotNil(t, result)
}
