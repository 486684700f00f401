package handler

import (
	"log"

	"github.com/ansm0403/Shopping-mall/config"
	"github.com/ansm0403/Shopping-mall/internal/auth/domain"
	"github.com/ansm0403/Shopping-mall/internal/auth/dto"
	"github.com/ansm0403/Shopping-mall/internal/auth/service"
	autherror "github.com/ansm0403/Shopping-mall/internal/errors"
	"github.com/ansm0403/Shopping-mall/pkg/constant"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *service.AuthService
	cfg         *config.Config
}

func NewAuthHandler(authService *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cfg:         cfg,
	}
}

// requestContext captures the per-request metadata the orchestrator records
// against sessions and audit entries.
func requestContext(c *fiber.Ctx) domain.RequestContext {
	return domain.RequestContext{
		IPAddress: c.IP(),
		UserAgent: string(c.Request().Header.UserAgent()),
		DeviceID:  c.Get("X-Device-Id"),
	}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return writeError(c, autherror.ErrValidation)
	}

	result, err := h.authService.Register(c.Context(), input, requestContext(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return writeError(c, autherror.ErrValidation.WithMessage("token query parameter is required"))
	}

	result, err := h.authService.VerifyEmail(c.Context(), token, requestContext(c))
	if err != nil {
		return writeError(c, err)
	}

	h.setRefreshCookie(c, result.RefreshToken)

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return writeError(c, autherror.ErrValidation)
	}

	result, err := h.authService.Login(c.Context(), input, requestContext(c))
	if err != nil {
		return writeError(c, err)
	}

	h.setRefreshCookie(c, result.RefreshToken)

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	refreshToken := c.Cookies(constant.RefreshTokenCookie)
	if refreshToken == "" {
		return writeError(c, autherror.ErrInvalidToken.WithMessage("refresh token cookie is missing"))
	}

	result, err := h.authService.Refresh(c.Context(), refreshToken, requestContext(c))
	if err != nil {
		return writeError(c, err)
	}

	h.setRefreshCookie(c, result.RefreshToken)

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var input dto.LogoutInput
	if err := c.BodyParser(&input); err != nil {
		return writeError(c, autherror.ErrValidation)
	}

	userID := claimsFromLocals(c).Subject
	refreshToken := c.Cookies(constant.RefreshTokenCookie)

	result, err := h.authService.Logout(c.Context(), userID, input.AccessToken, refreshToken, requestContext(c))
	if err != nil {
		return writeError(c, err)
	}

	h.clearRefreshCookie(c)

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	userID := claimsFromLocals(c).Subject

	result, err := h.authService.LogoutAllDevices(c.Context(), userID, requestContext(c))
	if err != nil {
		return writeError(c, err)
	}

	h.clearRefreshCookie(c)

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *AuthHandler) GetSessions(c *fiber.Ctx) error {
	userID := claimsFromLocals(c).Subject

	sessions, err := h.authService.GetActiveSessions(c.Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(sessions)
}

func (h *AuthHandler) RevokeSession(c *fiber.Ctx) error {
	userID := claimsFromLocals(c).Subject
	tokenID := c.Params("tokenId")

	result, err := h.authService.RevokeSession(c.Context(), userID, tokenID, requestContext(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *AuthHandler) CheckEmail(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return writeError(c, autherror.ErrValidation.WithMessage("email query parameter is required"))
	}

	result, err := h.authService.CheckEmailDuplicate(c.Context(), email, c.IP())
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *AuthHandler) CheckNickname(c *fiber.Ctx) error {
	nickName := c.Query("nickName")
	if nickName == "" {
		return writeError(c, autherror.ErrValidation.WithMessage("nickName query parameter is required"))
	}

	result, err := h.authService.CheckNicknameDuplicate(c.Context(), nickName, c.IP())
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID := claimsFromLocals(c).Subject

	user, err := h.authService.GetMe(c.Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(user)
}

// setRefreshCookie delivers the refresh token as an httpOnly cookie; the
// token itself never appears in a response body.
func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     constant.RefreshTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   h.cfg.RefreshExpiryMin * 60,
		HTTPOnly: true,
		Secure:   h.cfg.Env == "production",
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     constant.RefreshTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   h.cfg.Env == "production",
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func claimsFromLocals(c *fiber.Ctx) *service.JWTCustomClaims {
	claims, ok := c.Locals(localsClaimsKey).(*service.JWTCustomClaims)
	if !ok {
		return &service.JWTCustomClaims{}
	}
	return claims
}

// writeError maps an AuthError onto its status and stable kind; anything
// else is a 500 with no internals leaked.
func writeError(c *fiber.Ctx, err error) error {
	if ae, ok := autherror.AsAuthError(err); ok {
		return c.Status(ae.Status).JSON(fiber.Map{
			"error":   ae.Kind,
			"message": ae.Message,
		})
	}

	log.Printf("error: unhandled error in auth handler: %v", err)

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal_error",
		"message": "an unexpected error occurred",
	})
}
