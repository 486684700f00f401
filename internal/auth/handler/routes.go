package handler

import (
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/auth")

	auth.Post("/register", h.Register)
	auth.Get("/verify-email", h.VerifyEmail)
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Get("/check-email", h.CheckEmail)
	auth.Get("/check-nickname", h.CheckNickname)

	protected := auth.Group("", h.RequireAuth())
	protected.Post("/logout", h.Logout)
	protected.Post("/logout-all", h.LogoutAll)
	protected.Get("/sessions", h.GetSessions)
	protected.Delete("/sessions/:tokenId", h.RevokeSession)
	protected.Get("/me", h.Me)
}
