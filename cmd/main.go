package main

import (
	"context"
	"log"

	"github.com/ansm0403/Shopping-mall/config"
	"github.com/ansm0403/Shopping-mall/db"
	"github.com/ansm0403/Shopping-mall/internal/auth/audit"
	"github.com/ansm0403/Shopping-mall/internal/auth/cache"
	"github.com/ansm0403/Shopping-mall/internal/auth/domain"
	"github.com/ansm0403/Shopping-mall/internal/auth/handler"
	repo "github.com/ansm0403/Shopping-mall/internal/auth/repository/postgres"
	"github.com/ansm0403/Shopping-mall/internal/auth/service"
	"github.com/ansm0403/Shopping-mall/internal/mailer"
	"github.com/gofiber/fiber/v2"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if cfg.RunMigrations {
		if err := db.ApplyMigrations(cfg.DBURL); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
	}

	dbPool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("failed to initialize PostgreSQL: %v", err)
	}
	defer dbPool.Close()

	redisClient, err := db.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Fatalf("failed to initialize Redis: %v", err)
	}
	defer redisClient.Close()

	repository := repo.NewPostgresRepository(dbPool)
	sessionCache := cache.NewSessionCache(redisClient, cfg.LoginAttemptWindow())

	auditLogger := audit.NewLogger(repository, 256)
	defer auditLogger.Close()

	var mail domain.Mailer
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.FrontendURL)
	} else {
		log.Printf("SMTP_HOST not set, verification links will be logged instead of mailed")
		mail = mailer.NewLogMailer(cfg.FrontendURL)
	}

	tokenService := service.NewTokenService(
		cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		cfg.AccessExpiryMin, cfg.RefreshExpiryMin)
	authService := service.NewAuthService(
		repository, repository, sessionCache, tokenService, auditLogger, mail, cfg)
	authHandler := handler.NewAuthHandler(authService, cfg)

	app := fiber.New()
	handler.RegisterRoutes(app, authHandler)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
