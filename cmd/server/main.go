package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tenant-auth/internal/config"
	"github.com/iliyamo/tenant-auth/internal/database"
	"github.com/iliyamo/tenant-auth/internal/guard"
	"github.com/iliyamo/tenant-auth/internal/handler"
	"github.com/iliyamo/tenant-auth/internal/middleware"
	"github.com/iliyamo/tenant-auth/internal/queue"
	"github.com/iliyamo/tenant-auth/internal/repository"
	"github.com/iliyamo/tenant-auth/internal/router"
	"github.com/iliyamo/tenant-auth/internal/session"
	"github.com/iliyamo/tenant-auth/internal/token"
)

func main() {
	// Local development convenience; in production the variables come
	// from the environment and the file is absent.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; session cache and rate limiting degrade to the database")
	}

	issuer := token.NewIssuer(token.IssuerConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		AccessTTL: cfg.AccessTTL,
		APIKeyTTL: cfg.APIKeyTTL,
		MFATTL:    cfg.MFATTL,
	})

	profiles := repository.NewProfileRepo(db)
	sessions := repository.NewSessionRepo(db)
	attempts := repository.NewAttemptRepo(db)
	resets := repository.NewResetTokenRepo(db)
	apiKeys := repository.NewAPIKeyRepo(db)
	backupCodes := repository.NewBackupCodeRepo(db)

	store := session.New(sessions, rdb, cfg.SessionTTL, cfg.RefreshTTL)
	lockGuard := guard.New(profiles, attempts, rdb)

	authH := handler.NewAuthHandler(cfg, issuer, profiles, store, lockGuard)
	pwH := handler.NewPasswordHandler(cfg, profiles, resets, store)
	mfaH := handler.NewMFAHandler(cfg, issuer, profiles, backupCodes, store, lockGuard)
	keyH := handler.NewAPIKeyHandler(cfg, issuer, apiKeys)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, pwH, mfaH, keyH, issuer, apiKeys)

	// Notification consumer runs for the life of the process and
	// reconnects on its own.
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	// Periodic sweep of expired and revoked sessions.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if n, err := store.CleanupExpired(ctx); err != nil {
				log.Printf("session sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("session sweep removed %d sessions", n)
			}
			cancel()
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
