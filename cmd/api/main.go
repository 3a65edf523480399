package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"rickshaw-auth/internal/config"
	"rickshaw-auth/internal/db"
	"rickshaw-auth/internal/email"
	apihttp "rickshaw-auth/internal/http"
	"rickshaw-auth/internal/repository"
	"rickshaw-auth/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.InitSchema(ctx, pool); err != nil {
		logger.Fatal("db schema init", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	sessionRepo := repository.NewPgRefreshTokenRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var otpLimiter service.OTPRateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, cfg.OTPTTL, 3)
		}
		cancel()
	}

	codec := service.NewHS256Codec(
		cfg.AccessTokenSecret,
		cfg.RefreshTokenSecret,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
	)

	policy := sessionPolicyFromConfig(cfg, logger)
	authSvc := service.NewAuthService(logger, userRepo, sessionRepo, policy, codec, emailSender, otpLimiter, service.AuthConfig{
		BcryptCost:    cfg.BcryptCost,
		OTPTTL:        cfg.OTPTTL,
		ResetTokenTTL: cfg.ResetTokenTTL,
		FrontendURL:   cfg.FrontendURL,
	})

	authHandler := apihttp.NewAuthHandler(logger, authSvc)
	router := apihttp.NewRouter(logger, authHandler, codec)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func sessionPolicyFromConfig(cfg *config.Config, logger *zap.Logger) repository.SessionPolicy {
	switch cfg.SessionPolicy {
	case "single", "":
		return repository.NewSingleSessionPolicy()
	case "max":
		return repository.NewMaxSessionsPolicy(cfg.SessionMax)
	case "unlimited":
		return repository.NewUnlimitedSessionsPolicy()
	default:
		logger.Warn("unknown session policy, using single", zap.String("policy", cfg.SessionPolicy))
		return repository.NewSingleSessionPolicy()
	}
}
