package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"docchatai/internal/ratelimit"
	"docchatai/internal/usertoken"
	"docchatai/internal/util"
	"docchatai/services/webapp/internal/app"
	"docchatai/services/webapp/internal/config"
	"docchatai/services/webapp/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:        cfg.DatabaseURL,
		EmbeddingDim:       cfg.EmbeddingDim,
		MinioEndpoint:      cfg.MinioEndpoint,
		MinioAccessKey:     cfg.MinioAccessKey,
		MinioSecretKey:     cfg.MinioSecretKey,
		MinioUseSSL:        cfg.MinioUseSSL,
		RedisAddr:          cfg.RedisAddr,
		RedisPassword:      cfg.RedisPassword,
		QueueName:          cfg.QueueName,
		EmbeddingProvider:  cfg.EmbeddingProvider,
		EmbeddingBaseURL:   cfg.EmbeddingBaseURL,
		EmbeddingModel:     cfg.EmbeddingModel,
		GenerationProvider: cfg.GenerationProvider,
		GenerationBaseURL:  cfg.GenerationBaseURL,
		GenerationModel:    cfg.GenerationModel,
		GeminiAPIKey:       cfg.GeminiAPIKey,
		GenerationAPIKey:   cfg.GenerationAPIKey,
		DirectoryBaseURL:   cfg.DirectoryBaseURL,
		DirectoryAPIToken:  cfg.DirectoryAPIToken,
		DefaultChannel:     cfg.DefaultChannel,
		RetrievalTopK:      cfg.RetrievalTopK,
		MaxUploadMB:        cfg.MaxUploadMB,
		AllowedExtensions:  cfg.AllowedExtensions,
	})
	if err != nil {
		logger.Error("failed to init app", "err", err)
		os.Exit(1)
	}

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.JWKSURL,
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	})
	if err != nil {
		logger.Error("failed to init token verifier", "err", err)
		os.Exit(1)
	}

	uploadLimiter := newLimiter(cfg, "webapp:rl:upload", cfg.UploadRateLimit, 10)
	askLimiter := newLimiter(cfg, "webapp:rl:ask", cfg.AskRateLimit, 30)

	httpServer := server.New(server.Config{
		App:            appCore,
		Verifier:       verifier,
		UploadLimiter:  uploadLimiter,
		AskLimiter:     askLimiter,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("webapp server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newLimiter(cfg config.FileConfig, prefix string, limit, fallback int) server.RateLimiter {
	if limit <= 0 {
		limit = fallback
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
	if err != nil {
		slog.Warn("rate limiter disabled", "prefix", prefix, "err", err)
		return nil
	}
	return limiter
}
