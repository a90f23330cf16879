package main

import (
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eeglab/internal/advisor"
	"eeglab/internal/config"
	"eeglab/internal/coordinator"
	"eeglab/internal/invite"
	"eeglab/internal/server"
	"eeglab/internal/storage"
	"eeglab/internal/store"
	"eeglab/internal/util"
	"eeglab/pkg/ai"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}

	var sessions store.SessionStore
	if cfg.RedisAddr != "" {
		sessions = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.ParseSessionTTL())
	} else {
		sessions = store.NewJWTSessionStore(cfg.SessionSecret, cfg.ParseSessionTTL())
	}

	var photos coordinator.PhotoUploader
	if cfg.MinioEndpoint != "" {
		objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
		photos = storage.NewPhotoStore(objects, cfg.PhotoBaseURL)
	}

	var generator ai.TextGenerator
	switch strings.ToLower(strings.TrimSpace(cfg.AIProvider)) {
	case "", "gemini":
		if cfg.GeminiAPIKey != "" {
			client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
			if err != nil {
				log.Fatalf("failed to init gemini client: %v", err)
			}
			generator = ai.NewGeminiGenerator(client, cfg.GeminiModel)
		}
	case "openai":
		generator = ai.NewOpenAICompatGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	gate := invite.NewGate(dataStore)
	aiAdvisor := advisor.New(generator, logger)

	httpServer, err := server.New(server.Config{
		Store:                      dataStore,
		Sessions:                   sessions,
		Gate:                       gate,
		Advisor:                    aiAdvisor,
		Photos:                     photos,
		Logger:                     logger,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		MaxUploadBytes:             cfg.MaxUploadBytes,
		AllowedPhotoExtensions:     cfg.AllowedPhotoExtensions,
		TrustedProxies:             cfg.TrustedProxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("eeglab server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
