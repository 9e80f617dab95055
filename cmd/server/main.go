package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"agrovision/internal/app"
	"agrovision/internal/config"
	"agrovision/internal/ratelimit"
	"agrovision/internal/server"
	"agrovision/internal/util"
	"agrovision/pkg/ai"
	"agrovision/pkg/storage"
	"agrovision/pkg/store"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	util.InitLogger(cfg.LogLevel)

	records, err := buildRecordStore(cfg)
	if err != nil {
		slog.Error("init record store", "err", err)
		os.Exit(1)
	}
	sessions, err := buildSessionStore(cfg)
	if err != nil {
		slog.Error("init session store", "err", err)
		os.Exit(1)
	}

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
	if err != nil {
		slog.Error("init gemini client", "err", err)
		os.Exit(1)
	}
	if cfg.GeminiBaseURL != "" {
		gemini = gemini.WithBaseURL(cfg.GeminiBaseURL)
	}
	analyzer := ai.NewCropAnalyzer(gemini, cfg.AnalysisModel, cfg.ChatModel)

	var archive storage.FrameArchive
	if cfg.MinioEndpoint != "" {
		archive, err = storage.NewMinioArchive(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			slog.Error("init frame archive", "err", err)
			os.Exit(1)
		}
	}

	core, err := app.New(app.Config{
		Records:   records,
		Sessions:  sessions,
		Analyzer:  analyzer,
		Assistant: analyzer,
		Archive:   archive,
	})
	if err != nil {
		slog.Error("init app", "err", err)
		os.Exit(1)
	}

	var loginLimiter *ratelimit.FixedWindowLimiter
	if cfg.LoginRateLimitPerMinute > 0 && cfg.RedisAddr != "" {
		loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "",
			cfg.LoginRateLimitPerMinute, time.Minute,
		)
		if err != nil {
			slog.Error("init rate limiter", "err", err)
			os.Exit(1)
		}
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		slog.Error("parse trusted proxies", "err", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{
		App:            core,
		LoginLimiter:   loginLimiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrustedProxies: trustedProxies,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

// buildRecordStore picks the persistence backend: postgres when a database
// URL is configured, the data directory otherwise, memory as a last resort.
func buildRecordStore(cfg config.FileConfig) (store.RecordStore, error) {
	switch {
	case cfg.DatabaseURL != "":
		return store.NewGormRecordStore(cfg.DatabaseURL, cfg.Namespace)
	case cfg.DataDir != "":
		return store.NewFileRecordStore(cfg.DataDir, cfg.Namespace)
	default:
		slog.Warn("no persistence configured, records are in-memory only")
		return store.NewMemoryRecordStore(), nil
	}
}

func buildSessionStore(cfg config.FileConfig) (store.SessionStore, error) {
	ttl, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	switch cfg.SessionStrategy {
	case config.SessionRedis:
		return store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, "", ttl), nil
	case config.SessionJWT:
		var revoker *store.RedisTokenRevoker
		if cfg.RedisAddr != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		}
		return store.NewJWTSessionStore(cfg.JWTSecret, store.JWTSessionOptions{TTL: ttl}, revoker)
	default:
		return store.NewMemorySessionStore(), nil
	}
}
