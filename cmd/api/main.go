package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"answerdesk/api/internal/app"
	"answerdesk/api/internal/attachment"
	"answerdesk/api/internal/config"
	"answerdesk/api/internal/export"
	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/ratelimit"
	"answerdesk/api/internal/search"
	"answerdesk/api/internal/session"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("answerdesk api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	for _, version := range applied {
		logger.Info("migration applied", "version", version)
	}

	dataStore := store.NewPostgresStore(db)
	hub := notify.NewHub(notify.WithHubLogger(logger))

	deps := app.Dependencies{
		Publisher: hub,
		Exporter:  export.NewService(logger),
		Logger:    logger,
	}

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		redisClient = redisStore.Client()
		deps.Sessions = redisStore
		deps.Publisher = notify.NewRedisPublisher(redisClient)

		relay := notify.NewRedisRelay(redisClient, hub, logger)
		ready := make(chan struct{})
		go func() {
			if err := relay.Run(ctx, ready); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event relay stopped", "error", err)
			}
		}()
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			logger.Warn("event relay not subscribed yet; live events may lag")
		}
		logger.Info("using redis for sessions and live events")
	} else {
		logger.Info("using postgres for sessions and in-process live events")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db), logger)
	deps.Search = searchService

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err := attachment.NewMinioStore(ctx, attachment.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return err
		}
		deps.Attachments = blobs
	} else {
		logger.Warn("attachment storage disabled; set MINIO_ENDPOINT to enable uploads")
	}

	service := app.New(cfg, dataStore, deps)

	sweeper := sweep.New(dataStore, notify.NewService(dataStore, deps.Publisher, logger), searchService, cfg.ReminderWindow, logger)
	scheduler, err := sweep.NewScheduler(cfg.SweepSchedule, sweeper, logger)
	if err != nil {
		return err
	}
	scheduler.Start()

	limiter := ratelimit.New(cfg.AuthRatePerMinute, 0, redisClient, logger)
	limiter.StartCleanup(5 * time.Minute)
	defer limiter.Stop()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, app.HTTPOptions{
		Hub:     hub,
		Limiter: limiter,
		Logger:  logger,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("answerdesk api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	scheduler.Stop(shutdownCtx)
	return nil
}
