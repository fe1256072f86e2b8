package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"phFolio/internal/api"
	"phFolio/internal/auth"
	"phFolio/internal/cache"
	"phFolio/internal/config"
	"phFolio/internal/dashboard"
	"phFolio/internal/database"
	"phFolio/internal/notify"
	"phFolio/internal/render"
	"phFolio/internal/storage"
	"phFolio/internal/store"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	authService, err := auth.NewAuthServiceFromConfig(cfg.Auth)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	objectStore, err := storage.New(ctx, *cfg)
	if err != nil {
		log.Fatalf("init object storage: %v", err)
	}

	reader := store.NewReader(db)
	loader := dashboard.NewLoader(reader, newAggregateCache(*cfg, redisClient), dashboard.LoaderOptions{
		DashboardTTL: cfg.Cache.DashboardTTL,
		PublicTTL:    cfg.Cache.PublicTTL,
		FetchTimeout: cfg.Cache.FetchTimeout,
	}, logger)
	usernames := dashboard.NewUsernameChecker(reader, logger)
	coordinator := dashboard.NewCoordinator(store.NewTables(db), loader, usernames, notify.NewRedisPublisher(redisClient), logger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, api.Dependencies{
		Config:      *cfg,
		DB:          db,
		Redis:       redisClient,
		Auth:        authService,
		Loader:      loader,
		Coordinator: coordinator,
		Usernames:   usernames,
		Renderer:    render.MustNew(),
		Storage:     objectStore,
		Scanner:     api.NewScanner(cfg.Clamd.Addr),
		Tasks:       asynqClient,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           api.WithCORS(router, cfg.API.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", server.Addr), slog.String("cache_backend", cfg.Cache.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("api stopped")
}

// newAggregateCache 按配置选择进程内或 Redis 快照缓存。
func newAggregateCache(cfg config.Config, client redis.UniversalClient) cache.Cache[dashboard.Aggregate] {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedis[dashboard.Aggregate](client, cfg.Cache.KeyPrefix, cfg.Cache.DashboardTTL)
	}
	return cache.NewMemory[dashboard.Aggregate](cfg.Cache.DashboardTTL)
}
