package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"phFolio/internal/cache"
	"phFolio/internal/config"
	"phFolio/internal/dashboard"
	"phFolio/internal/database"
	"phFolio/internal/metrics"
	"phFolio/internal/notify"
	"phFolio/internal/pdf"
	"phFolio/internal/render"
	"phFolio/internal/storage"
	"phFolio/internal/store"
	"phFolio/internal/tasks"
	"phFolio/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	objectStore, err := storage.New(ctx, *cfg)
	if err != nil {
		log.Fatalf("init object storage: %v", err)
	}
	log.Printf("object storage ready, backend=%s", cfg.Storage.Backend)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	// 进程内缓存收不到 API 的失效，公开快照只保留很短时间。
	var aggregates cache.Cache[dashboard.Aggregate]
	opts := dashboard.LoaderOptions{FetchTimeout: cfg.Cache.FetchTimeout, PublicTTL: time.Second}
	if cfg.Cache.Backend == "redis" {
		aggregates = cache.NewRedis[dashboard.Aggregate](redisClient, cfg.Cache.KeyPrefix, cfg.Cache.PublicTTL)
		opts.PublicTTL = cfg.Cache.PublicTTL
	} else {
		aggregates = cache.NewMemory[dashboard.Aggregate](time.Second)
	}

	reader := store.NewReader(db)
	loader := dashboard.NewLoader(reader, aggregates, opts, logger)

	exportHandler := worker.NewExportHandler(
		reader,
		loader,
		render.MustNew(),
		pdf.Chromium{},
		objectStore,
		notify.NewRedisPublisher(redisClient),
		cfg.API.PublicBaseURL,
		logger,
	)

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypePortfolioExport, exportHandler)

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
