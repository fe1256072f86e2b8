package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"phFolio/internal/cache"
	"phFolio/internal/dashboard"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "聚合快照缓存相关操作",
	}
	cmd.AddCommand(newCachePurgeCmd())
	return cmd
}

func newCachePurgeCmd() *cobra.Command {
	var (
		redisAddr string
		prefix    string
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "删除 Redis 中全部看板与公开作品集快照",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if prefix == "" {
				return errors.New("refusing to purge without a key prefix")
			}
			client := redis.NewClient(&redis.Options{Addr: redisAddr})
			defer client.Close()

			ctx := cmd.Context()
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			snapshots := cache.NewRedis[dashboard.Aggregate](client, prefix, time.Minute)
			if err := snapshots.Clear(ctx); err != nil {
				return fmt.Errorf("purge cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged keys with prefix %q\n", prefix)
			return nil
		},
	}
	cmd.Flags().StringVar(&redisAddr, "redis-addr", defaultRedisAddr(), "Redis 地址（默认读 REDIS_HOST/REDIS_PORT）")
	cmd.Flags().StringVar(&prefix, "prefix", firstNonEmpty(os.Getenv("CACHE_KEY_PREFIX"), "phfolio:"), "缓存 key 前缀")
	return cmd
}

func defaultRedisAddr() string {
	return firstNonEmpty(os.Getenv("REDIS_HOST"), "localhost") + ":" + firstNonEmpty(os.Getenv("REDIS_PORT"), "6379")
}
