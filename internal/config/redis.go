package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

func NewRedisClient(cfg *Config) (*redis.Client, error) {
	var rdb *redis.Client

	// Check if RedisURL is a full URL (like Upstash) or just host:port
	if isRedisURL(cfg.RedisURL) {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return rdb, nil
}

// AsynqRedisOpt builds the queue connection from the same Redis settings.
func AsynqRedisOpt(cfg *Config) (asynq.RedisConnOpt, error) {
	if isRedisURL(cfg.RedisURL) {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %v", err)
		}
		return opt, nil
	}

	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}
