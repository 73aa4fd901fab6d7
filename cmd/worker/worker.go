package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"sociohiro-backend/internal/automation"
	"sociohiro-backend/internal/config"
	"sociohiro-backend/internal/graph"
	"sociohiro-backend/internal/logger"
	"sociohiro-backend/internal/queue"
	"sociohiro-backend/internal/store"
	"sociohiro-backend/internal/telemetry"
	"sociohiro-backend/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg, "sociohiro-worker")

	if cfg.OTelEnabled {
		shutdown, err := telemetry.InitTracer("sociohiro-worker", cfg)
		if err != nil {
			logger.Error("failed to initialize tracer", "error", err)
		} else {
			defer shutdown()
		}
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	cipher, err := utils.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize token encryption:", err)
	}
	db := store.New(mongoClient.Database(cfg.DBName), cipher)

	// Limits are shared by every worker through Redis
	matcher := automation.NewMatcher(automation.NewRedisLimiter(rdb), db, automation.WithMetrics(metrics))

	// One guard per process so the breaker and limiter see every call
	guard := graph.NewGuard(cfg.GraphAPIRPS, cfg.GraphAPIBurst, metrics)
	graphOpts := []graph.Option{
		graph.WithTimeout(cfg.GraphAPITimeout),
		graph.WithAppSecretProof(cfg.InstagramAppID, cfg.InstagramAppSecret),
		graph.WithGuard(guard),
		graph.WithMetrics(metrics),
	}
	newClient := func(token string) (queue.GraphClient, error) {
		client, err := graph.NewClient(token, graphOpts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure queue:", err)
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6, // webhook events
				"default":  3, // publish retries
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("task failed",
					"type", task.Type(),
					"retry", retried,
					"max_retry", maxRetry,
					"error", err,
				)
			}),
		},
	)

	processor := queue.NewTaskProcessor(db, db, matcher, newClient)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskAutomationEvent, processor.HandleAutomationEvent)
	mux.HandleFunc(queue.TaskPublishMedia, processor.HandlePublish)

	logger.Info("starting worker",
		"concurrency", cfg.WorkerConcurrency,
		"queues", "critical(6), default(3)",
	)

	// Run blocks until SIGTERM or SIGINT
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
