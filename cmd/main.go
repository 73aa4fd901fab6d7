package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"sociohiro-backend/internal/auth"
	"sociohiro-backend/internal/config"
	"sociohiro-backend/internal/graph"
	"sociohiro-backend/internal/logger"
	"sociohiro-backend/internal/queue"
	"sociohiro-backend/internal/store"
	"sociohiro-backend/internal/telemetry"
	"sociohiro-backend/middleware"
	"sociohiro-backend/routes"
	"sociohiro-backend/services"
	"sociohiro-backend/utils"
)

const maxAPIBody = 1 << 20

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg, "sociohiro-api")

	if cfg.OTelEnabled {
		shutdown, err := telemetry.InitTracer("sociohiro-api", cfg)
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

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure queue:", err)
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()
	dispatcher := queue.NewDispatcher(queueClient)

	cipher, err := utils.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize token encryption:", err)
	}
	db := store.New(mongoClient.Database(cfg.DBName), cipher)

	jtis := auth.NewRedisJTIStore(rdb)
	tokens, err := auth.NewManager(cfg.AccessSecret, cfg.RefreshSecret, jtis)
	if err != nil {
		log.Fatal("Failed to initialize token manager:", err)
	}

	app := graph.NewApp(cfg.InstagramAppID, cfg.InstagramAppSecret, cfg.InstagramCallbackURL)
	// One guard per process so the breaker and limiter see every call
	guard := graph.NewGuard(cfg.GraphAPIRPS, cfg.GraphAPIBurst, metrics)
	graphOpts := []graph.Option{
		graph.WithTimeout(cfg.GraphAPITimeout),
		graph.WithAppSecretProof(cfg.InstagramAppID, cfg.InstagramAppSecret),
		graph.WithGuard(guard),
		graph.WithMetrics(metrics),
	}
	clients := func(ctx context.Context, accountID string) (routes.InstagramAPI, error) {
		token, err := db.AccessToken(ctx, accountID)
		if err != nil {
			return nil, err
		}
		client, err := graph.NewClient(token, graphOpts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	pages := func(ctx context.Context, token string) ([]graph.Page, error) {
		client, err := graph.NewClient(token, graphOpts...)
		if err != nil {
			return nil, err
		}
		return client.GetPages(ctx)
	}

	scheduler := services.NewScheduler(db, app, db, cfg.SessionIdleTimeout)
	if err := scheduler.Start(cfg.TokenRefreshCron); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}
	defer scheduler.Stop()

	// Initialize Gin router
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.OTelEnabled {
		router.Use(middleware.TracingMiddleware(), middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	authMiddleware := middleware.NewAuthMiddleware(tokens, db, cfg.GinMode == gin.ReleaseMode)

	routes.SetupWebhookRoutes(router, cfg, dispatcher, metrics)
	routes.SetupAuthRoutes(router, cfg, routes.AuthDeps{
		OAuth:    app,
		Pages:    pages,
		Accounts: db,
		Tokens:   tokens,
		States:   jtis,
	}, authMiddleware)

	api := router.Group("/api", middleware.RequestSizeLimit(maxAPIBody), authMiddleware.RequireAuth())
	routes.SetupAutomationRoutes(api, db)
	routes.SetupInstagramRoutes(api, clients, dispatcher)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
