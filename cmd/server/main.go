package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"voicebank/internal/cache"
	"voicebank/internal/config"
	"voicebank/internal/repository"
	"voicebank/internal/sentences"
	"voicebank/internal/service"
	"voicebank/internal/storage"
	"voicebank/internal/transport/rest"
	"voicebank/internal/transport/ws"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		logger.Fatal("failed to ping MongoDB", zap.Error(err))
	}
	logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDB))

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Fatal("failed to ping Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

	// Sentence pool
	pool, err := sentences.Load()
	if err != nil {
		logger.Fatal("failed to load sentence pool", zap.Error(err))
	}
	logger.Info("sentence pool loaded", zap.Int("size", pool.Size()))

	// Blob storage
	blobs, err := storage.NewGridFSStore(db)
	if err != nil {
		logger.Fatal("failed to initialize GridFS", zap.Error(err))
	}

	// Repositories
	sessionRepo := repository.NewSessionRepo(db, logger)
	recordingRepo := repository.NewRecordingRepo(db, logger)

	// Caches
	sessionCache := cache.NewSessionCache(rdb)
	statsCache := cache.NewStatsCache(rdb)
	limiter := cache.NewRateLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)

	// Operator live feed
	hub := ws.NewHub(logger)

	// Services
	sessionSvc := service.NewSessionService(sessionRepo, pool, sessionCache, statsCache, logger)
	uploadSvc := service.NewUploadService(sessionRepo, recordingRepo, blobs, sessionCache, statsCache, logger)
	recordingSvc := service.NewRecordingService(recordingRepo, sessionRepo, blobs, logger)
	statsSvc := service.NewStatsService(sessionRepo, recordingRepo, statsCache, logger)

	sessionSvc.SetBroadcaster(hub)
	uploadSvc.SetBroadcaster(hub)

	router := rest.NewRouter(&rest.Container{
		SessionService:   sessionSvc,
		UploadService:    uploadSvc,
		RecordingService: recordingSvc,
		StatsService:     statsSvc,
		SessionRepo:      sessionRepo,
		BlobStore:        blobs,
		RateLimiter:      limiter,
		WSHub:            hub,
		Logger:           logger,
		PublicDir:        cfg.PublicDir,
		MaxUploadBytes:   cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen and serve failed", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
