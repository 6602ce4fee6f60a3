/*
Package main is the entry point for the CycleConnect server.

It loads configuration, initializes logging and tracing, opens the store, wires the
optional Redis backplane, Kafka event stream and S3 storage, starts the realtime hub
and the HTTP server, and shuts everything down gracefully on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"cycleconnect/internal/app/chat"
	"cycleconnect/internal/app/db"
	"cycleconnect/internal/app/events"
	"cycleconnect/internal/app/storage"
	"cycleconnect/internal/app/store"
	"cycleconnect/internal/configs"
	"cycleconnect/internal/handler"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/tracing"
)

const serviceName = "cycleconnect"

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("store", cfg.StoreDriver).
		Bool("redis", cfg.RedisAddr != "").
		Bool("kafka", len(cfg.KafkaBrokers) > 0).
		Bool("s3", cfg.S3Enabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTLPEndpoint, serviceName, cfg.TraceSampleRatio)
	if err != nil {
		logx.Fatal(err, "Failed to initialize tracing")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store")
	}

	var fanout chat.Fanout
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logx.Fatal(err, "Failed to connect to Redis", "addr", cfg.RedisAddr)
		}
		fanout = chat.NewRedisFanout(rdb)
	}

	manager, err := chat.NewManager(st, fanout, chat.Options{EnforceMembership: cfg.HubEnforceMembership})
	if err != nil {
		logx.Fatal(err, "Failed to start hub")
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	var storageService storage.StorageService
	if cfg.S3Enabled() {
		storageService, err = storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3Region:          cfg.S3Region,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize storage service")
		}
	}

	deps := &handler.AppDeps{
		Config:         cfg,
		Store:          st,
		Hub:            manager,
		Gate:           handler.NewGate(st, cfg.JWTSecret, cfg.JWTExpire),
		StorageService: storageService,
		Events:         publisher,
	}

	// Setup HTTP server and routes
	router := handler.Router(ctx, deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("CycleConnect server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	manager.Shutdown()

	if err := publisher.Close(); err != nil {
		logx.Error(err, "Failed to close event publisher")
	}
	st.Close()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logx.Error(err, "Failed to flush traces")
	}

	logx.Info("Server gracefully stopped.")
}

// openStore returns the configured store, connecting to PostgreSQL when selected.
func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	if cfg.StoreDriver != configs.StorePostgres {
		logx.Warn("Using the in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN, cfg.RunMigrations)
	if err != nil {
		return nil, err
	}
	logx.Info("Database connection pool established")
	return db.NewStore(pool), nil
}
