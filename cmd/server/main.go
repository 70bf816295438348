// Package main runs the docchat HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bull/docchat/internal/config"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/generation"
	logpkg "github.com/bull/docchat/internal/logger"
	"github.com/bull/docchat/internal/rag"
	"github.com/bull/docchat/internal/storage"
	"github.com/bull/docchat/internal/transport/httpapi"
	"github.com/bull/docchat/internal/version"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docchat server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("qdrant", fmt.Sprintf("%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)),
		zap.String("collection", cfg.Qdrant.Collection),
	)

	// Vector store — fails fast if Qdrant is unreachable.
	store, err := storage.NewQdrantStore(cfg.Qdrant.Host, cfg.Qdrant.Port,
		cfg.Qdrant.Collection, cfg.OpenAI.Dimensions)
	if err != nil {
		logger.Fatal("Failed to connect to Qdrant", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.EnsureCollection(ctx); err != nil {
		logger.Fatal("Failed to ensure collection", zap.Error(err))
	}
	logger.Info("Collection ready")

	// Long-lived provider handles, shared by both pipelines.
	client, err := embedding.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	if err != nil {
		logger.Fatal("Failed to create OpenAI client", zap.Error(err))
	}
	embedder := embedding.NewEmbedder(client, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.BatchSize)
	generator := generation.NewGenerator(client.Client(), cfg.OpenAI.ChatModel)

	pipeline := rag.New(store, embedder, generator, rag.Config{
		UploadDir:    cfg.Ingest.UploadDir,
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		TopK:         cfg.Retrieval.TopK,
	}, logger)

	api := httpapi.NewServer(pipeline, httpapi.Config{
		MaxUploadBytes: int64(cfg.HTTP.MaxUploadMB) << 20,
		APIKeys:        cfg.Auth.APIKeys,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
