// Package main provides the docctl CLI for managing the docchat collection.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docchat/internal/config"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/generation"
	logpkg "github.com/bull/docchat/internal/logger"
	"github.com/bull/docchat/internal/rag"
	"github.com/bull/docchat/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "docctl",
	Short: "docchat collection management tool",
	Long:  "CLI tool for ingesting documents, querying and resetting the docchat collection",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <files...>",
	Short: "Ingest local PDF or markdown files into the collection",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Destroy the collection and recreate it empty",
	RunE:  runReset,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection readiness and chunk count",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(ingestCmd, askCmd, resetCmd, statusCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildPipeline wires the store and providers from config. The returned
// cleanup closes the store connection.
func buildPipeline() (*rag.Service, func(), error) {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	store, err := storage.NewQdrantStore(cfg.Qdrant.Host, cfg.Qdrant.Port,
		cfg.Qdrant.Collection, cfg.OpenAI.Dimensions)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to Qdrant: %w", err)
	}

	if err := store.EnsureCollection(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ensure collection: %w", err)
	}

	client, err := embedding.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("create OpenAI client: %w", err)
	}
	embedder := embedding.NewEmbedder(client, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.BatchSize)
	generator := generation.NewGenerator(client.Client(), cfg.OpenAI.ChatModel)

	pipeline := rag.New(store, embedder, generator, rag.Config{
		UploadDir:    cfg.Ingest.UploadDir,
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		TopK:         cfg.Retrieval.TopK,
	}, logger)

	cleanup := func() {
		store.Close()
		_ = logger.Sync()
	}
	return pipeline, cleanup, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	pipeline, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	files := make([]rag.File, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, rag.File{Name: filepath.Base(path), Data: data})
	}

	start := time.Now()
	added, err := pipeline.Ingest(context.Background(), files)
	fmt.Printf("Ingested %d chunks from %d files in %s\n",
		added, len(files), time.Since(start).Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("some files failed: %w", err)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	pipeline, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := pipeline.Answer(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, src := range result.Sources {
			fmt.Printf("  - %s\n", src)
		}
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	pipeline, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := pipeline.Reset(context.Background()); err != nil {
		return err
	}
	fmt.Println("Collection reset")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	pipeline, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := pipeline.Status(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Ready:  %v\n", st.Ready)
	fmt.Printf("Chunks: %d\n", st.Chunks)
	return nil
}
