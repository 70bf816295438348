package rag

import (
	"context"

	"github.com/bull/docchat/internal/storage"
)

// Embedder maps texts to fixed-length vectors, one per input, in order.
// Ingestion and query embedding must go through the same implementation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer from a question and a grounding context.
type Generator interface {
	Generate(ctx context.Context, question, grounding string) (string, error)
}

// Store is the persistent collection of embedded records.
type Store interface {
	Insert(ctx context.Context, records []*storage.Record) error
	Search(ctx context.Context, vector []float32, limit int) ([]*storage.ScoredRecord, error)
	Reset(ctx context.Context) error
	Count(ctx context.Context) (uint64, error)
}
