// Package embedding maps text to fixed-length vectors via the OpenAI API.
// The same embedder instance serves both ingestion and query embedding so
// every stored vector comes from one model configuration.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimensions is the vector size of DefaultModel.
	DefaultDimensions = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute
	// rate limits. OpenAI accepts up to 2048 texts per request.
	DefaultBatchSize = 500
)

// Embedder generates embeddings in batches, retrying rate-limited requests
// with exponential backoff. All other provider failures surface unretried.
type Embedder struct {
	client    *Client
	model     string
	batchSize int
}

// NewEmbedder creates an Embedder. Empty model and non-positive batchSize
// fall back to the defaults.
func NewEmbedder(client *Client, model string, batchSize int) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		client:    client,
		model:     model,
		batchSize: batchSize,
	}
}

// Model reports the configured model name, part of the collection's
// embedding identity.
func (e *Embedder) Model() string {
	return e.model
}

// Embed returns one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		vectors, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}

	return all, nil
}

// embedBatchWithRetry embeds a single batch, retrying only on HTTP 429.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err // Will retry with backoff
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf(
				"provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return vectors, err
}

// isRateLimitError checks for HTTP 429.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
