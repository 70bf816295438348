// Package storage persists embedded records in a Qdrant collection and
// serves approximate nearest-neighbor search over them.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore wraps the Qdrant client around a single named collection.
// The collection name is the only handle callers ever hold; every
// operation dereferences it freshly, so a reset never leaves anyone with
// a stale collection reference.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
}

// NewQdrantStore creates a store and verifies Qdrant is reachable, retrying
// the health check with exponential backoff before failing fast.
func NewQdrantStore(host string, port int, collection string, dimension int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if collection == "" {
		collection = DefaultCollection
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	store := &QdrantStore{
		client:     client,
		collection: collection,
		dimension:  uint64(dimension),
	}

	if err := store.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return store, nil
}

// healthCheckWithRetry probes Qdrant with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection if it does not exist, with a
// single cosine-distance vector of the configured dimension. Idempotent.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// Reset destroys the collection and recreates it empty under the same name
// and metric configuration. Both Qdrant calls are atomic on the server
// side, so a concurrent search observes either the old or the new
// collection, never a partially-deleted one.
func (s *QdrantStore) Reset(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

// upsertWithRetry performs one upsert with exponential backoff retry.
func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// Insert appends records to the collection in the given order, batched in
// groups of 100. There is no uniqueness constraint on content: re-inserting
// the same chunks produces duplicate records.
func (s *QdrantStore) Insert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	for i, rec := range records {
		if uint64(len(rec.Embedding)) != s.dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(rec.Embedding), s.dimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))
		batch := records[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, rec := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(rec.ID),
				Vectors: qdrant.NewVectors(rec.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"document":    rec.Document,
					"page":        rec.Page,
					"chunk_index": rec.ChunkIndex,
					"content":     rec.Content,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// Search returns up to limit records nearest to vector by cosine
// similarity, descending by score. An empty collection yields an empty
// slice, not an error.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int) ([]*ScoredRecord, error) {
	if uint64(len(vector)) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}

	hits := make([]*ScoredRecord, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		hits = append(hits, &ScoredRecord{
			Record: &Record{
				ID:         result.Id.GetUuid(),
				Document:   payload["document"].GetStringValue(),
				Page:       int(payload["page"].GetIntegerValue()),
				ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
				Content:    payload["content"].GetStringValue(),
				// Embedding intentionally not returned
			},
			Score: float64(result.Score),
		})
	}

	return hits, nil
}

// Count reports the number of records in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection: %w", err)
	}
	return info.GetPointsCount(), nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
