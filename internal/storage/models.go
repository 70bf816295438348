package storage

// Record is an embedded chunk as persisted in the vector store: the unit
// of insertion and retrieval.
type Record struct {
	ID         string    // UUID
	Document   string    // Source document identifier (upload filename)
	Page       int       // 1-based source page number
	ChunkIndex int       // Position within the document (0, 1, 2...)
	Content    string    // Chunk text
	Embedding  []float32 // Query and ingest vectors must share one model
}

// ScoredRecord is a search hit with its cosine similarity score.
type ScoredRecord struct {
	Record *Record
	Score  float64
}

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "docchat_chunks"

// DefaultDimension matches text-embedding-3-small.
const DefaultDimension = 1536
