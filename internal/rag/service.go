// Package rag holds the document ingestion and retrieval-answering
// pipelines. The Service is the single context object owning the current
// collection and provider handles; there is no ambient global state.
package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bull/docchat/internal/markdown"
	"github.com/bull/docchat/internal/pdf"
	"github.com/bull/docchat/internal/storage"
	"github.com/bull/docchat/internal/textsplit"
)

// DefaultTopK is how many records a question retrieves by default.
const DefaultTopK = 4

// File is one uploaded document as supplied by the upload collaborator.
type File struct {
	Name string
	Data []byte
}

// Result is the outcome of answering a question: the generated answer and
// the deduplicated, order-preserving list of (document, page) sources.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Status reports pipeline readiness and collection size.
type Status struct {
	Ready  bool   `json:"ready"`
	Chunks uint64 `json:"chunks"`
}

// Config holds pipeline tuning knobs.
type Config struct {
	UploadDir    string // staging area for uploaded files
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// Service orchestrates ingestion and answering over a shared store and
// long-lived provider handles. Pipelines themselves are stateless; the
// only mutable state is the readiness flag and the reset barrier.
type Service struct {
	store     Store
	embedder  Embedder
	generator Generator
	splitter  *textsplit.Splitter
	sections  *markdown.Splitter
	uploadDir string
	topK      int
	logger    *zap.Logger

	// resetMu serializes Reset against in-flight ingestion: inserts hold
	// the read side, reset holds the write side. Answer does not take the
	// lock; it may observe the old or the new collection, never a partial
	// one.
	resetMu sync.RWMutex
	ready   atomic.Bool
}

// New creates a Service. The caller must have ensured the collection
// exists; the service starts Ready.
func New(store Store, embedder Embedder, generator Generator, cfg Config, logger *zap.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploaded_pdfs"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:     store,
		embedder:  embedder,
		generator: generator,
		splitter:  textsplit.New(cfg.ChunkSize, cfg.ChunkOverlap),
		sections:  markdown.NewSplitter(),
		uploadDir: cfg.UploadDir,
		topK:      cfg.TopK,
		logger:    logger,
	}
	s.ready.Store(true)
	return s
}

// Ingest stages, extracts, chunks, embeds and stores the given files.
// Files are processed sequentially; one file's failure does not roll back
// earlier inserts. Returns the number of chunks added and, if any file
// failed, an aggregate error joining the per-file failures.
func (s *Service) Ingest(ctx context.Context, files []File) (int, error) {
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()

	if !s.ready.Load() {
		return 0, ErrNotReady
	}

	added := 0
	var failures []error
	for _, file := range files {
		n, err := s.ingestFile(ctx, file)
		if err != nil {
			s.logger.Warn("failed to ingest file",
				zap.String("file", file.Name), zap.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", file.Name, err))
			continue
		}
		added += n
	}

	s.logger.Info("ingestion complete",
		zap.Int("files", len(files)),
		zap.Int("failed", len(failures)),
		zap.Int("chunks_added", added),
	)

	if len(failures) > 0 {
		return added, errors.Join(failures...)
	}
	return added, nil
}

// ingestFile runs the full pipeline for a single file.
func (s *Service) ingestFile(ctx context.Context, file File) (int, error) {
	if err := s.stage(file); err != nil {
		return 0, err
	}

	pages, err := s.extract(file)
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		// Zero extractable pages (including zero-byte files) contribute
		// zero chunks without failing.
		return 0, nil
	}

	var texts []string
	var pageNums []int
	for _, page := range pages {
		for _, chunk := range s.splitter.Split(page.Text) {
			texts = append(texts, chunk)
			pageNums = append(pageNums, page.Number)
		}
	}
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: embed: %v", ErrProvider, err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("%w: embed returned %d vectors for %d chunks",
			ErrProvider, len(vectors), len(texts))
	}

	records := make([]*storage.Record, len(texts))
	for i, text := range texts {
		records[i] = &storage.Record{
			ID:         uuid.New().String(),
			Document:   file.Name,
			Page:       pageNums[i],
			ChunkIndex: i,
			Content:    text,
			Embedding:  vectors[i],
		}
	}

	if err := s.store.Insert(ctx, records); err != nil {
		return 0, fmt.Errorf("%w: insert: %v", ErrStore, err)
	}

	s.logger.Debug("ingested file",
		zap.String("file", file.Name),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(records)),
	)
	return len(records), nil
}

// stage persists the raw upload so partially-processed files can be
// inspected and retried.
func (s *Service) stage(file File) error {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("%w: create upload dir: %v", ErrStore, err)
	}
	path := filepath.Join(s.uploadDir, filepath.Base(file.Name))
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return fmt.Errorf("%w: stage %s: %v", ErrStore, file.Name, err)
	}
	return nil
}

// extract turns file bytes into ordered pages by file type. Markdown
// uploads map each header section to one page.
func (s *Service) extract(file File) ([]pdf.Page, error) {
	switch strings.ToLower(filepath.Ext(file.Name)) {
	case ".md", ".markdown":
		sections, err := s.sections.Split(file.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrExtraction, file.Name, err)
		}
		pages := make([]pdf.Page, len(sections))
		for i, sec := range sections {
			pages[i] = pdf.Page{Number: i + 1, Text: sec.Text}
		}
		return pages, nil
	default:
		pages, err := pdf.Extract(file.Name, file.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		return pages, nil
	}
}

// Answer embeds the question, retrieves the top-k nearest records,
// assembles them into a grounding context and invokes the generator.
// An empty collection still produces an answer (empty context, no
// sources); only the uninitialized/resetting states fail with ErrNotReady.
func (s *Service) Answer(ctx context.Context, question string) (*Result, error) {
	if !s.ready.Load() {
		return nil, ErrNotReady
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %v", ErrProvider, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embed returned %d vectors for one question",
			ErrProvider, len(vectors))
	}

	hits, err := s.store.Search(ctx, vectors[0], s.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStore, err)
	}

	grounding, sources := assembleContext(hits)

	answer, err := s.generator.Generate(ctx, question, grounding)
	if err != nil {
		return nil, fmt.Errorf("%w: generate: %v", ErrProvider, err)
	}

	s.logger.Info("answered question",
		zap.Int("retrieved", len(hits)),
		zap.Int("sources", len(sources)),
	)

	return &Result{Answer: answer, Sources: sources}, nil
}

// assembleContext renders retrieved records into a grounding context and a
// deduplicated (document, page) source list, order-preserving by first
// occurrence. Dedup happens only here, never at storage time.
func assembleContext(hits []*storage.ScoredRecord) (string, []string) {
	var passages []string
	sources := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))

	for _, hit := range hits {
		rec := hit.Record
		passages = append(passages, fmt.Sprintf("[source: %s, page %d]\n%s",
			rec.Document, rec.Page, rec.Content))

		src := fmt.Sprintf("%s (page %d)", rec.Document, rec.Page)
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		sources = append(sources, src)
	}

	return strings.Join(passages, "\n\n"), sources
}

// Reset destroys the collection and recreates it empty, then clears the
// staging area. Serialized against concurrent resets and a full barrier
// against ingestion: no insert started before the reset lands in the new
// collection. The service is Ready again on successful return; a failed
// reset leaves it NotReady.
func (s *Service) Reset(ctx context.Context) error {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	s.ready.Store(false)

	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("%w: reset: %v", ErrStore, err)
	}

	if err := os.RemoveAll(s.uploadDir); err != nil {
		s.logger.Warn("failed to clear upload dir", zap.Error(err))
	}

	s.ready.Store(true)
	s.logger.Info("collection reset")
	return nil
}

// Status reports readiness and the current record count.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{Ready: s.ready.Load()}
	if !st.Ready {
		return st, nil
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrStore, err)
	}
	st.Chunks = count
	return st, nil
}
