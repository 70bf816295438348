package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docchat/internal/storage"
)

// fakeStore keeps records in memory and ranks searches by cosine similarity.
type fakeStore struct {
	mu        sync.Mutex
	records   []*storage.Record
	insertErr error
	searchErr error
	resetErr  error
}

func (f *fakeStore) Insert(_ context.Context, records []*storage.Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeStore) Search(_ context.Context, vector []float32, limit int) ([]*storage.ScoredRecord, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	hits := make([]*storage.ScoredRecord, 0, len(f.records))
	for _, rec := range f.records {
		hits = append(hits, &storage.ScoredRecord{Record: rec, Score: cosine(vector, rec.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeStore) Reset(context.Context) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	return nil
}

func (f *fakeStore) Count(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.records)), nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// fakeEmbedder derives a deterministic vector from each text, so the same
// text always lands on the same point.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New64a()
		h.Write([]byte(text))
		sum := h.Sum64()
		v := make([]float32, 8)
		for j := range v {
			v[j] = float32((sum>>(j*8))&0xff) + 1
		}
		out[i] = v
	}
	return out, nil
}

type fakeGenerator struct {
	err           error
	lastQuestion  string
	lastGrounding string
}

func (f *fakeGenerator) Generate(_ context.Context, question, grounding string) (string, error) {
	f.lastQuestion = question
	f.lastGrounding = grounding
	if f.err != nil {
		return "", f.err
	}
	return "answer: " + question, nil
}

func newTestService(t *testing.T, store *fakeStore, emb *fakeEmbedder, gen *fakeGenerator) *Service {
	t.Helper()
	return New(store, emb, gen, Config{
		UploadDir:    filepath.Join(t.TempDir(), "uploads"),
		ChunkSize:    200,
		ChunkOverlap: 20,
		TopK:         4,
	}, nil)
}

func mdFile(name, body string) File {
	return File{Name: name, Data: []byte(body)}
}

func TestIngest_EmptyFileList(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, &fakeEmbedder{}, &fakeGenerator{})

	added, err := svc.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestIngest_MarkdownFile(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store, &fakeEmbedder{}, &fakeGenerator{})

	added, err := svc.Ingest(context.Background(), []File{
		mdFile("notes.md", "# Policies\n\nAll refunds are processed within thirty days of purchase.\n"),
	})
	require.NoError(t, err)
	require.Greater(t, added, 0)
	assert.Len(t, store.records, added)

	rec := store.records[0]
	assert.Equal(t, "notes.md", rec.Document)
	assert.Equal(t, 1, rec.Page)
	assert.Equal(t, 0, rec.ChunkIndex)
	assert.NotEmpty(t, rec.Embedding)
}

// TestIngest_MultiPagePageTagging: three ~1500-char pages chunked at
// 1000/100 yield two chunks per page, six records total, each tagged with
// the right page number and a sequential chunk index.
func TestIngest_MultiPagePageTagging(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, &fakeEmbedder{}, &fakeGenerator{}, Config{
		UploadDir:    filepath.Join(t.TempDir(), "uploads"),
		ChunkSize:    1000,
		ChunkOverlap: 100,
	}, nil)

	page := func(title string) string {
		return "# " + title + "\n\n" + strings.Repeat("passage text ", 115) // ~1500 chars
	}
	doc := page("One") + "\n" + page("Two") + "\n" + page("Three") + "\n"

	added, err := svc.Ingest(context.Background(), []File{mdFile("book.md", doc)})
	require.NoError(t, err)
	require.Equal(t, 6, added)

	wantPages := []int{1, 1, 2, 2, 3, 3}
	for i, rec := range store.records {
		assert.Equal(t, wantPages[i], rec.Page, "record %d page", i)
		assert.Equal(t, i, rec.ChunkIndex, "record %d chunk index", i)
		assert.Equal(t, "book.md", rec.Document)
	}
}

func TestIngest_StagesUploads(t *testing.T) {
	store := &fakeStore{}
	dir := filepath.Join(t.TempDir(), "uploads")
	svc := New(store, &fakeEmbedder{}, &fakeGenerator{}, Config{UploadDir: dir}, nil)

	_, err := svc.Ingest(context.Background(), []File{
		mdFile("staged.md", "# A\n\nsome text\n"),
	})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "staged.md"))
	assert.NoError(t, statErr, "uploaded bytes should be staged to disk")
}

func TestIngest_ZeroByteFileContributesNothing(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store, &fakeEmbedder{}, &fakeGenerator{})

	added, err := svc.Ingest(context.Background(), []File{
		{Name: "empty.pdf", Data: nil},
	})
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Empty(t, store.records)
}

func TestIngest_CorruptFileDoesNotAbortBatch(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store, &fakeEmbedder{}, &fakeGenerator{})

	added, err := svc.Ingest(context.Background(), []File{
		{Name: "broken.pdf", Data: []byte("definitely not a pdf")},
		mdFile("good.md", "# Ok\n\nreadable content here\n"),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)
	assert.Greater(t, added, 0, "good file should still be ingested")
	assert.NotEmpty(t, store.records)
}

func TestIngest_ProviderFailureSurfaced(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, &fakeEmbedder{err: errors.New("rate limited")}, &fakeGenerator{})

	added, err := svc.Ingest(context.Background(), []File{
		mdFile("doc.md", "# T\n\ncontent\n"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	assert.Zero(t, added)
}

func TestIngest_StoreFailureSurfaced(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("disk full")}
	svc := newTestService(t, store, &fakeEmbedder{}, &fakeGenerator{})

	_, err := svc.Ingest(context.Background(), []File{
		mdFile("doc.md", "# T\n\ncontent\n"),
	})
	assert.ErrorIs(t, err, ErrStore)
}

func TestAnswer_EmptyCollection(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(t, &fakeStore{}, &fakeEmbedder{}, gen)

	res, err := svc.Answer(context.Background(), "anything there?")
	require.NoError(t, err)

	assert.Equal(t, "answer: anything there?", res.Answer)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, res.Sources)
	assert.Empty(t, gen.lastGrounding, "empty collection means empty grounding context")
}

func TestAnswer_GroundedWithSources(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGenerator{}
	svc := newTestService(t, store, &fakeEmbedder{}, gen)

	_, err := svc.Ingest(context.Background(), []File{
		mdFile("handbook.md", "# Leave\n\nEmployees accrue two days of leave per month worked.\n"),
	})
	require.NoError(t, err)

	res, err := svc.Answer(context.Background(), "How much leave do employees accrue?")
	require.NoError(t, err)

	require.NotEmpty(t, res.Sources)
	assert.Equal(t, "handbook.md (page 1)", res.Sources[0])
	assert.Contains(t, gen.lastGrounding, "[source: handbook.md, page 1]")
	assert.Contains(t, gen.lastGrounding, "two days of leave")
}

// TestAnswer_DuplicateUploadCollapsesSources: ingesting the same file
// twice stores duplicate records, but the source list dedups them at
// answer-assembly time.
func TestAnswer_DuplicateUploadCollapsesSources(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store, &fakeEmbedder{}, &fakeGenerator{})

	file := mdFile("dup.md", "# S\n\nthe only passage in this file\n")
	ctx := context.Background()

	added1, err := svc.Ingest(ctx, []File{file})
	require.NoError(t, err)
	added2, err := svc.Ingest(ctx, []File{file})
	require.NoError(t, err)
	assert.Len(t, store.records, added1+added2, "duplicates are stored, not deduplicated")

	res, err := svc.Answer(ctx, "what is the passage?")
	require.NoError(t, err)
	assert.Equal(t, []string{"dup.md (page 1)"}, res.Sources)
}

func TestAnswer_GeneratorFailure(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, &fakeEmbedder{}, &fakeGenerator{err: errors.New("unreachable")})

	_, err := svc.Answer(context.Background(), "q")
	assert.ErrorIs(t, err, ErrProvider)
	assert.NotErrorIs(t, err, ErrNotReady)
}

func TestAnswer_NotReadyAfterFailedReset(t *testing.T) {
	store := &fakeStore{resetErr: errors.New("qdrant down")}
	svc := newTestService(t, store, &fakeEmbedder{}, &fakeGenerator{})

	err := svc.Reset(context.Background())
	require.ErrorIs(t, err, ErrStore)

	_, err = svc.Answer(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = svc.Ingest(context.Background(), []File{mdFile("a.md", "# A\n\nb\n")})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestReset_EmptiesStoreAndRestoresReadiness(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store, &fakeEmbedder{}, &fakeGenerator{})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, []File{mdFile("a.md", "# A\n\nsome content to index\n")})
	require.NoError(t, err)
	require.NotEmpty(t, store.records)

	require.NoError(t, svc.Reset(ctx))
	assert.Empty(t, store.records)

	// Ready again: reset then ingest of an empty batch leaves the
	// collection empty without error.
	added, err := svc.Ingest(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, added)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Ready)
	assert.Zero(t, st.Chunks)
}

func TestAssembleContext_OrderPreservingDedup(t *testing.T) {
	hits := []*storage.ScoredRecord{
		{Record: &storage.Record{Document: "b.pdf", Page: 2, Content: "x"}, Score: 0.9},
		{Record: &storage.Record{Document: "a.pdf", Page: 1, Content: "y"}, Score: 0.8},
		{Record: &storage.Record{Document: "b.pdf", Page: 2, Content: "z"}, Score: 0.7},
	}

	grounding, sources := assembleContext(hits)

	assert.Equal(t, []string{"b.pdf (page 2)", "a.pdf (page 1)"}, sources)
	assert.Contains(t, grounding, "[source: b.pdf, page 2]\nx")
	assert.Contains(t, grounding, "[source: a.pdf, page 1]\ny")
	assert.Contains(t, grounding, "z", "every retrieved passage goes into the context")
}
