package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/core"
	"github.com/inkwellhq/inkwell/internal/models"
)

type ingestUpdate struct {
	status string
	state  models.IngestState
}

// fakeStore records coordinator interactions; behavior is scripted through
// the claimOK and insertErr fields.
type fakeStore struct {
	mu        sync.Mutex
	doc       *models.Document
	claimOK   bool
	insertErr error

	deletes  int
	inserted [][]models.DocumentChunk
	updates  []ingestUpdate
}

func newFakeStore(doc *models.Document) *fakeStore {
	return &fakeStore{doc: doc, claimOK: true}
}

func (s *fakeStore) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil || s.doc.ID != id {
		return nil, nil
	}
	cp := *s.doc
	return &cp, nil
}

func (s *fakeStore) ClaimDocument(ctx context.Context, id string, force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimOK || force, nil
}

func (s *fakeStore) UpdateDocumentIngest(ctx context.Context, id string, status string, state models.IngestState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, ingestUpdate{status: status, state: state})
	return nil
}

func (s *fakeStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	return nil
}

func (s *fakeStore) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	cp := make([]models.DocumentChunk, len(chunks))
	copy(cp, chunks)
	s.inserted = append(s.inserted, cp)
	return nil
}

func (s *fakeStore) lastUpdate(t *testing.T) ingestUpdate {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.updates)
	return s.updates[len(s.updates)-1]
}

func (s *fakeStore) insertedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, batch := range s.inserted {
		n += len(batch)
	}
	return n
}

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		MaxChunkSize:   60,
		ChunkOverlap:   0,
		MinChunkChars:  1,
		MaxChunks:      500,
		CatalogRecords: 20,
		MaxChunkTokens: 8000,
		BatchSize:      50,
		TimeBudget:     time.Minute,
		MaxAttempts:    1,
		RetryBaseDelay: time.Millisecond,
		EmbedWorkers:   1,
	}
}

// fiveParagraphs chunks into exactly five pieces under testIngestConfig.
func fiveParagraphs() string {
	paras := make([]string, 5)
	for i := range paras {
		paras[i] = fmt.Sprintf("paragraph number %d with some plain text here", i)
	}
	return strings.Join(paras, "\n\n")
}

func testDocument(text string) *models.Document {
	return &models.Document{
		ID:            "doc-1",
		UserID:        "user-1",
		FileName:      "notes.txt",
		ExtractedText: text,
		Status:        models.StatusUnprocessed,
	}
}

func TestRunAdHocEmbedding(t *testing.T) {
	store := newFakeStore(nil)
	emb := &fakeEmbedder{}
	c := NewCoordinator(store, emb, testIngestConfig(), nil)

	res, err := c.Run(context.Background(), Request{RawText: "what is the return policy"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Vector)
	assert.Equal(t, 0, store.deletes)
	assert.Empty(t, store.updates)
	assert.Empty(t, store.inserted)
}

func TestRunAdHocRejectsEmptyText(t *testing.T) {
	c := NewCoordinator(newFakeStore(nil), &fakeEmbedder{}, testIngestConfig(), nil)

	_, err := c.Run(context.Background(), Request{RawText: "   "})

	var ee *core.EmbedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, core.EmbedValidation, ee.Kind)
}

func TestRunRequiresDocumentID(t *testing.T) {
	c := NewCoordinator(newFakeStore(nil), &fakeEmbedder{}, testIngestConfig(), nil)

	_, err := c.Run(context.Background(), Request{GenerateChunks: true})

	require.Error(t, err)
}

func TestRunDocumentNotFound(t *testing.T) {
	c := NewCoordinator(newFakeStore(nil), &fakeEmbedder{}, testIngestConfig(), nil)

	_, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "ghost"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunClaimConflict(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	store.claimOK = false
	c := NewCoordinator(store, &fakeEmbedder{}, testIngestConfig(), nil)

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})

	require.NoError(t, err)
	assert.True(t, res.AlreadyRunning)
	assert.Empty(t, store.inserted)
	assert.Empty(t, store.updates)
}

func TestRunForceBypassesClaim(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	store.claimOK = false
	c := NewCoordinator(store, &fakeEmbedder{}, testIngestConfig(), nil)

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1", Force: true})

	require.NoError(t, err)
	assert.False(t, res.AlreadyRunning)
	assert.True(t, res.Success)
}

func TestRunCompletesAndPersistsChunksInOrder(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	c := NewCoordinator(store, &fakeEmbedder{}, testIngestConfig(), nil)

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Partial)
	assert.Equal(t, 5, res.TotalChunks)
	assert.Equal(t, 5, res.ChunksCreated)
	assert.Equal(t, 0, res.ChunksSkipped)

	// Fresh run replaces the prior chunk set.
	assert.Equal(t, 1, store.deletes)

	require.Equal(t, 5, store.insertedCount())
	pos := 0
	for _, batch := range store.inserted {
		for _, ch := range batch {
			assert.Equal(t, pos, ch.Position)
			assert.Equal(t, "doc-1", ch.DocumentID)
			assert.Equal(t, "notes.txt", ch.FileName)
			assert.NotEmpty(t, ch.ID)
			assert.NotEmpty(t, ch.Embedding)
			assert.Equal(t, EstimateTokens(ch.Text), ch.TokenCount)
			pos++
		}
	}

	last := store.lastUpdate(t)
	assert.Equal(t, models.StatusCompleted, last.status)
	assert.Equal(t, 5, last.state.LastChunkIndex)
	assert.Equal(t, 5, last.state.ChunksCreated)
	assert.Empty(t, last.state.LastError)
}

func TestRunIsDeterministicAcrossReRuns(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	c := NewCoordinator(store, &fakeEmbedder{}, testIngestConfig(), nil)

	_, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})
	require.NoError(t, err)
	firstTexts := chunkTexts(store)

	store.inserted = nil
	_, err = c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})
	require.NoError(t, err)

	assert.Equal(t, firstTexts, chunkTexts(store))
	assert.Equal(t, 2, store.deletes)
}

func chunkTexts(s *fakeStore) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, batch := range s.inserted {
		for _, ch := range batch {
			out = append(out, ch.Text)
		}
	}
	return out
}

func TestRunResumeSkipsProcessedChunksAndKeepsCounts(t *testing.T) {
	doc := testDocument(fiveParagraphs())
	doc.Status = models.StatusPartial
	doc.ChunksCreated = 2
	store := newFakeStore(doc)
	c := NewCoordinator(store, &fakeEmbedder{}, testIngestConfig(), nil)

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1", ContinueFrom: 2})

	require.NoError(t, err)
	assert.True(t, res.Success)
	// Resume never wipes what the prior attempt flushed.
	assert.Equal(t, 0, store.deletes)
	assert.Equal(t, 5, res.ChunksCreated)

	require.Equal(t, 3, store.insertedCount())
	positions := []int{}
	for _, batch := range store.inserted {
		for _, ch := range batch {
			positions = append(positions, ch.Position)
		}
	}
	assert.Equal(t, []int{2, 3, 4}, positions)
}

func TestRunStopsAtTimeBudgetWithResumeState(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	cfg := testIngestConfig()
	c := NewCoordinator(store, &fakeEmbedder{}, cfg, nil)

	// Clock: within budget through the first window, exhausted after.
	base := time.Now()
	calls := 0
	c.now = func() time.Time {
		calls++
		if calls <= 2 {
			return base
		}
		return base.Add(cfg.TimeBudget + time.Second)
	}

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Partial)
	assert.Equal(t, 1, res.ProcessedChunks)
	assert.Equal(t, 1, res.ContinueFrom)
	assert.Equal(t, 5, res.TotalChunks)

	// The processed window was flushed before returning.
	assert.Equal(t, 1, store.insertedCount())

	last := store.lastUpdate(t)
	assert.Equal(t, models.StatusPartial, last.status)
	assert.Equal(t, 1, last.state.LastChunkIndex)
	assert.Equal(t, 5, last.state.TotalChunks)
	assert.Equal(t, 1, last.state.ChunksCreated)
}

func TestRunSkipsChunksThatFailEmbedding(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	emb := &fakeEmbedder{
		fn: func(call int, text string) ([]float32, error) {
			if strings.Contains(text, "number 2") {
				return nil, core.NewEmbedError(core.EmbedProvider, 500, "boom", nil)
			}
			return []float32{1}, nil
		},
	}
	c := NewCoordinator(store, emb, testIngestConfig(), nil)

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.ChunksCreated)
	assert.Equal(t, 1, res.ChunksSkipped)
	assert.Equal(t, 4, store.insertedCount())

	last := store.lastUpdate(t)
	assert.Equal(t, models.StatusCompleted, last.status)
	assert.Equal(t, 1, last.state.ChunksSkipped)
}

func TestRunSkipsChunksOverTokenCeiling(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	emb := &fakeEmbedder{}
	cfg := testIngestConfig()
	cfg.MaxChunkTokens = 1
	c := NewCoordinator(store, emb, cfg, nil)

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	// Over-budget chunks never reach the provider.
	assert.Equal(t, 0, emb.callCount())
	assert.Equal(t, 0, res.ChunksCreated)
	assert.Equal(t, 5, res.ChunksSkipped)
	assert.Equal(t, 0, store.insertedCount())

	last := store.lastUpdate(t)
	assert.Equal(t, models.StatusCompleted, last.status)
	assert.Equal(t, 5, last.state.ChunksSkipped)
}

func TestRunSkipsUndersizedChunksBeforeEmbedding(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	emb := &fakeEmbedder{}
	cfg := testIngestConfig()
	// A floor above the chunk bound forces the chunker's single fallback
	// chunk, which the coordinator then filters out as undersized.
	cfg.MinChunkChars = cfg.MaxChunkSize + 1
	c := NewCoordinator(store, emb, cfg, nil)

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, emb.callCount())
	assert.Equal(t, 1, res.TotalChunks)
	assert.Equal(t, 0, res.ChunksCreated)
	assert.Equal(t, 1, res.ChunksSkipped)
	assert.Equal(t, 0, store.insertedCount())
}

func TestRunFlushesInBatches(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	cfg := testIngestConfig()
	cfg.BatchSize = 2
	cfg.EmbedWorkers = 2
	c := NewCoordinator(store, &fakeEmbedder{}, cfg, nil)

	_, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})

	require.NoError(t, err)
	sizes := []int{}
	for _, batch := range store.inserted {
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestRunSurvivesFlushFailureWithHonestCounts(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	store.insertErr = errors.New("connection reset")
	c := NewCoordinator(store, &fakeEmbedder{}, testIngestConfig(), nil)

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ChunksCreated)
	assert.Equal(t, 5, res.ChunksSkipped)

	last := store.lastUpdate(t)
	assert.Equal(t, models.StatusCompleted, last.status)
	assert.Contains(t, last.state.LastError, "batch write failed")
}

func TestRunConcurrentWorkersPreserveOrder(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	cfg := testIngestConfig()
	cfg.EmbedWorkers = 4
	c := NewCoordinator(store, &fakeEmbedder{}, cfg, nil)

	res, err := c.Run(context.Background(), Request{GenerateChunks: true, DocumentID: "doc-1"})

	require.NoError(t, err)
	assert.Equal(t, 5, res.ChunksCreated)

	pos := 0
	for _, batch := range store.inserted {
		for _, ch := range batch {
			assert.Equal(t, pos, ch.Position)
			pos++
		}
	}
}

func TestEnqueueRejectsWhenQueueFull(t *testing.T) {
	c := NewCoordinator(newFakeStore(nil), &fakeEmbedder{}, testIngestConfig(), nil)
	w := NewWorker(c)

	// No workers started, so the queue only drains into its 64 slots.
	for i := 0; i < 64; i++ {
		require.True(t, w.Enqueue(fmt.Sprintf("doc-%d", i)))
	}
	assert.False(t, w.Enqueue("overflow"))
}

func TestWorkerDrainsDocumentToCompletion(t *testing.T) {
	store := newFakeStore(testDocument(fiveParagraphs()))
	c := NewCoordinator(store, &fakeEmbedder{}, testIngestConfig(), nil)
	w := NewWorker(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, 1)
	w.Enqueue("doc-1")

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		for _, u := range store.updates {
			if u.status == models.StatusCompleted {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 5, store.insertedCount())
}
