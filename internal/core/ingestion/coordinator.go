package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/core"
	"github.com/inkwellhq/inkwell/internal/metrics"
	"github.com/inkwellhq/inkwell/internal/models"
)

// Request is one ingestion invocation. When GenerateChunks is false the
// call degrades to a single ad-hoc embedding of RawText and never touches
// the document store.
type Request struct {
	DocumentID     string `json:"document_id"`
	RawText        string `json:"raw_text,omitempty"`
	GenerateChunks bool   `json:"generate_chunks"`
	Force          bool   `json:"force"`
	ContinueFrom   int    `json:"continue_from"`
}

// Result is the outcome of a run. Partial results carry the resume offset
// for the next invocation; AlreadyRunning signals a claim conflict.
type Result struct {
	Success         bool      `json:"success"`
	Partial         bool      `json:"partial,omitempty"`
	AlreadyRunning  bool      `json:"-"`
	DocumentID      string    `json:"document_id,omitempty"`
	ChunksCreated   int       `json:"chunks_created,omitempty"`
	ChunksSkipped   int       `json:"chunks_skipped,omitempty"`
	ProcessedChunks int       `json:"processed_chunks,omitempty"`
	TotalChunks     int       `json:"total_chunks,omitempty"`
	ContinueFrom    int       `json:"continue_from,omitempty"`
	Vector          []float32 `json:"vector,omitempty"`
	Message         string    `json:"message,omitempty"`
}

// Coordinator drives one document ingestion run: claim the document, chunk
// its text, embed chunks in bounded concurrent windows against a wall-clock
// budget, flush records in batches, and finalize the document status.
//
// A single chunk's irrecoverable embed failure never aborts the document;
// it is counted and skipped. Budget exhaustion is a normal outcome: the run
// flushes what it has, persists the resume offset with status partial, and
// the caller re-invokes with ContinueFrom set.
type Coordinator struct {
	store    core.DocumentStore
	embedder core.EmbeddingProvider
	chunker  *Chunker
	cfg      config.IngestConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewCoordinator wires a coordinator. m may be nil to disable metrics.
func NewCoordinator(store core.DocumentStore, embedder core.EmbeddingProvider, cfg config.IngestConfig, m *metrics.Metrics) *Coordinator {
	ch := NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap)
	if cfg.MinChunkChars > 0 {
		ch.MinChunkChars = cfg.MinChunkChars
	}
	if cfg.MaxChunks > 0 {
		ch.MaxChunks = cfg.MaxChunks
	}
	if cfg.CatalogRecords > 0 {
		ch.CatalogRecords = cfg.CatalogRecords
	}
	return &Coordinator{
		store:    store,
		embedder: embedder,
		chunker:  ch,
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "ingest-coordinator"),
		now:      time.Now,
	}
}

// Run executes one ingestion invocation.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	if !req.GenerateChunks {
		return c.embedAdHoc(ctx, req.RawText)
	}
	if req.DocumentID == "" {
		return nil, errors.New("document_id required")
	}

	start := c.now()

	doc, err := c.store.GetDocumentByID(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", req.DocumentID, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document not found: %s", req.DocumentID)
	}

	claimed, err := c.store.ClaimDocument(ctx, doc.ID, req.Force)
	if err != nil {
		return nil, fmt.Errorf("claim document %s: %w", doc.ID, err)
	}
	if !claimed {
		c.logger.Info("document already in progress, skipping", "document_id", doc.ID)
		c.metrics.RunFinished("conflict")
		return &Result{
			Success:        true,
			AlreadyRunning: true,
			DocumentID:     doc.ID,
			Message:        "already in progress",
		}, nil
	}

	res, err := c.process(ctx, doc, req, start)
	if err != nil {
		c.fail(doc.ID, err)
		return nil, err
	}
	return res, nil
}

// process runs chunking, the embedding loop, and finalization. The document
// is already claimed; any error returned here marks it failed.
func (c *Coordinator) process(ctx context.Context, doc *models.Document, req Request, start time.Time) (*Result, error) {
	text := doc.ExtractedText
	if req.RawText != "" {
		text = req.RawText
	}

	// Fresh runs replace the full chunk set so a re-ingestion never mixes
	// old and new chunking. Resumed runs keep what the prior attempt
	// flushed.
	if req.ContinueFrom == 0 {
		if err := c.store.DeleteChunksByDocument(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("delete prior chunks: %w", err)
		}
	}

	chunks := c.chunker.Split(text)
	total := len(chunks)

	offset := req.ContinueFrom
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}

	// Resumed runs accumulate onto the prior attempt's counts.
	created, skipped := 0, 0
	if offset > 0 {
		created, skipped = doc.ChunksCreated, doc.ChunksSkipped
	}

	var (
		batch     = make([]models.DocumentChunk, 0, c.cfg.BatchSize)
		lastError string
	)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.store.InsertDocumentChunks(ctx, batch); err != nil {
			// The batch's embeddings are lost for this run; the count
			// stays honest and the error is surfaced in document metadata
			// rather than aborting remaining batches.
			c.logger.Error("chunk batch write failed", "document_id", doc.ID, "batch_size", len(batch), "err", err)
			c.metrics.FlushDone(false)
			created -= len(batch)
			skipped += len(batch)
			lastError = fmt.Sprintf("batch write failed: %v", err)
		} else {
			c.metrics.FlushDone(true)
		}
		batch = batch[:0]
	}

	workers := c.cfg.EmbedWorkers
	if workers < 1 {
		workers = 1
	}

	i := offset
	for i < total {
		// Approximate time-boxing: checked once per window, so a slow
		// provider call can overshoot the budget slightly.
		if c.now().Sub(start) > c.cfg.TimeBudget {
			flush()
			state := models.IngestState{
				LastChunkIndex: i,
				TotalChunks:    total,
				ChunksCreated:  created,
				ChunksSkipped:  skipped,
				LastError:      lastError,
			}
			if err := c.store.UpdateDocumentIngest(ctx, doc.ID, models.StatusPartial, state); err != nil {
				return nil, fmt.Errorf("persist resume state: %w", err)
			}
			c.logger.Info("time budget exhausted, returning partial result",
				"document_id", doc.ID, "processed", i, "total", total)
			c.metrics.RunFinished("partial")
			return &Result{
				Success:         true,
				Partial:         true,
				DocumentID:      doc.ID,
				ProcessedChunks: i,
				TotalChunks:     total,
				ContinueFrom:    i,
				Message:         fmt.Sprintf("processed %d of %d chunks, continue from %d", i, total, i),
			}, nil
		}

		end := i + workers
		if end > total {
			end = total
		}
		vectors, err := c.embedWindow(ctx, chunks[i:end])
		if err != nil {
			return nil, err
		}

		for j, vec := range vectors {
			idx := i + j
			if vec == nil {
				skipped++
				continue
			}
			batch = append(batch, models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: doc.ID,
				Position:   idx,
				Text:       chunks[idx],
				Embedding:  vec,
				TokenCount: EstimateTokens(chunks[idx]),
				FileName:   doc.FileName,
				ByteLength: len(chunks[idx]),
				CreatedAt:  time.Now().UTC(),
			})
			created++
			if len(batch) >= c.cfg.BatchSize {
				flush()
			}
		}
		i = end
	}

	flush()

	state := models.IngestState{
		LastChunkIndex: total,
		TotalChunks:    total,
		ChunksCreated:  created,
		ChunksSkipped:  skipped,
		LastError:      lastError,
	}
	if err := c.store.UpdateDocumentIngest(ctx, doc.ID, models.StatusCompleted, state); err != nil {
		return nil, fmt.Errorf("finalize document: %w", err)
	}

	// A zero created count for a non-empty chunk sequence still completes;
	// the caller sees the count and can alert.
	c.logger.Info("ingestion completed",
		"document_id", doc.ID, "created", created, "skipped", skipped, "total", total)
	c.metrics.RunFinished("completed")

	return &Result{
		Success:       true,
		DocumentID:    doc.ID,
		ChunksCreated: created,
		ChunksSkipped: skipped,
		TotalChunks:   total,
	}, nil
}

// embedWindow embeds one window of chunks with at most len(window)
// concurrent provider calls and joins results in index order. A nil vector
// marks a chunk that was filtered out or failed after retries.
func (c *Coordinator) embedWindow(ctx context.Context, window []string) ([][]float32, error) {
	vectors := make([][]float32, len(window))

	g, gctx := errgroup.WithContext(ctx)
	for j, text := range window {
		trimmed := strings.TrimSpace(text)
		if runeLen(trimmed) < c.chunker.MinChunkChars {
			c.logger.Debug("skipping undersized chunk", "chars", runeLen(trimmed))
			c.metrics.ChunkSkipped("too_small")
			continue
		}
		if est := EstimateTokens(text); est > c.cfg.MaxChunkTokens {
			c.logger.Warn("skipping oversized chunk", "estimated_tokens", est, "limit", c.cfg.MaxChunkTokens)
			c.metrics.ChunkSkipped("too_large")
			continue
		}

		g.Go(func() error {
			began := time.Now()
			vec, err := EmbedWithRetry(gctx, c.embedder, text, c.cfg.MaxAttempts, c.cfg.RetryBaseDelay)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				var ee *core.EmbedError
				kind := "unknown"
				if errors.As(err, &ee) {
					kind = ee.Kind.String()
				}
				c.logger.Error("chunk embed failed, skipping", "kind", kind, "err", err)
				c.metrics.EmbedFailed(kind)
				c.metrics.ChunkSkipped("embed_failed")
				return nil
			}
			vectors[j] = vec
			c.metrics.ChunkEmbedded(time.Since(began))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// embedAdHoc serves query-time embedding: no store access, just the vector.
func (c *Coordinator) embedAdHoc(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewEmbedError(core.EmbedValidation, 0, "raw_text required when generate_chunks is false", nil)
	}
	vec, err := EmbedWithRetry(ctx, c.embedder, text, c.cfg.MaxAttempts, c.cfg.RetryBaseDelay)
	if err != nil {
		return nil, err
	}
	return &Result{Success: true, Vector: vec}, nil
}

// fail marks the document failed with the error message and timestamp. The
// original error still propagates to the caller.
func (c *Coordinator) fail(docID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state := models.IngestState{LastError: cause.Error()}
	if err := c.store.UpdateDocumentIngest(ctx, docID, models.StatusFailed, state); err != nil {
		c.logger.Error("failed to mark document failed", "document_id", docID, "err", err)
	}
	c.metrics.RunFinished("failed")
}
