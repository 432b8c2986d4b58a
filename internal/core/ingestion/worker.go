package ingestion

import (
	"context"
	"log/slog"
)

// Worker drains a bounded in-memory queue of document IDs, invoking the
// coordinator for each. Runs that finish partial (time budget exhausted)
// are immediately re-invoked with the returned resume offset until the
// document completes, so an upload is fully ingested without operator
// intervention even when the text spans many budget windows.
type Worker struct {
	coordinator *Coordinator
	jobs        chan string
	logger      *slog.Logger
}

// NewWorker constructs the worker with a bounded job queue (64).
func NewWorker(coordinator *Coordinator) *Worker {
	return &Worker{
		coordinator: coordinator,
		jobs:        make(chan string, 64),
		logger:      slog.Default().With("component", "ingest-worker"),
	}
}

// Start launches numWorkers goroutines reading from the job queue.
func (w *Worker) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for n := 1; n <= numWorkers; n++ {
		go func(n int) {
			for {
				select {
				case <-ctx.Done():
					w.logger.Info("ingest worker shutting down", "worker", n)
					return
				case docID := <-w.jobs:
					w.drain(ctx, docID, n)
				}
			}
		}(n)
	}
}

// Enqueue schedules a document ID for ingestion. It never blocks: when the
// queue is full the job is rejected and the caller decides how to surface
// it. The document stays unprocessed and can be re-triggered later.
func (w *Worker) Enqueue(docID string) bool {
	select {
	case w.jobs <- docID:
		return true
	default:
		w.logger.Warn("ingest queue full, rejecting job", "document_id", docID)
		return false
	}
}

// drain runs the document to completion across as many partial runs as the
// time budget requires.
func (w *Worker) drain(ctx context.Context, docID string, worker int) {
	req := Request{DocumentID: docID, GenerateChunks: true}
	for {
		res, err := w.coordinator.Run(ctx, req)
		if err != nil {
			w.logger.Error("ingestion run failed", "worker", worker, "document_id", docID, "err", err)
			return
		}
		if res.AlreadyRunning {
			w.logger.Info("document claimed elsewhere, dropping job", "worker", worker, "document_id", docID)
			return
		}
		if !res.Partial {
			return
		}
		if ctx.Err() != nil {
			return
		}
		// Continue where the budget cut us off. The partial run released
		// its claim, so no force is needed.
		req.ContinueFrom = res.ContinueFrom
		w.logger.Info("continuing partial ingestion", "worker", worker,
			"document_id", docID, "continue_from", res.ContinueFrom)
	}
}
