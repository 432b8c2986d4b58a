package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/core"
	db "github.com/inkwellhq/inkwell/internal/core/database"
	"github.com/inkwellhq/inkwell/internal/core/extract"
	"github.com/inkwellhq/inkwell/internal/core/ingestion"
	"github.com/inkwellhq/inkwell/internal/core/llm"
	"github.com/inkwellhq/inkwell/internal/core/objectstore"
	"github.com/inkwellhq/inkwell/internal/metrics"
)

// App owns every long-lived dependency: storage clients, the ingestion
// pipeline, and the HTTP server.
type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Worker       *ingestion.Worker
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database init: %w", err)
	}
	slog.Info("database initialized and ready")

	objClient, err := objectstore.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object client init: %w", err)
	}
	slog.Info("object client initialized and ready")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("embedder init: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("llm init: %w", err)
	}

	extractor := extract.NewDocconvExtractor(false)

	m := metrics.New(prometheus.DefaultRegisterer)
	coordinator := ingestion.NewCoordinator(dbClient, embedder, cfg.Ingest, m)
	worker := ingestion.NewWorker(coordinator)
	worker.Start(ctx, 2)

	server := NewServer(cfg, dbClient, objClient, extractor, coordinator, worker, embedder, llmProvider)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Worker:       worker,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
