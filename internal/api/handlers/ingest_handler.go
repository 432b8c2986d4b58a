package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	middleware "github.com/inkwellhq/inkwell/internal/api/middlewares"
	"github.com/inkwellhq/inkwell/internal/core"
	"github.com/inkwellhq/inkwell/internal/core/ingestion"
)

// IngestHandler exposes the ingestion coordinator over HTTP. A single call
// makes bounded forward progress; partial responses carry the offset for
// the next call.
type IngestHandler struct {
	dbclient    core.DbClient
	coordinator *ingestion.Coordinator
	logger      *slog.Logger
}

func NewIngestHandler(dbclient core.DbClient, coordinator *ingestion.Coordinator) *IngestHandler {
	return &IngestHandler{
		dbclient:    dbclient,
		coordinator: coordinator,
		logger:      slog.Default().With("component", "ingest-handler"),
	}
}

type ingestPayload struct {
	DocumentID     string `json:"document_id"`
	RawText        string `json:"raw_text"`
	GenerateChunks *bool  `json:"generate_chunks"` // default true
	Force          bool   `json:"force"`
	ContinueFrom   int    `json:"continue_from"`
}

// Ingest runs one ingestion invocation for the caller's document.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload ingestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeIngestError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	generateChunks := true
	if payload.GenerateChunks != nil {
		generateChunks = *payload.GenerateChunks
	}

	if generateChunks {
		// Ownership check before any mutation.
		doc, err := h.dbclient.GetDocumentByID(r.Context(), payload.DocumentID)
		if err != nil {
			writeIngestError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if doc == nil || doc.UserID != userID {
			writeIngestError(w, http.StatusNotFound, "document not found")
			return
		}
	}

	res, err := h.coordinator.Run(r.Context(), ingestion.Request{
		DocumentID:     payload.DocumentID,
		RawText:        payload.RawText,
		GenerateChunks: generateChunks,
		Force:          payload.Force,
		ContinueFrom:   payload.ContinueFrom,
	})
	if err != nil {
		h.logger.Error("ingestion run failed", "document_id", payload.DocumentID, "err", err)
		status := http.StatusInternalServerError
		var ee *core.EmbedError
		if errors.As(err, &ee) && ee.Kind == core.EmbedValidation {
			status = http.StatusBadRequest
		}
		writeIngestError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func writeIngestError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success":   false,
		"error":     msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
