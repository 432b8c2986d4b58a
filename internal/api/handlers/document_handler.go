package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	middleware "github.com/inkwellhq/inkwell/internal/api/middlewares"
	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/core"
	"github.com/inkwellhq/inkwell/internal/core/ingestion"
	"github.com/inkwellhq/inkwell/internal/models"
)

type DocumentHandler struct {
	dbclient     core.DbClient
	objectclient core.ObjectClient
	extractor    core.TextExtractor
	worker       *ingestion.Worker
	cfg          *config.Config
	logger       *slog.Logger
}

func NewDocumentHandler(dbclient core.DbClient, objectclient core.ObjectClient, extractor core.TextExtractor, worker *ingestion.Worker, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{
		dbclient:     dbclient,
		objectclient: objectclient,
		extractor:    extractor,
		worker:       worker,
		cfg:          cfg,
		logger:       slog.Default().With("component", "document-handler"),
	}
}

// UploadDocument stores the file in object storage, extracts its text, and
// enqueues the document for background ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(52 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload", http.StatusBadRequest)
		return
	}

	// Sanitize filename to prevent path traversal or invalid characters
	cleanFilename := filepath.Base(header.Filename)
	docID := uuid.NewString()
	s3Key := fmt.Sprintf("%s/%s/%s", userID, docID, cleanFilename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	url, err := h.objectclient.UploadFile(uploadctx, h.cfg.BucketName, s3Key, bytes.NewReader(data), contentType)
	if err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	text, err := h.extractor.Extract(uploadctx, data, contentType)
	if err != nil {
		h.logger.Error("text extraction failed", "document_id", docID, "content_type", contentType, "err", err)
		http.Error(w, fmt.Sprintf("extraction failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	doc := &models.Document{
		ID:            docID,
		UserID:        userID,
		FileName:      header.Filename,
		StorageURL:    url,
		SourceType:    "upload",
		ContentType:   contentType,
		ExtractedText: text,
		Status:        models.StatusUnprocessed,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := h.dbclient.CreateDocument(uploadctx, doc); err != nil {
		h.logger.Error("db insert failed", "document_id", docID, "err", err)
		http.Error(w, fmt.Sprintf("failed to store document metadata: %v", err), http.StatusInternalServerError)
		return
	}

	if !h.worker.Enqueue(doc.ID) {
		// The document is stored; ingestion can be re-triggered through
		// the ingest endpoint once the queue drains.
		h.logger.Warn("ingest queue full, document left unprocessed", "document_id", doc.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.dbclient.ListDocumentsByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// GetDocument returns one document's metadata; the status and resume fields
// are the operator-visible ingestion state.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	doc, err := h.dbclient.GetDocumentByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil || doc.UserID != userID {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
