package core

import (
	"context"
	"io"

	"github.com/inkwellhq/inkwell/internal/models"
)

// EmbeddingProvider is a client for the external embedding API.
// Implementations must classify failures as *EmbedError so callers can
// decide what is retryable.
type EmbeddingProvider interface {
	// EmbedText embeds a single text and returns its vector.
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// EmbedTexts embeds several texts in one provider call.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider generates answer text for the chat/query path.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// TextExtractor converts an uploaded file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// DocumentStore is the narrow persistence surface the ingestion coordinator
// consumes. DbClient implementations satisfy it; tests supply fakes.
type DocumentStore interface {
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)

	// ClaimDocument atomically transitions the document to in_progress.
	// Returns false without error when the document is already in progress
	// (the claim conflict signal); force bypasses the status guard.
	ClaimDocument(ctx context.Context, id string, force bool) (bool, error)

	// UpdateDocumentIngest writes a status transition together with the
	// coordinator's progress metadata.
	UpdateDocumentIngest(ctx context.Context, id string, status string, state models.IngestState) error

	DeleteChunksByDocument(ctx context.Context, documentID string) error
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
}

// DbClient defines all persistence operations the service needs.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	DocumentStore

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)

	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	SearchDocumentChunks(ctx context.Context, docID string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
