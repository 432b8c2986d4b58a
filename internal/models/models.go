package models

import (
	"time"
)

// Document processing statuses. The status column is the single source of
// truth for operators; the ingestion coordinator owns a document while its
// status is StatusInProgress.
const (
	StatusUnprocessed = "unprocessed"
	StatusInProgress  = "in_progress"
	StatusPartial     = "partial"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents an uploaded knowledge source. ExtractedText is
// populated at upload time; the ingestion pipeline never re-parses the
// original file.
type Document struct {
	ID            string `db:"id" json:"id"`
	UserID        string `db:"user_id" json:"user_id"`
	FileName      string `db:"file_name" json:"file_name"`
	StorageURL    string `db:"storage_url" json:"storage_url"`
	SourceType    string `db:"source_type" json:"source_type"` // "upload" or "url"
	ContentType   string `db:"content_type" json:"content_type"`
	ExtractedText string `db:"extracted_text" json:"-"`
	Status        string `db:"status" json:"status"`

	// Resume metadata maintained by the ingestion coordinator.
	LastChunkIndex int        `db:"last_chunk_index" json:"last_chunk_index"`
	TotalChunks    int        `db:"total_chunks" json:"total_chunks"`
	ChunksCreated  int        `db:"chunks_created" json:"chunks_created"`
	ChunksSkipped  int        `db:"chunks_skipped" json:"chunks_skipped"`
	LastError      string     `db:"last_error" json:"last_error,omitempty"`
	ProcessedAt    *time.Time `db:"processed_at" json:"processed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IngestState is the progress patch written alongside a status transition.
type IngestState struct {
	LastChunkIndex int
	TotalChunks    int
	ChunksCreated  int
	ChunksSkipped  int
	LastError      string
}

// DocumentChunk represents one text chunk from a document. Chunks are
// immutable once persisted; re-ingestion replaces the full set.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Position   int       `db:"position" json:"position"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"embedding"` // pgvector column
	TokenCount int       `db:"token_count" json:"token_count"`
	FileName   string    `db:"file_name" json:"file_name"`
	ByteLength int       `db:"byte_length" json:"byte_length"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
