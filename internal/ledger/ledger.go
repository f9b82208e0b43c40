package ledger

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status values for a document version.
type Status string

const (
	StatusSubmitted  Status = "Submitted"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusImproved   Status = "Improved"
	StatusError      Status = "Error"
)

// ExtractionType distinguishes the first extraction of a lineage from
// feedback-driven re-extractions.
type ExtractionType string

const (
	TypeInitial  ExtractionType = "Initial"
	TypeImproved ExtractionType = "Improved"
)

// VersionInfo is one extraction attempt in a lineage. Version numbers are
// strictly increasing from 1 with no gaps. Once written, a version only
// changes through status/error transitions.
type VersionInfo struct {
	Version      int            `json:"version"`
	Type         ExtractionType `json:"type"`
	Status       Status         `json:"status"`
	Output       string         `json:"output,omitempty"`
	Prompt       string         `json:"-"`
	PromptID     *int64         `json:"prompt_id,omitempty"`
	Feedback     string         `json:"feedback,omitempty"`
	RetryCount   int            `json:"retry_count"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Lineage is the ordered version chain for one uploaded document. When the
// database is unreachable DocumentID is 0 and LocalID is the only identity.
type Lineage struct {
	DocumentID int64         `json:"document_id"`
	LocalID    uuid.UUID     `json:"local_id"`
	FileName   string        `json:"file_name"`
	Versions   []VersionInfo `json:"versions"`
}

// DocumentStore is the durable projection consumed by the ledger. A nil
// store means memory-only operation from the start.
type DocumentStore interface {
	InsertDocumentRequest(ctx context.Context, fileName, userID, sourceType string) (int64, error)
	UpdateDocumentByID(ctx context.Context, documentID int64, status, output *string, promptID *int64, retryCount *int, errorMessage, comments *string) error
}

// Ledger records every extraction attempt. Storage failures never abort the
// session: the ledger flips to memory-only mode and keeps going, and the
// offline flag stays observable.
type Ledger struct {
	db      DocumentStore
	logger  *slog.Logger
	offline atomic.Bool
}

func New(db DocumentStore, logger *slog.Logger) *Ledger {
	l := &Ledger{db: db, logger: logger}
	if db == nil {
		l.offline.Store(true)
	}
	return l
}

// Offline reports whether the ledger is running without durable storage.
func (l *Ledger) Offline() bool {
	return l.offline.Load()
}

// StartLineage creates a new lineage. It always inserts a new document row;
// an earlier lineage for the same filename is never reused or mutated.
func (l *Ledger) StartLineage(ctx context.Context, fileName, userID, sourceType string) *Lineage {
	lin := &Lineage{
		LocalID:  uuid.New(),
		FileName: fileName,
	}

	if l.offline.Load() {
		return lin
	}

	docID, err := l.db.InsertDocumentRequest(ctx, fileName, userID, sourceType)
	if err != nil {
		l.offline.Store(true)
		l.logger.Warn("database offline, continuing in memory-only mode",
			"file_name", fileName,
			"error", err,
		)
		return lin
	}

	lin.DocumentID = docID
	return lin
}

// RecordResult writes a status/output transition for a lineage's durable
// row. Called at most twice per version. Storage errors degrade to
// memory-only mode instead of propagating.
func (l *Ledger) RecordResult(ctx context.Context, lin *Lineage, status Status, output string, promptID *int64, retryCount int, errorMessage string) {
	if l.offline.Load() || lin.DocumentID == 0 {
		return
	}

	st := string(status)
	var outPtr, errPtr *string
	if output != "" {
		outPtr = &output
	}
	if errorMessage != "" {
		errPtr = &errorMessage
	}

	if err := l.db.UpdateDocumentByID(ctx, lin.DocumentID, &st, outPtr, promptID, &retryCount, errPtr, nil); err != nil {
		l.offline.Store(true)
		l.logger.Warn("database offline, continuing in memory-only mode",
			"document_id", lin.DocumentID,
			"error", err,
		)
	}
}

// AppendVersion builds the next version for a lineage. Pure: it only derives
// the version number from the prior chain, it does not mutate it.
func AppendVersion(prior []VersionInfo, extractionType ExtractionType, feedback string) VersionInfo {
	return VersionInfo{
		Version:   len(prior) + 1,
		Type:      extractionType,
		Status:    StatusSubmitted,
		Feedback:  feedback,
		CreatedAt: time.Now().UTC(),
	}
}
