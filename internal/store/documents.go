package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DocumentRecord is one row of the document_master table. Each row is one
// extraction attempt; a fresh upload always inserts a new row so the full
// audit trail is preserved.
type DocumentRecord struct {
	DocumentID       int64
	FileName         string
	UserID           *string
	SourceType       *string
	ExtractionStatus string
	ExtractionOutput *string
	PromptID         *int64
	RetryCount       int
	ErrorMessage     *string
	Comments         *string
	AssignedTo       *string
	CreatedTime      time.Time
	LastUpdated      time.Time
}

const documentColumns = `document_id, file_name, user_id, source_type, extraction_status, extraction_output,
	prompt_id, retry_count, error_message, comments, assigned_to, created_time, last_updated`

func scanDocument(row pgx.Row) (*DocumentRecord, error) {
	var rec DocumentRecord
	err := row.Scan(
		&rec.DocumentID, &rec.FileName, &rec.UserID, &rec.SourceType, &rec.ExtractionStatus,
		&rec.ExtractionOutput, &rec.PromptID, &rec.RetryCount, &rec.ErrorMessage,
		&rec.Comments, &rec.AssignedTo, &rec.CreatedTime, &rec.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertDocumentRequest creates a new document row in Submitted state and
// returns its id. Never updates an existing row, even for a repeated
// filename.
func (s *Store) InsertDocumentRequest(ctx context.Context, fileName, userID, sourceType string) (int64, error) {
	var documentID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO document_master (file_name, user_id, source_type, extraction_status, created_time, last_updated)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), 'Submitted', now(), now())
		RETURNING document_id`,
		fileName, userID, sourceType,
	).Scan(&documentID)
	if err != nil {
		return 0, fmt.Errorf("insert document request: %w", err)
	}
	return documentID, nil
}

// UpdateDocumentByID applies the non-nil fields to a document row. Status and
// error transitions are the only mutations a version sees after insert.
func (s *Store) UpdateDocumentByID(ctx context.Context, documentID int64, status, output *string, promptID *int64, retryCount *int, errorMessage, comments *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE document_master SET
			extraction_status = COALESCE($2, extraction_status),
			extraction_output = COALESCE($3, extraction_output),
			prompt_id         = COALESCE($4, prompt_id),
			retry_count       = COALESCE($5, retry_count),
			error_message     = COALESCE($6, error_message),
			comments          = COALESCE($7, comments),
			last_updated      = now()
		WHERE document_id = $1`,
		documentID, status, output, promptID, retryCount, errorMessage, comments,
	)
	if err != nil {
		return fmt.Errorf("update document %d: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update document %d: no such document", documentID)
	}
	return nil
}

// GetDocumentByFilename returns the most recent document row for a filename,
// or nil when the filename has never been seen.
func (s *Store) GetDocumentByFilename(ctx context.Context, fileName string) (*DocumentRecord, error) {
	rec, err := scanDocument(s.pool.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM document_master
		WHERE file_name = $1
		ORDER BY created_time DESC
		LIMIT 1`,
		fileName,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document by filename: %w", err)
	}
	return rec, nil
}

// FetchAndLockNextDocument claims the oldest document in currentStatus,
// moving it to nextStatus. SKIP LOCKED keeps competing workers from claiming
// the same row. Returns nil when nothing is claimable.
func (s *Store) FetchAndLockNextDocument(ctx context.Context, currentStatus, nextStatus, assignedTo string) (*DocumentRecord, error) {
	rec, err := scanDocument(s.pool.QueryRow(ctx, `
		UPDATE document_master SET
			extraction_status = $2,
			assigned_to       = NULLIF($3, ''),
			last_updated      = now()
		WHERE document_id = (
			SELECT document_id FROM document_master
			WHERE extraction_status = $1
			ORDER BY created_time
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+documentColumns,
		currentStatus, nextStatus, assignedTo,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch and lock next document: %w", err)
	}
	return rec, nil
}
