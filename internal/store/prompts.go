package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNoActivePrompt is returned when a use case has no active instruction set.
var ErrNoActivePrompt = errors.New("no active prompt for use case")

// PromptRecord is one row of the prompts table.
type PromptRecord struct {
	PromptID           int64
	Title              string
	Text               string
	UseCase            string
	EffectivenessScore *float64
	FeedbackRequested  *string
	IsActive           bool
	CreatedTime        time.Time
}

// GetActivePrompt returns the single active prompt for a use case, or
// ErrNoActivePrompt when none exists.
func (s *Store) GetActivePrompt(ctx context.Context, useCase string) (*PromptRecord, error) {
	var rec PromptRecord
	err := s.pool.QueryRow(ctx, `
		SELECT prompt_id, prompt_title, prompt_text, use_case, effectiveness_score, feedback_requested, is_active, created_time
		FROM prompts
		WHERE use_case = $1 AND is_active
		ORDER BY created_time DESC
		LIMIT 1`,
		useCase,
	).Scan(&rec.PromptID, &rec.Title, &rec.Text, &rec.UseCase, &rec.EffectivenessScore, &rec.FeedbackRequested, &rec.IsActive, &rec.CreatedTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActivePrompt
	}
	if err != nil {
		return nil, fmt.Errorf("query active prompt: %w", err)
	}
	return &rec, nil
}

// InsertPromptAndActivate inserts a new prompt and makes it the only active
// one for its use case. Deactivation of the previous active row and the
// insert commit together or not at all.
func (s *Store) InsertPromptAndActivate(ctx context.Context, title, text, useCase string, effectivenessScore *float64, feedbackRequested *string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE prompts SET is_active = FALSE
		WHERE use_case = $1 AND is_active`,
		useCase,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate previous prompt: %w", err)
	}

	var promptID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO prompts (prompt_title, prompt_text, use_case, effectiveness_score, feedback_requested, is_active, created_time)
		VALUES ($1, $2, $3, $4, $5, TRUE, now())
		RETURNING prompt_id`,
		title, text, useCase, effectivenessScore, feedbackRequested,
	).Scan(&promptID)
	if err != nil {
		return 0, fmt.Errorf("insert prompt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return promptID, nil
}
