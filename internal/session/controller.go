package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/events"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/extractor"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/ledger"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/pdftext"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/prompt"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/revision"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/schema"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/store"
)

// ErrInvalidInput marks failures rejected before any remote call. Handlers
// map it to a 400 with the wrapped message.
var ErrInvalidInput = errors.New("invalid input")

// PromptStore is the slice of the storage surface the controller needs for
// the active-prompt loop. Nil means the prompt store is unavailable.
type PromptStore interface {
	GetActivePrompt(ctx context.Context, useCase string) (*store.PromptRecord, error)
	InsertPromptAndActivate(ctx context.Context, title, text, useCase string, effectivenessScore *float64, feedbackRequested *string) (int64, error)
}

// FeedbackEntry is one immutable feedback submission. The log is append-only
// for the lifetime of a lineage.
type FeedbackEntry struct {
	Feedback        string    `json:"feedback"`
	PriorExtraction string    `json:"prior_extraction"`
	PriorPrompt     string    `json:"-"`
	At              time.Time `json:"at"`
}

// Session is the explicit per-lineage state object. There is no ambient
// state anywhere else; every controller operation works off this.
type Session struct {
	Schema      schema.Schema
	DocText     string
	FileName    string
	FileHash    string
	SchemaHash  string
	Lineage     *ledger.Lineage
	FeedbackLog []FeedbackEntry

	LastPrompt     string
	LastExtraction string
	LastTable      extractor.Table

	Revised         *revision.RevisedInstructions
	RevisedFeedback string
}

// Options carries the session-scoped configuration.
type Options struct {
	UseCase     string
	UserID      string
	MaxDocBytes int
}

// Controller drives the refinement loop. A mutex serializes the three user
// actions so a second submission cannot interleave with an in-flight one.
type Controller struct {
	ext     *extractor.Extractor
	rev     *revision.Reviser
	ledger  *ledger.Ledger
	prompts PromptStore
	pub     *events.Publisher
	opts    Options
	logger  *slog.Logger

	extractText func([]byte) (string, error)

	mu       sync.Mutex
	current  *Session
	archived []*Session
}

func NewController(ext *extractor.Extractor, rev *revision.Reviser, led *ledger.Ledger, prompts PromptStore, pub *events.Publisher, opts Options, logger *slog.Logger) *Controller {
	return &Controller{
		ext:         ext,
		rev:         rev,
		ledger:      led,
		prompts:     prompts,
		pub:         pub,
		opts:        opts,
		logger:      logger,
		extractText: pdftext.Extract,
	}
}

// SetTextExtractor swaps the PDF text collaborator, used by tests.
func (c *Controller) SetTextExtractor(fn func([]byte) (string, error)) {
	c.extractText = fn
}

// UploadResult is what the upload action hands back for display.
type UploadResult struct {
	DocumentID int64           `json:"document_id"`
	LocalID    uuid.UUID       `json:"local_id"`
	Version    int             `json:"version"`
	Raw        string          `json:"raw"`
	Table      extractor.Table `json:"table"`
	Skipped    bool            `json:"skipped"`
}

// Upload runs the initial extraction: parse the schema, pull the document
// text, start a lineage, seed the request with the active prompt if one
// exists, extract, and record V1. An unchanged file+schema pair with a prior
// successful run is skipped instead of re-extracted.
func (c *Controller) Upload(ctx context.Context, pdfBytes, schemaBytes []byte, fileName string) (*UploadResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(pdfBytes) == 0 {
		return nil, fmt.Errorf("%w: no PDF uploaded", ErrInvalidInput)
	}
	if len(schemaBytes) == 0 {
		return nil, fmt.Errorf("%w: no schema spreadsheet uploaded", ErrInvalidInput)
	}
	if strings.TrimSpace(fileName) == "" {
		fileName = "upload.pdf"
	}

	sch, err := schema.ParseWorkbook(schemaBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	fileHash := hashBytes(pdfBytes)
	schemaHash := sch.Hash()

	// Idempotent skip: same file, same schema, prior successful run. A live
	// extraction call here would be a redundant paid call.
	if s := c.current; s != nil && s.FileHash == fileHash && s.SchemaHash == schemaHash && s.LastExtraction != "" {
		c.logger.Info("upload unchanged, skipping extraction",
			"file_name", s.FileName,
			"versions", len(s.Lineage.Versions),
		)
		return &UploadResult{
			DocumentID: s.Lineage.DocumentID,
			LocalID:    s.Lineage.LocalID,
			Version:    len(s.Lineage.Versions),
			Raw:        s.LastExtraction,
			Table:      s.LastTable,
			Skipped:    true,
		}, nil
	}

	docText, err := c.extractText(pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("document analysis: %w", err)
	}
	docText = prompt.Clip(docText, c.opts.MaxDocBytes)

	// A new file/schema pair starts a fresh lineage and feedback log scope.
	// The previous session stays addressable for export, unmutated.
	if c.current != nil {
		c.archived = append(c.archived, c.current)
	}
	s := &Session{
		Schema:     sch,
		DocText:    docText,
		FileName:   fileName,
		FileHash:   fileHash,
		SchemaHash: schemaHash,
	}

	s.Lineage = c.ledger.StartLineage(ctx, fileName, c.opts.UserID, "upload")

	active := c.activeInstructions(ctx)
	request := prompt.Build(sch, docText, active)

	v := ledger.AppendVersion(nil, ledger.TypeInitial, "")
	v.Prompt = request
	v.Status = ledger.StatusProcessing
	c.ledger.RecordResult(ctx, s.Lineage, ledger.StatusProcessing, "", nil, 0, "")

	raw, err := c.ext.Extract(ctx, request)
	if err != nil {
		v.Status = ledger.StatusError
		v.ErrorMessage = err.Error()
		v.RetryCount = 1
		s.Lineage.Versions = append(s.Lineage.Versions, v)
		s.LastPrompt = request
		c.current = s
		c.ledger.RecordResult(ctx, s.Lineage, ledger.StatusError, "", nil, v.RetryCount, err.Error())
		c.publish(events.SubjectExtractionFailed, map[string]any{
			"document_id": s.Lineage.DocumentID,
			"file_name":   fileName,
			"version":     v.Version,
			"error":       err.Error(),
		})
		return nil, fmt.Errorf("extraction: %w", err)
	}

	v.Status = ledger.StatusCompleted
	v.Output = raw
	s.Lineage.Versions = append(s.Lineage.Versions, v)
	s.LastPrompt = request
	s.LastExtraction = raw
	s.LastTable = extractor.ToTable(raw, sch)
	c.current = s

	c.ledger.RecordResult(ctx, s.Lineage, ledger.StatusCompleted, raw, nil, 0, "")
	c.publish(events.SubjectExtractionCompleted, map[string]any{
		"document_id": s.Lineage.DocumentID,
		"file_name":   fileName,
		"version":     v.Version,
		"type":        string(v.Type),
	})

	c.logger.Info("initial extraction recorded",
		"document_id", s.Lineage.DocumentID,
		"file_name", fileName,
		"columns", sch.Len(),
	)

	return &UploadResult{
		DocumentID: s.Lineage.DocumentID,
		LocalID:    s.Lineage.LocalID,
		Version:    v.Version,
		Raw:        raw,
		Table:      s.LastTable,
	}, nil
}

// FeedbackResult is what the feedback action hands back.
type FeedbackResult struct {
	Version      int             `json:"version"`
	Title        string          `json:"title"`
	Instructions string          `json:"instructions"`
	Parsed       bool            `json:"parsed"`
	Raw          string          `json:"raw"`
	Table        extractor.Table `json:"table"`
}

// SubmitFeedback runs the improvement half of the loop: revise the
// instruction set from the feedback, re-extract with the revised instructions
// layered over a fresh task block, and append an Improved version. Revisions
// replace the instruction set; they are never stacked onto the previous full
// prompt, so prompts do not grow across iterations.
func (c *Controller) SubmitFeedback(ctx context.Context, feedback string) (*FeedbackResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, fmt.Errorf("%w: feedback is empty", ErrInvalidInput)
	}
	s := c.current
	if s == nil || s.LastExtraction == "" {
		return nil, fmt.Errorf("%w: no extraction to give feedback on", ErrInvalidInput)
	}

	rev, err := c.rev.Revise(ctx, s.LastExtraction, feedback, s.LastPrompt)
	if err != nil {
		// Prior versions and the feedback log stay untouched.
		return nil, fmt.Errorf("revision: %w", err)
	}

	s.FeedbackLog = append(s.FeedbackLog, FeedbackEntry{
		Feedback:        feedback,
		PriorExtraction: s.LastExtraction,
		PriorPrompt:     s.LastPrompt,
		At:              time.Now().UTC(),
	})
	s.Revised = &rev
	s.RevisedFeedback = feedback

	c.publish(events.SubjectRevisionCreated, map[string]any{
		"document_id": s.Lineage.DocumentID,
		"title":       rev.Title,
		"parsed":      rev.Parsed,
	})

	request := prompt.Build(s.Schema, s.DocText, rev.Instructions)

	v := ledger.AppendVersion(s.Lineage.Versions, ledger.TypeImproved, feedback)
	v.Prompt = request
	v.Status = ledger.StatusProcessing
	c.ledger.RecordResult(ctx, s.Lineage, ledger.StatusProcessing, "", nil, 0, "")

	raw, err := c.ext.Extract(ctx, request)
	if err != nil {
		v.Status = ledger.StatusError
		v.ErrorMessage = err.Error()
		v.RetryCount = 1
		s.Lineage.Versions = append(s.Lineage.Versions, v)
		c.ledger.RecordResult(ctx, s.Lineage, ledger.StatusError, "", nil, v.RetryCount, err.Error())
		c.publish(events.SubjectExtractionFailed, map[string]any{
			"document_id": s.Lineage.DocumentID,
			"file_name":   s.FileName,
			"version":     v.Version,
			"error":       err.Error(),
		})
		return nil, fmt.Errorf("re-extraction: %w", err)
	}

	v.Status = ledger.StatusCompleted
	v.Output = raw
	s.Lineage.Versions = append(s.Lineage.Versions, v)
	s.LastPrompt = request
	s.LastExtraction = raw
	s.LastTable = extractor.ToTable(raw, s.Schema)

	c.ledger.RecordResult(ctx, s.Lineage, ledger.StatusImproved, raw, nil, 0, "")
	c.publish(events.SubjectExtractionCompleted, map[string]any{
		"document_id": s.Lineage.DocumentID,
		"file_name":   s.FileName,
		"version":     v.Version,
		"type":        string(v.Type),
	})

	c.logger.Info("improved extraction recorded",
		"document_id", s.Lineage.DocumentID,
		"version", v.Version,
		"feedback_len", len(feedback),
	)

	return &FeedbackResult{
		Version:      v.Version,
		Title:        rev.Title,
		Instructions: rev.Instructions,
		Parsed:       rev.Parsed,
		Raw:          raw,
		Table:        s.LastTable,
	}, nil
}

// SavePrompt promotes the latest revised instructions to the active prompt
// for the session's use case.
func (c *Controller) SavePrompt(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	if s == nil || s.Revised == nil {
		return 0, fmt.Errorf("%w: no revised instructions to save", ErrInvalidInput)
	}
	if c.prompts == nil {
		return 0, fmt.Errorf("prompt store: database offline")
	}

	fb := s.RevisedFeedback
	promptID, err := c.prompts.InsertPromptAndActivate(ctx, s.Revised.Title, s.Revised.Instructions, c.opts.UseCase, nil, &fb)
	if err != nil {
		return 0, fmt.Errorf("prompt store: %w", err)
	}

	// Attach the saved prompt to the version it produced.
	if n := len(s.Lineage.Versions); n > 0 {
		last := &s.Lineage.Versions[n-1]
		last.PromptID = &promptID
		c.ledger.RecordResult(ctx, s.Lineage, last.Status, "", &promptID, last.RetryCount, "")
	}

	c.publish(events.SubjectPromptActivated, map[string]any{
		"prompt_id": promptID,
		"use_case":  c.opts.UseCase,
		"title":     s.Revised.Title,
	})

	c.logger.Info("prompt promoted to active",
		"prompt_id", promptID,
		"use_case", c.opts.UseCase,
		"title", s.Revised.Title,
	)
	return promptID, nil
}

// LineageRef identifies a superseded lineage that can still be exported.
type LineageRef struct {
	LocalID    uuid.UUID `json:"local_id"`
	DocumentID int64     `json:"document_id,omitempty"`
	FileName   string    `json:"file_name"`
}

// Snapshot is a read-only view of the current session for the API.
type Snapshot struct {
	Active       bool                 `json:"active"`
	FileName     string               `json:"file_name,omitempty"`
	DocumentID   int64                `json:"document_id,omitempty"`
	LocalID      uuid.UUID            `json:"local_id,omitempty"`
	Columns      []string             `json:"columns,omitempty"`
	Versions     []ledger.VersionInfo `json:"versions,omitempty"`
	FeedbackLog  []FeedbackEntry      `json:"feedback_log,omitempty"`
	RevisedTitle string               `json:"revised_title,omitempty"`
	Archived     []LineageRef         `json:"archived,omitempty"`
	Offline      bool                 `json:"database_offline"`
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Offline: c.ledger.Offline()}
	for _, old := range c.archived {
		snap.Archived = append(snap.Archived, LineageRef{
			LocalID:    old.Lineage.LocalID,
			DocumentID: old.Lineage.DocumentID,
			FileName:   old.FileName,
		})
	}
	s := c.current
	if s == nil {
		return snap
	}

	snap.Active = true
	snap.FileName = s.FileName
	snap.DocumentID = s.Lineage.DocumentID
	snap.LocalID = s.Lineage.LocalID
	snap.Columns = s.Schema.Names()
	snap.Versions = append(snap.Versions, s.Lineage.Versions...)
	snap.FeedbackLog = append(snap.FeedbackLog, s.FeedbackLog...)
	if s.Revised != nil {
		snap.RevisedTitle = s.Revised.Title
	}
	return snap
}

// ExportData hands the export layer what it needs for the current session.
func (c *Controller) ExportData() (fileName string, sch schema.Schema, versions []ledger.VersionInfo, table extractor.Table, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	if s == nil || len(s.Lineage.Versions) == 0 {
		return "", schema.Schema{}, nil, extractor.Table{}, false
	}
	versions = append(versions, s.Lineage.Versions...)
	return s.FileName, s.Schema, versions, s.LastTable, true
}

// ExportLineage locates a lineage by its local ID, current or superseded.
// Superseded lineages are read-only from the moment a new upload replaces
// them, so the copy handed back here never changes again.
func (c *Controller) ExportLineage(localID uuid.UUID) (fileName string, sch schema.Schema, versions []ledger.VersionInfo, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidates := make([]*Session, 0, len(c.archived)+1)
	if c.current != nil {
		candidates = append(candidates, c.current)
	}
	candidates = append(candidates, c.archived...)

	for _, s := range candidates {
		if s.Lineage.LocalID != localID {
			continue
		}
		versions = append(versions, s.Lineage.Versions...)
		return s.FileName, s.Schema, versions, true
	}
	return "", schema.Schema{}, nil, false
}

// activeInstructions fetches the active prompt text for the use case, or ""
// when none exists or the store is unavailable.
func (c *Controller) activeInstructions(ctx context.Context) string {
	if c.prompts == nil {
		return ""
	}
	rec, err := c.prompts.GetActivePrompt(ctx, c.opts.UseCase)
	if errors.Is(err, store.ErrNoActivePrompt) {
		return ""
	}
	if err != nil {
		c.logger.Warn("active prompt lookup failed, using default template",
			"use_case", c.opts.UseCase,
			"error", err,
		)
		return ""
	}
	c.logger.Info("seeding request with active prompt",
		"prompt_id", rec.PromptID,
		"title", rec.Title,
	)
	return rec.Text
}

func (c *Controller) publish(subject string, payload map[string]any) {
	if err := c.pub.Publish(subject, payload); err != nil {
		c.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
