//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	if err := Migrate(dbURL); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_ActivePromptExclusivity(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	useCase := "integration-test-" + uuid.New().String()[:8]

	first, err := s.InsertPromptAndActivate(ctx, "first", "instructions v1", useCase, nil, nil)
	if err != nil {
		t.Fatalf("insert first prompt: %v", err)
	}

	fb := "totals should exclude tax"
	second, err := s.InsertPromptAndActivate(ctx, "second", "instructions v2", useCase, nil, &fb)
	if err != nil {
		t.Fatalf("insert second prompt: %v", err)
	}
	if second == first {
		t.Fatal("expected a new prompt row")
	}

	active, err := s.GetActivePrompt(ctx, useCase)
	if err != nil {
		t.Fatalf("get active prompt: %v", err)
	}
	if active.PromptID != second {
		t.Errorf("expected prompt %d active, got %d", second, active.PromptID)
	}
	if active.Text != "instructions v2" {
		t.Errorf("unexpected active text: %q", active.Text)
	}

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM prompts WHERE use_case = $1 AND is_active`, useCase).Scan(&count); err != nil {
		t.Fatalf("count active: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one active prompt, got %d", count)
	}
}

func TestIntegration_GetActivePrompt_None(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetActivePrompt(ctx, "use-case-that-does-not-exist-"+uuid.New().String()[:8])
	if err != ErrNoActivePrompt {
		t.Fatalf("expected ErrNoActivePrompt, got %v", err)
	}
}

func TestIntegration_DocumentLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	fileName := "integration-" + uuid.New().String()[:8] + ".pdf"

	docID, err := s.InsertDocumentRequest(ctx, fileName, "tester", "upload")
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}

	status := "Completed"
	output := `{"Total": "$500"}`
	retries := 0
	if err := s.UpdateDocumentByID(ctx, docID, &status, &output, nil, &retries, nil, nil); err != nil {
		t.Fatalf("update document: %v", err)
	}

	rec, err := s.GetDocumentByFilename(ctx, fileName)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if rec == nil || rec.DocumentID != docID {
		t.Fatalf("expected document %d, got %+v", docID, rec)
	}
	if rec.ExtractionStatus != "Completed" {
		t.Errorf("expected Completed, got %q", rec.ExtractionStatus)
	}
	if rec.ExtractionOutput == nil || *rec.ExtractionOutput != output {
		t.Errorf("unexpected output: %v", rec.ExtractionOutput)
	}

	// A repeated upload of the same filename must create a new row.
	second, err := s.InsertDocumentRequest(ctx, fileName, "tester", "upload")
	if err != nil {
		t.Fatalf("insert second document: %v", err)
	}
	if second == docID {
		t.Error("expected a new lineage row for the repeated filename")
	}
}

func TestIntegration_FetchAndLockNextDocument(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	status := "Queued-" + uuid.New().String()[:8]

	docID, err := s.InsertDocumentRequest(ctx, "lock-test.pdf", "tester", "upload")
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}
	if err := s.UpdateDocumentByID(ctx, docID, &status, nil, nil, nil, nil, nil); err != nil {
		t.Fatalf("set status: %v", err)
	}

	claimed, err := s.FetchAndLockNextDocument(ctx, status, "Processing", "worker-1")
	if err != nil {
		t.Fatalf("fetch and lock: %v", err)
	}
	if claimed == nil || claimed.DocumentID != docID {
		t.Fatalf("expected document %d claimed, got %+v", docID, claimed)
	}
	if claimed.ExtractionStatus != "Processing" {
		t.Errorf("expected Processing, got %q", claimed.ExtractionStatus)
	}

	again, err := s.FetchAndLockNextDocument(ctx, status, "Processing", "worker-2")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if again != nil {
		t.Errorf("expected nothing left to claim, got %+v", again)
	}
}
