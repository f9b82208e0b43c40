package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	nextID     int64
	inserts    int
	updates    int
	insertErr  error
	updateErr  error
	lastStatus string
}

func (f *fakeStore) InsertDocumentRequest(ctx context.Context, fileName, userID, sourceType string) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserts++
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) UpdateDocumentByID(ctx context.Context, documentID int64, status, output *string, promptID *int64, retryCount *int, errorMessage, comments *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	if status != nil {
		f.lastStatus = *status
	}
	return nil
}

func TestStartLineage_AlwaysNewRow(t *testing.T) {
	db := &fakeStore{}
	l := New(db, discardLogger())

	a := l.StartLineage(context.Background(), "invoice.pdf", "u1", "upload")
	b := l.StartLineage(context.Background(), "invoice.pdf", "u1", "upload")

	if a.DocumentID == b.DocumentID {
		t.Error("expected a fresh document row per lineage, even for the same filename")
	}
	if a.LocalID == b.LocalID {
		t.Error("expected distinct local ids")
	}
	if db.inserts != 2 {
		t.Errorf("expected 2 inserts, got %d", db.inserts)
	}
	if l.Offline() {
		t.Error("ledger should stay online after successful inserts")
	}
}

func TestStartLineage_StorageFailureDegrades(t *testing.T) {
	db := &fakeStore{insertErr: errors.New("connection refused")}
	l := New(db, discardLogger())

	lin := l.StartLineage(context.Background(), "invoice.pdf", "u1", "upload")

	if !l.Offline() {
		t.Error("expected offline flag after storage failure")
	}
	if lin == nil || lin.FileName != "invoice.pdf" {
		t.Fatal("expected a usable in-memory lineage despite storage failure")
	}
	if lin.DocumentID != 0 {
		t.Errorf("expected no durable id, got %d", lin.DocumentID)
	}

	// Subsequent calls must not touch the store again.
	l.RecordResult(context.Background(), lin, StatusCompleted, "{}", nil, 0, "")
	if db.updates != 0 {
		t.Errorf("expected no updates in offline mode, got %d", db.updates)
	}
}

func TestRecordResult_WritesStatus(t *testing.T) {
	db := &fakeStore{}
	l := New(db, discardLogger())
	lin := l.StartLineage(context.Background(), "invoice.pdf", "u1", "upload")

	l.RecordResult(context.Background(), lin, StatusCompleted, `{"Total":"$500"}`, nil, 0, "")

	if db.updates != 1 {
		t.Fatalf("expected 1 update, got %d", db.updates)
	}
	if db.lastStatus != "Completed" {
		t.Errorf("expected Completed, got %q", db.lastStatus)
	}
}

func TestRecordResult_UpdateFailureDegrades(t *testing.T) {
	db := &fakeStore{updateErr: errors.New("broken pipe")}
	l := New(db, discardLogger())
	lin := l.StartLineage(context.Background(), "invoice.pdf", "u1", "upload")

	l.RecordResult(context.Background(), lin, StatusError, "", nil, 1, "llm failure")

	if !l.Offline() {
		t.Error("expected offline flag after update failure")
	}
}

func TestNew_NilStoreIsMemoryOnly(t *testing.T) {
	l := New(nil, discardLogger())
	if !l.Offline() {
		t.Error("nil store should start offline")
	}

	lin := l.StartLineage(context.Background(), "a.pdf", "u", "upload")
	if lin.DocumentID != 0 {
		t.Errorf("expected no durable id, got %d", lin.DocumentID)
	}
	l.RecordResult(context.Background(), lin, StatusCompleted, "{}", nil, 0, "")
}

func TestAppendVersion_Monotonic(t *testing.T) {
	var chain []VersionInfo

	v1 := AppendVersion(chain, TypeInitial, "")
	chain = append(chain, v1)
	v2 := AppendVersion(chain, TypeImproved, "totals should exclude tax")
	chain = append(chain, v2)
	v3 := AppendVersion(chain, TypeImproved, "dates as ISO")
	chain = append(chain, v3)

	for i, v := range chain {
		if v.Version != i+1 {
			t.Errorf("version %d: expected number %d, got %d", i, i+1, v.Version)
		}
	}
	if v1.Type != TypeInitial {
		t.Errorf("expected V1 Initial, got %s", v1.Type)
	}
	if v2.Type != TypeImproved || v2.Feedback != "totals should exclude tax" {
		t.Errorf("unexpected V2: %+v", v2)
	}
	if v1.Status != StatusSubmitted {
		t.Errorf("new versions start Submitted, got %s", v1.Status)
	}
}

func TestAppendVersion_DoesNotMutatePrior(t *testing.T) {
	chain := []VersionInfo{{Version: 1, Type: TypeInitial, Status: StatusCompleted}}
	_ = AppendVersion(chain, TypeImproved, "fb")

	if chain[0].Version != 1 || chain[0].Status != StatusCompleted {
		t.Error("prior chain mutated by append")
	}
}
