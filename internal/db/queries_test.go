package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hpungsan/atlas/internal/errors"
	"github.com/hpungsan/atlas/internal/record"
)

// newTestAnalysis creates a pending analysis with default values for testing.
func newTestAnalysis(id, kind string, createdAt int64) *record.Analysis {
	return &record.Analysis{
		ID:           id,
		Kind:         kind,
		DisplayName:  "question.png",
		MediaType:    "image/png",
		ContentPath:  "/cache/" + id + ".png",
		ContentBytes: 2048,
		Width:        640,
		Height:       480,
		Status:       StatusPending,
		Attempts:     1,
		SessionID:    "cli",
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// stringPtr returns a pointer to the given string.
func stringPtr(s string) *string {
	return &s
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndGetByID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := newTestAnalysis("01ABC123", "image", 1000)
	if err := Insert(ctx, db, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := GetByID(ctx, db, "01ABC123", false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.ID != a.ID || got.Kind != "image" || got.DisplayName != "question.png" {
		t.Errorf("GetByID = %+v", got)
	}
	if got.ContentBytes != 2048 || got.Width != 640 || got.Height != 480 {
		t.Errorf("content fields = %d %dx%d", got.ContentBytes, got.Width, got.Height)
	}
	if got.Status != StatusPending || got.Attempts != 1 || got.SessionID != "cli" {
		t.Errorf("status fields = %s %d %s", got.Status, got.Attempts, got.SessionID)
	}
	if got.ErrorCode != nil || got.FinishedAt != nil || got.DeletedAt != nil {
		t.Errorf("nullable fields should be nil: %+v", got)
	}
}

func TestInsert_DuplicateID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := newTestAnalysis("01DUP", "image", 1000)
	if err := Insert(ctx, db, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := Insert(ctx, db, a); err != ErrUniqueConstraint {
		t.Errorf("second Insert error = %v, want ErrUniqueConstraint", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetByID(context.Background(), db, "nope", false)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestResolve_Succeeded(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := Insert(ctx, db, newTestAnalysis("01RES", "document", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := Resolve(ctx, db, "01RES", Resolution{
		Status:     StatusSucceeded,
		ReportText: "**Summary:**\nQuantum",
		FinishedAt: 1003,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	got, err := GetByID(ctx, db, "01RES", false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != StatusSucceeded {
		t.Errorf("Status = %s, want succeeded", got.Status)
	}
	if got.ReportChars != record.CountChars("**Summary:**\nQuantum") {
		t.Errorf("ReportChars = %d", got.ReportChars)
	}
	if got.FinishedAt == nil || *got.FinishedAt != 1003 || got.UpdatedAt != 1003 {
		t.Errorf("FinishedAt = %v, UpdatedAt = %d", got.FinishedAt, got.UpdatedAt)
	}
}

func TestResolve_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := Insert(ctx, db, newTestAnalysis("01ONCE", "image", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := Resolve(ctx, db, "01ONCE", Resolution{Status: StatusAbandoned, FinishedAt: 1001}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	err := Resolve(ctx, db, "01ONCE", Resolution{Status: StatusSucceeded, ReportText: "late", FinishedAt: 1002})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("late Resolve error = %v, want CONFLICT", err)
	}

	got, _ := GetByID(ctx, db, "01ONCE", false)
	if got.Status != StatusAbandoned || got.ReportText != "" {
		t.Errorf("late result was not discarded: %+v", got)
	}

	if err := Resolve(ctx, db, "missing", Resolution{Status: StatusFailed}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want NOT_FOUND", err)
	}
	if err := Resolve(ctx, db, "01ONCE", Resolution{Status: StatusPending}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Resolve(pending) error = %v, want INVALID_REQUEST", err)
	}
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := Insert(ctx, db, newTestAnalysis("01RETRY", "image", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Pending rows cannot be reopened
	if err := Reopen(ctx, db, "01RETRY"); !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("Reopen(pending) error = %v, want CONFLICT", err)
	}

	err := Resolve(ctx, db, "01RETRY", Resolution{
		Status:       StatusFailed,
		ErrorCode:    stringPtr("ANALYSIS_FAILED"),
		ErrorMessage: stringPtr("analysis failed: boom"),
		FinishedAt:   1001,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if err := Reopen(ctx, db, "01RETRY"); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}

	got, _ := GetByID(ctx, db, "01RETRY", false)
	if got.Status != StatusPending || got.Attempts != 2 {
		t.Errorf("after Reopen: status=%s attempts=%d", got.Status, got.Attempts)
	}
	if got.ErrorCode != nil || got.ErrorMessage != nil || got.FinishedAt != nil {
		t.Errorf("error fields not cleared: %+v", got)
	}
}

func TestAbandonPending(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, id := range []string{"01P1", "01P2", "01P3"} {
		if err := Insert(ctx, db, newTestAnalysis(id, "image", 1000)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := Resolve(ctx, db, "01P3", Resolution{Status: StatusSucceeded, ReportText: "ok", FinishedAt: 1001}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// Still in flight in some process: touched after the cutoff.
	if err := Insert(ctx, db, newTestAnalysis("01P4", "image", 5000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	n, err := AbandonPending(ctx, db, 2000)
	if err != nil {
		t.Fatalf("AbandonPending failed: %v", err)
	}
	if n != 2 {
		t.Errorf("abandoned = %d, want 2", n)
	}

	counts, err := CountByStatus(ctx, db)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[StatusAbandoned] != 2 || counts[StatusSucceeded] != 1 || counts[StatusPending] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := Insert(ctx, db, newTestAnalysis("01DEL", "image", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := SoftDelete(ctx, db, "01DEL"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	if _, err := GetByID(ctx, db, "01DEL", false); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByID after delete error = %v, want NOT_FOUND", err)
	}
	got, err := GetByID(ctx, db, "01DEL", true)
	if err != nil {
		t.Fatalf("GetByID(includeDeleted) failed: %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("DeletedAt should be set")
	}

	if err := SoftDelete(ctx, db, "01DEL"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second SoftDelete error = %v, want NOT_FOUND", err)
	}
}

func TestList_PaginationAndFilters(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	kinds := []string{"image", "document", "image", "image", "document"}
	for i, kind := range kinds {
		a := newTestAnalysis("01L"+string(rune('A'+i)), kind, base+int64(i))
		if err := Insert(ctx, db, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := SoftDelete(ctx, db, "01LA"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	items, total, err := List(ctx, db, ListFilters{}, 2, 0, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 4 || len(items) != 2 {
		t.Fatalf("total=%d len=%d, want 4 and 2", total, len(items))
	}
	// Newest first
	if items[0].ID != "01LE" || items[1].ID != "01LD" {
		t.Errorf("order = %s, %s", items[0].ID, items[1].ID)
	}

	items, total, err = List(ctx, db, ListFilters{Kind: "image"}, 10, 0, false)
	if err != nil {
		t.Fatalf("List(kind) failed: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("image total=%d len=%d, want 2", total, len(items))
	}

	_, total, err = List(ctx, db, ListFilters{Kind: "image"}, 10, 0, true)
	if err != nil {
		t.Fatalf("List(includeDeleted) failed: %v", err)
	}
	if total != 3 {
		t.Errorf("image total with deleted = %d, want 3", total)
	}

	items, _, err = List(ctx, db, ListFilters{Status: StatusSucceeded}, 10, 0, false)
	if err != nil {
		t.Fatalf("List(status) failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("succeeded items = %d, want 0", len(items))
	}
}

func TestStreamForExport(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for i, id := range []string{"01S2", "01S1", "01S3"} {
		if err := Insert(ctx, db, newTestAnalysis(id, "image", int64(1000-i))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	var seen []string
	err := StreamForExport(ctx, db, ListFilters{}, false, func(a *record.Analysis) error {
		seen = append(seen, a.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamForExport failed: %v", err)
	}
	// Oldest first
	want := []string{"01S3", "01S1", "01S2"}
	if len(seen) != 3 || seen[0] != want[0] || seen[1] != want[1] || seen[2] != want[2] {
		t.Errorf("order = %v, want %v", seen, want)
	}

	stop := errors.NewInternal(nil)
	calls := 0
	err = StreamForExport(ctx, db, ListFilters{}, false, func(*record.Analysis) error {
		calls++
		return stop
	})
	if err != stop || calls != 1 {
		t.Errorf("err=%v calls=%d, want stop after first", err, calls)
	}
}

func TestPurgeDeleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, id := range []string{"01PG1", "01PG2", "01PG3"} {
		if err := Insert(ctx, db, newTestAnalysis(id, "image", 1000)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	for _, id := range []string{"01PG1", "01PG2"} {
		if err := SoftDelete(ctx, db, id); err != nil {
			t.Fatalf("SoftDelete failed: %v", err)
		}
	}

	// Deleted just now, so nothing is older than a day
	days := 1
	n, err := PurgeDeleted(ctx, db, &days)
	if err != nil {
		t.Fatalf("PurgeDeleted(1 day) failed: %v", err)
	}
	if n != 0 {
		t.Errorf("purged = %d, want 0", n)
	}

	n, err = PurgeDeleted(ctx, db, nil)
	if err != nil {
		t.Fatalf("PurgeDeleted failed: %v", err)
	}
	if n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}

	if _, err := GetByID(ctx, db, "01PG1", true); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("purged row still present: %v", err)
	}
	if _, err := GetByID(ctx, db, "01PG3", false); err != nil {
		t.Errorf("active row removed: %v", err)
	}
}
