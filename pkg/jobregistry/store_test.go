package jobregistry

import (
	"context"
	"testing"
	"time"

	"github.com/3leaps/gobulk/pkg/bulk"
)

func TestStore_RecordJobRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir()).WithManifestPath("/tmp/extract.yaml")

	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	job := &bulk.Job{
		ID:          "gid://shop/BulkOperation/7",
		Kind:        "products",
		Status:      bulk.StatusRunning,
		Attempts:    2,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := s.RecordJob(context.Background(), "run-1", job); err != nil {
		t.Fatalf("RecordJob() error: %v", err)
	}

	got, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.BulkJobID != job.ID {
		t.Fatalf("bulk_job_id mismatch: got=%q want=%q", got.BulkJobID, job.ID)
	}
	if got.State != RunStateRunning || got.PID == 0 {
		t.Fatalf("expected running record with pid, got state=%q pid=%d", got.State, got.PID)
	}
	if got.ManifestPath != "/tmp/extract.yaml" {
		t.Fatalf("manifest path not persisted: %q", got.ManifestPath)
	}

	job.Status = bulk.StatusCompleted
	job.ResultLocation = "https://storage.example/r.jsonl"
	if err := s.RecordJob(context.Background(), "run-1", job); err != nil {
		t.Fatalf("RecordJob() error: %v", err)
	}
	got, err = s.Get("run-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != RunStateSuccess || got.EndedAt == nil || got.PID != 0 {
		t.Fatalf("expected finished record, got %+v", got)
	}
	if got.ResultLocation != job.ResultLocation {
		t.Fatalf("result location mismatch: %q", got.ResultLocation)
	}
}

func TestStore_FailedJobState(t *testing.T) {
	s := NewStore(t.TempDir())
	job := &bulk.Job{ID: "j", Kind: "orders", Status: bulk.StatusFailed, ErrorCode: "INTERNAL_ERROR"}
	if err := s.RecordJob(context.Background(), "run-2", job); err != nil {
		t.Fatalf("RecordJob() error: %v", err)
	}
	got, err := s.Get("run-2")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != RunStateFailed || got.ErrorCode != "INTERNAL_ERROR" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestStore_ListSortsNewestFirstAndFilters(t *testing.T) {
	s := NewStore(t.TempDir())

	t1 := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 19, 13, 0, 0, 0, time.UTC)

	if err := s.Write(&JobRecord{RunID: "run-1", Kind: "products", State: RunStateSuccess, SubmittedAt: t1}); err != nil {
		t.Fatalf("Write run-1: %v", err)
	}
	if err := s.Write(&JobRecord{RunID: "run-2", Kind: "orders", State: RunStateSuccess, SubmittedAt: t2}); err != nil {
		t.Fatalf("Write run-2: %v", err)
	}

	got, err := s.List("")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected job count: %d", len(got))
	}
	if got[0].RunID != "run-2" {
		t.Fatalf("expected newest first, got[0]=%q", got[0].RunID)
	}

	got, err = s.List("products")
	if err != nil {
		t.Fatalf("List(products) error: %v", err)
	}
	if len(got) != 1 || got[0].RunID != "run-1" {
		t.Fatalf("unexpected filtered list: %+v", got)
	}
}

func TestStore_RejectsUnsafeRunID(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, id := range []string{"", "..", "a/b"} {
		if err := s.Write(&JobRecord{RunID: id}); err == nil {
			t.Fatalf("expected error for run_id %q", id)
		}
	}
}

func TestStore_DeadProcessBecomesUnknown(t *testing.T) {
	s := NewStore(t.TempDir())
	// PIDs this large are never allocated on common systems.
	if err := s.Write(&JobRecord{RunID: "run-z", Kind: "orders", State: RunStateRunning, PID: 1 << 30}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got, err := s.Get("run-z")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != RunStateUnknown {
		t.Fatalf("expected unknown state, got %q", got.State)
	}
}
