package rungraph

import (
	"testing"
	"time"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := OpenStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	now := time.Now().Truncate(time.Millisecond)
	record := &RunRecord{
		ID:         "r1",
		Status:     StatusRunning,
		SessionKey: "s1",
		InsertedAt: now,
		UpdatedAt:  now,
		StartedAt:  &now,
	}
	if err := s.Put(record); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Upsert replaces.
	record.Status = StatusCompleted
	record.Result = "ok"
	if err := s.Put(record); err != nil {
		t.Fatalf("Put upsert: %v", err)
	}

	records, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len = %d, want 1", len(records))
	}
	got := records[0]
	if got.ID != "r1" || got.Status != StatusCompleted || got.Result != "ok" || got.SessionKey != "s1" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(now) {
		t.Errorf("started_at lost: %v", got.StartedAt)
	}
}

func TestStoreDeleteBatch(t *testing.T) {
	s, err := OpenStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Put(&RunRecord{ID: id, Status: StatusQueued, InsertedAt: now, UpdatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if err := s.DeleteBatch([]string{"a", "c"}); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}

	records, err := s.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "b" {
		t.Errorf("unexpected survivors: %+v", records)
	}
}
