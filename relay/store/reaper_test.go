package store

import (
	"context"
	"testing"
	"time"
)

func TestNewReaper_InvalidSchedule(t *testing.T) {
	if _, err := NewReaper(NewMemStore(), "not a schedule"); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}

func TestReaper_Sweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	mustRegister(t, s, Record{ExecutionARN: testARN, InvocationID: "100.0", SQLStatement: "SELECT 1"})

	// Already expired relative to any present-day sweep.
	if err := s.Retire(ctx, testARN, "100.0", time.Now().UTC().Add(-time.Hour).Unix(), nil); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}

	r, err := NewReaper(s, "@hourly")
	if err != nil {
		t.Fatalf("NewReaper failed: %v", err)
	}

	deleted, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Sweep deleted %d records, want 1", deleted)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store after sweep, got %d records", s.Len())
	}
}

func TestReaper_StartStop(t *testing.T) {
	r, err := NewReaper(NewMemStore(), "@every 1h")
	if err != nil {
		t.Fatalf("NewReaper failed: %v", err)
	}
	r.Start()
	r.Stop()
}
