package ratewindow

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRecordCountsWithinWindow(t *testing.T) {
	tracker := New(10 * time.Second)
	now := time.Now()

	var count int
	for i := 0; i < 6; i++ {
		count = tracker.Record("g1", "u1", now.Add(time.Duration(i)*1500*time.Millisecond))
	}
	if count != 6 {
		t.Fatalf("expected 6 events inside window, got %d", count)
	}
}

func TestRecordExpiresOldEvents(t *testing.T) {
	tracker := New(10 * time.Second)
	now := time.Now()

	for i := 0; i < 5; i++ {
		tracker.Record("g1", "u1", now.Add(time.Duration(i)*time.Second))
	}
	if count := tracker.Record("g1", "u1", now.Add(15*time.Second)); count != 1 {
		t.Fatalf("expected stale events pruned, got count %d", count)
	}
}

func TestSubjectsAreIndependent(t *testing.T) {
	tracker := New(10 * time.Second)
	now := time.Now()

	tracker.Record("g1", "u1", now)
	tracker.Record("g1", "u1", now)
	if count := tracker.Record("g1", "u2", now); count != 1 {
		t.Fatalf("expected independent subject count 1, got %d", count)
	}
	if count := tracker.Record("g2", "u1", now); count != 1 {
		t.Fatalf("expected independent scope count 1, got %d", count)
	}
}

func TestCountEvictsEmptyEntries(t *testing.T) {
	tracker := New(time.Second)
	now := time.Now()

	tracker.Record("g1", "u1", now)
	if count := tracker.Count("g1", "u1", now.Add(5*time.Second)); count != 0 {
		t.Fatalf("expected 0 after expiry, got %d", count)
	}
	tracker.mu.Lock()
	_, ok := tracker.scopes["g1"]
	tracker.mu.Unlock()
	if ok {
		t.Fatal("expected empty scope to be evicted")
	}
}

func TestResetClearsSubject(t *testing.T) {
	tracker := New(10 * time.Second)
	now := time.Now()

	tracker.Record("g1", "u1", now)
	tracker.Record("g1", "u1", now)
	tracker.Reset("g1", "u1")
	if count := tracker.Count("g1", "u1", now); count != 0 {
		t.Fatalf("expected 0 after reset, got %d", count)
	}
}

func TestRecordIfIdle(t *testing.T) {
	tracker := New(60 * time.Second)
	now := time.Now()

	if !tracker.RecordIfIdle("g1", "u1", now) {
		t.Fatal("expected first event to be recorded")
	}
	if tracker.RecordIfIdle("g1", "u1", now.Add(30*time.Second)) {
		t.Fatal("expected second event inside the window to be rejected")
	}
	// The rejected event did not extend the window.
	if !tracker.RecordIfIdle("g1", "u1", now.Add(61*time.Second)) {
		t.Fatal("expected recording once the first event expired")
	}
}

func TestRecordIfIdleConcurrent(t *testing.T) {
	tracker := New(60 * time.Second)
	now := time.Now()

	const workers = 16
	var wg sync.WaitGroup
	var recorded int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.RecordIfIdle("g1", "u1", now) {
				atomic.AddInt32(&recorded, 1)
			}
		}()
	}
	wg.Wait()

	if recorded != 1 {
		t.Fatalf("expected exactly one recorded event, got %d", recorded)
	}
}
