// Package ratewindow counts events per subject over a sliding time window.
package ratewindow

import (
	"sync"
	"time"
)

// Tracker keeps one sliding window per (scope, subject) pair. Scopes are
// typically guild IDs and subjects user IDs, but the tracker does not care.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	scopes map[string]map[string][]time.Time
}

func New(window time.Duration) *Tracker {
	return &Tracker{
		window: window,
		scopes: make(map[string]map[string][]time.Time),
	}
}

// Record adds an event for the subject and returns the number of events
// still inside the window, including this one.
func (t *Tracker) Record(scope, subject string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	subjects, ok := t.scopes[scope]
	if !ok {
		subjects = make(map[string][]time.Time)
		t.scopes[scope] = subjects
	}

	hits := prune(subjects[subject], now.Add(-t.window))
	hits = append(hits, now)
	subjects[subject] = hits
	return len(hits)
}

// RecordIfIdle records an event only when the subject's window is empty
// and reports whether it did. The check and the record happen under one
// lock, and a rejected event leaves the window untouched.
func (t *Tracker) RecordIfIdle(scope, subject string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	subjects, ok := t.scopes[scope]
	if !ok {
		subjects = make(map[string][]time.Time)
		t.scopes[scope] = subjects
	}

	hits := prune(subjects[subject], now.Add(-t.window))
	if len(hits) > 0 {
		subjects[subject] = hits
		return false
	}
	subjects[subject] = append(hits, now)
	return true
}

// Count reports the events inside the window without recording a new one.
func (t *Tracker) Count(scope, subject string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	subjects, ok := t.scopes[scope]
	if !ok {
		return 0
	}

	hits := prune(subjects[subject], now.Add(-t.window))
	if len(hits) == 0 {
		delete(subjects, subject)
		if len(subjects) == 0 {
			delete(t.scopes, scope)
		}
		return 0
	}
	subjects[subject] = hits
	return len(hits)
}

// Reset drops all events for the subject.
func (t *Tracker) Reset(scope, subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	subjects, ok := t.scopes[scope]
	if !ok {
		return
	}
	delete(subjects, subject)
	if len(subjects) == 0 {
		delete(t.scopes, scope)
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for _, hit := range hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	return hits[idx:]
}
