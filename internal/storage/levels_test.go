package storage

import (
	"context"
	"testing"
	"time"
)

func TestUserLevelRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record, err := store.GetUserLevel(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.XP != 0 || record.Level != 0 {
		t.Fatalf("expected zeroed record, got %+v", record)
	}

	record.XP = 450
	record.Level = 2
	record.TotalMessages = 12
	record.LastMessageAt = time.Now()
	if err := store.SaveUserLevel(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetUserLevel(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.XP != 450 || got.Level != 2 || got.TotalMessages != 12 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestRankAndTopUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, seed := range []struct {
		user string
		xp   int64
	}{{"u1", 100}, {"u2", 900}, {"u3", 400}} {
		record, err := store.GetUserLevel(ctx, "g1", seed.user)
		if err != nil {
			t.Fatalf("get %s: %v", seed.user, err)
		}
		record.XP = seed.xp
		if err := store.SaveUserLevel(ctx, record); err != nil {
			t.Fatalf("save %s: %v", seed.user, err)
		}
	}

	rank, err := store.Rank(ctx, "g1", "u3")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if rank != 2 {
		t.Fatalf("expected rank 2, got %d", rank)
	}

	top, err := store.TopUsers(ctx, "g1", 2, 0)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "u2" || top[1].UserID != "u3" {
		t.Fatalf("unexpected leaderboard: %+v", top)
	}
}

func TestGrantRowsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	row := GrantRow{
		Kind:      "noprefix",
		GuildID:   "g1",
		UserID:    "u1",
		ExpiresAt: time.Now().Add(time.Hour),
		GrantedBy: "owner",
		GrantedAt: time.Now(),
	}
	if err := store.UpsertGrant(ctx, row); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Re-grant replaces the expiry.
	row.ExpiresAt = row.ExpiresAt.Add(time.Hour)
	if err := store.UpsertGrant(ctx, row); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	rows, err := store.ListGrants(ctx, "noprefix")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(rows))
	}

	if err := store.DeleteGrant(ctx, "noprefix", "g1", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, err = store.ListGrants(ctx, "noprefix")
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no grants, got %d", len(rows))
	}
}
