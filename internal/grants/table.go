// Package grants tracks expiring per-user capabilities such as no-prefix
// command access. Entries live in memory and are mirrored to storage so
// they survive restarts.
package grants

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sbmod/internal/storage"
)

const KindNoPrefix = "noprefix"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type entry struct {
	expiresAt time.Time
	grantedBy string
	grantedAt time.Time
}

type Table struct {
	mu      sync.Mutex
	kind    string
	store   *storage.Store
	clock   Clock
	entries map[string]*entry
}

// Grant describes an active capability for listing.
type Grant struct {
	GuildID   string
	UserID    string
	ExpiresAt time.Time
	GrantedBy string
	GrantedAt time.Time
}

func NewTable(kind string, store *storage.Store) *Table {
	return &Table{
		kind:    kind,
		store:   store,
		clock:   realClock{},
		entries: make(map[string]*entry),
	}
}

func (t *Table) WithClock(clock Clock) {
	t.clock = clock
}

// Load restores previously persisted grants, skipping any that already
// expired while the process was down.
func (t *Table) Load(ctx context.Context) error {
	rows, err := t.store.ListGrants(ctx, t.kind)
	if err != nil {
		return fmt.Errorf("load grants: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	for _, row := range rows {
		if !row.ExpiresAt.After(now) {
			continue
		}
		t.entries[row.GuildID+":"+row.UserID] = &entry{
			expiresAt: row.ExpiresAt,
			grantedBy: row.GrantedBy,
			grantedAt: row.GrantedAt,
		}
	}
	return nil
}

// Grant records a capability lasting for the given duration. Granting
// again replaces the previous expiry.
func (t *Table) Grant(ctx context.Context, guildID, userID string, duration time.Duration, grantedBy string) (time.Time, error) {
	now := t.clock.Now()
	expiresAt := now.Add(duration)

	err := t.store.UpsertGrant(ctx, storage.GrantRow{
		Kind:      t.kind,
		GuildID:   guildID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		GrantedBy: grantedBy,
		GrantedAt: now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("persist grant: %w", err)
	}

	t.mu.Lock()
	t.entries[guildID+":"+userID] = &entry{
		expiresAt: expiresAt,
		grantedBy: grantedBy,
		grantedAt: now,
	}
	t.mu.Unlock()
	return expiresAt, nil
}

// Revoke removes a grant. Revoking an absent grant is not an error.
func (t *Table) Revoke(ctx context.Context, guildID, userID string) error {
	if err := t.store.DeleteGrant(ctx, t.kind, guildID, userID); err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	t.mu.Lock()
	delete(t.entries, guildID+":"+userID)
	t.mu.Unlock()
	return nil
}

// IsActive reports whether the user currently holds the capability.
// Expired entries are dropped lazily on lookup.
func (t *Table) IsActive(guildID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := guildID + ":" + userID
	item := t.entries[key]
	if item == nil {
		return false
	}
	if !item.expiresAt.After(t.clock.Now()) {
		delete(t.entries, key)
		go t.deleteStale(guildID, userID)
		return false
	}
	return true
}

// List returns all active grants for a guild.
func (t *Table) List(guildID string) []Grant {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	var out []Grant
	for key, item := range t.entries {
		scope, userID, ok := splitKey(key)
		if !ok || scope != guildID {
			continue
		}
		if !item.expiresAt.After(now) {
			delete(t.entries, key)
			go t.deleteStale(scope, userID)
			continue
		}
		out = append(out, Grant{
			GuildID:   scope,
			UserID:    userID,
			ExpiresAt: item.expiresAt,
			GrantedBy: item.grantedBy,
			GrantedAt: item.grantedAt,
		})
	}
	return out
}

func (t *Table) deleteStale(guildID, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = t.store.DeleteGrant(ctx, t.kind, guildID, userID)
}

func splitKey(key string) (guildID, userID string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
