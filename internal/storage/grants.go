package storage

import (
	"context"
	"time"
)

// GrantRow is the persisted copy of an expiring capability grant. The
// in-memory index in internal/grants is rebuilt from these rows at startup.
type GrantRow struct {
	Kind      string
	GuildID   string
	UserID    string
	ExpiresAt time.Time
	GrantedBy string
	GrantedAt time.Time
}

func (s *Store) UpsertGrant(ctx context.Context, row GrantRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grants (kind, guild_id, user_id, expires_at, granted_by, granted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, guild_id, user_id) DO UPDATE SET
			expires_at = excluded.expires_at,
			granted_by = excluded.granted_by,
			granted_at = excluded.granted_at
	`, row.Kind, row.GuildID, row.UserID, row.ExpiresAt.Unix(), row.GrantedBy, row.GrantedAt.Unix())
	return err
}

func (s *Store) DeleteGrant(ctx context.Context, kind, guildID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM grants WHERE kind = ? AND guild_id = ? AND user_id = ?
	`, kind, guildID, userID)
	return err
}

func (s *Store) ListGrants(ctx context.Context, kind string) ([]GrantRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, guild_id, user_id, expires_at, granted_by, granted_at
		FROM grants WHERE kind = ?
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []GrantRow
	for rows.Next() {
		var row GrantRow
		var expires, granted int64
		if err := rows.Scan(&row.Kind, &row.GuildID, &row.UserID, &expires, &row.GrantedBy, &granted); err != nil {
			return nil, err
		}
		row.ExpiresAt = time.Unix(expires, 0)
		row.GrantedAt = time.Unix(granted, 0)
		grants = append(grants, row)
	}
	return grants, rows.Err()
}
