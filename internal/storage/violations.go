package storage

import (
	"context"
	"strings"
	"time"
)

// Violation is an append-only record of one automod rule breach.
type Violation struct {
	ID        int64
	GuildID   string
	UserID    string
	ChannelID string
	Kinds     []string
	Content   string
	CreatedAt time.Time
}

func (s *Store) AddViolation(ctx context.Context, v Violation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO violations (guild_id, user_id, channel_id, kinds, message_content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.GuildID, v.UserID, v.ChannelID, strings.Join(v.Kinds, ","), v.Content, v.CreatedAt.Unix())
	return err
}

// CountViolations returns the user's cumulative violation count for the
// guild, inclusive of anything already logged.
func (s *Store) CountViolations(ctx context.Context, guildID, userID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM violations WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListViolations(ctx context.Context, guildID string, since time.Time) ([]Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, channel_id, kinds, message_content, created_at
		FROM violations
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []Violation
	for rows.Next() {
		var v Violation
		var kinds string
		var created int64
		if err := rows.Scan(&v.ID, &v.GuildID, &v.UserID, &v.ChannelID, &kinds, &v.Content, &created); err != nil {
			return nil, err
		}
		if kinds != "" {
			v.Kinds = strings.Split(kinds, ",")
		}
		v.CreatedAt = time.Unix(created, 0)
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
