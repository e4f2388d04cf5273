package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UserLevel tracks a user's XP progress in one guild. Level is always
// derived from XP, never authoritative on its own.
type UserLevel struct {
	GuildID       string
	UserID        string
	XP            int64
	Level         int
	TotalMessages int64
	VoiceMinutes  int64
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// GetUserLevel returns the record, creating a zeroed one on first access.
func (s *Store) GetUserLevel(ctx context.Context, guildID, userID string) (UserLevel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT xp, level, total_messages, voice_minutes, COALESCE(last_message_at, 0), created_at
		FROM user_levels WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)

	record := UserLevel{GuildID: guildID, UserID: userID}
	var lastMessage, created int64
	err := row.Scan(&record.XP, &record.Level, &record.TotalMessages, &record.VoiceMinutes, &lastMessage, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			record.CreatedAt = time.Now()
			_, insertErr := s.db.ExecContext(ctx, `
				INSERT OR IGNORE INTO user_levels (guild_id, user_id, created_at) VALUES (?, ?, ?)
			`, guildID, userID, record.CreatedAt.Unix())
			return record, insertErr
		}
		return UserLevel{}, err
	}
	if lastMessage > 0 {
		record.LastMessageAt = time.Unix(lastMessage, 0)
	}
	record.CreatedAt = time.Unix(created, 0)
	return record, nil
}

func (s *Store) SaveUserLevel(ctx context.Context, record UserLevel) error {
	var lastMessage any
	if !record.LastMessageAt.IsZero() {
		lastMessage = record.LastMessageAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_levels (guild_id, user_id, xp, level, total_messages, voice_minutes, last_message_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			xp = excluded.xp,
			level = excluded.level,
			total_messages = excluded.total_messages,
			voice_minutes = excluded.voice_minutes,
			last_message_at = excluded.last_message_at
	`, record.GuildID, record.UserID, record.XP, record.Level,
		record.TotalMessages, record.VoiceMinutes, lastMessage, record.CreatedAt.Unix())
	return err
}

// TopUsers returns one leaderboard page ordered by XP descending.
func (s *Store) TopUsers(ctx context.Context, guildID string, limit, offset int) ([]UserLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, xp, level, total_messages, voice_minutes
		FROM user_levels WHERE guild_id = ?
		ORDER BY xp DESC LIMIT ? OFFSET ?
	`, guildID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []UserLevel
	for rows.Next() {
		record := UserLevel{GuildID: guildID}
		if err := rows.Scan(&record.UserID, &record.XP, &record.Level, &record.TotalMessages, &record.VoiceMinutes); err != nil {
			return nil, err
		}
		users = append(users, record)
	}
	return users, rows.Err()
}

// Rank returns the user's 1-based position in the guild XP ordering.
func (s *Store) Rank(ctx context.Context, guildID, userID string) (int, error) {
	record, err := s.GetUserLevel(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_levels WHERE guild_id = ? AND xp > ?
	`, guildID, record.XP)
	var higher int
	if err := row.Scan(&higher); err != nil {
		return 0, err
	}
	return higher + 1, nil
}

func (s *Store) AddLevelLog(ctx context.Context, guildID, userID string, oldLevel, newLevel int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO level_logs (guild_id, user_id, old_level, new_level, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, guildID, userID, oldLevel, newLevel, time.Now().Unix())
	return err
}
