package storage

import (
	"context"
	"time"
)

type ModLog struct {
	ID          int64
	GuildID     string
	ModeratorID string
	TargetID    string
	Action      string
	Reason      string
	CreatedAt   time.Time
}

func (s *Store) AddModLog(ctx context.Context, log ModLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO modlogs (guild_id, moderator_id, target_id, action, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.ModeratorID, log.TargetID, log.Action, log.Reason, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListModLogs(ctx context.Context, guildID string, since time.Time) ([]ModLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, moderator_id, target_id, action, reason, created_at
		FROM modlogs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []ModLog
	for rows.Next() {
		var log ModLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.ModeratorID, &log.TargetID, &log.Action, &log.Reason, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
