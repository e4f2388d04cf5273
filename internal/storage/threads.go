package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	ThreadKindTicket  = "ticket"
	ThreadKindModmail = "modmail"

	ThreadStatusOpen   = "open"
	ThreadStatusClosed = "closed"
)

// ErrThreadOpen is returned when an open thread already exists for the
// (kind, guild, user) triple.
var ErrThreadOpen = errors.New("thread already open")

type Thread struct {
	ID           int64
	Kind         string
	GuildID      string
	UserID       string
	ChannelID    string
	TicketNumber int
	Status       string
	CreatedAt    time.Time
	ClosedAt     *time.Time
	ClosedBy     string
	CloseReason  string
}

type ThreadMessage struct {
	ThreadID   int64
	AuthorID   string
	AuthorName string
	Content    string
	FromStaff  bool
	CreatedAt  time.Time
}

// InsertThread persists a new open thread. The partial unique index on
// (kind, guild, user, status=open) turns a create race into ErrThreadOpen
// for the loser.
func (s *Store) InsertThread(ctx context.Context, thread Thread) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (kind, guild_id, user_id, channel_id, ticket_number, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, thread.Kind, thread.GuildID, thread.UserID, thread.ChannelID,
		thread.TicketNumber, ThreadStatusOpen, thread.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrThreadOpen
		}
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) FindOpenThread(ctx context.Context, kind, guildID, userID string) (Thread, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, guild_id, user_id, channel_id, ticket_number, status, created_at
		FROM threads WHERE kind = ? AND guild_id = ? AND user_id = ? AND status = ?
	`, kind, guildID, userID, ThreadStatusOpen)
	return scanThread(row)
}

func (s *Store) FindThreadByChannel(ctx context.Context, channelID string) (Thread, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, guild_id, user_id, channel_id, ticket_number, status, created_at
		FROM threads WHERE channel_id = ? AND status = ?
	`, channelID, ThreadStatusOpen)
	return scanThread(row)
}

func scanThread(row *sql.Row) (Thread, bool, error) {
	var thread Thread
	var created int64
	err := row.Scan(&thread.ID, &thread.Kind, &thread.GuildID, &thread.UserID,
		&thread.ChannelID, &thread.TicketNumber, &thread.Status, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Thread{}, false, nil
		}
		return Thread{}, false, err
	}
	thread.CreatedAt = time.Unix(created, 0)
	return thread, true, nil
}

// NextTicketNumber returns the next sequence number for the guild.
func (s *Store) NextTicketNumber(ctx context.Context, guildID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ticket_number), 0) FROM threads WHERE guild_id = ? AND kind = ?
	`, guildID, ThreadKindTicket)
	var last int
	if err := row.Scan(&last); err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (s *Store) AppendThreadMessage(ctx context.Context, msg ThreadMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_messages (thread_id, author_id, author_name, content, from_staff, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ThreadID, msg.AuthorID, msg.AuthorName, msg.Content, boolToInt(msg.FromStaff), msg.CreatedAt.Unix())
	return err
}

func (s *Store) ListThreadMessages(ctx context.Context, threadID int64) ([]ThreadMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, author_id, author_name, content, from_staff, created_at
		FROM thread_messages WHERE thread_id = ? ORDER BY created_at, id
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []ThreadMessage
	for rows.Next() {
		var msg ThreadMessage
		var fromStaff int
		var created int64
		if err := rows.Scan(&msg.ThreadID, &msg.AuthorID, &msg.AuthorName, &msg.Content, &fromStaff, &created); err != nil {
			return nil, err
		}
		msg.FromStaff = fromStaff == 1
		msg.CreatedAt = time.Unix(created, 0)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CloseThread marks the thread closed. The archival record survives; only
// the live channel is released by the caller.
func (s *Store) CloseThread(ctx context.Context, threadID int64, closedBy, reason string, closedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE threads SET status = ?, closed_at = ?, closed_by = ?, close_reason = ?
		WHERE id = ? AND status = ?
	`, ThreadStatusClosed, closedAt.Unix(), closedBy, reason, threadID, ThreadStatusOpen)
	return err
}

func (s *Store) InsertTranscript(ctx context.Context, guildID string, threadID int64, ticketNumber int, body string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (guild_id, thread_id, ticket_number, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, guildID, threadID, ticketNumber, body, time.Now().Unix())
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
