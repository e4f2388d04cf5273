// Package modlog records moderation actions to storage and fans them
// out to an optional channel notifier.
package modlog

import (
	"context"
	"time"

	"sbmod/internal/storage"

	"go.uber.org/zap"
)

const (
	ActionWarn      = "warn"
	ActionTimeout   = "timeout"
	ActionDelete    = "delete"
	ActionTicket    = "ticket"
	ActionModmail   = "modmail"
	ActionLevelRole = "level_role"
)

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify func(context.Context, storage.ModLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

// SetNotifier installs a callback invoked for every record, typically
// posting an embed to the guild's modlog channel.
func (l *Logger) SetNotifier(notify func(context.Context, storage.ModLog)) {
	l.notify = notify
}

func (l *Logger) Record(ctx context.Context, guildID, moderatorID, targetID, action, reason string) {
	entry := storage.ModLog{
		GuildID:     guildID,
		ModeratorID: moderatorID,
		TargetID:    targetID,
		Action:      action,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	if l.store != nil {
		_ = l.store.AddModLog(ctx, entry)
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("modlog",
		zap.String("guild_id", guildID),
		zap.String("moderator_id", moderatorID),
		zap.String("target_id", targetID),
		zap.String("action", action),
		zap.String("reason", reason))
}
