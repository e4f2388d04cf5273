// Package automod filters guild messages through the configured filter
// chain and applies progressive punishment to repeat offenders.
package automod

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sbmod/internal/config"
	"sbmod/internal/modlog"
	"sbmod/internal/ratewindow"
	"sbmod/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type guildTracker struct {
	windowSecs int
	tracker    *ratewindow.Tracker
}

type Module struct {
	mu       sync.Mutex
	trackers map[string]*guildTracker

	settings *storage.SettingsStore
	store    *storage.Store
	modlog   *modlog.Logger
	tuning   config.AutomodTuning
	logger   *zap.Logger
}

func New(settingsStore *storage.SettingsStore, store *storage.Store, modLogger *modlog.Logger, tuning config.AutomodTuning, logger *zap.Logger) *Module {
	return &Module{
		trackers: make(map[string]*guildTracker),
		settings: settingsStore,
		store:    store,
		modlog:   modLogger,
		tuning:   tuning,
		logger:   logger,
	}
}

// HandleMessage runs the filter chain over a guild message. It returns
// the triggered violation kinds; in dry-run mode no Discord calls are
// made but violations are still recorded.
func (m *Module) HandleMessage(ctx context.Context, session *discordgo.Session, msg *discordgo.MessageCreate, dryRun bool) ([]string, error) {
	if msg.GuildID == "" || msg.Author == nil {
		return nil, nil
	}

	guildSettings, err := m.settings.Settings(ctx, msg.GuildID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings := guildSettings.Automod
	if !settings.Enabled {
		return nil, nil
	}

	if msg.Author.Bot {
		return nil, nil
	}
	if msg.Member != nil && hasAnyRole(msg.Member.Roles, settings.BypassRoles) {
		return nil, nil
	}
	if canManageMessages(session, msg) {
		return nil, nil
	}

	kinds := EvaluateContent(settings, msg.Content)
	if settings.SpamFilter {
		count := m.recordSpam(msg.GuildID, msg.Author.ID, settings)
		if count > settings.SpamMaxMessages {
			kinds = append(kinds, KindSpam)
		}
	}
	if len(kinds) == 0 {
		return nil, nil
	}

	m.apply(ctx, session, msg, kinds, dryRun)
	return kinds, nil
}

// apply runs the punishment pipeline. Each step is best effort so a
// failed Discord call never blocks the record keeping that follows it.
func (m *Module) apply(ctx context.Context, session *discordgo.Session, msg *discordgo.MessageCreate, kinds []string, dryRun bool) {
	if !dryRun {
		_ = session.ChannelMessageDelete(msg.ChannelID, msg.ID)
	}

	_ = m.store.AddViolation(ctx, storage.Violation{
		GuildID:   msg.GuildID,
		UserID:    msg.Author.ID,
		ChannelID: msg.ChannelID,
		Kinds:     kinds,
		Content:   msg.Content,
		CreatedAt: time.Now(),
	})
	m.modlog.Record(ctx, msg.GuildID, "automod", msg.Author.ID, modlog.ActionDelete, strings.Join(kinds, ", "))

	if !dryRun {
		m.sendWarning(session, msg, kinds)
	}

	count, err := m.store.CountViolations(ctx, msg.GuildID, msg.Author.ID)
	if err != nil {
		m.logger.Warn("count violations", zap.Error(err))
		return
	}
	duration := PunishmentFor(count, m.tuning)
	if duration == 0 {
		return
	}

	if !dryRun {
		until := time.Now().Add(duration)
		if err := session.GuildMemberTimeout(msg.GuildID, msg.Author.ID, &until); err != nil {
			m.logger.Warn("timeout member", zap.String("guild_id", msg.GuildID), zap.String("user_id", msg.Author.ID), zap.Error(err))
			return
		}
	}
	m.modlog.Record(ctx, msg.GuildID, "automod", msg.Author.ID, modlog.ActionTimeout, fmt.Sprintf("%d violations, timed out %s", count, duration))
}

// sendWarning posts a short notice in the channel and removes it after
// the configured grace period.
func (m *Module) sendWarning(session *discordgo.Session, msg *discordgo.MessageCreate, kinds []string) {
	text := fmt.Sprintf("%s your message was removed (%s).", msg.Author.Mention(), strings.Join(kinds, ", "))
	warning, err := session.ChannelMessageSend(msg.ChannelID, text)
	if err != nil {
		return
	}
	time.AfterFunc(time.Duration(m.tuning.WarningSeconds)*time.Second, func() {
		_ = session.ChannelMessageDelete(warning.ChannelID, warning.ID)
	})
}

func (m *Module) recordSpam(guildID, userID string, settings storage.AutomodSettings) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.trackers[guildID]
	if item == nil || item.windowSecs != settings.SpamWindowSecs {
		item = &guildTracker{
			windowSecs: settings.SpamWindowSecs,
			tracker:    ratewindow.New(time.Duration(settings.SpamWindowSecs) * time.Second),
		}
		m.trackers[guildID] = item
	}
	return item.tracker.Record(guildID, userID, time.Now())
}

// canManageMessages reports whether the author holds the message
// management permission, which exempts them from every filter.
func canManageMessages(session *discordgo.Session, msg *discordgo.MessageCreate) bool {
	if msg.Member != nil && msg.Member.Permissions&discordgo.PermissionManageMessages != 0 {
		return true
	}
	if session == nil || session.State == nil {
		return false
	}
	perms, err := session.State.MessagePermissions(msg.Message)
	return err == nil && perms&discordgo.PermissionManageMessages != 0
}

func hasAnyRole(roles, wanted []string) bool {
	for _, role := range roles {
		for _, want := range wanted {
			if role == want {
				return true
			}
		}
	}
	return false
}
