// Package leveling awards XP for messages and voice activity and
// promotes users through levels.
package leveling

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"sbmod/internal/modlog"
	"sbmod/internal/ratewindow"
	"sbmod/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Level is the level reached with the given XP: level n starts at
// n*n*100 XP.
func Level(xp int64) int {
	if xp <= 0 {
		return 0
	}
	return int(math.Sqrt(float64(xp) / 100))
}

// XPForLevel is the XP floor of a level.
func XPForLevel(level int) int64 {
	return int64(level) * int64(level) * 100
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Engine struct {
	mu    sync.Mutex
	rng   *rand.Rand
	voice map[string]time.Time

	store    *storage.Store
	settings *storage.SettingsStore
	cooldown *ratewindow.Tracker
	modlog   *modlog.Logger
	clock    Clock
	logger   *zap.Logger
}

func NewEngine(store *storage.Store, settingsStore *storage.SettingsStore, cooldown time.Duration, modLogger *modlog.Logger, logger *zap.Logger) *Engine {
	return &Engine{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		voice:    make(map[string]time.Time),
		store:    store,
		settings: settingsStore,
		cooldown: ratewindow.New(cooldown),
		modlog:   modLogger,
		clock:    realClock{},
		logger:   logger,
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

// Result describes the outcome of an XP award.
type Result struct {
	Awarded  int64
	NewXP    int64
	OldLevel int
	NewLevel int
}

func (r Result) LeveledUp() bool { return r.NewLevel > r.OldLevel }

// HandleMessage awards message XP subject to the per-user cooldown. At
// most one message per cooldown window earns XP; messages inside the
// window do not reset it.
func (e *Engine) HandleMessage(ctx context.Context, session *discordgo.Session, msg *discordgo.MessageCreate, dryRun bool) (Result, error) {
	if msg.GuildID == "" || msg.Author == nil || msg.Author.Bot {
		return Result{}, nil
	}

	guildSettings, err := e.settings.Settings(ctx, msg.GuildID)
	if err != nil {
		return Result{}, fmt.Errorf("load settings: %w", err)
	}
	settings := guildSettings.Leveling
	if !settings.Enabled {
		return Result{}, nil
	}
	if contains(settings.IgnoredChannels, msg.ChannelID) {
		return Result{}, nil
	}
	if msg.Member != nil {
		for _, role := range msg.Member.Roles {
			if contains(settings.IgnoredRoles, role) {
				return Result{}, nil
			}
		}
	}

	if !e.cooldown.RecordIfIdle(msg.GuildID, msg.Author.ID, e.clock.Now()) {
		return Result{}, nil
	}

	amount := e.rollMessageXP(settings)
	result, err := e.award(ctx, msg.GuildID, msg.Author.ID, amount, true)
	if err != nil {
		return Result{}, err
	}
	if result.LeveledUp() && !dryRun {
		e.announce(ctx, session, msg.GuildID, msg.Author.ID, settings, result)
	}
	return result, nil
}

// VoiceJoin marks the start of a voice session.
func (e *Engine) VoiceJoin(guildID, userID string) {
	e.mu.Lock()
	e.voice[guildID+":"+userID] = e.clock.Now()
	e.mu.Unlock()
}

// VoiceLeave awards XP for the completed voice session. Sessions under
// a minute earn nothing.
func (e *Engine) VoiceLeave(ctx context.Context, session *discordgo.Session, guildID, userID string, dryRun bool) (Result, error) {
	e.mu.Lock()
	joined, ok := e.voice[guildID+":"+userID]
	delete(e.voice, guildID+":"+userID)
	e.mu.Unlock()
	if !ok {
		return Result{}, nil
	}

	minutes := int64(e.clock.Now().Sub(joined) / time.Minute)
	if minutes < 1 {
		return Result{}, nil
	}

	guildSettings, err := e.settings.Settings(ctx, guildID)
	if err != nil {
		return Result{}, fmt.Errorf("load settings: %w", err)
	}
	settings := guildSettings.Leveling
	if !settings.Enabled {
		return Result{}, nil
	}

	amount := int64(float64(minutes*int64(settings.XPPerVoiceMin)) * settings.XPMultiplier)
	result, err := e.awardVoice(ctx, guildID, userID, amount, minutes)
	if err != nil {
		return Result{}, err
	}
	if result.LeveledUp() && !dryRun {
		e.announce(ctx, session, guildID, userID, settings, result)
	}
	return result, nil
}

func (e *Engine) rollMessageXP(settings storage.LevelingSettings) int64 {
	e.mu.Lock()
	jitter := e.rng.Intn(11) - 5
	e.mu.Unlock()

	base := settings.XPPerMessage + jitter
	if base < 1 {
		base = 1
	}
	amount := int64(float64(base) * settings.XPMultiplier)
	if amount < 1 {
		amount = 1
	}
	return amount
}

func (e *Engine) award(ctx context.Context, guildID, userID string, amount int64, countMessage bool) (Result, error) {
	record, err := e.store.GetUserLevel(ctx, guildID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load level: %w", err)
	}

	result := Result{Awarded: amount, OldLevel: record.Level}
	record.XP += amount
	record.Level = Level(record.XP)
	if countMessage {
		record.TotalMessages++
		record.LastMessageAt = e.clock.Now()
	}
	result.NewXP = record.XP
	result.NewLevel = record.Level

	if err := e.store.SaveUserLevel(ctx, record); err != nil {
		return Result{}, fmt.Errorf("save level: %w", err)
	}
	if result.LeveledUp() {
		_ = e.store.AddLevelLog(ctx, guildID, userID, result.OldLevel, result.NewLevel)
	}
	return result, nil
}

func (e *Engine) awardVoice(ctx context.Context, guildID, userID string, amount, minutes int64) (Result, error) {
	record, err := e.store.GetUserLevel(ctx, guildID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load level: %w", err)
	}

	result := Result{Awarded: amount, OldLevel: record.Level}
	record.XP += amount
	record.Level = Level(record.XP)
	record.VoiceMinutes += minutes
	result.NewXP = record.XP
	result.NewLevel = record.Level

	if err := e.store.SaveUserLevel(ctx, record); err != nil {
		return Result{}, fmt.Errorf("save level: %w", err)
	}
	if result.LeveledUp() {
		_ = e.store.AddLevelLog(ctx, guildID, userID, result.OldLevel, result.NewLevel)
	}
	return result, nil
}

// announce posts the level-up message and grants any configured level
// roles. Both are best effort.
func (e *Engine) announce(ctx context.Context, session *discordgo.Session, guildID, userID string, settings storage.LevelingSettings, result Result) {
	if channelID := announceChannel(session, guildID, settings); channelID != "" {
		_, _ = session.ChannelMessageSend(channelID, fmt.Sprintf("<@%s> reached level %d!", userID, result.NewLevel))
	}

	var held []string
	if session != nil && session.State != nil {
		if member, err := session.State.Member(guildID, userID); err == nil {
			held = member.Roles
		}
	}
	for _, roleID := range rolesToGrant(result.OldLevel, result.NewLevel, settings.LevelRoles, held) {
		if err := session.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
			e.logger.Warn("grant level role", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("role_id", roleID), zap.Error(err))
			continue
		}
		e.modlog.Record(ctx, guildID, "leveling", userID, modlog.ActionLevelRole, fmt.Sprintf("granted role %s at level %d", roleID, result.NewLevel))
	}
}

// announceChannel picks where the level-up message goes: the configured
// channel, else a text channel named "general", else the guild's system
// channel. An empty result means the announcement is skipped.
func announceChannel(session *discordgo.Session, guildID string, settings storage.LevelingSettings) string {
	if settings.LevelUpChannel != "" {
		return settings.LevelUpChannel
	}
	if session == nil || session.State == nil {
		return ""
	}
	guild, err := session.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, channel := range guild.Channels {
		if channel.Type == discordgo.ChannelTypeGuildText && channel.Name == "general" {
			return channel.ID
		}
	}
	return guild.SystemChannelID
}

// rolesToGrant returns the role IDs configured for levels the user just
// crossed, in ascending level order, skipping roles already held.
func rolesToGrant(oldLevel, newLevel int, levelRoles map[string]string, held []string) []string {
	var roles []string
	for level := oldLevel + 1; level <= newLevel; level++ {
		if roleID, ok := levelRoles[fmt.Sprint(level)]; ok && roleID != "" && !contains(held, roleID) {
			roles = append(roles, roleID)
		}
	}
	return roles
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
