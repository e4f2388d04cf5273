package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// GuildSettings is the per-guild settings document. Each feature block is
// replaced wholesale on update; sibling blocks are untouched. The document
// is created with defaults the first time a guild is observed.
type GuildSettings struct {
	GuildID       string
	Prefix        string
	Language      string
	ModlogChannel string
	Automod       AutomodSettings
	Tickets       TicketSettings
	Music         MusicSettings
	Leveling      LevelingSettings
	AI            AISettings
	Modmail       ModmailSettings
}

type AutomodSettings struct {
	Enabled         bool     `json:"enabled"`
	LinkFilter      bool     `json:"link_filter"`
	LinkWhitelist   []string `json:"link_whitelist"`
	SpamFilter      bool     `json:"spam_filter"`
	SpamMaxMessages int      `json:"spam_max_messages"`
	SpamWindowSecs  int      `json:"spam_window_seconds"`
	ProfanityFilter bool     `json:"profanity_filter"`
	AppsFilter      bool     `json:"apps_filter"`
	BypassRoles     []string `json:"bypass_roles"`
}

type TicketSettings struct {
	Enabled      bool     `json:"enabled"`
	CategoryID   string   `json:"category_id"`
	SupportRoles []string `json:"support_roles"`
	LogChannel   string   `json:"log_channel"`
}

type MusicSettings struct {
	Enabled   bool   `json:"enabled"`
	DJRole    string `json:"dj_role"`
	MaxVolume int    `json:"max_volume"`
}

type LevelingSettings struct {
	Enabled         bool              `json:"enabled"`
	XPPerMessage    int               `json:"xp_per_message"`
	XPPerVoiceMin   int               `json:"xp_per_minute_voice"`
	LevelUpChannel  string            `json:"level_up_channel"`
	LevelRoles      map[string]string `json:"level_roles"`
	XPMultiplier    float64           `json:"xp_multiplier"`
	IgnoredChannels []string          `json:"ignored_channels"`
	IgnoredRoles    []string          `json:"ignored_roles"`
}

type AISettings struct {
	Enabled         bool     `json:"enabled"`
	Model           string   `json:"model"`
	MaxTokens       int      `json:"max_tokens"`
	Temperature     float64  `json:"temperature"`
	EnabledChannels []string `json:"enabled_channels"`
	DMEnabled       bool     `json:"dm_enabled"`
	SystemPrompt    string   `json:"system_prompt"`
}

type ModmailSettings struct {
	Enabled        bool     `json:"enabled"`
	CategoryID     string   `json:"category_id"`
	StaffRoles     []string `json:"staff_roles"`
	LogChannel     string   `json:"log_channel"`
	AnonymousStaff bool     `json:"anonymous_staff"`
}

func DefaultGuildSettings(guildID, prefix, language string) GuildSettings {
	return GuildSettings{
		GuildID:  guildID,
		Prefix:   prefix,
		Language: language,
		Automod: AutomodSettings{
			Enabled:         true,
			SpamMaxMessages: 5,
			SpamWindowSecs:  10,
		},
		Tickets: TicketSettings{Enabled: true},
		Music:   MusicSettings{Enabled: true, MaxVolume: 100},
		Leveling: LevelingSettings{
			Enabled:       true,
			XPPerMessage:  15,
			XPPerVoiceMin: 10,
			XPMultiplier:  1.0,
			LevelRoles:    map[string]string{},
		},
		AI: AISettings{
			Model:        "gpt-3.5-turbo",
			MaxTokens:    1000,
			Temperature:  0.7,
			DMEnabled:    true,
			SystemPrompt: "You are a helpful assistant. Be concise and friendly.",
		},
		Modmail: ModmailSettings{},
	}
}

// SettingsStore wraps the guild_settings table with get-or-create defaults
// and a short-lived read cache. Same-block concurrent writers race with
// last-write-wins; callers tolerate that.
type SettingsStore struct {
	store           *Store
	cache           *gocache.Cache
	defaultPrefix   string
	defaultLanguage string
}

const settingsCacheTTL = 5 * time.Minute

func NewSettingsStore(store *Store, defaultPrefix, defaultLanguage string) *SettingsStore {
	return &SettingsStore{
		store:           store,
		cache:           gocache.New(settingsCacheTTL, 10*time.Minute),
		defaultPrefix:   defaultPrefix,
		defaultLanguage: defaultLanguage,
	}
}

// Settings returns the guild's document, creating and persisting the default
// shape on first access.
func (s *SettingsStore) Settings(ctx context.Context, guildID string) (GuildSettings, error) {
	if cached, ok := s.cache.Get(guildID); ok {
		return cached.(GuildSettings), nil
	}

	row := s.store.db.QueryRowContext(ctx, `
		SELECT prefix, language, modlog_channel,
		automod_settings, ticket_settings, music_settings,
		leveling_settings, ai_settings, modmail_settings
		FROM guild_settings WHERE guild_id = ?`, guildID)

	settings := GuildSettings{GuildID: guildID}
	var automod, tickets, music, leveling, ai, modmail string
	err := row.Scan(
		&settings.Prefix,
		&settings.Language,
		&settings.ModlogChannel,
		&automod,
		&tickets,
		&music,
		&leveling,
		&ai,
		&modmail,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.createDefaults(ctx, guildID)
		}
		return GuildSettings{}, err
	}

	for _, block := range []struct {
		raw  string
		dest any
	}{
		{automod, &settings.Automod},
		{tickets, &settings.Tickets},
		{music, &settings.Music},
		{leveling, &settings.Leveling},
		{ai, &settings.AI},
		{modmail, &settings.Modmail},
	} {
		if err := json.Unmarshal([]byte(block.raw), block.dest); err != nil {
			return GuildSettings{}, fmt.Errorf("guild %s settings corrupt: %w", guildID, err)
		}
	}

	s.cache.SetDefault(guildID, settings)
	return settings, nil
}

func (s *SettingsStore) createDefaults(ctx context.Context, guildID string) (GuildSettings, error) {
	settings := DefaultGuildSettings(guildID, s.defaultPrefix, s.defaultLanguage)

	blocks := make([]string, 0, 6)
	for _, block := range []any{
		settings.Automod, settings.Tickets, settings.Music,
		settings.Leveling, settings.AI, settings.Modmail,
	} {
		encoded, err := json.Marshal(block)
		if err != nil {
			return GuildSettings{}, err
		}
		blocks = append(blocks, string(encoded))
	}

	// INSERT OR IGNORE keeps a concurrent first access from creating a
	// duplicate; the loser re-reads the winner's row.
	result, err := s.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO guild_settings (
			guild_id, prefix, language, modlog_channel,
			automod_settings, ticket_settings, music_settings,
			leveling_settings, ai_settings, modmail_settings
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		guildID, settings.Prefix, settings.Language, settings.ModlogChannel,
		blocks[0], blocks[1], blocks[2], blocks[3], blocks[4], blocks[5],
	)
	if err != nil {
		return GuildSettings{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return s.Settings(ctx, guildID)
	}

	s.cache.SetDefault(guildID, settings)
	return settings, nil
}

func (s *SettingsStore) UpdateAutomod(ctx context.Context, guildID string, block AutomodSettings) error {
	return s.updateBlock(ctx, guildID, "automod_settings", block)
}

func (s *SettingsStore) UpdateTickets(ctx context.Context, guildID string, block TicketSettings) error {
	return s.updateBlock(ctx, guildID, "ticket_settings", block)
}

func (s *SettingsStore) UpdateMusic(ctx context.Context, guildID string, block MusicSettings) error {
	return s.updateBlock(ctx, guildID, "music_settings", block)
}

func (s *SettingsStore) UpdateLeveling(ctx context.Context, guildID string, block LevelingSettings) error {
	return s.updateBlock(ctx, guildID, "leveling_settings", block)
}

func (s *SettingsStore) UpdateAI(ctx context.Context, guildID string, block AISettings) error {
	return s.updateBlock(ctx, guildID, "ai_settings", block)
}

func (s *SettingsStore) UpdateModmail(ctx context.Context, guildID string, block ModmailSettings) error {
	return s.updateBlock(ctx, guildID, "modmail_settings", block)
}

func (s *SettingsStore) SetPrefix(ctx context.Context, guildID, prefix string) error {
	return s.updateScalar(ctx, guildID, "prefix", prefix)
}

func (s *SettingsStore) SetLanguage(ctx context.Context, guildID, language string) error {
	return s.updateScalar(ctx, guildID, "language", language)
}

func (s *SettingsStore) SetModlogChannel(ctx context.Context, guildID, channelID string) error {
	return s.updateScalar(ctx, guildID, "modlog_channel", channelID)
}

func (s *SettingsStore) updateBlock(ctx context.Context, guildID, column string, block any) error {
	if _, err := s.Settings(ctx, guildID); err != nil {
		return err
	}
	encoded, err := json.Marshal(block)
	if err != nil {
		return err
	}
	// column comes from the fixed set above, never from input.
	query := fmt.Sprintf(`UPDATE guild_settings SET %s = ? WHERE guild_id = ?`, column)
	if _, err := s.store.db.ExecContext(ctx, query, string(encoded), guildID); err != nil {
		return err
	}
	s.cache.Delete(guildID)
	return nil
}

func (s *SettingsStore) updateScalar(ctx context.Context, guildID, column, value string) error {
	if _, err := s.Settings(ctx, guildID); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE guild_settings SET %s = ? WHERE guild_id = ?`, column)
	if _, err := s.store.db.ExecContext(ctx, query, value, guildID); err != nil {
		return err
	}
	s.cache.Delete(guildID)
	return nil
}
