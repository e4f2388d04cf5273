// Package bot wires the Discord session to the feature modules.
package bot

import (
	"context"
	"fmt"
	"time"

	"sbmod/internal/analytics"
	"sbmod/internal/automod"
	"sbmod/internal/config"
	"sbmod/internal/grants"
	"sbmod/internal/leveling"
	"sbmod/internal/modlog"
	"sbmod/internal/storage"
	"sbmod/internal/threads"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorAction = 0x3498db
	colorOK     = 0x2ecc71
	colorError  = 0xe74c3c
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	settings  *storage.SettingsStore
	session   *discordgo.Session
	automod   *automod.Module
	leveling  *leveling.Engine
	threads   *threads.Manager
	noprefix  *grants.Table
	modlog    *modlog.Logger
	analytics *analytics.Service
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, settingsStore *storage.SettingsStore, modLogger *modlog.Logger, analyticsService *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		settings:  settingsStore,
		session:   session,
		modlog:    modLogger,
		analytics: analyticsService,
	}

	b.automod = automod.New(settingsStore, store, modLogger, cfg.Automod, logger)
	b.leveling = leveling.NewEngine(store, settingsStore, time.Duration(cfg.Leveling.CooldownSeconds)*time.Second, modLogger, logger)
	b.threads = threads.NewManager(store, settingsStore, &sessionPlatform{session: session}, modLogger,
		time.Duration(cfg.Threads.CloseGraceSeconds)*time.Second, logger)
	b.noprefix = grants.NewTable(grants.KindNoPrefix, store)

	modLogger.SetNotifier(func(ctx context.Context, entry storage.ModLog) {
		b.notifyModlog(ctx, entry)
	})

	return b, nil
}

func (b *Bot) Start() error {
	if err := b.noprefix.Load(context.Background()); err != nil {
		return err
	}

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.ID == session.State.User.ID {
		return
	}

	ctx := context.Background()
	if msg.GuildID == "" {
		if !msg.Author.Bot {
			b.handleDM(ctx, msg)
		}
		return
	}

	// Staff replies inside ticket and modmail channels are relayed, not
	// filtered.
	if !msg.Author.Bot && b.threads.IsThreadChannel(ctx, msg.ChannelID) {
		if _, err := b.threads.HandleStaffMessage(ctx, msg.ChannelID, msg.Author.ID, msg.Author.Username, msg.Content); err != nil {
			b.logger.Warn("relay staff message", zap.String("channel_id", msg.ChannelID), zap.Error(err))
		}
		return
	}

	kinds, err := b.automod.HandleMessage(ctx, session, msg, false)
	if err != nil {
		b.logger.Warn("automod", zap.String("guild_id", msg.GuildID), zap.Error(err))
	}
	if len(kinds) > 0 {
		return
	}

	if !msg.Author.Bot && b.handleTextCommand(ctx, session, msg) {
		return
	}

	if !msg.Author.Bot {
		if _, err := b.leveling.HandleMessage(ctx, session, msg, false); err != nil {
			b.logger.Warn("leveling", zap.String("guild_id", msg.GuildID), zap.Error(err))
		}
	}
}

// handleDM routes a direct message into modmail for the first mutual
// guild that has it enabled.
func (b *Bot) handleDM(ctx context.Context, msg *discordgo.MessageCreate) {
	var attachments []string
	for _, attachment := range msg.Attachments {
		attachments = append(attachments, attachment.Filename+" "+attachment.URL)
	}

	for _, guild := range b.session.State.Guilds {
		if !b.isGuildMember(guild.ID, msg.Author.ID) {
			continue
		}
		_, err := b.threads.HandleDM(ctx, guild.ID, msg.Author.ID, msg.Author.Username, msg.Content, attachments)
		if err == nil {
			_, _ = b.session.ChannelMessageSend(msg.ChannelID, "Your message was delivered to the staff team.")
			return
		}
		if err == threads.ErrDisabled {
			continue
		}
		b.logger.Warn("modmail dm", zap.String("guild_id", guild.ID), zap.Error(err))
		return
	}
	_, _ = b.session.ChannelMessageSend(msg.ChannelID, "Modmail is not available in any server we share.")
}

func (b *Bot) isGuildMember(guildID, userID string) bool {
	if memberInState(b.session.State, guildID, userID) {
		return true
	}
	member, err := b.session.GuildMember(guildID, userID)
	return err == nil && member != nil
}

// memberInState checks the cache only; a miss does not mean the user is
// not a member.
func memberInState(state *discordgo.State, guildID, userID string) bool {
	if state == nil {
		return false
	}
	_, err := state.Member(guildID, userID)
	return err == nil
}

func (b *Bot) onVoiceStateUpdate(session *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if event.GuildID == "" || event.UserID == "" {
		return
	}
	member, err := session.State.Member(event.GuildID, event.UserID)
	if err == nil && member.User != nil && member.User.Bot {
		return
	}

	ctx := context.Background()
	wasConnected := event.BeforeUpdate != nil && event.BeforeUpdate.ChannelID != ""
	switch {
	case event.ChannelID != "" && !wasConnected:
		b.leveling.VoiceJoin(event.GuildID, event.UserID)
	case event.ChannelID == "" && wasConnected:
		if _, err := b.leveling.VoiceLeave(ctx, session, event.GuildID, event.UserID, false); err != nil {
			b.logger.Warn("voice xp", zap.String("guild_id", event.GuildID), zap.Error(err))
		}
	}
}

func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	settings, err := b.settings.Settings(ctx, guildID)
	if err != nil {
		b.logger.Warn("load settings", zap.String("guild_id", guildID), zap.Error(err))
		return storage.DefaultGuildSettings(guildID, b.cfg.DefaultPrefix, b.cfg.DefaultLanguage)
	}
	return settings
}

func (b *Bot) isOwner(userID string) bool {
	for _, id := range b.cfg.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// notifyModlog mirrors a moderation record into the guild's configured
// modlog channel.
func (b *Bot) notifyModlog(ctx context.Context, entry storage.ModLog) {
	settings := b.guildSettings(ctx, entry.GuildID)
	if settings.ModlogChannel == "" {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:     "Moderation: " + entry.Action,
		Color:     colorAction,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Target", Value: fmt.Sprintf("<@%s>", entry.TargetID), Inline: true},
			{Name: "Moderator", Value: entry.ModeratorID, Inline: true},
			{Name: "Reason", Value: entry.Reason, Inline: false},
		},
	}
	if _, err := b.session.ChannelMessageSendEmbed(settings.ModlogChannel, embed); err != nil {
		b.logger.Warn("modlog notify", zap.String("guild_id", entry.GuildID), zap.Error(err))
	}
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
	if err != nil {
		b.logger.Warn("interaction respond", zap.Error(err))
	}
}
