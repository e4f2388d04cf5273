package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sbmod/internal/grants"
	"sbmod/internal/leveling"
	"sbmod/internal/storage"
	"sbmod/internal/threads"
	"sbmod/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()

	if interaction.GuildID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Error", "This command only works in a server.", colorError, nil), true)
		return
	}

	options := optionMap(data.Options)
	switch data.Name {
	case "automod":
		b.handleAutomod(ctx, session, interaction, options)
	case "whitelist":
		b.handleWhitelist(ctx, session, interaction, options)
	case "spamlimits":
		b.handleSpamLimits(ctx, session, interaction, options)
	case "leveling":
		b.handleLeveling(ctx, session, interaction, options)
	case "levelrole":
		b.handleLevelRole(ctx, session, interaction, options)
	case "rank":
		b.handleRank(ctx, session, interaction, options)
	case "leaderboard":
		b.handleLeaderboard(ctx, session, interaction, options)
	case "ticket":
		b.handleTicket(ctx, session, interaction, options)
	case "close":
		b.handleClose(ctx, session, interaction, options)
	case "modmail":
		b.handleModmail(ctx, session, interaction, options)
	case "np":
		b.handleNoPrefix(ctx, session, interaction, options)
	case "settings":
		b.handleSettings(ctx, session, interaction, options)
	case "modstats":
		b.handleModStats(ctx, session, interaction, options)
	}
}

func (b *Bot) handleAutomod(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.requireManager(session, interaction) {
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	action := stringOption(options, "action")

	if action == "status" {
		fields := []*discordgo.MessageEmbedField{
			{Name: "Enabled", Value: fmt.Sprintf("%t", settings.Automod.Enabled), Inline: true},
			{Name: "Link filter", Value: fmt.Sprintf("%t", settings.Automod.LinkFilter), Inline: true},
			{Name: "Spam filter", Value: fmt.Sprintf("%t (%d msgs / %ds)", settings.Automod.SpamFilter, settings.Automod.SpamMaxMessages, settings.Automod.SpamWindowSecs), Inline: true},
			{Name: "Profanity filter", Value: fmt.Sprintf("%t", settings.Automod.ProfanityFilter), Inline: true},
			{Name: "Apps filter", Value: fmt.Sprintf("%t", settings.Automod.AppsFilter), Inline: true},
			{Name: "Whitelisted domains", Value: fmt.Sprintf("%d", len(settings.Automod.LinkWhitelist)), Inline: true},
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Automod", "Current automod configuration.", colorAction, fields), true)
		return
	}

	enable := action == "on"
	filter := stringOption(options, "filter")
	switch filter {
	case "":
		settings.Automod.Enabled = enable
	case "link":
		settings.Automod.LinkFilter = enable
	case "spam":
		settings.Automod.SpamFilter = enable
	case "profanity":
		settings.Automod.ProfanityFilter = enable
	case "apps":
		settings.Automod.AppsFilter = enable
	}
	if err := b.settings.UpdateAutomod(ctx, interaction.GuildID, settings.Automod); err != nil {
		b.respondError(session, interaction, err)
		return
	}
	what := "automod"
	if filter != "" {
		what = filter + " filter"
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Automod", fmt.Sprintf("Turned %s %s.", what, action), colorOK, nil), true)
}

func (b *Bot) handleWhitelist(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.requireManager(session, interaction) {
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	action := stringOption(options, "action")

	if action == "list" {
		value := "(empty)"
		if len(settings.Automod.LinkWhitelist) > 0 {
			domains := append([]string(nil), settings.Automod.LinkWhitelist...)
			sort.Strings(domains)
			value = strings.Join(domains, "\n")
		}
		fields := []*discordgo.MessageEmbedField{{Name: "Domains", Value: value, Inline: false}}
		b.respondEmbed(session, interaction, b.commandEmbed("Link whitelist", "Only these hosts pass the link filter.", colorAction, fields), true)
		return
	}

	raw := stringOption(options, "domain")
	if raw == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Link whitelist", "A domain is required.", colorError, nil), true)
		return
	}
	host, err := utils.ParseHost(raw)
	if err != nil || host == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Link whitelist", fmt.Sprintf("%q is not a valid domain.", raw), colorError, nil), true)
		return
	}

	list := settings.Automod.LinkWhitelist
	switch action {
	case "add":
		for _, existing := range list {
			if existing == host {
				b.respondEmbed(session, interaction, b.commandEmbed("Link whitelist", host+" is already whitelisted.", colorAction, nil), true)
				return
			}
		}
		settings.Automod.LinkWhitelist = append(list, host)
	case "remove":
		kept := list[:0]
		for _, existing := range list {
			if existing != host {
				kept = append(kept, existing)
			}
		}
		settings.Automod.LinkWhitelist = kept
	}
	if err := b.settings.UpdateAutomod(ctx, interaction.GuildID, settings.Automod); err != nil {
		b.respondError(session, interaction, err)
		return
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Link whitelist", fmt.Sprintf("Whitelist updated: %s %s.", action, host), colorOK, nil), true)
}

func (b *Bot) handleSpamLimits(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.requireManager(session, interaction) {
		return
	}
	messages := intOption(options, "messages")
	window := intOption(options, "window")
	if messages < 2 || window < 1 {
		b.respondEmbed(session, interaction, b.commandEmbed("Spam filter", "Need at least 2 messages and a 1 second window.", colorError, nil), true)
		return
	}

	settings := b.guildSettings(ctx, interaction.GuildID)
	settings.Automod.SpamMaxMessages = messages
	settings.Automod.SpamWindowSecs = window
	if err := b.settings.UpdateAutomod(ctx, interaction.GuildID, settings.Automod); err != nil {
		b.respondError(session, interaction, err)
		return
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Spam filter", fmt.Sprintf("Now allowing %d messages per %d seconds.", messages, window), colorOK, nil), true)
}

func (b *Bot) handleLeveling(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.requireManager(session, interaction) {
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	action := stringOption(options, "action")

	if action == "status" {
		fields := []*discordgo.MessageEmbedField{
			{Name: "Enabled", Value: fmt.Sprintf("%t", settings.Leveling.Enabled), Inline: true},
			{Name: "XP per message", Value: fmt.Sprintf("%d", settings.Leveling.XPPerMessage), Inline: true},
			{Name: "XP per voice minute", Value: fmt.Sprintf("%d", settings.Leveling.XPPerVoiceMin), Inline: true},
			{Name: "Multiplier", Value: fmt.Sprintf("%.1fx", settings.Leveling.XPMultiplier), Inline: true},
			{Name: "Level roles", Value: fmt.Sprintf("%d", len(settings.Leveling.LevelRoles)), Inline: true},
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Leveling", "Current leveling configuration.", colorAction, fields), true)
		return
	}

	settings.Leveling.Enabled = action == "on"
	if err := b.settings.UpdateLeveling(ctx, interaction.GuildID, settings.Leveling); err != nil {
		b.respondError(session, interaction, err)
		return
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Leveling", fmt.Sprintf("Leveling turned %s.", action), colorOK, nil), true)
}

func (b *Bot) handleLevelRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.requireManager(session, interaction) {
		return
	}
	level := intOption(options, "level")
	if level < 1 {
		b.respondEmbed(session, interaction, b.commandEmbed("Level roles", "Level must be at least 1.", colorError, nil), true)
		return
	}

	settings := b.guildSettings(ctx, interaction.GuildID)
	if settings.Leveling.LevelRoles == nil {
		settings.Leveling.LevelRoles = make(map[string]string)
	}
	key := fmt.Sprint(level)

	var description string
	if role, ok := options["role"]; ok {
		roleID := role.RoleValue(session, interaction.GuildID).ID
		settings.Leveling.LevelRoles[key] = roleID
		description = fmt.Sprintf("Members reaching level %d now get <@&%s>.", level, roleID)
	} else {
		delete(settings.Leveling.LevelRoles, key)
		description = fmt.Sprintf("Cleared the role for level %d.", level)
	}
	if err := b.settings.UpdateLeveling(ctx, interaction.GuildID, settings.Leveling); err != nil {
		b.respondError(session, interaction, err)
		return
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Level roles", description, colorOK, nil), true)
}

func (b *Bot) handleRank(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	target := interactionUser(interaction)
	if user, ok := options["user"]; ok {
		target = user.UserValue(session)
	}
	if target == nil {
		return
	}

	record, err := b.store.GetUserLevel(ctx, interaction.GuildID, target.ID)
	if err != nil {
		b.respondError(session, interaction, err)
		return
	}
	rank, err := b.store.Rank(ctx, interaction.GuildID, target.ID)
	if err != nil {
		b.respondError(session, interaction, err)
		return
	}

	nextFloor := leveling.XPForLevel(record.Level + 1)
	fields := []*discordgo.MessageEmbedField{
		{Name: "Level", Value: fmt.Sprintf("%d", record.Level), Inline: true},
		{Name: "Rank", Value: fmt.Sprintf("#%d", rank), Inline: true},
		{Name: "XP", Value: fmt.Sprintf("%d / %d", record.XP, nextFloor), Inline: true},
		{Name: "Messages", Value: fmt.Sprintf("%d", record.TotalMessages), Inline: true},
		{Name: "Voice minutes", Value: fmt.Sprintf("%d", record.VoiceMinutes), Inline: true},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Rank", fmt.Sprintf("<@%s>", target.ID), colorAction, fields), false)
}

func (b *Bot) handleLeaderboard(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	page := intOption(options, "page")
	if page < 1 {
		page = 1
	}
	const pageSize = 10

	top, err := b.store.TopUsers(ctx, interaction.GuildID, pageSize, (page-1)*pageSize)
	if err != nil {
		b.respondError(session, interaction, err)
		return
	}
	if len(top) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Leaderboard", "No one has earned XP yet.", colorAction, nil), false)
		return
	}

	var lines []string
	for i, record := range top {
		lines = append(lines, fmt.Sprintf("%d. <@%s> — level %d, %d XP", (page-1)*pageSize+i+1, record.UserID, record.Level, record.XP))
	}
	b.respondEmbed(session, interaction, b.commandEmbed(fmt.Sprintf("Leaderboard (page %d)", page), strings.Join(lines, "\n"), colorAction, nil), false)
}

func (b *Bot) handleTicket(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := interactionUser(interaction)
	if user == nil {
		return
	}

	thread, err := b.threads.OpenTicket(ctx, interaction.GuildID, user.ID, stringOption(options, "topic"))
	switch {
	case errors.Is(err, storage.ErrThreadOpen):
		b.respondEmbed(session, interaction, b.commandEmbed("Tickets", "You already have an open ticket.", colorError, nil), true)
	case errors.Is(err, threads.ErrDisabled):
		b.respondEmbed(session, interaction, b.commandEmbed("Tickets", "Tickets are disabled on this server.", colorError, nil), true)
	case err != nil:
		b.respondError(session, interaction, err)
	default:
		b.respondEmbed(session, interaction, b.commandEmbed("Tickets", fmt.Sprintf("Opened <#%s>.", thread.ChannelID), colorOK, nil), true)
	}
}

func (b *Bot) handleClose(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := interactionUser(interaction)
	if user == nil {
		return
	}
	if !b.threads.IsThreadChannel(ctx, interaction.ChannelID) {
		b.respondEmbed(session, interaction, b.commandEmbed("Tickets", "This channel is not a ticket or modmail thread.", colorError, nil), true)
		return
	}

	reason := stringOption(options, "reason")
	if reason == "" {
		reason = "closed by staff"
	}
	if err := b.threads.Close(ctx, interaction.ChannelID, user.ID, reason); err != nil {
		b.respondError(session, interaction, err)
		return
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Tickets", "Thread closed; the channel will be removed shortly.", colorOK, nil), false)
}

func (b *Bot) handleModmail(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.requireManager(session, interaction) {
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)

	switch stringOption(options, "action") {
	case "on":
		settings.Modmail.Enabled = true
	case "off":
		settings.Modmail.Enabled = false
	case "anonymous":
		settings.Modmail.AnonymousStaff = !settings.Modmail.AnonymousStaff
	}
	if category, ok := options["category"]; ok {
		settings.Modmail.CategoryID = category.ChannelValue(session).ID
	}
	if err := b.settings.UpdateModmail(ctx, interaction.GuildID, settings.Modmail); err != nil {
		b.respondError(session, interaction, err)
		return
	}

	description := fmt.Sprintf("Modmail enabled: %t, anonymous staff: %t.", settings.Modmail.Enabled, settings.Modmail.AnonymousStaff)
	b.respondEmbed(session, interaction, b.commandEmbed("Modmail", description, colorOK, nil), true)
}

func (b *Bot) handleNoPrefix(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	actor := interactionUser(interaction)
	if actor == nil {
		return
	}
	if !b.isOwner(actor.ID) {
		b.respondEmbed(session, interaction, b.commandEmbed("No-prefix", "Only bot owners can manage no-prefix grants.", colorError, nil), true)
		return
	}

	action := stringOption(options, "action")
	if action == "list" {
		active := b.noprefix.List(interaction.GuildID)
		if len(active) == 0 {
			b.respondEmbed(session, interaction, b.commandEmbed("No-prefix", "No active grants.", colorAction, nil), true)
			return
		}
		sort.Slice(active, func(i, j int) bool { return active[i].ExpiresAt.Before(active[j].ExpiresAt) })
		var lines []string
		for _, grant := range active {
			lines = append(lines, fmt.Sprintf("<@%s> until %s", grant.UserID, grant.ExpiresAt.UTC().Format(time.RFC3339)))
		}
		b.respondEmbed(session, interaction, b.commandEmbed("No-prefix", strings.Join(lines, "\n"), colorAction, nil), true)
		return
	}

	userOption, ok := options["user"]
	if !ok {
		b.respondEmbed(session, interaction, b.commandEmbed("No-prefix", "A user is required.", colorError, nil), true)
		return
	}
	target := userOption.UserValue(session)

	switch action {
	case "add":
		duration, err := grants.ParseDuration(stringOption(options, "duration"))
		if err != nil {
			b.respondEmbed(session, interaction, b.commandEmbed("No-prefix", err.Error(), colorError, nil), true)
			return
		}
		expiresAt, err := b.noprefix.Grant(ctx, interaction.GuildID, target.ID, duration, actor.ID)
		if err != nil {
			b.respondError(session, interaction, err)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("No-prefix", fmt.Sprintf("<@%s> can use commands without a prefix until %s.", target.ID, expiresAt.UTC().Format(time.RFC3339)), colorOK, nil), true)
	case "remove":
		if err := b.noprefix.Revoke(ctx, interaction.GuildID, target.ID); err != nil {
			b.respondError(session, interaction, err)
			return
		}
		b.respondEmbed(session, interaction, b.commandEmbed("No-prefix", fmt.Sprintf("Revoked the grant for <@%s>.", target.ID), colorOK, nil), true)
	}
}

func (b *Bot) handleSettings(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.requireManager(session, interaction) {
		return
	}

	var changes []string
	if prefix := stringOption(options, "prefix"); prefix != "" {
		if err := b.settings.SetPrefix(ctx, interaction.GuildID, prefix); err != nil {
			b.respondError(session, interaction, err)
			return
		}
		changes = append(changes, "prefix to "+prefix)
	}
	if language := stringOption(options, "language"); language != "" {
		if err := b.settings.SetLanguage(ctx, interaction.GuildID, language); err != nil {
			b.respondError(session, interaction, err)
			return
		}
		changes = append(changes, "language to "+language)
	}
	if channel, ok := options["modlog"]; ok {
		channelID := channel.ChannelValue(session).ID
		if err := b.settings.SetModlogChannel(ctx, interaction.GuildID, channelID); err != nil {
			b.respondError(session, interaction, err)
			return
		}
		changes = append(changes, fmt.Sprintf("modlog channel to <#%s>", channelID))
	}

	if len(changes) == 0 {
		settings := b.guildSettings(ctx, interaction.GuildID)
		fields := []*discordgo.MessageEmbedField{
			{Name: "Prefix", Value: settings.Prefix, Inline: true},
			{Name: "Language", Value: settings.Language, Inline: true},
		}
		if settings.ModlogChannel != "" {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "Modlog", Value: fmt.Sprintf("<#%s>", settings.ModlogChannel), Inline: true})
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Settings", "Current guild settings.", colorAction, fields), true)
		return
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Settings", "Set "+strings.Join(changes, ", ")+".", colorOK, nil), true)
}

func (b *Bot) handleModStats(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.requireManager(session, interaction) {
		return
	}
	days := intOption(options, "days")
	if days < 1 {
		days = 7
	}

	report, err := b.analytics.Report(ctx, interaction.GuildID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		b.respondError(session, interaction, err)
		return
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Violations", Value: fmt.Sprintf("%d", report.Total), Inline: true},
		{Name: "Offenders", Value: fmt.Sprintf("%d", len(report.ByUser)), Inline: true},
	}
	kinds := make([]string, 0, len(report.ByKind))
	for kind := range report.ByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fields = append(fields, &discordgo.MessageEmbedField{Name: kind, Value: fmt.Sprintf("%d", report.ByKind[kind]), Inline: true})
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Automod activity", fmt.Sprintf("Last %d days.", days), colorAction, fields), true)
}

// requireManager gates configuration commands behind Manage Server.
func (b *Bot) requireManager(session *discordgo.Session, interaction *discordgo.InteractionCreate) bool {
	if interaction.Member != nil && interaction.Member.Permissions&discordgo.PermissionManageServer != 0 {
		return true
	}
	user := interactionUser(interaction)
	if user != nil && b.isOwner(user.ID) {
		return true
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Error", "You need the Manage Server permission for this.", colorError, nil), true)
	return false
}

func interactionUser(interaction *discordgo.InteractionCreate) *discordgo.User {
	if interaction.Member != nil {
		return interaction.Member.User
	}
	return interaction.User
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	result := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, option := range options {
		result[option.Name] = option
	}
	return result
}

func stringOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	option, ok := options[name]
	if !ok {
		return ""
	}
	return option.StringValue()
}

func intOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) int {
	option, ok := options[name]
	if !ok {
		return 0
	}
	return int(option.IntValue())
}

func (b *Bot) respondError(session *discordgo.Session, interaction *discordgo.InteractionCreate, err error) {
	b.logger.Warn("command failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	b.respondEmbed(session, interaction, b.commandEmbed("Error", "Something went wrong, try again later.", colorError, nil), true)
}
