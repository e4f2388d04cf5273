package bot

import (
	"context"
	"fmt"
	"strings"

	"sbmod/internal/leveling"

	"github.com/bwmarrin/discordgo"
)

// handleTextCommand serves the prefix commands. Users holding a
// no-prefix grant can drop the prefix entirely.
func (b *Bot) handleTextCommand(ctx context.Context, session *discordgo.Session, msg *discordgo.MessageCreate) bool {
	settings := b.guildSettings(ctx, msg.GuildID)
	content := strings.TrimSpace(msg.Content)

	switch {
	case strings.HasPrefix(content, settings.Prefix):
		content = strings.TrimPrefix(content, settings.Prefix)
	case b.noprefix.IsActive(msg.GuildID, msg.Author.ID):
		// bare command allowed
	default:
		return false
	}

	parts := strings.Fields(content)
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "rank":
		b.textRank(ctx, session, msg)
	case "leaderboard", "lb":
		b.textLeaderboard(ctx, session, msg)
	default:
		return false
	}
	return true
}

func (b *Bot) textRank(ctx context.Context, session *discordgo.Session, msg *discordgo.MessageCreate) {
	targetID := msg.Author.ID
	if len(msg.Mentions) > 0 {
		targetID = msg.Mentions[0].ID
	}

	record, err := b.store.GetUserLevel(ctx, msg.GuildID, targetID)
	if err != nil {
		return
	}
	rank, err := b.store.Rank(ctx, msg.GuildID, targetID)
	if err != nil {
		return
	}

	embed := b.commandEmbed("Rank", fmt.Sprintf("<@%s>", targetID), colorAction, []*discordgo.MessageEmbedField{
		{Name: "Level", Value: fmt.Sprintf("%d", record.Level), Inline: true},
		{Name: "Rank", Value: fmt.Sprintf("#%d", rank), Inline: true},
		{Name: "XP", Value: fmt.Sprintf("%d / %d", record.XP, leveling.XPForLevel(record.Level+1)), Inline: true},
	})
	_, _ = session.ChannelMessageSendEmbed(msg.ChannelID, embed)
}

func (b *Bot) textLeaderboard(ctx context.Context, session *discordgo.Session, msg *discordgo.MessageCreate) {
	top, err := b.store.TopUsers(ctx, msg.GuildID, 10, 0)
	if err != nil || len(top) == 0 {
		return
	}

	var lines []string
	for i, record := range top {
		lines = append(lines, fmt.Sprintf("%d. <@%s> — level %d, %d XP", i+1, record.UserID, record.Level, record.XP))
	}
	_, _ = session.ChannelMessageSendEmbed(msg.ChannelID, b.commandEmbed("Leaderboard", strings.Join(lines, "\n"), colorAction, nil))
}
