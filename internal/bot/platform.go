package bot

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// sessionPlatform backs the thread manager with a live Discord session.
type sessionPlatform struct {
	session *discordgo.Session
}

func (p *sessionPlatform) CreateTicketChannel(ctx context.Context, guildID, name, categoryID, userID string, supportRoles []string) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			// @everyone shares its ID with the guild.
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    userID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		},
	}
	for _, roleID := range supportRoles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		})
	}

	channel, err := p.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             categoryID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return "", err
	}
	return channel.ID, nil
}

func (p *sessionPlatform) CreateModmailChannel(ctx context.Context, guildID, name, categoryID string, staffRoles []string) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
	}
	for _, roleID := range staffRoles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		})
	}

	channel, err := p.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             categoryID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return "", err
	}
	return channel.ID, nil
}

func (p *sessionPlatform) SendChannelMessage(ctx context.Context, channelID, content string) error {
	_, err := p.session.ChannelMessageSend(channelID, content)
	return err
}

func (p *sessionPlatform) SendDM(ctx context.Context, userID, content string) error {
	channel, err := p.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = p.session.ChannelMessageSend(channel.ID, content)
	return err
}

func (p *sessionPlatform) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := p.session.ChannelDelete(channelID)
	return err
}

// ChannelExists reports whether the channel is still reachable. Only a
// definite not-found counts as gone; transient errors do not.
func (p *sessionPlatform) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	if _, err := p.session.State.Channel(channelID); err == nil {
		return true, nil
	}
	_, err := p.session.Channel(channelID)
	if err == nil {
		return true, nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, err
}
