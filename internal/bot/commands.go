package bot

import "github.com/bwmarrin/discordgo"

func (b *Bot) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "automod",
			Description: "View or toggle the automod filters",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "status, on, or off",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "status", Value: "status"},
						{Name: "on", Value: "on"},
						{Name: "off", Value: "off"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "filter",
					Description: "which filter to toggle; omit for the whole module",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "link", Value: "link"},
						{Name: "spam", Value: "spam"},
						{Name: "profanity", Value: "profanity"},
						{Name: "apps", Value: "apps"},
					},
				},
			},
		},
		{
			Name:        "whitelist",
			Description: "Manage the link whitelist",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "add, remove, or list",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "add", Value: "add"},
						{Name: "remove", Value: "remove"},
						{Name: "list", Value: "list"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "domain",
					Description: "domain to add or remove",
					Required:    false,
				},
			},
		},
		{
			Name:        "spamlimits",
			Description: "Set the spam filter thresholds",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "messages",
					Description: "messages allowed inside the window",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "window",
					Description: "window length in seconds",
					Required:    true,
				},
			},
		},
		{
			Name:        "leveling",
			Description: "View or toggle the leveling system",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "status, on, or off",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "status", Value: "status"},
						{Name: "on", Value: "on"},
						{Name: "off", Value: "off"},
					},
				},
			},
		},
		{
			Name:        "levelrole",
			Description: "Grant a role automatically at a level",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "level",
					Description: "level at which the role is granted",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "role to grant; omit to clear",
					Required:    false,
				},
			},
		},
		{
			Name:        "rank",
			Description: "Show a member's level and XP",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "defaults to you",
					Required:    false,
				},
			},
		},
		{
			Name:        "leaderboard",
			Description: "Show the guild XP leaderboard",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "page",
					Description: "page of ten entries",
					Required:    false,
				},
			},
		},
		{
			Name:        "ticket",
			Description: "Open a support ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "topic",
					Description: "what the ticket is about",
					Required:    false,
				},
			},
		},
		{
			Name:        "close",
			Description: "Close the ticket or modmail in this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "why the thread is being closed",
					Required:    false,
				},
			},
		},
		{
			Name:        "modmail",
			Description: "Configure modmail",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "on, off, or anonymous",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "on", Value: "on"},
						{Name: "off", Value: "off"},
						{Name: "anonymous", Value: "anonymous"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "category",
					Description: "category for modmail channels",
					Required:    false,
				},
			},
		},
		{
			Name:        "np",
			Description: "Manage no-prefix command grants",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "add, remove, or list",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "add", Value: "add"},
						{Name: "remove", Value: "remove"},
						{Name: "list", Value: "list"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "target user",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "duration",
					Description: "10m, 2h, 1d, or perm",
					Required:    false,
				},
			},
		},
		{
			Name:        "settings",
			Description: "Set guild prefix, language, or modlog channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prefix",
					Description: "command prefix",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "language",
					Description: "guild language code",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "modlog",
					Description: "channel for moderation log embeds",
					Required:    false,
				},
			},
		},
		{
			Name:        "modstats",
			Description: "Summarize automod activity",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "days",
					Description: "lookback window in days, default 7",
					Required:    false,
				},
			},
		},
	}

	for _, command := range commands {
		if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", command); err != nil {
			return err
		}
	}
	return nil
}
