package bot

import (
	"context"
	"strings"

	"warden-mod/internal/utils"

	"github.com/bwmarrin/discordgo"
)

// Settings commands mutate the guild's moderation policy. All of them
// are admin only.
func (b *Bot) runSettingsCommand(ctx context.Context, msg *discordgo.MessageCreate, name string, args []string) {
	actor := b.snapshot(msg.GuildID, msg.Author.ID)
	if !actor.Resolved || !(actor.IsAdmin || actor.IsOwner) {
		b.reply(msg.ChannelID, "Only admins can change moderation settings")
		return
	}

	settings, err := b.store.GetModerationSettings(ctx, msg.GuildID)
	if err != nil {
		b.reply(msg.ChannelID, "Failed to load settings")
		return
	}
	settings.GuildID = msg.GuildID

	switch name {
	case "maxpunishment":
		if len(args) == 0 {
			if settings.MaxTempAction <= 0 {
				b.reply(msg.ChannelID, "No punishment length limit is set")
				return
			}
			b.reply(msg.ChannelID, "Non-admins can punish for up to "+utils.HumanizeDuration(settings.MaxTempAction, 2))
			return
		}
		if strings.EqualFold(args[0], "none") {
			settings.MaxTempAction = 0
		} else {
			length, ok := utils.ParseTime(args[0])
			if !ok {
				b.reply(msg.ChannelID, "Invalid time length")
				return
			}
			settings.MaxTempAction = length
		}
	case "mutedrole":
		if len(args) == 0 {
			b.reply(msg.ChannelID, "Usage: mutedrole <role|none>")
			return
		}
		if strings.EqualFold(args[0], "none") {
			settings.MutedRole = ""
		} else {
			roleID, ok := b.roleArg(msg, args[0])
			if !ok {
				b.reply(msg.ChannelID, "Unknown role")
				return
			}
			settings.MutedRole = roleID
		}
	case "warnrole":
		updated, ok := b.updateRoleList(msg, args, settings.AbleToWarn)
		if !ok {
			b.reply(msg.ChannelID, "Usage: warnrole add|remove <role>")
			return
		}
		settings.AbleToWarn = updated
	case "exemptrole":
		updated, ok := b.updateRoleList(msg, args, settings.CantBeWarned)
		if !ok {
			b.reply(msg.ChannelID, "Usage: exemptrole add|remove <role>")
			return
		}
		settings.CantBeWarned = updated
	}

	if err := b.store.UpsertModerationSettings(ctx, settings); err != nil {
		b.reply(msg.ChannelID, "Failed to save settings")
		return
	}
	b.reply(msg.ChannelID, "Settings updated")
}

func (b *Bot) updateRoleList(msg *discordgo.MessageCreate, args []string, roles []string) ([]string, bool) {
	if len(args) < 2 {
		return nil, false
	}
	roleID, ok := b.roleArg(msg, args[1])
	if !ok {
		return nil, false
	}

	switch strings.ToLower(args[0]) {
	case "add":
		for _, id := range roles {
			if id == roleID {
				return roles, true
			}
		}
		return append(roles, roleID), true
	case "remove":
		kept := roles[:0]
		for _, id := range roles {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		return kept, true
	}
	return nil, false
}

func (b *Bot) roleArg(msg *discordgo.MessageCreate, arg string) (string, bool) {
	if len(msg.MentionRoles) > 0 {
		return msg.MentionRoles[0], true
	}
	id := strings.Trim(arg, "<@&>")
	if id == "" {
		return "", false
	}
	guild := b.guild(msg.GuildID)
	if guild == nil {
		return "", false
	}
	for _, role := range guild.Roles {
		if role.ID == id || strings.EqualFold(role.Name, arg) {
			return role.ID, true
		}
	}
	return "", false
}
