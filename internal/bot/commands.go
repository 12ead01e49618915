package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"warden-mod/internal/hierarchy"
	"warden-mod/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const defaultReason = "Unspecified"

func (b *Bot) dispatchCommand(msg *discordgo.MessageCreate) {
	content := msg.Content
	if !strings.HasPrefix(content, b.cfg.CommandPrefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(content, b.cfg.CommandPrefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	// Commands can block on a confirmation reply, so each runs on its
	// own goroutine.
	go b.runCommand(context.Background(), msg, name, args)
}

func (b *Bot) runCommand(ctx context.Context, msg *discordgo.MessageCreate, name string, args []string) {
	switch name {
	case "warn":
		b.cmdWarn(ctx, msg, args)
	case "warns", "infractions":
		b.cmdWarns(ctx, msg, args)
	case "removewarn", "removewarning":
		b.cmdRemoveWarn(ctx, msg, args)
	case "kick":
		b.cmdKick(ctx, msg, args)
	case "kickwarn":
		b.cmdKickWarn(ctx, msg, args)
	case "ban":
		b.cmdBan(ctx, msg, args)
	case "tempban":
		b.cmdTempAction(ctx, msg, args, "ban", false)
	case "tempbanwarn":
		b.cmdTempAction(ctx, msg, args, "ban", true)
	case "tempmute":
		b.cmdTempAction(ctx, msg, args, "mute", false)
	case "tempmutewarn":
		b.cmdTempAction(ctx, msg, args, "mute", true)
	case "unban":
		b.cmdUnban(ctx, msg, args)
	case "unmute":
		b.cmdUnmute(ctx, msg, args)
	case "history":
		b.cmdHistory(ctx, msg, args)
	case "modstats":
		b.cmdModStats(ctx, msg, args)
	case "maxpunishment", "mutedrole", "warnrole", "exemptrole":
		b.runSettingsCommand(ctx, msg, name, args)
	}
}

func (b *Bot) reply(channelID, content string) {
	if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
		b.logger.Warn("reply failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (b *Bot) replyEmbed(channelID string, embed *discordgo.MessageEmbed) {
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.logger.Warn("reply failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// target resolves the first argument to a member snapshot. Mentions win;
// a bare snowflake still works for members who already left.
func (b *Bot) target(msg *discordgo.MessageCreate, args []string) (hierarchy.Member, []string, bool) {
	if len(msg.Mentions) > 0 && msg.Mentions[0] != nil {
		rest := args
		if len(rest) > 0 && strings.Contains(rest[0], msg.Mentions[0].ID) {
			rest = rest[1:]
		}
		return b.snapshot(msg.GuildID, msg.Mentions[0].ID), rest, true
	}
	if len(args) == 0 {
		return hierarchy.Member{}, args, false
	}
	id := strings.Trim(args[0], "<@!>")
	if id == "" || strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return hierarchy.Member{}, args, false
	}
	return b.snapshot(msg.GuildID, id), args[1:], true
}

func reasonFrom(args []string) string {
	if len(args) == 0 {
		return defaultReason
	}
	return strings.Join(args, " ")
}

func messageLink(msg *discordgo.MessageCreate) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", msg.GuildID, msg.ChannelID, msg.ID)
}

func (b *Bot) cmdWarn(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	target, rest, ok := b.target(msg, args)
	if !ok {
		b.reply(msg.ChannelID, "Who do you want to warn?")
		return
	}
	size := 1.0
	if len(rest) > 0 {
		if parsed, err := strconv.ParseFloat(rest[0], 64); err == nil && parsed > 0 {
			size = parsed
			rest = rest[1:]
		}
	}
	actor := b.snapshot(msg.GuildID, msg.Author.ID)
	out := b.engine.Warn(ctx, msg.GuildID, actor, target, size, reasonFrom(rest), messageLink(msg))
	b.reply(msg.ChannelID, out.Description)
}

func (b *Bot) cmdWarns(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	target, _, ok := b.target(msg, args)
	if !ok {
		target = b.snapshot(msg.GuildID, msg.Author.ID)
	}
	infractions, err := b.ledger.Load(ctx, msg.GuildID, target.ID)
	if err != nil {
		b.reply(msg.ChannelID, "Failed to load infractions")
		return
	}

	total := 0.0
	lines := make([]string, 0, len(infractions))
	for i, inf := range infractions {
		total += inf.Size
		line := fmt.Sprintf("**%d:** %s - size %.1f <t:%d:R>", i+1, inf.Reason, inf.Size, inf.CreatedAt.Unix())
		if inf.LogLink != "" {
			line += " [link](" + inf.LogLink + ")"
		}
		lines = append(lines, line)
	}
	description := strings.Join(lines, "\n")
	if description == "" {
		description = "No infractions"
	}

	b.replyEmbed(msg.ChannelID, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s has %d infractions (%.1f total size)", target.Name(), len(infractions), total),
		Description: description,
		Color:       b.cfg.Notifications.EmbedColors.Warning,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}

func (b *Bot) cmdRemoveWarn(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	target, rest, ok := b.target(msg, args)
	if !ok || len(rest) == 0 {
		b.reply(msg.ChannelID, "Usage: removewarn <member> <number>")
		return
	}
	index, err := strconv.Atoi(rest[0])
	if err != nil {
		b.reply(msg.ChannelID, "Invalid infraction number")
		return
	}
	actor := b.snapshot(msg.GuildID, msg.Author.ID)
	out := b.engine.RemoveWarning(ctx, msg.GuildID, actor, target, index)
	b.reply(msg.ChannelID, out.Description)
}

func (b *Bot) cmdKick(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	target, rest, ok := b.target(msg, args)
	if !ok {
		b.reply(msg.ChannelID, "Who do you want to kick?")
		return
	}
	actor := b.snapshot(msg.GuildID, msg.Author.ID)
	out := b.engine.Kick(ctx, msg.GuildID, actor, target, reasonFrom(rest))
	b.reply(msg.ChannelID, out.Description)
}

func (b *Bot) cmdKickWarn(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	target, rest, ok := b.target(msg, args)
	if !ok {
		b.reply(msg.ChannelID, "Who do you want to kick?")
		return
	}
	actor := b.snapshot(msg.GuildID, msg.Author.ID)
	out := b.engine.KickWarn(ctx, msg.GuildID, actor, target, 1, reasonFrom(rest))
	b.reply(msg.ChannelID, out.Description)
}

func (b *Bot) cmdBan(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	target, rest, ok := b.target(msg, args)
	if !ok {
		b.reply(msg.ChannelID, "Who do you want to ban?")
		return
	}
	actor := b.snapshot(msg.GuildID, msg.Author.ID)
	conv := b.newConversation(msg.ChannelID, msg.Author.ID)
	defer b.releaseConversation(conv)
	out := b.engine.Ban(ctx, msg.GuildID, actor, target, reasonFrom(rest), conv)
	b.reply(msg.ChannelID, out.Description)
}

func (b *Bot) cmdTempAction(ctx context.Context, msg *discordgo.MessageCreate, args []string, kind string, withWarn bool) {
	target, rest, ok := b.target(msg, args)
	if !ok || len(rest) == 0 {
		b.reply(msg.ChannelID, "Usage: temp"+kind+" <member> <length> [reason]")
		return
	}
	length, ok := utils.ParseTime(rest[0])
	if !ok {
		b.reply(msg.ChannelID, "Invalid time length")
		return
	}
	reason := reasonFrom(rest[1:])
	actor := b.snapshot(msg.GuildID, msg.Author.ID)
	link := messageLink(msg)

	switch {
	case kind == "ban" && withWarn:
		b.reply(msg.ChannelID, b.engine.TempBanWarn(ctx, msg.GuildID, actor, target, length, 1, reason, link).Description)
	case kind == "ban":
		conv := b.newConversation(msg.ChannelID, msg.Author.ID)
		defer b.releaseConversation(conv)
		b.reply(msg.ChannelID, b.engine.TempBan(ctx, msg.GuildID, actor, target, length, reason, link, conv).Description)
	case withWarn:
		b.reply(msg.ChannelID, b.engine.TempMuteWarn(ctx, msg.GuildID, actor, target, length, 1, reason, link).Description)
	default:
		conv := b.newConversation(msg.ChannelID, msg.Author.ID)
		defer b.releaseConversation(conv)
		b.reply(msg.ChannelID, b.engine.TempMute(ctx, msg.GuildID, actor, target, length, reason, link, conv).Description)
	}
}

func (b *Bot) cmdUnban(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	target, _, ok := b.target(msg, args)
	if !ok {
		b.reply(msg.ChannelID, "Who do you want to unban?")
		return
	}
	actor := b.snapshot(msg.GuildID, msg.Author.ID)
	out := b.engine.Unban(ctx, msg.GuildID, actor, target)
	b.reply(msg.ChannelID, out.Description)
}

func (b *Bot) cmdUnmute(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	target, _, ok := b.target(msg, args)
	if !ok {
		b.reply(msg.ChannelID, "Who do you want to unmute?")
		return
	}
	actor := b.snapshot(msg.GuildID, msg.Author.ID)
	out := b.engine.Unmute(ctx, msg.GuildID, actor, target)
	b.reply(msg.ChannelID, out.Description)
}

func (b *Bot) cmdHistory(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	target, _, ok := b.target(msg, args)
	if !ok {
		target = b.snapshot(msg.GuildID, msg.Author.ID)
	}
	records, err := b.store.ListActRecords(ctx, msg.GuildID, target.ID)
	if err != nil {
		b.reply(msg.ChannelID, "Failed to load history")
		return
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		line := fmt.Sprintf("**%s** - %s <t:%d:R>", rec.Type, rec.Reason, rec.HappenedAt.Unix())
		if rec.Length > 0 {
			line += " (" + utils.HumanizeDuration(rec.Length, 2) + ")"
		}
		lines = append(lines, line)
	}
	description := strings.Join(lines, "\n")
	if description == "" {
		description = "No moderation history"
	}

	b.replyEmbed(msg.ChannelID, &discordgo.MessageEmbed{
		Title:       target.Name() + "'s moderation history",
		Description: description,
		Color:       b.cfg.Notifications.EmbedColors.Action,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}

func (b *Bot) cmdModStats(ctx context.Context, msg *discordgo.MessageCreate, args []string) {
	days := 7
	if len(args) > 0 {
		if parsed, err := strconv.Atoi(args[0]); err == nil && parsed > 0 {
			days = parsed
		}
	}
	report, err := b.stats.Report(ctx, msg.GuildID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		b.reply(msg.ChannelID, "Failed to build the report")
		return
	}

	lines := make([]string, 0, len(report.ByEvent))
	for event, count := range report.ByEvent {
		lines = append(lines, fmt.Sprintf("%s: %d", event, count))
	}
	sort.Strings(lines)
	description := strings.Join(lines, "\n")
	if description == "" {
		description = "No moderation activity"
	}

	b.replyEmbed(msg.ChannelID, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Moderation activity over the last %d days (%d events)", days, report.Total),
		Description: description,
		Color:       b.cfg.Notifications.EmbedColors.Action,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}
