package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"warden-mod/internal/analytics"
	"warden-mod/internal/confirm"
	"warden-mod/internal/config"
	"warden-mod/internal/engine"
	"warden-mod/internal/hierarchy"
	"warden-mod/internal/ledger"
	"warden-mod/internal/modules/audit"
	"warden-mod/internal/modules/automod"
	"warden-mod/internal/storage"
	"warden-mod/internal/tempact"
	"warden-mod/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.Store
	ledger   *ledger.Ledger
	tracker  *tempact.Tracker
	audit    *audit.Logger
	engine   *engine.Engine
	automod  *automod.Module
	stats    *analytics.Service
	session  *discordgo.Session
	waiterMu sync.Mutex
	waiters  map[string]*conversation
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, warnLedger *ledger.Ledger, tracker *tempact.Tracker, auditLogger *audit.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		ledger:  warnLedger,
		tracker: tracker,
		audit:   auditLogger,
		session: session,
		waiters: make(map[string]*conversation),
	}
	b.engine = engine.New(store, warnLedger, tracker, store, b, b, auditLogger, confirm.New(), logger)
	b.automod = automod.New(automod.Config{
		Enabled:       cfg.Automod.Enabled,
		BurstMessages: cfg.Automod.BurstMessages,
		BurstWindow:   time.Duration(cfg.Automod.BurstWindowSeconds) * time.Second,
		BlockInvites:  cfg.Automod.BlockInvites,
		BannedWords:   cfg.Automod.BannedWords,
	}, warnLedger, auditLogger)
	b.stats = analytics.New(store)
	return b, nil
}

func (b *Bot) Start(ctx context.Context) error {
	if err := b.tracker.Hydrate(ctx); err != nil {
		return err
	}

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildDelete)

	return b.session.Open()
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))
}

func (b *Bot) onGuildDelete(session *discordgo.Session, event *discordgo.GuildDelete) {
	if event.Guild == nil || event.Guild.ID == "" || event.Unavailable {
		return
	}
	ctx := context.Background()
	b.tracker.PurgeGuild(event.Guild.ID)
	if err := b.store.PurgeGuild(ctx, event.Guild.ID); err != nil {
		b.logger.Warn("guild purge failed", zap.String("guild_id", event.Guild.ID), zap.Error(err))
		return
	}
	b.logger.Info("guild data purged", zap.String("guild_id", event.Guild.ID))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" {
		return
	}

	if b.deliverReply(msg) {
		return
	}

	if !strings.HasPrefix(msg.Content, b.cfg.CommandPrefix) {
		b.runAutomod(msg)
		return
	}
	b.dispatchCommand(msg)
}

func (b *Bot) runAutomod(msg *discordgo.MessageCreate) {
	verdict, flagged := b.automod.Check(msg.GuildID, msg.Author.ID, msg.Content)
	if !flagged {
		return
	}

	ctx := context.Background()
	settings, err := b.store.GetModerationSettings(ctx, msg.GuildID)
	if err == nil && hierarchy.Exempt(b.snapshot(msg.GuildID, msg.Author.ID), settings) {
		return
	}

	if verdict.Delete {
		_ = b.session.ChannelMessageDelete(msg.ChannelID, msg.ID)
	}
	botID := ""
	if b.session.State != nil && b.session.State.User != nil {
		botID = b.session.State.User.ID
	}
	count, err := b.automod.Punish(ctx, msg.GuildID, msg.Author.ID, botID, messageLink(msg), verdict)
	if err != nil {
		b.logger.Warn("automod warn failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return
	}
	if count > 0 {
		b.reply(msg.ChannelID, fmt.Sprintf("<@%s> has gotten their %s infraction for %s", msg.Author.ID, utils.Suffix(count), verdict.Reason))
	}
}

// conversation is one moderator's pending confirmation exchange in a
// channel. The next message that moderator sends there is routed to the
// gate instead of the command dispatcher.
type conversation struct {
	bot       *Bot
	channelID string
	userID    string
	replies   chan confirm.Reply
}

func (c *conversation) Post(content string) (string, error) {
	msg, err := c.bot.session.ChannelMessageSend(c.channelID, content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (c *conversation) Delete(messageID string) {
	_ = c.bot.session.ChannelMessageDelete(c.channelID, messageID)
}

func (c *conversation) Replies() <-chan confirm.Reply {
	return c.replies
}

func waiterKey(channelID, userID string) string {
	return channelID + ":" + userID
}

func (b *Bot) newConversation(channelID, userID string) *conversation {
	c := &conversation{bot: b, channelID: channelID, userID: userID, replies: make(chan confirm.Reply, 1)}
	b.waiterMu.Lock()
	b.waiters[waiterKey(channelID, userID)] = c
	b.waiterMu.Unlock()
	return c
}

func (b *Bot) releaseConversation(c *conversation) {
	b.waiterMu.Lock()
	if b.waiters[waiterKey(c.channelID, c.userID)] == c {
		delete(b.waiters, waiterKey(c.channelID, c.userID))
	}
	b.waiterMu.Unlock()
}

func (b *Bot) deliverReply(msg *discordgo.MessageCreate) bool {
	b.waiterMu.Lock()
	c, ok := b.waiters[waiterKey(msg.ChannelID, msg.Author.ID)]
	b.waiterMu.Unlock()
	if !ok {
		return false
	}
	select {
	case c.replies <- confirm.Reply{MessageID: msg.ID, Content: msg.Content}:
	default:
	}
	return true
}

// snapshot captures a member's rank and permission bits at command time.
// A member we cannot fetch stays unresolved and fails every hierarchy
// check closed.
func (b *Bot) snapshot(guildID, userID string) hierarchy.Member {
	m := hierarchy.Member{ID: userID}
	guild := b.guild(guildID)
	member := b.memberForUser(guildID, userID)
	if guild == nil || member == nil || member.User == nil {
		return m
	}

	m.Resolved = true
	m.Username = member.User.Username
	m.Nickname = member.Nick
	m.RoleIDs = member.Roles
	m.IsOwner = guild.OwnerID == userID

	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	perms := int64(0)
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
		if role.ID == guild.ID {
			perms |= role.Permissions
		}
	}
	for _, roleID := range member.Roles {
		role := roleMap[roleID]
		if role == nil {
			continue
		}
		perms |= role.Permissions
		if role.Position > m.TopRank {
			m.TopRank = role.Position
		}
	}

	m.IsAdmin = perms&discordgo.PermissionAdministrator != 0
	m.CanKick = perms&discordgo.PermissionKickMembers != 0
	m.CanBan = perms&discordgo.PermissionBanMembers != 0
	return m
}

func (b *Bot) guild(guildID string) *discordgo.Guild {
	guild, err := b.session.State.Guild(guildID)
	if err == nil && guild != nil {
		return guild
	}
	guild, _ = b.session.Guild(guildID)
	return guild
}

func (b *Bot) memberForUser(guildID, userID string) *discordgo.Member {
	member, err := b.session.State.Member(guildID, userID)
	if err == nil && member != nil {
		return member
	}
	member, _ = b.session.GuildMember(guildID, userID)
	return member
}

// Kick implements the engine's platform surface.
func (b *Bot) Kick(ctx context.Context, guildID, userID, reason string) error {
	_ = ctx
	return b.session.GuildMemberDeleteWithReason(guildID, userID, reason)
}

func (b *Bot) Ban(ctx context.Context, guildID, userID, reason string) error {
	_ = ctx
	return b.session.GuildBanCreateWithReason(guildID, userID, reason, 0)
}

func (b *Bot) Unban(ctx context.Context, guildID, userID string) error {
	_ = ctx
	return b.session.GuildBanDelete(guildID, userID)
}

func (b *Bot) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	_ = ctx
	return b.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (b *Bot) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	_ = ctx
	return b.session.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (b *Bot) IsBanned(ctx context.Context, guildID, userID string) (bool, error) {
	_ = ctx
	ban, err := b.session.GuildBan(guildID, userID)
	if err != nil {
		if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil && restErr.Response.StatusCode == 404 {
			return false, nil
		}
		return false, err
	}
	return ban != nil, nil
}

// TryNotify DMs the member. Closed DMs are common; the result only
// matters for logging.
func (b *Bot) TryNotify(userID, message string) bool {
	if userID == "" || !b.cfg.Notifications.DMEnabled {
		return false
	}
	channel, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return false
	}
	_, err = b.session.ChannelMessageSend(channel.ID, message)
	return err == nil
}

// UndoTempAction reverses the platform side of an expired punishment for
// the sweeper.
func (b *Bot) UndoTempAction(ctx context.Context, act storage.TempAction) error {
	switch tempact.Kind(act.Kind) {
	case tempact.KindBan:
		return b.session.GuildBanDelete(act.GuildID, act.UserID)
	case tempact.KindMute:
		settings, err := b.store.GetModerationSettings(ctx, act.GuildID)
		if err != nil {
			return err
		}
		if settings.MutedRole == "" {
			return nil
		}
		return b.session.GuildMemberRoleRemove(act.GuildID, act.UserID, settings.MutedRole)
	}
	return fmt.Errorf("unknown temp action kind %q", act.Kind)
}
