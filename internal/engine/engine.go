package engine

import (
	"context"
	"fmt"
	"time"

	"warden-mod/internal/confirm"
	"warden-mod/internal/hierarchy"
	"warden-mod/internal/ledger"
	"warden-mod/internal/modules/audit"
	"warden-mod/internal/storage"
	"warden-mod/internal/tempact"
	"warden-mod/internal/utils"

	"go.uber.org/zap"
)

type Kind int

const (
	KindOK Kind = iota
	KindInvalidDuration
	KindDurationTooLong
	KindRequiresAdminToShorten
	KindCancelled
	KindTimedOut
	KindAlreadyActive
	KindAlreadyBanned
	KindTargetExempt
	KindInsufficientPermission
	KindNoMuteRoleConfigured
	KindOutOfRange
	KindTargetUnresolvable
	KindPlatformActionFailed
)

// Outcome is what every engine operation returns. Description is always
// populated so callers can relay it verbatim, success or failure.
type Outcome struct {
	Success     bool
	Kind        Kind
	Description string
	WarnCount   int
	Severity    float64
}

// SettingsProvider loads the guild policy document; a guild with no
// stored settings gets the zero value.
type SettingsProvider interface {
	GetModerationSettings(ctx context.Context, guildID string) (storage.ModerationSettings, error)
}

// Executor performs the real platform mutations. A failure here is a hard
// stop for the operation; the engine never retries.
type Executor interface {
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	Unban(ctx context.Context, guildID, userID string) error
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	IsBanned(ctx context.Context, guildID, userID string) (bool, error)
}

// Notifier delivers best-effort direct messages; an unreachable member is
// never an action failure.
type Notifier interface {
	TryNotify(userID, message string) bool
}

const (
	lengthChangeTimeout = 2 * time.Minute
	banOverrideTimeout  = 5 * time.Minute
)

type Engine struct {
	settings SettingsProvider
	ledger   *ledger.Ledger
	tracker  *tempact.Tracker
	store    *storage.Store
	executor Executor
	notify   Notifier
	audit    *audit.Logger
	gate     *confirm.Gate
	logger   *zap.Logger
}

func New(settings SettingsProvider, warnLedger *ledger.Ledger, tracker *tempact.Tracker, store *storage.Store, executor Executor, notifier Notifier, auditLogger *audit.Logger, gate *confirm.Gate, logger *zap.Logger) *Engine {
	return &Engine{
		settings: settings,
		ledger:   warnLedger,
		tracker:  tracker,
		store:    store,
		executor: executor,
		notify:   notifier,
		audit:    auditLogger,
		gate:     gate,
		logger:   logger,
	}
}

func reject(kind Kind, description string) Outcome {
	return Outcome{Kind: kind, Description: description}
}

func (e *Engine) loadSettings(ctx context.Context, guildID string) storage.ModerationSettings {
	settings, err := e.settings.GetModerationSettings(ctx, guildID)
	if err != nil {
		e.logger.Warn("settings load failed, using defaults", zap.String("guild_id", guildID), zap.Error(err))
		return storage.ModerationSettings{GuildID: guildID}
	}
	return settings
}

func (e *Engine) gateTarget(actor, target hierarchy.Member) (Outcome, bool) {
	if target.ID == "" {
		return reject(KindTargetUnresolvable, "Could not resolve that member"), false
	}
	if !hierarchy.CanActOn(actor, target) {
		return reject(KindInsufficientPermission, "You can't act on a member with an equal or higher role"), false
	}
	return Outcome{}, true
}

// Warn appends an infraction and reports the member's new ordinal count.
func (e *Engine) Warn(ctx context.Context, guildID string, actor, target hierarchy.Member, size float64, reason, logLink string) Outcome {
	settings := e.loadSettings(ctx, guildID)
	if !hierarchy.CanWarn(actor, settings) {
		return reject(KindInsufficientPermission, "You are not allowed to warn members")
	}
	if out, ok := e.gateTarget(actor, target); !ok {
		return out
	}
	if hierarchy.Exempt(target, settings) {
		return reject(KindTargetExempt, target.Name()+" can't be warned")
	}
	if size <= 0 {
		size = 1
	}

	count, total, err := e.ledger.Append(ctx, storage.Infraction{
		GuildID:   guildID,
		UserID:    target.ID,
		Size:      size,
		Reason:    reason,
		LogLink:   logLink,
		Moderator: actor.ID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		e.logger.Error("warn append failed", zap.String("guild_id", guildID), zap.Error(err))
		return reject(KindPlatformActionFailed, "Failed to record the warning")
	}
	return Outcome{
		Success:     true,
		Description: fmt.Sprintf("%s has gotten their %s infraction for %s", target.Mention(), utils.Suffix(count), reason),
		WarnCount:   count,
		Severity:    total,
	}
}

// Kick removes the member from the guild; nothing is tracked beyond the
// audit event.
func (e *Engine) Kick(ctx context.Context, guildID string, actor, target hierarchy.Member, reason string) Outcome {
	if !canKick(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to kick members")
	}
	if out, ok := e.gateTarget(actor, target); !ok {
		return out
	}

	e.notify.TryNotify(target.ID, fmt.Sprintf("You have been kicked for %s", reason))
	if err := e.executor.Kick(ctx, guildID, target.ID, reason); err != nil {
		e.logger.Warn("kick failed", zap.String("guild_id", guildID), zap.String("user_id", target.ID), zap.Error(err))
		return reject(KindPlatformActionFailed, "Failed to kick "+target.Name())
	}
	e.audit.Log(ctx, audit.LevelWarn, guildID, target.ID, "kick", fmt.Sprintf("by=%s reason=%q", actor.ID, reason))
	e.recordAct(ctx, guildID, target.ID, "kick", reason, "", 0)
	return Outcome{Success: true, Description: fmt.Sprintf("%s has been kicked for %s", target.Mention(), reason)}
}

// KickWarn warns first, then kicks. The warn stands even if the kick
// fails afterwards.
func (e *Engine) KickWarn(ctx context.Context, guildID string, actor, target hierarchy.Member, size float64, reason string) Outcome {
	if !canKick(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to kick members")
	}
	warned := e.Warn(ctx, guildID, actor, target, size, reason, "")
	if !warned.Success {
		return warned
	}
	out := e.Kick(ctx, guildID, actor, target, reason)
	out.WarnCount = warned.WarnCount
	out.Severity = warned.Severity
	if !out.Success {
		out.Description += " (the warn did go through)"
	}
	return out
}

// Ban is the permanent ban. An active temp-ban must be overridden through
// the confirmation gate; an existing permanent ban is rejected.
func (e *Engine) Ban(ctx context.Context, guildID string, actor, target hierarchy.Member, reason string, conv confirm.Conversation) Outcome {
	if !canBan(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to ban members")
	}
	if out, ok := e.gateTarget(actor, target); !ok {
		return out
	}

	if _, ok := e.tracker.FindActive(guildID, tempact.KindBan, target.ID); ok {
		if conv == nil {
			return reject(KindAlreadyActive, target.Name()+" is already temp-banned")
		}
		question := target.Name() + " is already temp-banned. Reply with confirm if you want to override"
		switch e.gate.Await(ctx, conv, question, banOverrideTimeout) {
		case confirm.Confirmed:
			e.tracker.RemoveEarly(ctx, guildID, tempact.KindBan, target.ID, time.Now())
		default:
			return reject(KindCancelled, "Command canceled")
		}
	} else {
		banned, err := e.executor.IsBanned(ctx, guildID, target.ID)
		if err != nil {
			e.logger.Warn("ban lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		}
		if banned {
			return reject(KindAlreadyBanned, "User has already been banned permanently")
		}
	}

	e.notify.TryNotify(target.ID, fmt.Sprintf("You have been permanently banned for %s", reason))
	if err := e.executor.Ban(ctx, guildID, target.ID, reason); err != nil {
		e.logger.Warn("ban failed", zap.String("guild_id", guildID), zap.String("user_id", target.ID), zap.Error(err))
		return reject(KindPlatformActionFailed, "Failed to ban "+target.Name())
	}
	e.audit.RecordTempAction(ctx, guildID, actor.ID, target.ID, "ban", reason, "", 0)
	e.recordAct(ctx, guildID, target.ID, "ban", reason, "", 0)
	return Outcome{Success: true, Description: fmt.Sprintf("%s has been banned for %s", target.Name(), reason)}
}

// TempBan delegates duration and conflict policy to the tracker.
func (e *Engine) TempBan(ctx context.Context, guildID string, actor, target hierarchy.Member, length time.Duration, reason, logLink string, conv confirm.Conversation) Outcome {
	if !canKick(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to temp-ban members")
	}
	if out, ok := e.gateTarget(actor, target); !ok {
		return out
	}
	settings := e.loadSettings(ctx, guildID)
	return e.propose(ctx, guildID, actor, target, tempact.KindBan, length, reason, logLink, settings, conv)
}

// TempMute assigns the guild's muted role for the duration.
func (e *Engine) TempMute(ctx context.Context, guildID string, actor, target hierarchy.Member, length time.Duration, reason, logLink string, conv confirm.Conversation) Outcome {
	if !canKick(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to temp-mute members")
	}
	if out, ok := e.gateTarget(actor, target); !ok {
		return out
	}
	settings := e.loadSettings(ctx, guildID)
	if settings.MutedRole == "" {
		return reject(KindNoMuteRoleConfigured, "Muted role is null or invalid")
	}
	return e.propose(ctx, guildID, actor, target, tempact.KindMute, length, reason, logLink, settings, conv)
}

// TempBanWarn warns first, then temp-bans. The warn is never retracted;
// a conflicting ban reports partial success instead.
func (e *Engine) TempBanWarn(ctx context.Context, guildID string, actor, target hierarchy.Member, length time.Duration, size float64, reason, logLink string) Outcome {
	if !canKick(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to temp-ban members")
	}
	if out, ok := e.precheckLength(ctx, guildID, actor, length); !ok {
		return out
	}
	return e.comboWarnThen(ctx, guildID, actor, target, tempact.KindBan, length, size, reason, logLink)
}

// TempMuteWarn warns first, then temp-mutes.
func (e *Engine) TempMuteWarn(ctx context.Context, guildID string, actor, target hierarchy.Member, length time.Duration, size float64, reason, logLink string) Outcome {
	if !canKick(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to temp-mute members")
	}
	if out, ok := e.precheckLength(ctx, guildID, actor, length); !ok {
		return out
	}
	settings := e.loadSettings(ctx, guildID)
	if settings.MutedRole == "" {
		return reject(KindNoMuteRoleConfigured, "Muted role is null or invalid")
	}
	return e.comboWarnThen(ctx, guildID, actor, target, tempact.KindMute, length, size, reason, logLink)
}

// RemoveWarning deletes a single infraction by its 1-based index.
func (e *Engine) RemoveWarning(ctx context.Context, guildID string, actor, target hierarchy.Member, index int) Outcome {
	if !isAdmin(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to remove warnings")
	}
	if out, ok := e.gateTarget(actor, target); !ok {
		return out
	}

	removed, err := e.ledger.RemoveAt(ctx, guildID, target.ID, index, actor.ID)
	if err != nil {
		if err == ledger.ErrOutOfRange {
			return reject(KindOutOfRange, "Invalid infraction number")
		}
		e.logger.Error("warning removal failed", zap.String("guild_id", guildID), zap.Error(err))
		return reject(KindPlatformActionFailed, "Failed to remove the warning")
	}
	e.notify.TryNotify(target.ID, fmt.Sprintf("Your %s warning for %s has been removed", utils.Suffix(index), removed.Reason))
	return Outcome{Success: true, Description: fmt.Sprintf("Removed %s's warning for %s", target.Mention(), removed.Reason)}
}

// Unban lifts a temp-ban early. A missing record is treated as already
// expired, never an error.
func (e *Engine) Unban(ctx context.Context, guildID string, actor, target hierarchy.Member) Outcome {
	if !canBan(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to unban members")
	}
	if target.ID == "" {
		return reject(KindTargetUnresolvable, "Could not resolve that member")
	}
	if removed := e.tracker.RemoveEarly(ctx, guildID, tempact.KindBan, target.ID, time.Now()); !removed {
		return Outcome{Success: true, Description: target.Name() + " has no active temp-ban"}
	}
	if err := e.executor.Unban(ctx, guildID, target.ID); err != nil {
		e.logger.Warn("unban failed", zap.String("guild_id", guildID), zap.String("user_id", target.ID), zap.Error(err))
		return reject(KindPlatformActionFailed, "Failed to unban "+target.Name())
	}
	return Outcome{Success: true, Description: "Unbanned " + target.Name()}
}

// Unmute lifts a temp-mute early.
func (e *Engine) Unmute(ctx context.Context, guildID string, actor, target hierarchy.Member) Outcome {
	if !canKick(actor) {
		return reject(KindInsufficientPermission, "You are not allowed to unmute members")
	}
	if target.ID == "" {
		return reject(KindTargetUnresolvable, "Could not resolve that member")
	}
	settings := e.loadSettings(ctx, guildID)
	if removed := e.tracker.RemoveEarly(ctx, guildID, tempact.KindMute, target.ID, time.Now()); !removed {
		return Outcome{Success: true, Description: target.Name() + " has no active temp-mute"}
	}
	if settings.MutedRole != "" {
		if err := e.executor.RemoveRole(ctx, guildID, target.ID, settings.MutedRole); err != nil {
			e.logger.Warn("unmute role removal failed", zap.String("guild_id", guildID), zap.String("user_id", target.ID), zap.Error(err))
			return reject(KindPlatformActionFailed, "Failed to unmute "+target.Name())
		}
	}
	return Outcome{Success: true, Description: "Unmuted " + target.Name()}
}

func (e *Engine) propose(ctx context.Context, guildID string, actor, target hierarchy.Member, kind tempact.Kind, length time.Duration, reason, logLink string, settings storage.ModerationSettings, conv confirm.Conversation) Outcome {
	var confirmFn tempact.ConfirmFunc
	if conv != nil {
		confirmFn = func(existing storage.TempAction, remaining time.Duration) confirm.Outcome {
			question := fmt.Sprintf("%s is already temp-%s for %s (%s left), reply with confirm within 2 minutes to confirm you want to change the length",
				target.Name(), verb(kind), utils.HumanizeDuration(existing.Length, 2), utils.HumanizeDuration(remaining, 2))
			return e.gate.Await(ctx, conv, question, lengthChangeTimeout)
		}
	}

	req := tempact.Request{
		GuildID:       guildID,
		Kind:          kind,
		UserID:        target.ID,
		Length:        length,
		Reason:        reason,
		Moderator:     actor.ID,
		ActorIsAdmin:  isAdmin(actor),
		MaxTempAction: settings.MaxTempAction,
	}
	result := e.tracker.Propose(ctx, req, confirmFn, func(act storage.TempAction) error {
		return e.applyTempAction(ctx, act, target, settings)
	})
	return e.proposalOutcome(ctx, result, kind, target, reason, logLink)
}

func (e *Engine) applyTempAction(ctx context.Context, act storage.TempAction, target hierarchy.Member, settings storage.ModerationSettings) error {
	switch tempact.Kind(act.Kind) {
	case tempact.KindBan:
		e.notify.TryNotify(target.ID, fmt.Sprintf("You have been temp-banned for %s because of %s", utils.HumanizeDuration(act.Length, 3), act.Reason))
		return e.executor.Ban(ctx, act.GuildID, act.UserID, act.Reason)
	case tempact.KindMute:
		if err := e.executor.AddRole(ctx, act.GuildID, act.UserID, settings.MutedRole); err != nil {
			return err
		}
		e.notify.TryNotify(target.ID, fmt.Sprintf("You have been temp-muted for %s because of %s", utils.HumanizeDuration(act.Length, 3), act.Reason))
		return nil
	}
	return fmt.Errorf("unknown temp action kind %q", act.Kind)
}

func (e *Engine) proposalOutcome(ctx context.Context, result tempact.Result, kind tempact.Kind, target hierarchy.Member, reason, logLink string) Outcome {
	switch result.Kind {
	case tempact.RejectNone:
	case tempact.RejectInvalidDuration:
		return reject(KindInvalidDuration, "Can't temp-"+verb(kind)+" for less than a minute")
	case tempact.RejectDurationTooLong:
		return reject(KindDurationTooLong, "You are not allowed to punish for that long")
	case tempact.RejectRequiresAdminToShorten:
		return reject(KindRequiresAdminToShorten, "Please contact your admin(s) in order to shorten the length of a punishment")
	case tempact.RejectCancelled:
		return reject(KindCancelled, "Command canceled")
	case tempact.RejectTimedOut:
		return reject(KindTimedOut, "Command canceled")
	case tempact.RejectAlreadyActive:
		return reject(KindAlreadyActive, target.Name()+" is already temp-"+pastVerb(kind))
	case tempact.RejectApplyFailed:
		e.logger.Warn("temp action platform call failed", zap.String("kind", string(kind)), zap.String("user_id", target.ID), zap.Error(result.Err))
		return reject(KindPlatformActionFailed, "Failed to temp-"+verb(kind)+" "+target.Name())
	}

	act := result.Act
	e.audit.RecordTempAction(ctx, act.GuildID, act.Moderator, act.UserID, act.Kind, act.Reason, logLink, act.Length)
	e.recordAct(ctx, act.GuildID, act.UserID, "temp-"+act.Kind, act.Reason, logLink, act.Length)
	return Outcome{
		Success: true,
		Description: fmt.Sprintf("Temporarily %s %s for %s because of %s",
			pastVerb(kind), target.Mention(), utils.HumanizeDuration(act.Length, 3), reason),
	}
}

// precheckLength mirrors the tracker's duration policy so combo commands
// can refuse before committing the warn. Returns ok=true when the length
// passes.
func (e *Engine) precheckLength(ctx context.Context, guildID string, actor hierarchy.Member, length time.Duration) (Outcome, bool) {
	if length < time.Minute {
		return reject(KindInvalidDuration, "Can't punish for less than a minute"), false
	}
	settings := e.loadSettings(ctx, guildID)
	if !isAdmin(actor) && settings.MaxTempAction > 0 && length > settings.MaxTempAction {
		return reject(KindDurationTooLong, "You are not allowed to punish for that long"), false
	}
	return Outcome{Success: true}, true
}

func (e *Engine) comboWarnThen(ctx context.Context, guildID string, actor, target hierarchy.Member, kind tempact.Kind, length time.Duration, size float64, reason, logLink string) Outcome {
	warned := e.Warn(ctx, guildID, actor, target, size, reason, logLink)
	if !warned.Success {
		return warned
	}

	if _, ok := e.tracker.FindActive(guildID, kind, target.ID); ok {
		out := reject(KindAlreadyActive, fmt.Sprintf("%s is already temp-%s (the warn did go through)", target.Name(), pastVerb(kind)))
		out.WarnCount = warned.WarnCount
		out.Severity = warned.Severity
		return out
	}

	settings := e.loadSettings(ctx, guildID)
	out := e.propose(ctx, guildID, actor, target, kind, length, reason, logLink, settings, nil)
	out.WarnCount = warned.WarnCount
	out.Severity = warned.Severity
	if !out.Success && out.Kind != KindAlreadyActive {
		out.Description += " (the warn did go through)"
	}
	return out
}

func (e *Engine) recordAct(ctx context.Context, guildID, userID, actType, reason, logLink string, length time.Duration) {
	err := e.store.AddActRecord(ctx, storage.ActRecord{
		GuildID:    guildID,
		UserID:     userID,
		Type:       actType,
		Reason:     reason,
		LogLink:    logLink,
		Length:     length,
		HappenedAt: time.Now(),
	})
	if err != nil {
		e.logger.Error("act record failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func isAdmin(m hierarchy.Member) bool {
	return m.Resolved && (m.IsAdmin || m.IsOwner)
}

func canKick(m hierarchy.Member) bool {
	return m.Resolved && (m.CanKick || m.IsAdmin || m.IsOwner)
}

func canBan(m hierarchy.Member) bool {
	return m.Resolved && (m.CanBan || m.IsAdmin || m.IsOwner)
}

func verb(kind tempact.Kind) string {
	if kind == tempact.KindMute {
		return "mute"
	}
	return "ban"
}

func pastVerb(kind tempact.Kind) string {
	if kind == tempact.KindMute {
		return "muted"
	}
	return "banned"
}
