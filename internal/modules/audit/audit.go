package audit

import (
	"context"
	"fmt"
	"time"

	"warden-mod/internal/storage"
	"warden-mod/internal/utils"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

// Logger records moderation events to the store and the process log, and
// optionally forwards them to a channel notifier. Delivery is best-effort:
// no method returns an error and callers never block on a failed sink.
type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		_ = l.store.AddAuditLog(ctx, entry)
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

func (l *Logger) RecordWarn(ctx context.Context, guildID, actorID, targetID, reason, link string) {
	l.Log(ctx, LevelWarn, guildID, targetID, "warn", detail(actorID, reason, link, 0))
}

func (l *Logger) RecordWarnRemoved(ctx context.Context, guildID, actorID, targetID, reason string) {
	l.Log(ctx, LevelInfo, guildID, targetID, "warn_removed", detail(actorID, reason, "", 0))
}

func (l *Logger) RecordTempAction(ctx context.Context, guildID, actorID, targetID, kind, reason, link string, length time.Duration) {
	l.Log(ctx, LevelWarn, guildID, targetID, "temp_"+kind, detail(actorID, reason, link, length))
}

func (l *Logger) RecordTempActionEnded(ctx context.Context, guildID, targetID, kind, reason string, length time.Duration) {
	l.Log(ctx, LevelInfo, guildID, targetID, "temp_"+kind+"_ended", detail("", reason, "", length))
}

func (l *Logger) RecordManualEnd(ctx context.Context, guildID, targetID, kind string, when time.Time) {
	l.Log(ctx, LevelInfo, guildID, targetID, "temp_"+kind+"_lifted", "at="+when.UTC().Format(time.RFC3339))
}

func detail(actorID, reason, link string, length time.Duration) string {
	out := ""
	if actorID != "" {
		out += "by=" + actorID + " "
	}
	if length > 0 {
		out += "length=" + utils.HumanizeDuration(length, 3) + " "
	}
	out += fmt.Sprintf("reason=%q", reason)
	if link != "" {
		out += " link=" + link
	}
	return out
}
