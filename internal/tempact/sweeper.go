package tempact

import (
	"context"
	"time"

	"warden-mod/internal/storage"

	"go.uber.org/zap"
)

// Undoer reverses the platform side of an expired action (lift the ban,
// take the muted role away).
type Undoer interface {
	UndoTempAction(ctx context.Context, act storage.TempAction) error
}

// Sweeper is the background expiry process. Nothing waits on it; every
// pass is idempotent and races with live proposals resolve through the
// tracker's per-key locks.
type Sweeper struct {
	tracker  *Tracker
	undo     Undoer
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(tracker *Tracker, undo Undoer, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{tracker: tracker, undo: undo, interval: interval, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires every overdue action and returns how many it ended.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	expired := s.tracker.ListExpired()
	for _, act := range expired {
		if err := s.undo.UndoTempAction(ctx, act); err != nil {
			// Platform may already be in the target state (manual
			// unban); expire the record regardless.
			s.logger.Warn("undo failed on expiry",
				zap.String("guild_id", act.GuildID),
				zap.String("user_id", act.UserID),
				zap.String("kind", act.Kind),
				zap.Error(err))
		}
		s.tracker.Expire(ctx, act.GuildID, Kind(act.Kind), act.UserID)
	}
	return len(expired)
}
