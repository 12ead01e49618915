package tempact

import (
	"context"
	"sync"
	"time"

	"warden-mod/internal/confirm"
	"warden-mod/internal/modules/audit"
	"warden-mod/internal/storage"
	"warden-mod/internal/utils"

	"go.uber.org/zap"
)

type Kind string

const (
	KindMute Kind = "mute"
	KindBan  Kind = "ban"
)

type RejectKind int

const (
	RejectNone RejectKind = iota
	RejectInvalidDuration
	RejectDurationTooLong
	RejectRequiresAdminToShorten
	RejectCancelled
	RejectTimedOut
	RejectAlreadyActive
	RejectApplyFailed
)

type Result struct {
	OK       bool
	Kind     RejectKind
	Act      storage.TempAction
	Existing storage.TempAction
	Err      error
}

type Request struct {
	GuildID       string
	Kind          Kind
	UserID        string
	Length        time.Duration
	Reason        string
	Moderator     string
	ActorIsAdmin  bool
	MaxTempAction time.Duration
}

// ConfirmFunc asks the acting moderator to approve replacing the existing
// action. It runs with this key's lock released, so a pending human reply
// never blocks expiry or other proposals.
type ConfirmFunc func(existing storage.TempAction, remaining time.Duration) confirm.Outcome

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Tracker owns the active timed punishments per guild. Invariant: at most
// one active action per (guild, kind, member); every check-then-act
// sequence against a key is serialized through a per-key lock.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]storage.TempAction
	locks   *utils.KeyLock
	store   *storage.Store
	audit   *audit.Logger
	clock   Clock
	logger  *zap.Logger
}

func New(store *storage.Store, auditLogger *audit.Logger, logger *zap.Logger) *Tracker {
	return &Tracker{
		entries: make(map[string]storage.TempAction),
		locks:   utils.NewKeyLock(),
		store:   store,
		audit:   auditLogger,
		clock:   realClock{},
		logger:  logger,
	}
}

func (t *Tracker) WithClock(clock Clock) {
	t.clock = clock
}

func key(guildID string, kind Kind, userID string) string {
	return guildID + ":" + string(kind) + ":" + userID
}

// Hydrate loads persisted actions after a restart.
func (t *Tracker) Hydrate(ctx context.Context) error {
	actions, err := t.store.ListTempActions(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, act := range actions {
		t.entries[key(act.GuildID, Kind(act.Kind), act.UserID)] = act
	}
	return nil
}

func (t *Tracker) FindActive(guildID string, kind Kind, userID string) (storage.TempAction, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	act, ok := t.entries[key(guildID, kind, userID)]
	return act, ok
}

// Propose runs the full policy for a new timed action. apply performs the
// platform side effect once the slot is clear; it runs before the record
// is stored so a platform failure leaves nothing tracked.
func (t *Tracker) Propose(ctx context.Context, req Request, confirmFn ConfirmFunc, apply func(storage.TempAction) error) Result {
	if req.Length < time.Minute {
		return Result{Kind: RejectInvalidDuration}
	}
	if !req.ActorIsAdmin && req.MaxTempAction > 0 && req.Length > req.MaxTempAction {
		return Result{Kind: RejectDurationTooLong}
	}

	k := key(req.GuildID, req.Kind, req.UserID)
	t.locks.Lock(k)
	locked := true
	defer func() {
		if locked {
			t.locks.Unlock(k)
		}
	}()

	if existing, ok := t.lookup(k); ok {
		remaining := existing.Length - t.clock.Now().Sub(existing.StartedAt)
		if !req.ActorIsAdmin && remaining >= req.Length {
			return Result{Kind: RejectRequiresAdminToShorten, Existing: existing}
		}
		if confirmFn == nil {
			return Result{Kind: RejectAlreadyActive, Existing: existing}
		}

		t.locks.Unlock(k)
		locked = false
		outcome := confirmFn(existing, remaining)
		t.locks.Lock(k)
		locked = true

		switch outcome {
		case confirm.Confirmed:
		case confirm.TimedOut:
			return Result{Kind: RejectTimedOut, Existing: existing}
		default:
			return Result{Kind: RejectCancelled, Existing: existing}
		}

		// State may have moved while the moderator was deciding. A
		// vanished record means expiry won the race: proceed to create.
		// A different record means someone else replaced it; the
		// confirmation we got no longer refers to it, so cancel.
		if current, ok := t.lookup(k); ok {
			if !sameAction(current, existing) {
				return Result{Kind: RejectCancelled, Existing: current}
			}
			t.removeLocked(ctx, k, current)
		}
	}

	act := storage.TempAction{
		GuildID:   req.GuildID,
		Kind:      string(req.Kind),
		UserID:    req.UserID,
		Moderator: req.Moderator,
		Reason:    req.Reason,
		Length:    req.Length,
		StartedAt: t.clock.Now(),
	}
	if apply != nil {
		if err := apply(act); err != nil {
			return Result{Kind: RejectApplyFailed, Err: err}
		}
	}

	t.mu.Lock()
	t.entries[k] = act
	t.mu.Unlock()
	if err := t.store.AddTempAction(ctx, act); err != nil {
		t.logger.Error("temp action persist failed", zap.String("key", k), zap.Error(err))
	}
	return Result{OK: true, Act: act}
}

// Expire removes the record once its deadline has passed. Safe to call on
// an already-removed key, and safe to race with proposals: the deadline is
// re-checked under the key lock so a freshly replaced record survives.
func (t *Tracker) Expire(ctx context.Context, guildID string, kind Kind, userID string) {
	k := key(guildID, kind, userID)
	t.locks.Lock(k)
	defer t.locks.Unlock(k)

	act, ok := t.lookup(k)
	if !ok {
		return
	}
	if t.clock.Now().Sub(act.StartedAt) < act.Length {
		return
	}
	t.removeLocked(ctx, k, act)
	t.audit.RecordTempActionEnded(ctx, act.GuildID, act.UserID, act.Kind, act.Reason, act.Length)
}

// RemoveEarly is the manual reversal. A missing record is treated as
// already expired.
func (t *Tracker) RemoveEarly(ctx context.Context, guildID string, kind Kind, userID string, when time.Time) bool {
	k := key(guildID, kind, userID)
	t.locks.Lock(k)
	defer t.locks.Unlock(k)

	act, ok := t.lookup(k)
	if !ok {
		return false
	}
	t.removeLocked(ctx, k, act)
	t.audit.RecordManualEnd(ctx, guildID, userID, string(kind), when)
	return true
}

// ListExpired snapshots the records whose deadline has passed.
func (t *Tracker) ListExpired() []storage.TempAction {
	now := t.clock.Now()
	t.mu.RLock()
	defer t.mu.RUnlock()

	var expired []storage.TempAction
	for _, act := range t.entries {
		if now.Sub(act.StartedAt) >= act.Length {
			expired = append(expired, act)
		}
	}
	return expired
}

// PurgeGuild drops in-memory state for a guild the bot left.
func (t *Tracker) PurgeGuild(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, act := range t.entries {
		if act.GuildID == guildID {
			delete(t.entries, k)
		}
	}
}

func (t *Tracker) lookup(k string) (storage.TempAction, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	act, ok := t.entries[k]
	return act, ok
}

func (t *Tracker) removeLocked(ctx context.Context, k string, act storage.TempAction) {
	t.mu.Lock()
	delete(t.entries, k)
	t.mu.Unlock()
	if err := t.store.RemoveTempAction(ctx, act.GuildID, act.Kind, act.UserID); err != nil {
		t.logger.Error("temp action remove failed", zap.String("key", k), zap.Error(err))
	}
}

func sameAction(a, b storage.TempAction) bool {
	return a.StartedAt.Equal(b.StartedAt) && a.Moderator == b.Moderator && a.Length == b.Length
}
