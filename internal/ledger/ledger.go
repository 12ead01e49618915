package ledger

import (
	"context"
	"errors"

	"warden-mod/internal/modules/audit"
	"warden-mod/internal/storage"
	"warden-mod/internal/utils"
)

// ErrOutOfRange reports a 1-based infraction index outside [1, count].
var ErrOutOfRange = errors.New("infraction index out of range")

// Ledger is the per-guild, per-member warning record. Every mutation is
// durable before the call returns, and read-modify-write sequences are
// serialized per (guild, member).
type Ledger struct {
	store *storage.Store
	audit *audit.Logger
	locks *utils.KeyLock
}

func New(store *storage.Store, auditLogger *audit.Logger) *Ledger {
	return &Ledger{
		store: store,
		audit: auditLogger,
		locks: utils.NewKeyLock(),
	}
}

func (l *Ledger) Load(ctx context.Context, guildID, userID string) ([]storage.Infraction, error) {
	return l.store.ListInfractions(ctx, guildID, userID)
}

// Append adds an infraction to the end of the member's record and returns
// the resulting count and severity total.
func (l *Ledger) Append(ctx context.Context, inf storage.Infraction) (int, float64, error) {
	key := inf.GuildID + ":" + inf.UserID
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	if _, err := l.store.AddInfraction(ctx, inf); err != nil {
		return 0, 0, err
	}
	count, total, err := l.totals(ctx, inf.GuildID, inf.UserID)
	if err != nil {
		return 0, 0, err
	}
	l.audit.RecordWarn(ctx, inf.GuildID, inf.Moderator, inf.UserID, inf.Reason, inf.LogLink)
	return count, total, nil
}

// RemoveAt deletes the index-th infraction (1-based, creation order) and
// returns the removed record.
func (l *Ledger) RemoveAt(ctx context.Context, guildID, userID string, index int, actorID string) (storage.Infraction, error) {
	key := guildID + ":" + userID
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	infractions, err := l.store.ListInfractions(ctx, guildID, userID)
	if err != nil {
		return storage.Infraction{}, err
	}
	if index < 1 || index > len(infractions) {
		return storage.Infraction{}, ErrOutOfRange
	}
	removed := infractions[index-1]
	if err := l.store.DeleteInfraction(ctx, removed.ID); err != nil {
		return storage.Infraction{}, err
	}
	l.audit.RecordWarnRemoved(ctx, guildID, actorID, userID, removed.Reason)
	return removed, nil
}

// Totals returns the infraction count (for ordinal display) and the
// severity-weighted sum (for threshold policies layered on top).
func (l *Ledger) Totals(ctx context.Context, guildID, userID string) (int, float64, error) {
	key := guildID + ":" + userID
	l.locks.Lock(key)
	defer l.locks.Unlock(key)
	return l.totals(ctx, guildID, userID)
}

func (l *Ledger) totals(ctx context.Context, guildID, userID string) (int, float64, error) {
	infractions, err := l.store.ListInfractions(ctx, guildID, userID)
	if err != nil {
		return 0, 0, err
	}
	total := 0.0
	for _, inf := range infractions {
		total += inf.Size
	}
	return len(infractions), total, nil
}
