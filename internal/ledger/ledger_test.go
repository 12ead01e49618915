package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"warden-mod/internal/modules/audit"
	"warden-mod/internal/storage"

	"go.uber.org/zap"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(store, audit.NewLogger(store, zap.NewNop()))
}

func warn(guildID, userID, reason string, size float64) storage.Infraction {
	return storage.Infraction{
		GuildID:   guildID,
		UserID:    userID,
		Size:      size,
		Reason:    reason,
		Moderator: "mod",
		CreatedAt: time.Unix(1700000000, 0),
	}
}

func TestAppendCountsAndSeverity(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	count, total, err := ledger.Append(ctx, warn("g1", "u1", "spam", 1))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if count != 1 || total != 1 {
		t.Fatalf("expected 1/1.0, got %d/%v", count, total)
	}

	count, total, err = ledger.Append(ctx, warn("g1", "u1", "worse spam", 2.5))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if count != 2 || total != 3.5 {
		t.Fatalf("expected 2/3.5, got %d/%v", count, total)
	}

	count, total, err = ledger.Totals(ctx, "g1", "u2")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if count != 0 || total != 0 {
		t.Fatalf("expected empty record for other member")
	}
}

func TestRemoveAtBounds(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	for _, reason := range []string{"a", "b", "c"} {
		if _, _, err := ledger.Append(ctx, warn("g1", "u1", reason, 1)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if _, err := ledger.RemoveAt(ctx, "g1", "u1", 0, "mod"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range for index 0, got %v", err)
	}
	if _, err := ledger.RemoveAt(ctx, "g1", "u1", 4, "mod"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range for index 4, got %v", err)
	}

	removed, err := ledger.RemoveAt(ctx, "g1", "u1", 2, "mod")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Reason != "b" {
		t.Fatalf("expected to remove b, got %q", removed.Reason)
	}

	infractions, err := ledger.Load(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(infractions) != 2 || infractions[0].Reason != "a" || infractions[1].Reason != "c" {
		t.Fatalf("expected order a,c after removal, got %+v", infractions)
	}
}

func TestLoadEmptyIsNotAbsence(t *testing.T) {
	ledger := newTestLedger(t)
	infractions, err := ledger.Load(context.Background(), "g1", "nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if infractions == nil {
		t.Fatalf("expected empty sequence, not nil")
	}
}
