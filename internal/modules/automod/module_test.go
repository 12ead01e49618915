package automod

import (
	"context"
	"testing"
	"time"

	"warden-mod/internal/ledger"
	"warden-mod/internal/modules/audit"
	"warden-mod/internal/storage"

	"go.uber.org/zap"
)

func newTestModule(t *testing.T, cfg Config) (*Module, *storage.Store) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	auditLogger := audit.NewLogger(store, zap.NewNop())
	return New(cfg, ledger.New(store, auditLogger), auditLogger), store
}

func TestCheckInviteLink(t *testing.T) {
	module, _ := newTestModule(t, Config{Enabled: true, BlockInvites: true})

	verdict, flagged := module.Check("g1", "u1", "join us at https://discord.gg/abc123")
	if !flagged || !verdict.Delete {
		t.Fatalf("expected invite to be flagged for deletion, got %+v flagged=%v", verdict, flagged)
	}

	if _, flagged := module.Check("g1", "u1", "plain message"); flagged {
		t.Fatalf("plain message should pass")
	}
}

func TestCheckBannedWord(t *testing.T) {
	module, _ := newTestModule(t, Config{Enabled: true, BannedWords: []string{"Heck"}})

	if _, flagged := module.Check("g1", "u1", "what the heck"); !flagged {
		t.Fatalf("expected banned word match to be case insensitive")
	}
}

func TestCheckMessageBurst(t *testing.T) {
	module, _ := newTestModule(t, Config{Enabled: true, BurstMessages: 3, BurstWindow: 2 * time.Second})

	for i := 0; i < 2; i++ {
		if _, flagged := module.Check("g1", "u1", "hi"); flagged {
			t.Fatalf("message %d should pass", i+1)
		}
	}
	if _, flagged := module.Check("g1", "u1", "hi"); !flagged {
		t.Fatalf("third message inside the window should be flagged")
	}
	if _, flagged := module.Check("g1", "u2", "hi"); flagged {
		t.Fatalf("other members are counted separately")
	}
}

func TestCheckDisabled(t *testing.T) {
	module, _ := newTestModule(t, Config{Enabled: false, BlockInvites: true})
	if _, flagged := module.Check("g1", "u1", "https://discord.gg/abc123"); flagged {
		t.Fatalf("disabled module should never flag")
	}
}

func TestPunishRecordsWarn(t *testing.T) {
	module, store := newTestModule(t, Config{Enabled: true})
	ctx := context.Background()

	count, err := module.Punish(ctx, "g1", "u1", "bot", "", Verdict{Reason: "Posted an invite link", WarnSize: 0.5})
	if err != nil {
		t.Fatalf("punish: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected first infraction, got %d", count)
	}

	infractions, err := store.ListInfractions(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("list infractions: %v", err)
	}
	if len(infractions) != 1 || infractions[0].Moderator != "bot" || infractions[0].Size != 0.5 {
		t.Fatalf("unexpected infraction %+v", infractions)
	}
}
