package automod

import (
	"context"
	"strings"
	"sync"
	"time"

	"warden-mod/internal/ledger"
	"warden-mod/internal/modules/audit"
	"warden-mod/internal/storage"
	"warden-mod/internal/utils"
)

type Config struct {
	Enabled       bool
	BurstMessages int
	BurstWindow   time.Duration
	BlockInvites  bool
	BannedWords   []string
}

// Verdict describes what the filter wants done with a message. A zero
// WarnSize means notice only.
type Verdict struct {
	Reason   string
	WarnSize float64
	Delete   bool
}

// Module is the automatic filter: message bursts, invite links, and
// banned words earn a bot-issued warning. Exemptions are the caller's
// job; the module only judges content.
type Module struct {
	mu      sync.Mutex
	windows map[string]*utils.SlidingWindow
	cfg     Config
	ledger  *ledger.Ledger
	audit   *audit.Logger
}

func New(cfg Config, warnLedger *ledger.Ledger, auditLogger *audit.Logger) *Module {
	if cfg.BurstMessages <= 0 {
		cfg.BurstMessages = 6
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = 8 * time.Second
	}
	return &Module{
		windows: make(map[string]*utils.SlidingWindow),
		cfg:     cfg,
		ledger:  warnLedger,
		audit:   auditLogger,
	}
}

// Check judges a message. It records nothing; call Punish with the
// verdict once the caller has confirmed the author is not exempt.
func (m *Module) Check(guildID, userID, content string) (Verdict, bool) {
	if !m.cfg.Enabled {
		return Verdict{}, false
	}

	if m.cfg.BlockInvites && len(utils.ExtractInvites(content)) > 0 {
		return Verdict{Reason: "Posted an invite link", WarnSize: 0.5, Delete: true}, true
	}

	lowered := strings.ToLower(content)
	for _, word := range m.cfg.BannedWords {
		if word == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(word)) {
			return Verdict{Reason: "Use of a banned word", WarnSize: 0.5, Delete: true}, true
		}
	}

	count := m.window(guildID + ":" + userID).Add(time.Now())
	if count >= m.cfg.BurstMessages {
		return Verdict{Reason: "Sending messages too fast", WarnSize: 1, Delete: false}, true
	}
	return Verdict{}, false
}

// Punish records the automatic warning under the bot's identity.
func (m *Module) Punish(ctx context.Context, guildID, userID, botID, logLink string, verdict Verdict) (int, error) {
	if verdict.WarnSize <= 0 {
		return 0, nil
	}
	count, _, err := m.ledger.Append(ctx, storage.Infraction{
		GuildID:   guildID,
		UserID:    userID,
		Size:      verdict.WarnSize,
		Reason:    verdict.Reason,
		LogLink:   logLink,
		Moderator: botID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return 0, err
	}
	m.audit.Log(ctx, audit.LevelInfo, guildID, userID, "automod", verdict.Reason)
	return count, nil
}

func (m *Module) window(key string) *utils.SlidingWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := m.windows[key]
	if window == nil {
		window = utils.NewSlidingWindow(m.cfg.BurstWindow)
		m.windows[key] = window
	}
	return window
}
