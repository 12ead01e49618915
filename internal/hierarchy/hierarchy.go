package hierarchy

import (
	"strings"

	"warden-mod/internal/storage"
)

// Member is a point-in-time snapshot of a guild member. ID is always set;
// everything else is only meaningful when Resolved is true (the member may
// have left the guild or never been cached).
type Member struct {
	ID       string
	Username string
	Nickname string
	Resolved bool
	RoleIDs  []string
	TopRank  int
	IsOwner  bool
	IsAdmin  bool
	CanKick  bool
	CanBan   bool
}

// Name degrades gracefully for members we only know by identity.
func (m Member) Name() string {
	if m.Nickname != "" {
		return stripPings(m.Nickname)
	}
	if m.Username != "" {
		return stripPings(m.Username)
	}
	return "user with ID:" + m.ID
}

func (m Member) Mention() string {
	if m.Username != "" || m.Resolved {
		return "<@" + m.ID + ">"
	}
	return "user with ID:" + m.ID
}

func (m Member) hasRole(roleIDs []string) bool {
	for _, want := range roleIDs {
		for _, have := range m.RoleIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

// CanActOn reports whether actor outranks target. Unresolved role sets
// fail closed.
func CanActOn(actor, target Member) bool {
	if !actor.Resolved || !target.Resolved {
		return false
	}
	if actor.IsOwner || actor.IsAdmin {
		return true
	}
	return actor.TopRank > target.TopRank
}

// CanWarn reports whether actor holds the warn privilege: administrator,
// the ban capability, or a role the guild marked as able to warn.
func CanWarn(actor Member, settings storage.ModerationSettings) bool {
	if !actor.Resolved {
		return false
	}
	if actor.IsOwner || actor.IsAdmin || actor.CanBan {
		return true
	}
	return actor.hasRole(settings.AbleToWarn)
}

// Exempt reports whether target can never be warned: administrators and
// members of a warn-exempt role, regardless of the actor's rank.
func Exempt(target Member, settings storage.ModerationSettings) bool {
	if !target.Resolved {
		return false
	}
	if target.IsAdmin || target.IsOwner {
		return true
	}
	return target.hasRole(settings.CantBeWarned)
}

func stripPings(s string) string {
	return strings.ReplaceAll(s, "@", "@​")
}
