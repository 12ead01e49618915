package hierarchy

import (
	"testing"

	"warden-mod/internal/storage"
)

func member(rank int) Member {
	return Member{ID: "u", Resolved: true, TopRank: rank}
}

func TestCanActOnRank(t *testing.T) {
	if !CanActOn(member(5), member(3)) {
		t.Fatalf("higher rank should act on lower")
	}
	if CanActOn(member(3), member(5)) {
		t.Fatalf("lower rank should not act on higher")
	}
	if CanActOn(member(3), member(3)) {
		t.Fatalf("equal rank should not act")
	}
}

func TestCanActOnAdminAndOwner(t *testing.T) {
	admin := member(0)
	admin.IsAdmin = true
	if !CanActOn(admin, member(10)) {
		t.Fatalf("admin should act regardless of rank")
	}
	owner := member(0)
	owner.IsOwner = true
	if !CanActOn(owner, member(10)) {
		t.Fatalf("owner should act regardless of rank")
	}
}

func TestCanActOnFailsClosed(t *testing.T) {
	unresolved := Member{ID: "gone"}
	if CanActOn(unresolved, member(1)) {
		t.Fatalf("unresolved actor must be denied")
	}
	if CanActOn(member(9), unresolved) {
		t.Fatalf("unresolved target must be denied")
	}
}

func TestCanWarn(t *testing.T) {
	settings := storage.ModerationSettings{AbleToWarn: []string{"r-helper"}}

	banner := member(1)
	banner.CanBan = true
	if !CanWarn(banner, settings) {
		t.Fatalf("ban capability should allow warning")
	}

	helper := member(1)
	helper.RoleIDs = []string{"r-helper"}
	if !CanWarn(helper, settings) {
		t.Fatalf("authorized role should allow warning")
	}

	if CanWarn(member(1), settings) {
		t.Fatalf("plain member should not warn")
	}
	if CanWarn(Member{ID: "gone"}, settings) {
		t.Fatalf("unresolved actor should not warn")
	}
}

func TestExempt(t *testing.T) {
	settings := storage.ModerationSettings{CantBeWarned: []string{"r-staff"}}

	admin := member(1)
	admin.IsAdmin = true
	if !Exempt(admin, settings) {
		t.Fatalf("admin is always exempt")
	}

	staff := member(1)
	staff.RoleIDs = []string{"r-staff"}
	if !Exempt(staff, settings) {
		t.Fatalf("exempt role member is exempt")
	}

	if Exempt(member(1), settings) {
		t.Fatalf("plain member is not exempt")
	}
}

func TestNameFallback(t *testing.T) {
	m := Member{ID: "42"}
	if m.Name() != "user with ID:42" {
		t.Fatalf("unexpected fallback name %q", m.Name())
	}
	m.Username = "alice"
	if m.Name() != "alice" {
		t.Fatalf("unexpected name %q", m.Name())
	}
	m.Nickname = "al@ice"
	if m.Name() != "al@​ice" {
		t.Fatalf("expected ping-stripped nickname, got %q", m.Name())
	}
}
