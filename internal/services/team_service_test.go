package services

import (
	"context"
	"testing"

	"chatdesk/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTeamTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.TeamMember{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func TestInvite(t *testing.T) {
	db := newTeamTestDB(t)
	svc := NewTeamService(db, nil)

	member, err := svc.Invite(context.Background(), "acme", &InviteRequest{
		Name:  "Dana",
		Email: "Dana@Example.COM",
	})
	if err != nil {
		t.Fatalf("Invite failed: %v", err)
	}
	if member.Email != "dana@example.com" {
		t.Errorf("email should be lowercased, got %q", member.Email)
	}
	if member.Role != "agent" {
		t.Errorf("default role should be agent, got %q", member.Role)
	}
	if member.Status != "invited" {
		t.Errorf("new members start invited, got %q", member.Status)
	}

	// Same email again is rejected, case-insensitively.
	if _, err := svc.Invite(context.Background(), "acme", &InviteRequest{Email: "dana@example.com"}); err == nil {
		t.Error("expected duplicate invite to fail")
	}
	// But the same email in another tenant is fine.
	if _, err := svc.Invite(context.Background(), "globex", &InviteRequest{Email: "dana@example.com"}); err != nil {
		t.Errorf("cross-tenant invite should succeed: %v", err)
	}
}

func TestInviteInvalidRole(t *testing.T) {
	db := newTeamTestDB(t)
	svc := NewTeamService(db, nil)

	if _, err := svc.Invite(context.Background(), "acme", &InviteRequest{Email: "x@y.z", Role: "superuser"}); err == nil {
		t.Error("expected invalid role to be rejected")
	}
}

func TestListOrdersOwnersFirst(t *testing.T) {
	db := newTeamTestDB(t)
	svc := NewTeamService(db, nil)

	svc.Invite(context.Background(), "acme", &InviteRequest{Name: "Zoe", Email: "zoe@x.y", Role: "agent"})
	svc.Invite(context.Background(), "acme", &InviteRequest{Name: "Amy", Email: "amy@x.y", Role: "owner"})
	svc.Invite(context.Background(), "acme", &InviteRequest{Name: "Bob", Email: "bob@x.y", Role: "admin"})

	members, err := svc.List(context.Background(), "acme")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := []string{members[0].Name, members[1].Name, members[2].Name}
	want := []string{"Amy", "Bob", "Zoe"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestUpdateRoleLastOwnerProtected(t *testing.T) {
	db := newTeamTestDB(t)
	svc := NewTeamService(db, nil)

	owner, _ := svc.Invite(context.Background(), "acme", &InviteRequest{Name: "Amy", Email: "amy@x.y", Role: "owner"})

	if _, err := svc.UpdateRole(context.Background(), "acme", owner.ID, "agent"); err == nil {
		t.Fatal("demoting the last owner must fail")
	}

	// With a second owner the demotion goes through.
	svc.Invite(context.Background(), "acme", &InviteRequest{Name: "Bob", Email: "bob@x.y", Role: "owner"})
	updated, err := svc.UpdateRole(context.Background(), "acme", owner.ID, "agent")
	if err != nil {
		t.Fatalf("UpdateRole failed: %v", err)
	}
	if updated.Role != "agent" {
		t.Errorf("expected agent, got %q", updated.Role)
	}
}

func TestRemove(t *testing.T) {
	db := newTeamTestDB(t)
	svc := NewTeamService(db, nil)

	owner, _ := svc.Invite(context.Background(), "acme", &InviteRequest{Name: "Amy", Email: "amy@x.y", Role: "owner"})
	agent, _ := svc.Invite(context.Background(), "acme", &InviteRequest{Name: "Zoe", Email: "zoe@x.y"})

	if err := svc.Remove(context.Background(), "acme", owner.ID); err == nil {
		t.Error("owners cannot be removed directly")
	}
	if err := svc.Remove(context.Background(), "acme", agent.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	members, _ := svc.List(context.Background(), "acme")
	if len(members) != 1 {
		t.Errorf("expected 1 remaining member, got %d", len(members))
	}
}
