package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"chatdesk/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newInboxTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.ChatSession{}, &models.Message{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func sessionFixture(id, name, channel, tags string, unread int, lastActivity time.Time, bodies ...string) models.ChatSession {
	msgs := make([]models.Message, 0, len(bodies))
	for _, b := range bodies {
		msgs = append(msgs, models.Message{SessionID: id, Sender: models.SenderVisitor, Content: b})
	}
	return models.ChatSession{
		ID:           id,
		TenantID:     models.DefaultTenantID,
		VisitorName:  name,
		Channel:      channel,
		Status:       models.SessionOpen,
		Unread:       unread,
		Tags:         tags,
		LastActivity: lastActivity,
		Messages:     msgs,
	}
}

func sessionIDs(sessions []models.ChatSession) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestFilterSessions(t *testing.T) {
	base := time.Now()
	sessions := []models.ChatSession{
		sessionFixture("s1", "Alice Johnson", models.ChannelWeb, "", 0, base, "hi there"),
		sessionFixture("s2", "Bob", models.ChannelWhatsApp, "", 0, base, "alice sent me"),
		sessionFixture("s3", "Carol", models.ChannelWeb, "", 0, base, "unrelated"),
	}

	tests := []struct {
		name    string
		query   string
		channel string
		want    []string
	}{
		{"no filters", "", ChannelAll, []string{"s1", "s2", "s3"}},
		{"name match case-insensitive", "ALICE", ChannelAll, []string{"s1", "s2"}},
		{"message body match", "unrelated", ChannelAll, []string{"s3"}},
		{"channel only", "", models.ChannelWhatsApp, []string{"s2"}},
		{"query and channel are ANDed", "alice", models.ChannelWeb, []string{"s1"}},
		{"no hits is a valid empty result", "zzz", ChannelAll, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterSessions(sessions, tt.query, tt.channel)
			if !reflect.DeepEqual(sessionIDs(got), tt.want) {
				t.Errorf("got %v, want %v", sessionIDs(got), tt.want)
			}
		})
	}
}

func TestFilterSessionsDoesNotMutateInput(t *testing.T) {
	sessions := []models.ChatSession{
		sessionFixture("s1", "Alice", models.ChannelWeb, "", 0, time.Now()),
		sessionFixture("s2", "Bob", models.ChannelWeb, "", 0, time.Now()),
	}
	before := sessionIDs(sessions)
	_ = FilterSessions(sessions, "bob", ChannelAll)
	if !reflect.DeepEqual(sessionIDs(sessions), before) {
		t.Error("input slice was reordered")
	}
}

func TestSortSessionsRecent(t *testing.T) {
	base := time.Now()
	sessions := []models.ChatSession{
		sessionFixture("t1", "A", models.ChannelWeb, "", 0, base.Add(-2*time.Hour)),
		sessionFixture("t2", "B", models.ChannelWeb, "", 0, base.Add(-3*time.Hour)),
		sessionFixture("t3", "C", models.ChannelWeb, "", 0, base.Add(-1*time.Hour)),
	}
	got := SortSessions(sessions, SortRecent)
	want := []string{"t3", "t1", "t2"}
	if !reflect.DeepEqual(sessionIDs(got), want) {
		t.Errorf("got %v, want %v", sessionIDs(got), want)
	}
}

func TestSortSessionsUnread(t *testing.T) {
	base := time.Now()
	sessions := []models.ChatSession{
		sessionFixture("u0", "A", models.ChannelWeb, "", 0, base),
		sessionFixture("u5", "B", models.ChannelWeb, "", 5, base.Add(-time.Hour)),
		sessionFixture("u3", "C", models.ChannelWeb, "", 3, base.Add(-2*time.Hour)),
	}
	got := SortSessions(sessions, SortUnread)
	want := []string{"u5", "u3", "u0"}
	if !reflect.DeepEqual(sessionIDs(got), want) {
		t.Errorf("got %v, want %v", sessionIDs(got), want)
	}
}

func TestSortSessionsUnreadTiesByRecency(t *testing.T) {
	base := time.Now()
	sessions := []models.ChatSession{
		sessionFixture("old", "A", models.ChannelWeb, "", 2, base.Add(-time.Hour)),
		sessionFixture("new", "B", models.ChannelWeb, "", 2, base),
	}
	got := SortSessions(sessions, SortUnread)
	if got[0].ID != "new" {
		t.Errorf("equal unread should order by recency, got %v", sessionIDs(got))
	}
}

func TestSortSessionsTags(t *testing.T) {
	base := time.Now()
	sessions := []models.ChatSession{
		sessionFixture("untagged", "A", models.ChannelWeb, "", 0, base),
		sessionFixture("b", "B", models.ChannelWeb, "billing", 0, base.Add(-time.Hour)),
		sessionFixture("a", "C", models.ChannelWeb, "abuse,billing", 0, base.Add(-2*time.Hour)),
	}
	got := SortSessions(sessions, SortTags)
	want := []string{"a", "b", "untagged"}
	if !reflect.DeepEqual(sessionIDs(got), want) {
		t.Errorf("got %v, want %v", sessionIDs(got), want)
	}
}

func TestSortSessionsIdempotent(t *testing.T) {
	base := time.Now()
	sessions := []models.ChatSession{
		sessionFixture("s1", "A", models.ChannelWeb, "b", 2, base.Add(-time.Hour)),
		sessionFixture("s2", "B", models.ChannelWeb, "", 5, base),
		sessionFixture("s3", "C", models.ChannelWeb, "a", 2, base.Add(-2*time.Hour)),
		sessionFixture("s4", "D", models.ChannelWeb, "a", 0, base.Add(-30*time.Minute)),
	}
	for _, mode := range []string{SortRecent, SortUnread, SortTags} {
		once := SortSessions(sessions, mode)
		twice := SortSessions(once, mode)
		if !reflect.DeepEqual(sessionIDs(once), sessionIDs(twice)) {
			t.Errorf("mode %s not idempotent: %v vs %v", mode, sessionIDs(once), sessionIDs(twice))
		}
	}
}

func TestListSessionsScopedToTenant(t *testing.T) {
	db := newInboxTestDB(t)
	svc := NewInboxService(db, nil)

	mine := sessionFixture("mine", "Alice", models.ChannelWeb, "", 0, time.Now())
	other := sessionFixture("other", "Bob", models.ChannelWeb, "", 0, time.Now())
	other.TenantID = "acme"
	db.Create(&mine)
	db.Create(&other)

	got, err := svc.ListSessions(context.Background(), &InboxListRequest{TenantID: models.DefaultTenantID})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mine" {
		t.Errorf("expected only the default tenant's session, got %v", sessionIDs(got))
	}
}

func TestStartSessionDefaults(t *testing.T) {
	db := newInboxTestDB(t)
	svc := NewInboxService(db, nil)

	sess, err := svc.StartSession(context.Background(), &StartSessionRequest{
		TenantID: models.DefaultTenantID,
		Message:  "need help with my order",
	})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if sess.Channel != models.ChannelWeb {
		t.Errorf("expected web channel default, got %q", sess.Channel)
	}
	if !strings.HasPrefix(sess.VisitorName, "Visitor ") {
		t.Errorf("expected generated visitor name, got %q", sess.VisitorName)
	}
	if sess.Status != models.SessionOpen {
		t.Errorf("expected open status, got %q", sess.Status)
	}
	if len(sess.Messages) != 1 || sess.Messages[0].Content != "need help with my order" {
		t.Fatalf("expected opening message, got %+v", sess.Messages)
	}
	if sess.Unread != 1 {
		t.Errorf("opening message should count unread, got %d", sess.Unread)
	}
}

func TestStartSessionShortVisitorID(t *testing.T) {
	db := newInboxTestDB(t)
	svc := NewInboxService(db, nil)

	// Widget-supplied ids can be any length; the generated display name must
	// cope with fewer than 8 characters.
	for _, visitorID := range []string{"abc", "a", ""} {
		sess, err := svc.StartSession(context.Background(), &StartSessionRequest{
			TenantID:  models.DefaultTenantID,
			VisitorID: visitorID,
		})
		if err != nil {
			t.Fatalf("StartSession with visitor_id %q failed: %v", visitorID, err)
		}
		if !strings.HasPrefix(sess.VisitorName, "Visitor ") {
			t.Errorf("expected generated visitor name, got %q", sess.VisitorName)
		}
		if visitorID != "" && sess.VisitorID != visitorID {
			t.Errorf("expected supplied visitor id kept, got %q", sess.VisitorID)
		}
	}
}

func TestAppendVisitorMessage(t *testing.T) {
	db := newInboxTestDB(t)
	svc := NewInboxService(db, nil)

	sess := sessionFixture("s1", "Alice", models.ChannelWeb, "", 0, time.Now().Add(-time.Hour))
	sess.TypingPreview = "I was about to say..."
	db.Create(&sess)

	msg, err := svc.AppendVisitorMessage(context.Background(), models.DefaultTenantID, "s1", "hello?")
	if err != nil {
		t.Fatalf("AppendVisitorMessage failed: %v", err)
	}
	if msg.Sender != models.SenderVisitor || msg.SenderName != "Alice" {
		t.Errorf("unexpected message attribution: %+v", msg)
	}

	var reloaded models.ChatSession
	db.First(&reloaded, "id = ?", "s1")
	if reloaded.Unread != 1 {
		t.Errorf("expected unread 1, got %d", reloaded.Unread)
	}
	if reloaded.TypingPreview != "" {
		t.Errorf("typing preview should clear on send, got %q", reloaded.TypingPreview)
	}
	if !reloaded.LastActivity.After(sess.LastActivity) {
		t.Error("last activity should advance")
	}
}

func TestMarkReadMissingSession(t *testing.T) {
	db := newInboxTestDB(t)
	svc := NewInboxService(db, nil)

	err := svc.MarkRead(context.Background(), models.DefaultTenantID, "nope")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMarkReadResetsUnread(t *testing.T) {
	db := newInboxTestDB(t)
	svc := NewInboxService(db, nil)

	sess := sessionFixture("s1", "Alice", models.ChannelWeb, "", 7, time.Now())
	db.Create(&sess)

	if err := svc.MarkRead(context.Background(), models.DefaultTenantID, "s1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	var reloaded models.ChatSession
	db.First(&reloaded, "id = ?", "s1")
	if reloaded.Unread != 0 {
		t.Errorf("expected unread 0, got %d", reloaded.Unread)
	}
}

func TestUpdateStatus(t *testing.T) {
	db := newInboxTestDB(t)
	svc := NewInboxService(db, nil)

	sess := sessionFixture("s1", "Alice", models.ChannelWeb, "", 0, time.Now())
	db.Create(&sess)

	if err := svc.UpdateStatus(context.Background(), models.DefaultTenantID, "s1", models.SessionClosed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := svc.UpdateStatus(context.Background(), models.DefaultTenantID, "s1", "archived"); err == nil {
		t.Error("expected invalid status to be rejected")
	}
}

func TestUpdateTags(t *testing.T) {
	db := newInboxTestDB(t)
	svc := NewInboxService(db, nil)

	sess := sessionFixture("s1", "Alice", models.ChannelWeb, "old", 0, time.Now())
	db.Create(&sess)

	err := svc.UpdateTags(context.Background(), models.DefaultTenantID, "s1", []string{" billing ", "", "vip"})
	if err != nil {
		t.Fatalf("UpdateTags failed: %v", err)
	}
	var reloaded models.ChatSession
	db.First(&reloaded, "id = ?", "s1")
	if !reflect.DeepEqual(reloaded.TagList(), []string{"billing", "vip"}) {
		t.Errorf("expected cleaned tags, got %v", reloaded.TagList())
	}
}
