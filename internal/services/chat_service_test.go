package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatdesk/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubAI returns canned results and records the history it was handed.
type stubAI struct {
	mu      sync.Mutex
	result  CallResult
	history [][]ChatTurn
}

func (s *stubAI) GenerateReply(_ context.Context, history []ChatTurn, _ float64) CallResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, history)
	return s.result
}

func (s *stubAI) Suggest(_ context.Context, history []ChatTurn, _, _ string, _ float64) CallResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, history)
	return s.result
}

func (s *stubAI) Status() map[string]interface{} {
	return map[string]interface{}{"provider": "stub"}
}

func (s *stubAI) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func newChatTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.ChatSession{}, &models.Message{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func seedChatSession(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	sess := models.ChatSession{
		ID:           id,
		TenantID:     models.DefaultTenantID,
		VisitorName:  "Alice",
		Channel:      models.ChannelWeb,
		Status:       models.SessionOpen,
		LastActivity: time.Now().Add(-time.Hour),
	}
	if err := db.Create(&sess).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func messagesFor(t *testing.T, db *gorm.DB, sessionID string) []models.Message {
	t.Helper()
	var msgs []models.Message
	if err := db.Where("session_id = ?", sessionID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("load messages: %v", err)
	}
	return msgs
}

func TestSendAgentMessageAppendsImmediately(t *testing.T) {
	db := newChatTestDB(t)
	seedChatSession(t, db, "s1")
	ai := &stubAI{result: Ok("sure!")}
	svc := NewChatService(db, nil, ai, time.Hour) // latency long enough to never fire

	msg, task, err := svc.SendAgentMessage(context.Background(), models.DefaultTenantID, "s1", "Dana", "How can I help?")
	if err != nil {
		t.Fatalf("SendAgentMessage failed: %v", err)
	}
	if task == nil || task.SessionID != "s1" {
		t.Fatalf("expected a reply task for s1, got %+v", task)
	}

	// Phase 1 is visible before any reply round trip.
	msgs := messagesFor(t, db, "s1")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.ID != msg.ID || last.Sender != models.SenderAgent || last.SenderName != "Dana" {
		t.Errorf("unexpected appended message: %+v", last)
	}
	if ai.calls() != 0 {
		t.Error("reply generator must not be called synchronously")
	}
	if svc.PendingReplies() != 1 {
		t.Errorf("expected 1 pending reply, got %d", svc.PendingReplies())
	}
	task.Cancel()
}

func TestDeferredReplyAppendsVisitorMessage(t *testing.T) {
	db := newChatTestDB(t)
	seedChatSession(t, db, "s1")
	ai := &stubAI{result: Ok("thanks, that fixed it")}
	svc := NewChatService(db, nil, ai, 10*time.Millisecond)

	_, task, err := svc.SendAgentMessage(context.Background(), models.DefaultTenantID, "s1", "Dana", "try turning it off and on")
	if err != nil {
		t.Fatalf("SendAgentMessage failed: %v", err)
	}

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("deferred reply did not fire")
	}

	msgs := messagesFor(t, db, "s1")
	if len(msgs) != 2 {
		t.Fatalf("expected agent + visitor message, got %d", len(msgs))
	}
	reply := msgs[1]
	if reply.Sender != models.SenderVisitor || reply.Content != "thanks, that fixed it" {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if reply.SenderName != "Alice" {
		t.Errorf("reply should carry the visitor name, got %q", reply.SenderName)
	}

	var sess models.ChatSession
	db.First(&sess, "id = ?", "s1")
	if sess.Unread != 1 {
		t.Errorf("deferred reply should increment unread, got %d", sess.Unread)
	}
	if svc.PendingReplies() != 0 {
		t.Errorf("task should be forgotten after firing, %d pending", svc.PendingReplies())
	}
}

func TestDeferredReplyDeletedSessionIsNoop(t *testing.T) {
	db := newChatTestDB(t)
	seedChatSession(t, db, "s1")
	ai := &stubAI{result: Ok("hello?")}
	svc := NewChatService(db, nil, ai, 200*time.Millisecond)

	_, task, err := svc.SendAgentMessage(context.Background(), models.DefaultTenantID, "s1", "Dana", "anyone there?")
	if err != nil {
		t.Fatalf("SendAgentMessage failed: %v", err)
	}

	// Delete the session (and its messages) before the reply fires.
	if err := db.Where("session_id = ?", "s1").Delete(&models.Message{}).Error; err != nil {
		t.Fatalf("delete messages: %v", err)
	}
	if err := db.Delete(&models.ChatSession{}, "id = ?", "s1").Error; err != nil {
		t.Fatalf("delete session: %v", err)
	}

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("deferred reply did not resolve")
	}

	if ai.calls() != 0 {
		t.Error("reply generator must not run for a deleted session")
	}
	var count int64
	db.Model(&models.Message{}).Count(&count)
	if count != 0 {
		t.Errorf("no orphan messages expected, found %d", count)
	}
	var sessions int64
	db.Model(&models.ChatSession{}).Count(&sessions)
	if sessions != 0 {
		t.Errorf("no session should be recreated, found %d", sessions)
	}
}

func TestReplyTaskCancel(t *testing.T) {
	db := newChatTestDB(t)
	seedChatSession(t, db, "s1")
	ai := &stubAI{result: Ok("too late")}
	svc := NewChatService(db, nil, ai, 50*time.Millisecond)

	_, task, err := svc.SendAgentMessage(context.Background(), models.DefaultTenantID, "s1", "Dana", "hold on")
	if err != nil {
		t.Fatalf("SendAgentMessage failed: %v", err)
	}
	if !task.Cancel() {
		t.Fatal("expected Cancel to prevent the reply")
	}
	if task.Cancel() {
		t.Error("second Cancel should report false")
	}

	select {
	case <-task.Done():
	default:
		t.Error("Done should be closed after cancel")
	}
	if got := svc.PendingReplies(); got != 0 {
		t.Errorf("canceled task must leave the pending set, got %d", got)
	}

	time.Sleep(120 * time.Millisecond)
	if ai.calls() != 0 {
		t.Error("canceled reply must not reach the generator")
	}
	if got := len(messagesFor(t, db, "s1")); got != 1 {
		t.Errorf("expected only the agent message, got %d", got)
	}
}

func TestOverlappingSendsEachGetAReply(t *testing.T) {
	db := newChatTestDB(t)
	seedChatSession(t, db, "s1")
	ai := &stubAI{result: Ok("ack")}
	svc := NewChatService(db, nil, ai, 10*time.Millisecond)

	_, task1, err := svc.SendAgentMessage(context.Background(), models.DefaultTenantID, "s1", "Dana", "first")
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	_, task2, err := svc.SendAgentMessage(context.Background(), models.DefaultTenantID, "s1", "Dana", "second")
	if err != nil {
		t.Fatalf("second send: %v", err)
	}

	for _, task := range []*ReplyTask{task1, task2} {
		select {
		case <-task.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("reply did not fire")
		}
	}

	msgs := messagesFor(t, db, "s1")
	if len(msgs) != 4 {
		t.Fatalf("expected 2 agent + 2 visitor messages, got %d", len(msgs))
	}
	// Each deferred reply re-read the session at its own fire time, so the
	// second one saw the first reply in its history.
	if ai.calls() != 2 {
		t.Errorf("expected 2 generator calls, got %d", ai.calls())
	}
}

func TestDeferredReplyFallbackStillDelivered(t *testing.T) {
	db := newChatTestDB(t)
	seedChatSession(t, db, "s1")
	ai := &stubAI{result: Fallback("An agent will be right with you.", "api key not configured")}
	svc := NewChatService(db, nil, ai, 10*time.Millisecond)

	_, task, err := svc.SendAgentMessage(context.Background(), models.DefaultTenantID, "s1", "Dana", "hello")
	if err != nil {
		t.Fatalf("SendAgentMessage failed: %v", err)
	}
	<-task.Done()

	msgs := messagesFor(t, db, "s1")
	if len(msgs) != 2 || msgs[1].Content != "An agent will be right with you." {
		t.Fatalf("fallback reply should still be appended, got %+v", msgs)
	}
}
