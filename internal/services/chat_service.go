package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatdesk/internal/metrics"
	"chatdesk/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReplyTask is the handle for one scheduled deferred reply. Cancellation is
// unused by the product today but the handle exists so timeouts can be added
// without reworking the pipeline.
type ReplyTask struct {
	ID        string
	SessionID string

	timer  *time.Timer
	done   chan struct{}
	forget func()

	mu       sync.Mutex
	canceled bool
}

// Cancel stops the deferred reply if it has not fired yet. Returns true when
// the reply was prevented. A canceled task is also dropped from the pending
// set.
func (t *ReplyTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return false
	}
	if t.timer.Stop() {
		t.canceled = true
		close(t.done)
		t.forget()
		return true
	}
	return false
}

// Done is closed once the deferred reply has completed (or was canceled).
func (t *ReplyTask) Done() <-chan struct{} {
	return t.done
}

func (t *ReplyTask) isCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// ChatService implements the two-phase send: a synchronous agent append
// followed by a deferred simulated visitor reply after a configurable
// latency. The deferred phase re-reads the session by id at fire time, so
// state that advanced in between is respected and a deleted session makes
// the reply a silent no-op.
type ChatService struct {
	db           *gorm.DB
	logger       *logrus.Logger
	ai           AIServiceInterface
	hub          *WebSocketHub
	replyLatency time.Duration

	mu      sync.Mutex
	pending map[string]*ReplyTask
}

func NewChatService(db *gorm.DB, logger *logrus.Logger, ai AIServiceInterface, replyLatency time.Duration) *ChatService {
	if logger == nil {
		logger = logrus.New()
	}
	if replyLatency <= 0 {
		replyLatency = 2500 * time.Millisecond
	}
	return &ChatService{
		db:           db,
		logger:       logger,
		ai:           ai,
		replyLatency: replyLatency,
		pending:      make(map[string]*ReplyTask),
	}
}

// SetHub injects the realtime hub (optional).
func (s *ChatService) SetHub(hub *WebSocketHub) {
	s.hub = hub
}

// ReplyLatency returns the configured deferred-reply delay.
func (s *ChatService) ReplyLatency() time.Duration {
	return s.replyLatency
}

// SendAgentMessage performs phase 1 synchronously: the agent message is
// appended and last-activity bumped before this returns, independent of any
// reply round trip. Phase 2 is scheduled and returned as a ReplyTask.
func (s *ChatService) SendAgentMessage(ctx context.Context, tenantID, sessionID, agentName, content string) (*models.Message, *ReplyTask, error) {
	if content == "" {
		return nil, nil, errors.New("empty message")
	}

	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, sessionID).
		First(&sess).Error
	if err != nil {
		return nil, nil, err
	}

	msg := &models.Message{
		SessionID:  sess.ID,
		Sender:     models.SenderAgent,
		SenderName: agentName,
		Content:    content,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, nil, fmt.Errorf("append agent message: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("id = ?", sess.ID).
		Updates(map[string]interface{}{
			"last_activity":  time.Now(),
			"typing_preview": "",
		}).Error; err != nil {
		return nil, nil, fmt.Errorf("bump session activity: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastMessage(sess.ID, *msg)
	}

	task := s.scheduleReply(sess.ID)
	return msg, task, nil
}

// scheduleReply arms phase 2. The task looks the session up by id at fire
// time rather than closing over the loaded record; overlapping sends each
// append to whatever the message list is at their own fire time.
func (s *ChatService) scheduleReply(sessionID string) *ReplyTask {
	task := &ReplyTask{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		done:      make(chan struct{}),
	}
	task.forget = func() { s.forget(task.ID) }

	// Registered before the timer is armed so a reply firing immediately
	// cannot outrun the bookkeeping.
	s.mu.Lock()
	s.pending[task.ID] = task
	s.mu.Unlock()

	task.timer = time.AfterFunc(s.replyLatency, func() {
		defer close(task.done)
		defer task.forget()
		s.deliverReply(sessionID)
	})
	return task
}

func (s *ChatService) forget(taskID string) {
	s.mu.Lock()
	delete(s.pending, taskID)
	s.mu.Unlock()
}

// PendingReplies reports how many deferred replies are armed.
func (s *ChatService) PendingReplies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// deliverReply is phase 2. A session deleted since scheduling makes this a
// no-op; it must never create an orphan session or panic the timer goroutine.
func (s *ChatService) deliverReply(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("messages.id ASC") }).
		Where("id = ?", sessionID).
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debugf("deferred reply dropped, session %s gone", sessionID)
		} else {
			s.logger.Warnf("deferred reply for session %s: %v", sessionID, err)
		}
		metrics.IncSimulatedReply("dropped")
		return
	}

	history := make([]ChatTurn, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		history = append(history, ChatTurn{Role: m.Sender, Content: m.Content})
	}

	res := s.ai.GenerateReply(ctx, history, 0.7)
	if !res.Usable() {
		s.logger.Errorf("deferred reply for session %s: %s", sessionID, res.Reason)
		metrics.IncSimulatedReply("dropped")
		return
	}
	if res.Status == StatusFallback {
		metrics.IncSimulatedReply("fallback")
	} else {
		metrics.IncSimulatedReply("ok")
	}

	msg := &models.Message{
		SessionID:  sess.ID,
		Sender:     models.SenderVisitor,
		SenderName: sess.VisitorName,
		Content:    res.Value,
	}
	if err := s.db.Create(msg).Error; err != nil {
		s.logger.Errorf("append deferred reply: %v", err)
		return
	}
	if err := s.db.Model(&models.ChatSession{}).
		Where("id = ?", sess.ID).
		Updates(map[string]interface{}{
			"last_activity": time.Now(),
			"unread":        gorm.Expr("unread + 1"),
		}).Error; err != nil {
		s.logger.Errorf("bump session after deferred reply: %v", err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastMessage(sess.ID, *msg)
	}
}
