package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"chatdesk/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Inbox sort modes.
const (
	SortRecent = "recent"
	SortUnread = "unread"
	SortTags   = "tags"
)

// ChannelAll disables channel filtering.
const ChannelAll = "all"

// InboxService owns the shared-inbox view: listing, filtering and ordering of
// chat sessions plus the session-level mutations the dashboard performs
// (mark read, status, tags).
type InboxService struct {
	db     *gorm.DB
	logger *logrus.Logger
	hub    *WebSocketHub
}

func NewInboxService(db *gorm.DB, logger *logrus.Logger) *InboxService {
	if logger == nil {
		logger = logrus.New()
	}
	return &InboxService{db: db, logger: logger}
}

// SetHub injects the realtime hub (optional).
func (s *InboxService) SetHub(hub *WebSocketHub) {
	s.hub = hub
}

// InboxListRequest are the query parameters of the inbox view.
type InboxListRequest struct {
	TenantID string `form:"-"`
	Search   string `form:"search"`
	Channel  string `form:"channel,default=all"`
	Sort     string `form:"sort,default=recent"`
}

// ListSessions loads a tenant's sessions with their messages and runs the
// filter/sort pipeline. An empty result is a valid state, returned as an
// empty (non-nil) slice.
func (s *InboxService) ListSessions(ctx context.Context, req *InboxListRequest) ([]models.ChatSession, error) {
	channel := req.Channel
	if channel == "" {
		channel = ChannelAll
	}
	mode := req.Sort
	if mode == "" {
		mode = SortRecent
	}

	var sessions []models.ChatSession
	q := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("messages.id ASC") }).
		Where("tenant_id = ?", req.TenantID)
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	filtered := FilterSessions(sessions, req.Search, channel)
	return SortSessions(filtered, mode), nil
}

// FilterSessions keeps sessions whose visitor name OR any message body
// contains the query (case-insensitive), AND whose channel matches the
// selected channel ("all" matches every channel). Both predicates must hold.
// Pure; the input slice is not modified.
func FilterSessions(sessions []models.ChatSession, query, channel string) []models.ChatSession {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]models.ChatSession, 0, len(sessions))
	for _, sess := range sessions {
		if channel != ChannelAll && sess.Channel != channel {
			continue
		}
		if query != "" && !matchesQuery(&sess, query) {
			continue
		}
		out = append(out, sess)
	}
	return out
}

func matchesQuery(sess *models.ChatSession, query string) bool {
	if strings.Contains(strings.ToLower(sess.VisitorName), query) {
		return true
	}
	for _, m := range sess.Messages {
		if strings.Contains(strings.ToLower(m.Content), query) {
			return true
		}
	}
	return false
}

// SortSessions orders a session list by the given mode:
//
//   - recent: descending last-activity
//   - unread: descending unread count, ties by descending last-activity
//   - tags:   tagged sessions before untagged; among tagged, ascending first
//     tag; ties by descending last-activity
//
// The sort is stable and idempotent: re-sorting its own output with the same
// mode yields the same order. Pure; returns a new slice.
func SortSessions(sessions []models.ChatSession, mode string) []models.ChatSession {
	out := make([]models.ChatSession, len(sessions))
	copy(out, sessions)

	byRecency := func(a, b *models.ChatSession) bool {
		return a.LastActivity.After(b.LastActivity)
	}

	switch mode {
	case SortUnread:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Unread != out[j].Unread {
				return out[i].Unread > out[j].Unread
			}
			return byRecency(&out[i], &out[j])
		})
	case SortTags:
		sort.SliceStable(out, func(i, j int) bool {
			ti, tj := out[i].TagList(), out[j].TagList()
			if (len(ti) > 0) != (len(tj) > 0) {
				return len(ti) > 0
			}
			if len(ti) > 0 && ti[0] != tj[0] {
				return ti[0] < tj[0]
			}
			return byRecency(&out[i], &out[j])
		})
	default: // recent
		sort.SliceStable(out, func(i, j int) bool {
			return byRecency(&out[i], &out[j])
		})
	}
	return out
}

// GetSession loads one session with its ordered message history.
func (s *InboxService) GetSession(ctx context.Context, tenantID, sessionID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("messages.id ASC") }).
		Where("tenant_id = ? AND id = ?", tenantID, sessionID).
		First(&sess).Error
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// StartSessionRequest creates a new conversation from the widget side.
type StartSessionRequest struct {
	TenantID    string `json:"-"`
	VisitorID   string `json:"visitor_id"`
	VisitorName string `json:"visitor_name"`
	Channel     string `json:"channel"`
	Message     string `json:"message"`
}

// StartSession creates a session (and its opening visitor message, when
// provided). Called when a visitor starts a conversation.
func (s *InboxService) StartSession(ctx context.Context, req *StartSessionRequest) (*models.ChatSession, error) {
	channel := req.Channel
	if channel == "" {
		channel = models.ChannelWeb
	}
	visitorID := req.VisitorID
	if visitorID == "" {
		visitorID = uuid.NewString()
	}
	name := strings.TrimSpace(req.VisitorName)
	if name == "" {
		suffix := visitorID
		if len(suffix) > 8 {
			suffix = suffix[:8]
		}
		name = "Visitor " + suffix
	}

	now := time.Now()
	sess := &models.ChatSession{
		ID:           uuid.NewString(),
		TenantID:     req.TenantID,
		VisitorID:    visitorID,
		VisitorName:  name,
		Channel:      channel,
		Status:       models.SessionOpen,
		LastActivity: now,
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if strings.TrimSpace(req.Message) != "" {
		if _, err := s.AppendVisitorMessage(ctx, sess.TenantID, sess.ID, req.Message); err != nil {
			return nil, err
		}
		return s.GetSession(ctx, sess.TenantID, sess.ID)
	}
	return sess, nil
}

// AppendVisitorMessage appends an inbound visitor message, bumps
// last-activity, increments the unread counter and clears any typing preview.
func (s *InboxService) AppendVisitorMessage(ctx context.Context, tenantID, sessionID, content string) (*models.Message, error) {
	sess, err := s.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		SessionID:  sess.ID,
		Sender:     models.SenderVisitor,
		SenderName: sess.VisitorName,
		Content:    content,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("append visitor message: %w", err)
	}

	updates := map[string]interface{}{
		"last_activity":  time.Now(),
		"unread":         gorm.Expr("unread + 1"),
		"typing_preview": "",
	}
	if err := s.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("id = ?", sess.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("bump session activity: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastMessage(sess.ID, *msg)
	}
	return msg, nil
}

// MarkRead resets the unread counter; called when an agent opens the session.
func (s *InboxService) MarkRead(ctx context.Context, tenantID, sessionID string) error {
	res := s.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("tenant_id = ? AND id = ?", tenantID, sessionID).
		Update("unread", 0)
	if res.Error != nil {
		return fmt.Errorf("mark read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	if s.hub != nil {
		s.hub.BroadcastRead(sessionID)
	}
	return nil
}

// UpdateStatus transitions a session between open/closed/snoozed.
func (s *InboxService) UpdateStatus(ctx context.Context, tenantID, sessionID, status string) error {
	switch status {
	case models.SessionOpen, models.SessionClosed, models.SessionSnoozed:
	default:
		return fmt.Errorf("invalid status %q", status)
	}
	res := s.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("tenant_id = ? AND id = ?", tenantID, sessionID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateTags replaces a session's tag set.
func (s *InboxService) UpdateTags(ctx context.Context, tenantID, sessionID string, tags []string) error {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	res := s.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("tenant_id = ? AND id = ?", tenantID, sessionID).
		Update("tags", strings.Join(cleaned, ","))
	if res.Error != nil {
		return fmt.Errorf("update tags: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetTypingPreview stores the visitor's live compose text and pushes it to
// dashboard clients. An empty preview clears the indicator.
func (s *InboxService) SetTypingPreview(ctx context.Context, tenantID, sessionID, preview string) error {
	res := s.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("tenant_id = ? AND id = ?", tenantID, sessionID).
		Update("typing_preview", preview)
	if res.Error != nil {
		return fmt.Errorf("set typing preview: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	if s.hub != nil {
		s.hub.BroadcastTyping(sessionID, preview)
	}
	return nil
}
