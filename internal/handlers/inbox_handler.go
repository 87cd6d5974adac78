package handlers

import (
	"errors"
	"net/http"

	"chatdesk/internal/middleware"
	"chatdesk/internal/models"
	"chatdesk/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type InboxHandler struct {
	inbox   *services.InboxService
	chat    *services.ChatService
	tracker *services.TrackerService
}

func NewInboxHandler(inbox *services.InboxService, chat *services.ChatService, tracker *services.TrackerService) *InboxHandler {
	return &InboxHandler{inbox: inbox, chat: chat, tracker: tracker}
}

// ListSessions returns the tenant inbox after the filter and sort pipeline.
// Query params: search, channel (all|web|whatsapp|instagram|facebook),
// sort (recent|unread|tags).
func (h *InboxHandler) ListSessions(c *gin.Context) {
	var req services.InboxListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}
	req.TenantID = middleware.TenantID(c)

	sessions, err := h.inbox.ListSessions(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list sessions", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    sessions,
		"total":   len(sessions),
	})
}

func (h *InboxHandler) GetSession(c *gin.Context) {
	session, err := h.inbox.GetSession(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load session", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    session,
	})
}

func (h *InboxHandler) MarkRead(c *gin.Context) {
	err := h.inbox.MarkRead(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to mark read", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Session marked read"})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *InboxHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	tenantID := middleware.TenantID(c)
	sessionID := c.Param("id")

	if err := h.inbox.UpdateStatus(c.Request.Context(), tenantID, sessionID, req.Status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to update status", Message: err.Error()})
		return
	}
	// A closed conversation no longer tracks visitor activity.
	if req.Status == models.SessionClosed && h.tracker != nil {
		h.tracker.Stop(sessionID)
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Status updated"})
}

type updateTagsRequest struct {
	Tags []string `json:"tags"`
}

func (h *InboxHandler) UpdateTags(c *gin.Context) {
	var req updateTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	err := h.inbox.UpdateTags(c.Request.Context(), middleware.TenantID(c), c.Param("id"), req.Tags)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to update tags", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Tags updated"})
}

type sendMessageRequest struct {
	Content   string `json:"content" binding:"required"`
	AgentName string `json:"agent_name"`
}

// SendMessage appends an agent message and schedules the delayed visitor
// reply. The response returns immediately with the stored message.
func (h *InboxHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	agentName := req.AgentName
	if agentName == "" {
		if v, ok := c.Get(middleware.CtxUserID); ok {
			agentName, _ = v.(string)
		}
	}

	msg, task, err := h.chat.SendAgentMessage(c.Request.Context(), middleware.TenantID(c), c.Param("id"), agentName, req.Content)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to send message", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":        true,
		"data":           msg,
		"reply_task_id":  task.ID,
		"reply_delay_ms": h.chat.ReplyLatency().Milliseconds(),
	})
}

// Activity exposes the live visitor snapshot for the conversation detail
// panel. 404 means tracking was never started or already torn down.
func (h *InboxHandler) Activity(c *gin.Context) {
	snap, ok := h.tracker.Snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No activity", Message: "session is not being tracked"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    snap,
	})
}

func RegisterInboxRoutes(r *gin.RouterGroup, handler *InboxHandler) {
	sessions := r.Group("/sessions")
	{
		sessions.GET("", handler.ListSessions)
		sessions.GET("/:id", handler.GetSession)
		sessions.POST("/:id/read", handler.MarkRead)
		sessions.PUT("/:id/status", handler.UpdateStatus)
		sessions.PUT("/:id/tags", handler.UpdateTags)
		sessions.POST("/:id/messages", handler.SendMessage)
		sessions.GET("/:id/activity", handler.Activity)
	}
}
