package handlers

import (
	"errors"
	"net/http"

	"chatdesk/internal/config"
	"chatdesk/internal/models"
	"chatdesk/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// VisitorHandler serves the unauthenticated endpoints the embedded widget
// talks to. Every route resolves the tenant through the widget key, never
// through a claim.
type VisitorHandler struct {
	inbox   *services.InboxService
	widget  *services.WidgetService
	tracker *services.TrackerService
	cfg     *config.Config
}

func NewVisitorHandler(inbox *services.InboxService, widget *services.WidgetService, tracker *services.TrackerService, cfg *config.Config) *VisitorHandler {
	return &VisitorHandler{inbox: inbox, widget: widget, tracker: tracker, cfg: cfg}
}

// resolveConfig looks up the widget configuration for the key query param.
// A missing or unknown key is a 401, the widget should stop retrying.
func (h *VisitorHandler) resolveConfig(c *gin.Context) (*models.WidgetConfig, bool) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Message: "widget key is required"})
		return nil, false
	}
	cfg, err := h.widget.GetConfigByKey(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Message: "unknown widget key"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to resolve widget", Message: err.Error()})
		return nil, false
	}
	return cfg, true
}

// Bootstrap hands the widget its runtime settings in camelCase.
func (h *VisitorHandler) Bootstrap(c *gin.Context) {
	cfg, ok := h.resolveConfig(c)
	if !ok {
		return
	}
	data, err := services.BootstrapConfig(h.cfg.Server.BaseURL, cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to build bootstrap", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

type startSessionBody struct {
	VisitorID   string `json:"visitor_id"`
	VisitorName string `json:"visitor_name"`
	Channel     string `json:"channel"`
	Message     string `json:"message"`
}

// StartSession opens a conversation and begins tracking the visitor with the
// dimensions the tenant enabled.
func (h *VisitorHandler) StartSession(c *gin.Context) {
	cfg, ok := h.resolveConfig(c)
	if !ok {
		return
	}
	var body startSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	session, err := h.inbox.StartSession(c.Request.Context(), &services.StartSessionRequest{
		TenantID:    cfg.TenantID,
		VisitorID:   body.VisitorID,
		VisitorName: body.VisitorName,
		Channel:     body.Channel,
		Message:     body.Message,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to start session", Message: err.Error()})
		return
	}

	h.tracker.Start(session.ID, services.TrackingOptionsFor(cfg))

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    session,
	})
}

type visitorMessageBody struct {
	Content string `json:"content" binding:"required"`
}

func (h *VisitorHandler) SendMessage(c *gin.Context) {
	cfg, ok := h.resolveConfig(c)
	if !ok {
		return
	}
	var body visitorMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	msg, err := h.inbox.AppendVisitorMessage(c.Request.Context(), cfg.TenantID, c.Param("id"), body.Content)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to send message", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    msg,
	})
}

type typingBody struct {
	Preview string `json:"preview"`
}

// Typing mirrors the visitor's draft into the agent dashboard.
func (h *VisitorHandler) Typing(c *gin.Context) {
	cfg, ok := h.resolveConfig(c)
	if !ok {
		return
	}
	var body typingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	err := h.inbox.SetTypingPreview(c.Request.Context(), cfg.TenantID, c.Param("id"), body.Preview)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to record typing", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "ok"})
}

type trackEventBody struct {
	Events []services.TrackingEvent `json:"events" binding:"required"`
}

// Track ingests a batch of behavior events. Events for dimensions the tenant
// disabled are silently ignored, an unknown session is a 404.
func (h *VisitorHandler) Track(c *gin.Context) {
	if _, ok := h.resolveConfig(c); !ok {
		return
	}
	var body trackEventBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	sessionID := c.Param("id")
	for _, ev := range body.Events {
		if err := h.tracker.Record(sessionID, ev); err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not tracked", Message: err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "ok"})
}

// EndSession tears the tracker down when the visitor leaves the page.
func (h *VisitorHandler) EndSession(c *gin.Context) {
	if _, ok := h.resolveConfig(c); !ok {
		return
	}
	h.tracker.Stop(c.Param("id"))
	c.JSON(http.StatusOK, SuccessResponse{Message: "ok"})
}

func RegisterVisitorRoutes(r *gin.RouterGroup, handler *VisitorHandler) {
	public := r.Group("/public")
	{
		public.GET("/bootstrap", handler.Bootstrap)
		public.POST("/sessions", handler.StartSession)
		public.POST("/sessions/:id/messages", handler.SendMessage)
		public.POST("/sessions/:id/typing", handler.Typing)
		public.POST("/sessions/:id/events", handler.Track)
		public.POST("/sessions/:id/end", handler.EndSession)
	}
}
