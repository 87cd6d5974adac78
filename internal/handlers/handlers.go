package handlers

import (
	"net/http"
	"time"

	"chatdesk/internal/metrics"
	"chatdesk/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type WebSocketHandler struct {
	wsHub *services.WebSocketHub
}

func NewWebSocketHandler(wsHub *services.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{wsHub: wsHub}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	h.wsHub.HandleWebSocket(c)
}

func (h *WebSocketHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"connected_clients": h.wsHub.GetClientCount(),
			"status":            "running",
		},
	})
}

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}

// Ready also pings the database, load balancers gate on this one.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// MetricsHandler exposes the internal counters plus live gauges from the
// chat and tracking subsystems.
type MetricsHandler struct {
	hub     *services.WebSocketHub
	chat    *services.ChatService
	tracker *services.TrackerService
	ai      services.AIServiceInterface
}

func NewMetricsHandler(hub *services.WebSocketHub, chat *services.ChatService, tracker *services.TrackerService, ai services.AIServiceInterface) *MetricsHandler {
	return &MetricsHandler{hub: hub, chat: chat, tracker: tracker, ai: ai}
}

func (h *MetricsHandler) Metrics(c *gin.Context) {
	rlTotal, rlBy := metrics.RateLimitSnapshot()
	aiTotal, aiBy := metrics.AIFallbackSnapshot()
	srTotal, srBy := metrics.SimulatedReplySnapshot()

	c.JSON(http.StatusOK, gin.H{
		"rate_limit_drops": gin.H{"total": rlTotal, "by_route": rlBy},
		"ai_fallbacks":     gin.H{"total": aiTotal, "by_reason": aiBy},
		"simulated_replies": gin.H{
			"total":      srTotal,
			"by_outcome": srBy,
			"pending":    h.chat.PendingReplies(),
		},
		"websocket_clients": h.hub.GetClientCount(),
		"tracked_visitors":  h.tracker.Active(),
		"ai_status":         h.ai.Status(),
	})
}
