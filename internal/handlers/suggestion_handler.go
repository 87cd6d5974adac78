package handlers

import (
	"errors"
	"net/http"

	"chatdesk/internal/middleware"
	"chatdesk/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SuggestionHandler struct {
	service *services.SuggestionService
}

func NewSuggestionHandler(service *services.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{service: service}
}

// Suggest drafts one reply for the conversation. A degraded generator still
// returns 200, the payload carries status fallback and a reason.
func (h *SuggestionHandler) Suggest(c *gin.Context) {
	var req services.SuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	resp, err := h.service.Suggest(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to suggest", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resp,
	})
}

func RegisterSuggestionRoutes(r *gin.RouterGroup, handler *SuggestionHandler) {
	assist := r.Group("/assist")
	{
		assist.POST("/suggest", handler.Suggest)
	}
}
