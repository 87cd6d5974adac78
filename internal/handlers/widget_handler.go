package handlers

import (
	"net/http"

	"chatdesk/internal/config"
	"chatdesk/internal/middleware"
	"chatdesk/internal/services"

	"github.com/gin-gonic/gin"
)

type WidgetHandler struct {
	widget *services.WidgetService
	cfg    *config.Config
}

func NewWidgetHandler(widget *services.WidgetService, cfg *config.Config) *WidgetHandler {
	return &WidgetHandler{widget: widget, cfg: cfg}
}

// GetConfig returns the tenant widget configuration in the dashboard's
// camelCase shape.
func (h *WidgetHandler) GetConfig(c *gin.Context) {
	cfg, err := h.widget.GetConfig(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load config", Message: err.Error()})
		return
	}
	data, err := services.ConfigToCamelMap(cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to encode config", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// UpdateConfig merges a camelCase patch into the stored configuration.
// Unknown and protected keys are skipped, everything else is applied.
func (h *WidgetHandler) UpdateConfig(c *gin.Context) {
	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	cfg, err := h.widget.UpdateConfig(c.Request.Context(), middleware.TenantID(c), services.CamelPatchToSnake(patch))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to update config", Message: err.Error()})
		return
	}
	data, err := services.ConfigToCamelMap(cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to encode config", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// ResetConfig drops the stored row and recreates defaults. The widget key
// rotates, existing embed snippets must be refreshed.
func (h *WidgetHandler) ResetConfig(c *gin.Context) {
	cfg, err := h.widget.ResetConfig(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to reset config", Message: err.Error()})
		return
	}
	data, err := services.ConfigToCamelMap(cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to encode config", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// EmbedSnippet returns the copy-paste installation snippet for the tenant.
func (h *WidgetHandler) EmbedSnippet(c *gin.Context) {
	cfg, err := h.widget.GetConfig(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load config", Message: err.Error()})
		return
	}
	snippet, err := services.BuildEmbedSnippet(h.cfg.Server.BaseURL, h.cfg.Widget.BundleURL, cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to build snippet", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"widget_key": cfg.WidgetKey,
			"snippet":    snippet,
		},
	})
}

func RegisterWidgetRoutes(r *gin.RouterGroup, handler *WidgetHandler) {
	widget := r.Group("/widget")
	{
		widget.GET("/config", handler.GetConfig)
		widget.PATCH("/config", handler.UpdateConfig)
		widget.POST("/config/reset", handler.ResetConfig)
		widget.GET("/embed", handler.EmbedSnippet)
	}
}
