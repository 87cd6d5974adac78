package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"chatdesk/internal/middleware"
	"chatdesk/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TeamHandler struct {
	service *services.TeamService
}

func NewTeamHandler(service *services.TeamService) *TeamHandler {
	return &TeamHandler{service: service}
}

func (h *TeamHandler) List(c *gin.Context) {
	members, err := h.service.List(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list members", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    members,
		"total":   len(members),
	})
}

func (h *TeamHandler) Invite(c *gin.Context) {
	var req services.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	member, err := h.service.Invite(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to invite member", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    member,
	})
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *TeamHandler) UpdateRole(c *gin.Context) {
	memberID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	member, err := h.service.UpdateRole(c.Request.Context(), middleware.TenantID(c), uint(memberID), req.Role)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Member not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to update role", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    member,
	})
}

func (h *TeamHandler) Remove(c *gin.Context) {
	memberID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	if err := h.service.Remove(c.Request.Context(), middleware.TenantID(c), uint(memberID)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Member not found", Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to remove member", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Member removed"})
}

func RegisterTeamRoutes(r *gin.RouterGroup, handler *TeamHandler) {
	team := r.Group("/team")
	{
		team.GET("/members", handler.List)
		team.POST("/members", handler.Invite)
		team.PUT("/members/:id/role", handler.UpdateRole)
		team.DELETE("/members/:id", handler.Remove)
	}
}
