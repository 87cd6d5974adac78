package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatdesk/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TeamService manages the dashboard's team table: invites, role changes and
// removals, all scoped to one tenant.
type TeamService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTeamService(db *gorm.DB, logger *logrus.Logger) *TeamService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TeamService{db: db, logger: logger}
}

var teamRoles = map[string]struct{}{
	"owner": {},
	"admin": {},
	"agent": {},
}

type InviteRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}

// List returns a tenant's members, owners first, then by name.
func (s *TeamService) List(ctx context.Context, tenantID string) ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, name ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("list team: %w", err)
	}
	return members, nil
}

// Invite adds a member in the invited state. Duplicate emails within a
// tenant are rejected.
func (s *TeamService) Invite(ctx context.Context, tenantID string, req *InviteRequest) (*models.TeamMember, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := req.Role
	if role == "" {
		role = "agent"
	}
	if _, ok := teamRoles[role]; !ok {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("tenant_id = ? AND email = ?", tenantID, email).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check member: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("member %s already exists", email)
	}

	member := &models.TeamMember{
		TenantID: tenantID,
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Role:     role,
		Status:   "invited",
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, fmt.Errorf("invite member: %w", err)
	}
	return member, nil
}

// UpdateRole changes a member's role. The last owner cannot be demoted.
func (s *TeamService) UpdateRole(ctx context.Context, tenantID string, memberID uint, role string) (*models.TeamMember, error) {
	if _, ok := teamRoles[role]; !ok {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	var member models.TeamMember
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, memberID).
		First(&member).Error; err != nil {
		return nil, err
	}

	if member.Role == "owner" && role != "owner" {
		var owners int64
		if err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
			Where("tenant_id = ? AND role = 'owner'", tenantID).
			Count(&owners).Error; err != nil {
			return nil, fmt.Errorf("count owners: %w", err)
		}
		if owners <= 1 {
			return nil, fmt.Errorf("cannot demote the last owner")
		}
	}

	if err := s.db.WithContext(ctx).Model(&member).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	member.Role = role
	return &member, nil
}

// Remove soft-deletes a member. Owners must be demoted first.
func (s *TeamService) Remove(ctx context.Context, tenantID string, memberID uint) error {
	var member models.TeamMember
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, memberID).
		First(&member).Error; err != nil {
		return err
	}
	if member.Role == "owner" {
		return fmt.Errorf("cannot remove an owner")
	}
	return s.db.WithContext(ctx).Delete(&member).Error
}

// TouchLastSeen records dashboard activity for a member.
func (s *TeamService) TouchLastSeen(ctx context.Context, tenantID, email string) {
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("tenant_id = ? AND email = ?", tenantID, strings.ToLower(email)).
		Updates(map[string]interface{}{"last_seen": now, "status": "active"}).Error
	if err != nil {
		s.logger.Debugf("touch last seen for %s: %v", email, err)
	}
}
