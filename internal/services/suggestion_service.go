package services

import (
	"context"
	"strings"

	"chatdesk/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SuggestionService drafts agent replies from session history, the visitor's
// name and the tenant's business context. The agent may apply the suggestion
// verbatim into the compose box or discard it.
type SuggestionService struct {
	db     *gorm.DB
	logger *logrus.Logger
	ai     AIServiceInterface
}

func NewSuggestionService(db *gorm.DB, logger *logrus.Logger, ai AIServiceInterface) *SuggestionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &SuggestionService{db: db, logger: logger, ai: ai}
}

type SuggestionRequest struct {
	SessionID string `json:"session_id" binding:"required"`

	// Optional; nil falls back to the tenant's configured temperature. An
	// explicit 0 is a valid request for deterministic output.
	Temperature *float64 `json:"temperature"`
}

type SuggestionResponse struct {
	SessionID  string     `json:"session_id"`
	Suggestion string     `json:"suggestion"`
	Status     CallStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
}

// Suggest loads the session by tenant + id and asks the generator for one
// reply. Result degradation follows the AI boundary: a Fallback still
// carries a usable suggestion.
func (s *SuggestionService) Suggest(ctx context.Context, tenantID string, req *SuggestionRequest) (*SuggestionResponse, error) {
	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("messages.id ASC") }).
		Where("tenant_id = ? AND id = ?", tenantID, req.SessionID).
		First(&sess).Error
	if err != nil {
		return nil, err
	}

	var cfg models.WidgetConfig
	businessContext := ""
	temperature := 0.7
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&cfg).Error; err == nil {
		businessContext = cfg.BusinessContext
		if cfg.AITemperature > 0 {
			temperature = cfg.AITemperature
		}
	}
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	history := make([]ChatTurn, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		history = append(history, ChatTurn{Role: m.Sender, Content: m.Content})
	}

	res := s.ai.Suggest(ctx, history, sess.VisitorName, businessContext, temperature)
	return &SuggestionResponse{
		SessionID:  sess.ID,
		Suggestion: strings.TrimSpace(res.Value),
		Status:     res.Status,
		Reason:     res.Reason,
	}, nil
}
