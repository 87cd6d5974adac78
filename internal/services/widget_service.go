package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"chatdesk/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Fields the merge update never touches, whatever the patch says.
var protectedConfigFields = map[string]struct{}{
	"tenant_id":  {},
	"widget_key": {},
	"created_at": {},
	"updated_at": {},
}

// configFieldIndex maps snake_case json tags to WidgetConfig struct fields,
// built once at init.
var configFieldIndex = buildConfigFieldIndex()

func buildConfigFieldIndex() map[string]int {
	idx := make(map[string]int)
	t := reflect.TypeOf(models.WidgetConfig{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		idx[name] = i
	}
	return idx
}

// WidgetService is the tenant-keyed widget configuration store: get, partial
// merge update and delete-then-recreate reset, plus the embed/bootstrap
// surfaces built on top of it.
type WidgetService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewWidgetService(db *gorm.DB, logger *logrus.Logger) *WidgetService {
	if logger == nil {
		logger = logrus.New()
	}
	return &WidgetService{db: db, logger: logger}
}

// DefaultWidgetConfig returns the factory settings for a tenant.
func DefaultWidgetConfig(tenantID string) models.WidgetConfig {
	return models.WidgetConfig{
		TenantID:        tenantID,
		WidgetKey:       uuid.NewString(),
		PrimaryColor:    "#4f46e5",
		AccentColor:     "#ffffff",
		Position:        "bottom-right",
		LauncherIcon:    "chat-bubble",
		WelcomeMessage:  "Hi there! How can we help?",
		PlaceholderText: "Type a message...",
		HeaderTitle:     "Chat with us",
		OfflineMessage:  "We are offline right now. Leave a message!",
		ShowBranding:    true,

		TrackPageViews:     true,
		TrackScrollDepth:   true,
		TrackClicks:        true,
		TrackMouseActivity: true,
		TrackTimeOnPage:    true,

		AIProvider:     "openai",
		AIModel:        "gpt-4o-mini",
		AITemperature:  0.7,
		ReplyLatencyMS: 2500,
	}
}

// GetConfig loads a tenant's config, lazily creating the defaults on first
// access. A missing tenant id falls back to the sentinel default tenant.
func (s *WidgetService) GetConfig(ctx context.Context, tenantID string) (*models.WidgetConfig, error) {
	if tenantID == "" {
		tenantID = models.DefaultTenantID
	}
	var cfg models.WidgetConfig
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = DefaultWidgetConfig(tenantID)
		if err := s.db.WithContext(ctx).Create(&cfg).Error; err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return &cfg, nil
}

// GetConfigByKey resolves a config from the public widget key used by the
// embed snippet.
func (s *WidgetService) GetConfigByKey(ctx context.Context, widgetKey string) (*models.WidgetConfig, error) {
	var cfg models.WidgetConfig
	err := s.db.WithContext(ctx).Where("widget_key = ?", widgetKey).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateConfig merges the named snake_case fields into the stored config.
// Protected fields (tenant_id, widget_key, timestamps) are skipped; unknown
// keys are skipped with a warning rather than failing the whole patch.
// Returns the updated record.
func (s *WidgetService) UpdateConfig(ctx context.Context, tenantID string, patch map[string]interface{}) (*models.WidgetConfig, error) {
	cfg, err := s.GetConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	v := reflect.ValueOf(cfg).Elem()
	changed := map[string]interface{}{}
	for key, raw := range patch {
		if _, protected := protectedConfigFields[key]; protected {
			continue
		}
		idx, known := configFieldIndex[key]
		if !known {
			s.logger.Warnf("widget config patch: unknown field %q skipped", key)
			continue
		}
		field := v.Field(idx)
		val, err := coerce(raw, field.Type())
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		field.Set(val)
		changed[key] = val.Interface()
	}

	if len(changed) == 0 {
		return cfg, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.WidgetConfig{}).
		Where("tenant_id = ?", cfg.TenantID).
		Updates(changed).Error; err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}
	return s.GetConfig(ctx, cfg.TenantID)
}

// coerce adapts JSON-decoded values (float64 numbers, bools, strings) to the
// target field type.
func coerce(raw interface{}, target reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(target), nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Type() == target {
		return rv, nil
	}
	switch target.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		f, ok := raw.(float64)
		if !ok || f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("expected integer, got %T", raw)
		}
		return reflect.ValueOf(int(f)).Convert(target), nil
	case reflect.Float64:
		if f, ok := raw.(float64); ok {
			return reflect.ValueOf(f), nil
		}
	case reflect.String:
		if s, ok := raw.(string); ok {
			return reflect.ValueOf(s), nil
		}
	case reflect.Bool:
		if b, ok := raw.(bool); ok {
			return reflect.ValueOf(b), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("expected %s, got %T", target.Kind(), raw)
}

// ResetConfig deletes the tenant's config and recreates the defaults. The
// widget key rotates with the reset.
func (s *WidgetService) ResetConfig(ctx context.Context, tenantID string) (*models.WidgetConfig, error) {
	if tenantID == "" {
		tenantID = models.DefaultTenantID
	}
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&models.WidgetConfig{}).Error; err != nil {
		return nil, fmt.Errorf("reset config: %w", err)
	}
	cfg := DefaultWidgetConfig(tenantID)
	if err := s.db.WithContext(ctx).Create(&cfg).Error; err != nil {
		return nil, fmt.Errorf("recreate config: %w", err)
	}
	return &cfg, nil
}

// TrackingOptionsFor maps a config's toggles onto the tracker's options.
func TrackingOptionsFor(cfg *models.WidgetConfig) TrackingOptions {
	return TrackingOptions{
		PageViews:        cfg.TrackPageViews,
		ScrollDepth:      cfg.TrackScrollDepth,
		Clicks:           cfg.TrackClicks,
		MouseActivity:    cfg.TrackMouseActivity,
		TimeOnPage:       cfg.TrackTimeOnPage,
		MouseIdleTimeout: time.Duration(cfg.MouseIdleTimeout) * time.Second,
	}
}
