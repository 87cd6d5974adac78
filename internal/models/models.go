package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Tenant is an isolated customer organization. Widget configuration, chat
// sessions and team members are all scoped to a tenant. The sentinel tenant
// "default" holds the operator's own widget.
type Tenant struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Domain    string         `json:"domain"`
	WidgetKey string         `gorm:"uniqueIndex" json:"widget_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Members  []TeamMember  `gorm:"foreignKey:TenantID" json:"members,omitempty"`
	Sessions []ChatSession `gorm:"foreignKey:TenantID" json:"sessions,omitempty"`
}

// DefaultTenantID is the sentinel tenant that owns the operator's own widget.
const DefaultTenantID = "default"

// TeamMember is a dashboard user belonging to a tenant.
type TeamMember struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	TenantID  string         `gorm:"index" json:"tenant_id"`
	Name      string         `json:"name"`
	Email     string         `gorm:"index;not null" json:"email"`
	Role      string         `gorm:"default:'agent'" json:"role"`     // owner, admin, agent
	Status    string         `gorm:"default:'invited'" json:"status"` // invited, active, disabled
	LastSeen  *time.Time     `json:"last_seen"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Chat channels a session can originate from.
const (
	ChannelWeb       = "web"
	ChannelWhatsApp  = "whatsapp"
	ChannelInstagram = "instagram"
	ChannelFacebook  = "facebook"
)

// Session statuses.
const (
	SessionOpen    = "open"
	SessionClosed  = "closed"
	SessionSnoozed = "snoozed"
)

// ChatSession is one visitor's conversation thread. Messages are append-only
// in insertion order; LastActivity and Unread drive the inbox ordering.
type ChatSession struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	TenantID      string    `gorm:"index" json:"tenant_id"`
	VisitorID     string    `gorm:"index" json:"visitor_id"`
	VisitorName   string    `json:"visitor_name"`
	Channel       string    `gorm:"default:'web'" json:"channel"`
	Status        string    `gorm:"default:'open'" json:"status"`
	Unread        int       `gorm:"default:0" json:"unread"`
	Tags          string    `json:"tags"` // comma separated
	TypingPreview string    `json:"typing_preview"`
	LastActivity  time.Time `gorm:"index" json:"last_activity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Messages []Message `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// TagList splits the comma-separated tag field into trimmed, non-empty tags.
func (s *ChatSession) TagList() []string {
	if strings.TrimSpace(s.Tags) == "" {
		return nil
	}
	parts := strings.Split(s.Tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Message senders.
const (
	SenderVisitor = "visitor"
	SenderAgent   = "agent"
	SenderBot     = "bot"
)

// Message is a single chat message. Immutable once appended.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"index" json:"session_id"`
	Sender     string    `gorm:"not null" json:"sender"` // visitor, agent, bot
	SenderName string    `json:"sender_name"`
	Content    string    `gorm:"type:text" json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// WidgetConfig is the flat per-tenant settings bag for the embeddable widget.
// Column/JSON names use snake_case; the widget bootstrap and embed snippet
// serialize the same fields in camelCase (see services.ConfigToCamelMap).
type WidgetConfig struct {
	TenantID  string `gorm:"primaryKey" json:"tenant_id"`
	WidgetKey string `gorm:"index" json:"widget_key"`

	// Appearance
	PrimaryColor string `gorm:"default:'#4f46e5'" json:"primary_color"`
	AccentColor  string `gorm:"default:'#ffffff'" json:"accent_color"`
	Position     string `gorm:"default:'bottom-right'" json:"position"`
	LauncherIcon string `gorm:"default:'chat-bubble'" json:"launcher_icon"`

	// Copy
	WelcomeMessage  string `gorm:"default:'Hi there! How can we help?'" json:"welcome_message"`
	PlaceholderText string `gorm:"default:'Type a message...'" json:"placeholder_text"`
	HeaderTitle     string `gorm:"default:'Chat with us'" json:"header_title"`
	HeaderSubtitle  string `json:"header_subtitle"`
	OfflineMessage  string `gorm:"default:'We are offline right now. Leave a message!'" json:"offline_message"`

	// Behavior
	ShowBranding  bool `gorm:"default:true" json:"show_branding"`
	AutoOpenDelay int  `gorm:"default:0" json:"auto_open_delay"` // seconds, 0 = never

	// Visitor tracking toggles
	TrackPageViews     bool `gorm:"default:true" json:"track_page_views"`
	TrackScrollDepth   bool `gorm:"default:true" json:"track_scroll_depth"`
	TrackClicks        bool `gorm:"default:true" json:"track_clicks"`
	TrackMouseActivity bool `gorm:"default:true" json:"track_mouse_activity"`
	TrackTimeOnPage    bool `gorm:"default:true" json:"track_time_on_page"`
	MouseIdleTimeout   int  `gorm:"default:0" json:"mouse_idle_timeout"` // seconds, 0 = never decays

	// AI assist
	AIProvider      string  `gorm:"default:'openai'" json:"ai_provider"`
	AIModel         string  `gorm:"default:'gpt-4o-mini'" json:"ai_model"`
	AITemperature   float64 `gorm:"default:0.7" json:"ai_temperature"`
	BusinessContext string  `gorm:"type:text" json:"business_context"`

	// Reply simulation
	ReplyLatencyMS int `gorm:"default:2500" json:"reply_latency_ms"`

	// Security
	AllowedDomains string `json:"allowed_domains"` // comma separated

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
