package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Tracking event types sent by the widget.
const (
	EventPageView  = "page_view"
	EventScroll    = "scroll"
	EventClick     = "click"
	EventMouseMove = "mouse_move"
)

// TrackingEvent is one observed visitor signal.
type TrackingEvent struct {
	Type    string  `json:"type" binding:"required"`
	URL     string  `json:"url,omitempty"`
	Browser string  `json:"browser,omitempty"`
	Percent float64 `json:"percent,omitempty"` // scroll depth 0-100
}

// TrackingOptions selects which dimensions a session's tracker observes.
// A disabled dimension registers no handler and contributes no snapshot
// field.
type TrackingOptions struct {
	PageViews     bool
	ScrollDepth   bool
	Clicks        bool
	MouseActivity bool
	TimeOnPage    bool

	// MouseIdleTimeout controls when the mouse-active flag decays back to
	// inactive. Zero means it never decays ("ever active this session").
	MouseIdleTimeout time.Duration
}

// VisitorSnapshot is the visitor-intelligence feed for one session. Pointer
// fields distinguish "not tracked" (nil) from a tracked zero value.
type VisitorSnapshot struct {
	URL           *string    `json:"url,omitempty"`
	Browser       *string    `json:"browser,omitempty"`
	PageViews     *int       `json:"page_views,omitempty"`
	ScrollDepth   *float64   `json:"scroll_depth,omitempty"`
	Clicks        *int       `json:"clicks,omitempty"`
	MouseActive   *bool      `json:"mouse_active,omitempty"`
	LastMouseMove *time.Time `json:"last_mouse_move,omitempty"`
	TimeOnPage    *int       `json:"time_on_page,omitempty"` // seconds
	IntentScore   *int       `json:"intent_score,omitempty"` // 0-100
	UpdatedAt     time.Time  `json:"updated_at"`
}

// visitorTracker aggregates one session's signals. Handlers are registered
// per enabled dimension; events for dimensions without a handler are ignored.
type visitorTracker struct {
	mu       sync.Mutex
	opts     TrackingOptions
	handlers map[string]func(*visitorTracker, TrackingEvent)
	clock    func() time.Time

	url           string
	browser       string
	pageViews     int
	scrollDepth   float64 // monotonic max
	clicks        int
	lastMouseMove time.Time
	seconds       int // monotonic, reset only by a new session

	ticker *time.Ticker
	stop   chan struct{}
}

// TrackerService owns the per-session visitor trackers. Trackers live in
// memory only; snapshots are rebuilt from live signals, not persisted.
type TrackerService struct {
	mu       sync.RWMutex
	trackers map[string]*visitorTracker
	logger   *logrus.Logger
	hub      *WebSocketHub
	now      func() time.Time
}

func NewTrackerService(logger *logrus.Logger) *TrackerService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TrackerService{
		trackers: make(map[string]*visitorTracker),
		logger:   logger,
		now:      time.Now,
	}
}

// SetHub injects the realtime hub (optional).
func (s *TrackerService) SetHub(hub *WebSocketHub) {
	s.hub = hub
}

// Start attaches a tracker for the session, one handler per enabled
// dimension. Restarting an already-tracked session tears the old tracker
// down first, resetting all counters.
func (s *TrackerService) Start(sessionID string, opts TrackingOptions) {
	s.Stop(sessionID)

	t := &visitorTracker{
		opts:     opts,
		handlers: make(map[string]func(*visitorTracker, TrackingEvent)),
		clock:    func() time.Time { return s.now() },
		stop:     make(chan struct{}),
	}
	if opts.PageViews {
		t.handlers[EventPageView] = (*visitorTracker).onPageView
	}
	if opts.ScrollDepth {
		t.handlers[EventScroll] = (*visitorTracker).onScroll
	}
	if opts.Clicks {
		t.handlers[EventClick] = (*visitorTracker).onClick
	}
	if opts.MouseActivity {
		t.handlers[EventMouseMove] = (*visitorTracker).onMouseMove
	}
	if opts.TimeOnPage {
		t.ticker = time.NewTicker(time.Second)
		go t.tickLoop()
	}

	s.mu.Lock()
	s.trackers[sessionID] = t
	s.mu.Unlock()
}

func (t *visitorTracker) tickLoop() {
	for {
		select {
		case <-t.ticker.C:
			t.mu.Lock()
			t.seconds++
			t.mu.Unlock()
		case <-t.stop:
			return
		}
	}
}

// Record folds one event into the session's tracker. Events for disabled
// dimensions are dropped silently; events for unknown sessions are an error
// so the widget can re-handshake.
func (s *TrackerService) Record(sessionID string, ev TrackingEvent) error {
	s.mu.RLock()
	t, ok := s.trackers[sessionID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no tracker for session %s", sessionID)
	}

	handler, ok := t.handlers[ev.Type]
	if !ok {
		return nil
	}
	t.mu.Lock()
	handler(t, ev)
	t.mu.Unlock()

	if s.hub != nil {
		if snap, ok := s.Snapshot(sessionID); ok {
			s.hub.BroadcastVisitorActivity(sessionID, snap)
		}
	}
	return nil
}

func (t *visitorTracker) onPageView(ev TrackingEvent) {
	t.pageViews++
	if ev.URL != "" {
		t.url = ev.URL
	}
	if ev.Browser != "" {
		t.browser = ev.Browser
	}
}

// onScroll clamps to the maximum depth seen this session; the recorded value
// never decreases once increased.
func (t *visitorTracker) onScroll(ev TrackingEvent) {
	p := ev.Percent
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p > t.scrollDepth {
		t.scrollDepth = p
	}
}

func (t *visitorTracker) onClick(TrackingEvent) {
	t.clicks++
}

func (t *visitorTracker) onMouseMove(TrackingEvent) {
	t.lastMouseMove = t.clock()
}

// Snapshot rebuilds the visitor-intelligence view for a session. Fields for
// disabled dimensions stay nil.
func (s *TrackerService) Snapshot(sessionID string) (*VisitorSnapshot, bool) {
	s.mu.RLock()
	t, ok := s.trackers[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := s.now()
	snap := &VisitorSnapshot{UpdatedAt: now}
	if t.opts.PageViews {
		pv := t.pageViews
		snap.PageViews = &pv
		if t.url != "" {
			u := t.url
			snap.URL = &u
		}
		if t.browser != "" {
			b := t.browser
			snap.Browser = &b
		}
	}
	if t.opts.ScrollDepth {
		sd := t.scrollDepth
		snap.ScrollDepth = &sd
	}
	if t.opts.Clicks {
		c := t.clicks
		snap.Clicks = &c
	}
	if t.opts.MouseActivity {
		active := false
		if !t.lastMouseMove.IsZero() {
			if t.opts.MouseIdleTimeout <= 0 {
				active = true
			} else {
				active = now.Sub(t.lastMouseMove) <= t.opts.MouseIdleTimeout
			}
			lm := t.lastMouseMove
			snap.LastMouseMove = &lm
		}
		snap.MouseActive = &active
	}
	if t.opts.TimeOnPage {
		sec := t.seconds
		snap.TimeOnPage = &sec
	}

	score := intentScore(t)
	snap.IntentScore = &score
	return snap, true
}

// intentScore folds the enabled signals into a 0-100 engagement estimate.
// Weights are heuristic: dwell and scroll dominate, clicks nudge.
func intentScore(t *visitorTracker) int {
	score := 0.0
	if t.opts.ScrollDepth {
		score += t.scrollDepth * 0.4
	}
	if t.opts.TimeOnPage {
		dwell := float64(t.seconds)
		if dwell > 300 {
			dwell = 300
		}
		score += dwell / 300 * 40
	}
	if t.opts.Clicks {
		c := float64(t.clicks)
		if c > 10 {
			c = 10
		}
		score += c * 2
	}
	if score > 100 {
		score = 100
	}
	return int(score)
}

// Stop tears the session's tracker down, removing all handlers and stopping
// the time-on-page ticker. Safe to call for unknown sessions.
func (s *TrackerService) Stop(sessionID string) {
	s.mu.Lock()
	t, ok := s.trackers[sessionID]
	if ok {
		delete(s.trackers, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if t.ticker != nil {
		t.ticker.Stop()
	}
	close(t.stop)
}

// Active reports how many sessions are currently tracked.
func (s *TrackerService) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trackers)
}
