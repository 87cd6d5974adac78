package metrics

import (
	"sync"
	"sync/atomic"
)

// Counters are kept simple/thread-safe for use from middlewares, the AI
// boundary and the metrics endpoint.

type counterSet struct {
	total    uint64
	mu       sync.Mutex
	byReason map[string]uint64
}

func (c *counterSet) inc(reason, fallback string) {
	if reason == "" {
		reason = fallback
	}
	atomic.AddUint64(&c.total, 1)
	c.mu.Lock()
	if c.byReason == nil {
		c.byReason = make(map[string]uint64)
	}
	c.byReason[reason]++
	c.mu.Unlock()
}

func (c *counterSet) snapshot() (uint64, map[string]uint64) {
	total := atomic.LoadUint64(&c.total)
	c.mu.Lock()
	defer c.mu.Unlock()
	by := make(map[string]uint64, len(c.byReason))
	for k, v := range c.byReason {
		by[k] = v
	}
	return total, by
}

var (
	rateLimit  counterSet
	aiFallback counterSet
	replies    counterSet
)

// IncRateLimitDrop counts an HTTP 429 for the given route prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	rateLimit.inc(prefix, "global")
}

// RateLimitSnapshot returns a copy of the rate-limit drop counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	return rateLimit.snapshot()
}

// IncAIFallback counts a degraded AI call by failure reason.
func IncAIFallback(reason string) {
	aiFallback.inc(reason, "unknown")
}

// AIFallbackSnapshot returns a copy of the AI fallback counters.
func AIFallbackSnapshot() (total uint64, by map[string]uint64) {
	return aiFallback.snapshot()
}

// IncSimulatedReply counts a completed deferred-reply phase by outcome
// ("ok", "fallback", "dropped").
func IncSimulatedReply(outcome string) {
	replies.inc(outcome, "ok")
}

// SimulatedReplySnapshot returns a copy of the deferred-reply counters.
func SimulatedReplySnapshot() (total uint64, by map[string]uint64) {
	return replies.snapshot()
}
